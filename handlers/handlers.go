package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"userdeck/common"
	"userdeck/database"
)

var (
	errorLog = common.ErrorLog
	infoLog  = common.InfoLog
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// parseListQuery extracts filter/ordering/pagination params from a users
// list request.
func parseListQuery(q url.Values) (database.UserFilter, database.ListParams, error) {
	f := database.UserFilter{
		Email:    strings.TrimSpace(q.Get("email")),
		FullName: strings.TrimSpace(q.Get("full_name")),
	}
	var err error
	if f.IsActive, err = parseBoolPtr(q.Get("is_active")); err != nil {
		return f, database.ListParams{}, fmt.Errorf("is_active: %w", err)
	}
	if f.IsSuperuser, err = parseBoolPtr(q.Get("is_superuser")); err != nil {
		return f, database.ListParams{}, fmt.Errorf("is_superuser: %w", err)
	}

	p := database.ListParams{
		Ordering: q.Get("ordering"),
		Offset:   clamp(parseIntDefault(q.Get("offset"), 0), 0, 1<<30),
		Limit:    clamp(parseIntDefault(q.Get("limit"), defaultPageSize), 1, maxPageSize),
	}
	return f, p, nil
}

// parseBoolPtr returns nil for an absent value, an error for garbage.
func parseBoolPtr(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a boolean", s)
	}
	return &b, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// validEmail is a cheap shape check; real validation is the confirmation mail.
func validEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
