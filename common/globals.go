package common

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Shared between main, middleware and handlers.
var (
	DB             *pgxpool.Pool
	SessionManager *scs.SessionManager
)

const (
	SessionName = "userdeck_sess"
)

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode JSON", http.StatusInternalServerError)
	}
}

// Env gets an environment variable with a default value
func Env(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// EnvBool gets an environment variable as a boolean with a default value
func EnvBool(key, def string) bool {
	v := strings.ToLower(Env(key, def))
	return v == "1" || v == "t" || v == "true" || v == "yes" || v == "on"
}

// ReadSecretMaybeFile reads a secret from a file if the value starts with "@"
func ReadSecretMaybeFile(value string) (string, error) {
	if strings.HasPrefix(value, "@") {
		filepath := strings.TrimPrefix(value, "@")
		content, err := os.ReadFile(filepath)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(content)), nil
	}
	return value, nil
}

// EnvOrFile reads a value from an env var or a *_FILE path env var.
// Also accepts "@/path" in the direct value.
func EnvOrFile(valueKey, fileKey string) (string, error) {
	if raw := os.Getenv(valueKey); raw != "" {
		return ReadSecretMaybeFile(raw)
	}
	if fp := strings.TrimSpace(os.Getenv(fileKey)); fp != "" {
		b, err := os.ReadFile(fp)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", nil
}
