package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"userdeck/common"
	"userdeck/database"
)

// User is the session snapshot of an authenticated account.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
}

type ctxKey string

const UserKey ctxKey = "userdeck.user"

// RequireAuth checks the session for a valid user and expiry, refreshes the
// account flags from the database so a deactivation takes effect on the next
// request, and stores the user in the request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if common.SessionManager == nil {
			http.Error(w, "auth not configured", http.StatusInternalServerError)
			return
		}

		u, ok := common.SessionManager.Get(r.Context(), "user").(User)
		exp := common.SessionManager.GetInt64(r.Context(), "exp")
		if !ok || time.Now().Unix() > exp {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if common.DB != nil {
			row, err := database.GetUser(r.Context(), u.ID)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			u.Email = row.Email
			u.FullName = row.FullName
			u.IsActive = row.IsActive
			u.IsSuperuser = row.IsSuperuser
		}
		if !u.IsActive {
			http.Error(w, "inactive user", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSuperuser gates a route on the superuser flag. Must run after
// RequireAuth.
func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !CurrentUser(r.Context()).IsSuperuser {
			http.Error(w, "not enough privileges", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser extracts the current user from the request context
func CurrentUser(ctx context.Context) User {
	if v := ctx.Value(UserKey); v != nil {
		if u, ok := v.(User); ok {
			return u
		}
	}
	return User{}
}

// GetUserEmail extracts the user's email from context (for audit logs)
func GetUserEmail(ctx context.Context) string {
	u := CurrentUser(ctx)
	if u.Email != "" {
		return u.Email
	}
	if u.ID != uuid.Nil {
		return u.ID.String()
	}
	return "anonymous"
}
