package middleware

import (
	"context"
	"encoding/gob"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userdeck/common"
)

func init() {
	gob.Register(User{})
}

// establish runs one request that writes the given user into a fresh scs
// session and returns the resulting session cookie.
func establish(t *testing.T, sm *scs.SessionManager, u User, exp int64) *http.Cookie {
	t.Helper()

	login := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Put(r.Context(), "user", u)
		sm.Put(r.Context(), "exp", exp)
	}))
	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "login request should set a session cookie")
	return cookies[0]
}

func withSessionManager(t *testing.T) *scs.SessionManager {
	t.Helper()
	sm := scs.New()
	prev := common.SessionManager
	common.SessionManager = sm
	t.Cleanup(func() { common.SessionManager = prev })
	return sm
}

func TestRequireAuth_NotConfigured(t *testing.T) {
	prev := common.SessionManager
	common.SessionManager = nil
	t.Cleanup(func() { common.SessionManager = prev })

	rec := httptest.NewRecorder()
	RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAuth_NoSession(t *testing.T) {
	sm := withSessionManager(t)

	h := sm.LoadAndSave(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ValidSession(t *testing.T) {
	sm := withSessionManager(t)
	want := User{ID: uuid.New(), Email: "alice@example.com", IsActive: true}
	cookie := establish(t, sm, want, time.Now().Add(time.Hour).Unix())

	var got User
	h := sm.LoadAndSave(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CurrentUser(r.Context())
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestRequireAuth_ExpiredSession(t *testing.T) {
	sm := withSessionManager(t)
	cookie := establish(t, sm, User{ID: uuid.New(), IsActive: true}, time.Now().Add(-time.Minute).Unix())

	h := sm.LoadAndSave(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InactiveUser(t *testing.T) {
	sm := withSessionManager(t)
	cookie := establish(t, sm, User{ID: uuid.New(), Email: "off@example.com", IsActive: false},
		time.Now().Add(time.Hour).Unix())

	h := sm.LoadAndSave(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSuperuser(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// regular user is rejected
	ctx := context.WithValue(context.Background(), UserKey, User{IsActive: true})
	req := httptest.NewRequest(http.MethodGet, "/api/system/stats", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	RequireSuperuser(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// superuser passes
	ctx = context.WithValue(context.Background(), UserKey, User{IsActive: true, IsSuperuser: true})
	req = httptest.NewRequest(http.MethodGet, "/api/system/stats", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	RequireSuperuser(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCurrentUser_Empty(t *testing.T) {
	u := CurrentUser(context.Background())
	assert.Equal(t, uuid.Nil, u.ID)
	assert.Equal(t, "anonymous", GetUserEmail(context.Background()))
}
