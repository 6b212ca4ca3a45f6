package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"userdeck/middleware"
)

// superuserRequest builds a request carrying an authenticated superuser and
// an optional {userID} route param, the way the router would after
// RequireAuth ran.
func superuserRequest(t *testing.T, method, target, userID string, body io.Reader) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	rctx := chi.NewRouteContext()
	if userID != "" {
		rctx.URLParams.Add("userID", userID)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserKey, middleware.User{
		ID:          uuid.New(),
		Email:       "root@example.com",
		IsActive:    true,
		IsSuperuser: true,
	})
	return req.WithContext(ctx)
}

func TestReadUser_InvalidUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	readUser(rec, superuserRequest(t, http.MethodGet, "/api/users/not-a-uuid", "not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid user id")
}

func TestUpdateUser_InvalidUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	updateUser(rec, superuserRequest(t, http.MethodPut, "/api/users/42", "42",
		strings.NewReader(`{"full_name":"x"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUser_InvalidUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	deleteUser(rec, superuserRequest(t, http.MethodDelete, "/api/users/zzzz", "zzzz", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUser_MalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	createUser(rec, superuserRequest(t, http.MethodPost, "/api/users", "",
		strings.NewReader(`{"email": `)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestCreateUser_InvalidEmail(t *testing.T) {
	rec := httptest.NewRecorder()
	createUser(rec, superuserRequest(t, http.MethodPost, "/api/users", "",
		strings.NewReader(`{"email":"no-at-sign","password":"long enough pw"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email")
}

func TestCreateUser_ShortPassword(t *testing.T) {
	rec := httptest.NewRecorder()
	createUser(rec, superuserRequest(t, http.MethodPost, "/api/users", "",
		strings.NewReader(`{"email":"a@b.c","password":"short"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUser_MalformedJSON(t *testing.T) {
	// a valid id must still reject a bad body before touching anything
	rec := httptest.NewRecorder()
	updateUser(rec, superuserRequest(t, http.MethodPut, "/api/users/x", uuid.NewString(),
		strings.NewReader(`not json`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestUpdateUserMe_MalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	updateUserMe(rec, superuserRequest(t, http.MethodPut, "/api/users/me", "",
		strings.NewReader(`{`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
