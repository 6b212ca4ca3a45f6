package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"userdeck/database"
	"userdeck/middleware"
	"userdeck/services"
)

// SetupUserRoutes mounts the authenticated /users API.
func SetupUserRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.With(middleware.RequireSuperuser).Get("/", listUsers)
		r.With(middleware.RequireSuperuser).Post("/", createUser)

		r.Get("/me", readUserMe)
		r.Put("/me", updateUserMe)

		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", readUser)
			r.With(middleware.RequireSuperuser).Put("/", updateUser)
			r.Delete("/", deleteUser)
		})
	})
}

// SetupPublicUserRoutes mounts the endpoints reachable without a session.
func SetupPublicUserRoutes(r chi.Router) {
	r.Post("/users/open", openRegistration)
}

type pagedUsers struct {
	Items  []database.UserRow `json:"items"`
	Total  int64              `json:"total"`
	Offset int                `json:"offset"`
	Limit  int                `json:"limit"`
}

// listUsers returns a filtered, ordered page of users (superuser only).
func listUsers(w http.ResponseWriter, r *http.Request) {
	f, p, err := parseListQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items, total, err := database.ListUsers(r.Context(), f, p)
	if err != nil {
		errorLog("users: list failed: %v", err)
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pagedUsers{Items: items, Total: total, Offset: p.Offset, Limit: p.Limit})
}

type createUserReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	IsActive    *bool  `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

// createUser creates an account (superuser only).
func createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if !validEmail(req.Email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	hashed, err := services.HashPassword(req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	u, err := database.CreateUser(r.Context(), req.Email, req.FullName, hashed, active, req.IsSuperuser)
	if errors.Is(err, database.ErrEmailTaken) {
		http.Error(w, "a user with this email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		errorLog("users: create failed: %v", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	services.SendNewAccountEmail(u.Email, u.FullName)
	services.Events.Publish(services.Event{Type: "user.created", Email: u.Email, Actor: middleware.GetUserEmail(r.Context())})
	infoLog("users: created %s by %s", u.Email, middleware.GetUserEmail(r.Context()))
	writeJSON(w, http.StatusCreated, u)
}

type openRegistrationReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// openRegistration self-registers a regular account when the deployment
// allows it. The app_settings override wins over the env default.
func openRegistration(w http.ResponseWriter, r *http.Request) {
	if !openRegistrationEnabled(r.Context()) {
		http.Error(w, "open user registration is forbidden on this server", http.StatusForbidden)
		return
	}
	var req openRegistrationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if !validEmail(req.Email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	hashed, err := services.HashPassword(req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := database.CreateUser(r.Context(), req.Email, req.FullName, hashed, true, false)
	if errors.Is(err, database.ErrEmailTaken) {
		http.Error(w, "a user with this email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		errorLog("users: open registration failed: %v", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	services.SendNewAccountEmail(u.Email, u.FullName)
	services.Events.Publish(services.Event{Type: "user.created", Email: u.Email, Actor: u.Email})
	infoLog("users: open registration %s", u.Email)
	writeJSON(w, http.StatusCreated, u)
}

func openRegistrationEnabled(ctx context.Context) bool {
	if b := database.GetAppSettingBool(ctx, "users_open_registration"); b != nil {
		return *b
	}
	return services.OpenRegistrationDefault()
}

// readUserMe returns the current account.
func readUserMe(w http.ResponseWriter, r *http.Request) {
	me := middleware.CurrentUser(r.Context())
	u, err := database.GetUser(r.Context(), me.ID)
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateMeReq struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	FullName *string `json:"full_name"`
}

// updateUserMe lets a user change their own email, name or password.
func updateUserMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	patch := database.UserPatch{
		Email:    req.Email,
		FullName: req.FullName,
	}
	if req.Email != nil && !validEmail(*req.Email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	if req.Password != nil {
		hashed, err := services.HashPassword(*req.Password)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		patch.HashedPassword = &hashed
	}

	me := middleware.CurrentUser(r.Context())
	u, err := database.UpdateUser(r.Context(), me.ID, patch)
	if errors.Is(err, database.ErrEmailTaken) {
		http.Error(w, "a user with this email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		errorLog("users: self update failed: %v", err)
		http.Error(w, "failed to update user", http.StatusInternalServerError)
		return
	}
	services.Events.Publish(services.Event{Type: "user.updated", Email: u.Email, Actor: u.Email})
	writeJSON(w, http.StatusOK, u)
}

// readUser returns any account for superusers, only the own one otherwise.
func readUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	me := middleware.CurrentUser(r.Context())
	if id != me.ID && !me.IsSuperuser {
		http.Error(w, "not enough privileges", http.StatusForbidden)
		return
	}
	u, err := database.GetUser(r.Context(), id)
	if errors.Is(err, database.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		errorLog("users: get failed: %v", err)
		http.Error(w, "failed to get user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateUserReq struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	FullName    *string `json:"full_name"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// updateUser applies an admin patch to any account (superuser only).
func updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var req updateUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Email != nil && !validEmail(*req.Email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	patch := database.UserPatch{
		Email:       req.Email,
		FullName:    req.FullName,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	}
	if req.Password != nil {
		hashed, err := services.HashPassword(*req.Password)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		patch.HashedPassword = &hashed
	}

	target, err := database.GetUser(r.Context(), id)
	if errors.Is(err, database.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		errorLog("users: get failed: %v", err)
		http.Error(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	// Never leave the deployment without an active superuser.
	demotes := (patch.IsSuperuser != nil && !*patch.IsSuperuser) ||
		(patch.IsActive != nil && !*patch.IsActive)
	if demotes && target.IsSuperuser && target.IsActive {
		if last, lerr := isLastSuperuser(r.Context()); lerr != nil {
			errorLog("users: superuser count failed: %v", lerr)
			http.Error(w, "failed to update user", http.StatusInternalServerError)
			return
		} else if last {
			http.Error(w, "cannot demote or deactivate the last superuser", http.StatusConflict)
			return
		}
	}

	u, err := database.UpdateUser(r.Context(), id, patch)
	if errors.Is(err, database.ErrEmailTaken) {
		http.Error(w, "a user with this email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		errorLog("users: update failed: %v", err)
		http.Error(w, "failed to update user", http.StatusInternalServerError)
		return
	}
	services.Events.Publish(services.Event{Type: "user.updated", Email: u.Email, Actor: middleware.GetUserEmail(r.Context())})
	writeJSON(w, http.StatusOK, u)
}

// deleteUser removes an account: own account always, others superuser only.
func deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	me := middleware.CurrentUser(r.Context())
	if id != me.ID && !me.IsSuperuser {
		http.Error(w, "not enough privileges", http.StatusForbidden)
		return
	}

	target, err := database.GetUser(r.Context(), id)
	if errors.Is(err, database.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		errorLog("users: get failed: %v", err)
		http.Error(w, "failed to get user", http.StatusInternalServerError)
		return
	}
	if target.IsSuperuser && target.IsActive {
		if last, lerr := isLastSuperuser(r.Context()); lerr != nil {
			errorLog("users: superuser count failed: %v", lerr)
			http.Error(w, "failed to delete user", http.StatusInternalServerError)
			return
		} else if last {
			http.Error(w, "cannot delete the last superuser", http.StatusConflict)
			return
		}
	}

	if err := database.DeleteUser(r.Context(), id); err != nil {
		errorLog("users: delete failed: %v", err)
		http.Error(w, "failed to delete user", http.StatusInternalServerError)
		return
	}
	services.Events.Publish(services.Event{Type: "user.deleted", Email: target.Email, Actor: middleware.GetUserEmail(r.Context())})
	infoLog("users: deleted %s by %s", target.Email, middleware.GetUserEmail(r.Context()))
	writeJSON(w, http.StatusOK, target)
}

func isLastSuperuser(ctx context.Context) (bool, error) {
	n, err := database.CountSuperusers(ctx)
	if err != nil {
		return false, err
	}
	return n <= 1, nil
}
