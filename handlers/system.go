package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"userdeck/database"
	"userdeck/middleware"
	"userdeck/services"
)

// SetupSystemRoutes mounts admin-only system endpoints.
func SetupSystemRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Use(middleware.RequireSuperuser)
		r.Get("/stats", getStats)
		r.Get("/settings/open-registration", getOpenRegistration)
		r.Put("/settings/open-registration", setOpenRegistration)
	})
}

func getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := database.GetUserStats(r.Context())
	if err != nil {
		errorLog("system: stats failed: %v", err)
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":             stats,
		"event_subscribers": services.Events.SubscriberCount(),
	})
}

func getOpenRegistration(w http.ResponseWriter, r *http.Request) {
	enabled := openRegistrationEnabled(r.Context())
	source := "env"
	if database.GetAppSettingBool(r.Context(), "users_open_registration") != nil {
		source = "db"
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled, "source": source})
}

// setOpenRegistration writes or clears the runtime override. A null body
// value removes the override and falls back to the env default.
func setOpenRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	var err error
	if req.Enabled == nil {
		err = database.DelAppSetting(r.Context(), "users_open_registration")
	} else if *req.Enabled {
		err = database.SetAppSetting(r.Context(), "users_open_registration", "true")
	} else {
		err = database.SetAppSetting(r.Context(), "users_open_registration", "false")
	}
	if err != nil {
		errorLog("system: setting update failed: %v", err)
		http.Error(w, "failed to update setting", http.StatusInternalServerError)
		return
	}
	infoLog("system: open registration override set by %s", middleware.GetUserEmail(r.Context()))
	getOpenRegistration(w, r)
}
