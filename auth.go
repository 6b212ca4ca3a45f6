package main

import (
	"context"
	"crypto/rand"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"userdeck/common"
	"userdeck/database"
	"userdeck/middleware"
	"userdeck/services"
)

func init() {
	gob.Register(middleware.User{})        // ensure scs can (de)serialize User
	gob.Register(map[string]interface{}{}) // for storing oauth temp data
}

var (
	oidcProv           *oidc.Provider
	oidcVerifier       *oidc.IDTokenVerifier
	oauthCfg           *oauth2.Config
	sessionManager     *scs.SessionManager
	authCfg            AuthConfig
	endSessionEndpoint string // discovered from .well-known
)

// ---- server-side id_token store (per-session, SSO logins only) ----

type idTokenEntry struct {
	token string
	exp   time.Time
}
type idTokenStore struct {
	mu sync.RWMutex
	m  map[string]idTokenEntry // sid -> entry
}

func (s *idTokenStore) put(sid, token string, exp time.Time) {
	if sid == "" || token == "" {
		return
	}
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[string]idTokenEntry)
	}
	s.m[sid] = idTokenEntry{token: token, exp: exp}
	s.mu.Unlock()
}
func (s *idTokenStore) pop(sid string) string {
	if sid == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.m[sid]
	if ok {
		delete(s.m, sid)
		if time.Now().Before(ent.exp) {
			return ent.token
		}
	}
	return ""
}
func (s *idTokenStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	for k, v := range s.m {
		if now.After(v.exp) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
}

var idtStore idTokenStore

type AuthConfig struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	AllowedDomain string
	SecureCookies bool
	CookieDomain  string

	PostLogoutRedirectURL string // used for RP-initiated logout
}

const (
	sessionLifetime = 7 * 24 * time.Hour
	resetTokenTTL   = 48 * time.Hour
)

// InitAuthFromEnv sets up the session manager and, when an issuer is
// configured, the optional OIDC single sign-on.
func InitAuthFromEnv() (*scs.SessionManager, error) {
	redirect := common.Env("OIDC_REDIRECT_URL", "")

	// Derive SecureCookies if USERDECK_COOKIE_SECURE is unset.
	secureStr := strings.TrimSpace(common.Env("USERDECK_COOKIE_SECURE", ""))
	var secure bool
	if secureStr == "" {
		secure = strings.HasPrefix(strings.ToLower(redirect), "https://") ||
			common.EnvBool("USERDECK_TLS_ENABLE", "true")
	} else {
		secure = database.IsTrueish(secureStr)
	}

	authCfg = AuthConfig{
		Issuer:                common.Env("OIDC_ISSUER_URL", ""),
		RedirectURL:           redirect,
		Scopes:                strings.Fields(common.Env("OIDC_SCOPES", "openid email profile")),
		AllowedDomain:         strings.ToLower(common.Env("OIDC_ALLOWED_EMAIL_DOMAIN", "")),
		SecureCookies:         secure,
		CookieDomain:          common.Env("USERDECK_COOKIE_DOMAIN", ""),
		PostLogoutRedirectURL: common.Env("OIDC_POST_LOGOUT_REDIRECT_URL", ""),
	}

	sessionManager = scs.New()
	sessionManager.Lifetime = sessionLifetime
	sessionManager.Cookie.Name = common.SessionName
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.Secure = authCfg.SecureCookies
	sessionManager.Cookie.Path = "/"
	sessionManager.Cookie.Domain = authCfg.CookieDomain
	if authCfg.SecureCookies {
		sessionManager.Cookie.SameSite = http.SameSiteNoneMode
	} else {
		sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	}
	common.SessionManager = sessionManager

	if authCfg.Issuer != "" {
		if err := initOIDC(); err != nil {
			return nil, err
		}
	} else {
		infoLog("auth: no OIDC_ISSUER_URL, password login only")
	}

	// background sweeper for server-side id_tokens
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for range t.C {
			idtStore.sweep()
		}
	}()

	return sessionManager, nil
}

func initOIDC() error {
	clientID, err := common.EnvOrFile("OIDC_CLIENT_ID", "OIDC_CLIENT_ID_FILE")
	if err != nil {
		return err
	}
	clientSecret, err := common.EnvOrFile("OIDC_CLIENT_SECRET", "OIDC_CLIENT_SECRET_FILE")
	if err != nil {
		return err
	}
	authCfg.ClientID = clientID
	authCfg.ClientSecret = clientSecret

	if authCfg.ClientID == "" || authCfg.ClientSecret == "" || authCfg.RedirectURL == "" {
		return errors.New("OIDC_ISSUER_URL set but OIDC_CLIENT_ID{/_FILE}, OIDC_CLIENT_SECRET{/_FILE} or OIDC_REDIRECT_URL missing")
	}

	ctx := context.Background()
	oidcProv, err = oidc.NewProvider(ctx, authCfg.Issuer)
	if err != nil {
		return err
	}

	// Try to discover end_session_endpoint (not all providers expose it)
	var disc struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProv.Claims(&disc); err == nil {
		endSessionEndpoint = strings.TrimSpace(disc.EndSessionEndpoint)
	}
	if endSessionEndpoint == "" {
		infoLog("auth: no end_session_endpoint found in discovery; RP-logout will fall back to local clear")
	}

	oidcVerifier = oidcProv.Verifier(&oidc.Config{ClientID: authCfg.ClientID})
	oauthCfg = &oauth2.Config{
		ClientID:     authCfg.ClientID,
		ClientSecret: authCfg.ClientSecret,
		Endpoint:     oidcProv.Endpoint(),
		RedirectURL:  authCfg.RedirectURL,
		Scopes:       authCfg.Scopes,
	}
	infoLog("auth: OIDC SSO enabled issuer=%s", authCfg.Issuer)
	return nil
}

func randHex(n int) string { b := make([]byte, n/2); _, _ = rand.Read(b); return hex.EncodeToString(b) }

func establishSession(r *http.Request, u *database.UserRow) error {
	// fresh token on privilege change
	if err := sessionManager.RenewToken(r.Context()); err != nil {
		return err
	}
	sessionManager.Put(r.Context(), "user", middleware.User{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
	})
	sessionManager.Put(r.Context(), "exp", time.Now().Add(sessionLifetime).Unix())
	return nil
}

// PasswordLoginHandler signs a user in with email and password.
func PasswordLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	u, err := database.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		// burn a comparison anyway so lookups are not timeable
		services.BurnPassword(req.Password)
		http.Error(w, "incorrect email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		errorLog("auth: login lookup failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if u.HashedPassword == "" || !services.VerifyPassword(u.HashedPassword, req.Password) {
		http.Error(w, "incorrect email or password", http.StatusUnauthorized)
		return
	}
	if !u.IsActive {
		http.Error(w, "inactive user", http.StatusForbidden)
		return
	}

	if err := establishSession(r, u); err != nil {
		errorLog("auth: session setup failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	services.Events.Publish(services.Event{Type: "login", Email: u.Email, Actor: u.Email})
	infoLog("auth: login ok email=%s", u.Email)
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// LoginSSOHandler starts the OIDC authorization code flow.
func LoginSSOHandler(w http.ResponseWriter, r *http.Request) {
	if oauthCfg == nil || oidcProv == nil {
		http.Error(w, "SSO not configured", http.StatusNotFound)
		return
	}

	// CSRF + replay protection
	state := randHex(32)
	nonce := randHex(32)

	oauthData := map[string]interface{}{
		"state": state,
		"nonce": nonce,
	}
	sessionManager.Put(r.Context(), "oauth_temp", oauthData)

	authURL := oauthCfg.AuthCodeURL(state, oidc.Nonce(nonce))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler finishes the OIDC flow and provisions the account on
// first login.
func CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if oauthCfg == nil || oidcVerifier == nil {
		http.Error(w, "SSO not configured", http.StatusNotFound)
		return
	}

	oauthData, _ := sessionManager.Pop(r.Context(), "oauth_temp").(map[string]interface{})
	wantState, _ := oauthData["state"].(string)
	nonce, _ := oauthData["nonce"].(string)

	// CSRF protection: state must match
	if r.URL.Query().Get("state") != wantState || wantState == "" {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tok, err := oauthCfg.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token", http.StatusBadGateway)
		return
	}

	idt, err := oidcVerifier.Verify(ctx, rawID)
	if err != nil {
		http.Error(w, "id token verify failed", http.StatusUnauthorized)
		return
	}
	if idt.Nonce != nonce {
		http.Error(w, "nonce mismatch", http.StatusBadRequest)
		return
	}

	var claims struct {
		Email  string `json:"email"`
		Name   string `json:"name"`
		HD     string `json:"hd"`
		Domain string `json:"domain"`
		Exp    int64  `json:"exp"`
	}
	if err := idt.Claims(&claims); err != nil {
		http.Error(w, "claims parse failed", http.StatusBadGateway)
		return
	}
	if claims.Email == "" {
		http.Error(w, "no email claim", http.StatusBadGateway)
		return
	}

	if authCfg.AllowedDomain != "" {
		d := strings.ToLower(domainForClaims(claims.Email, claims.HD, claims.Domain))
		if d != authCfg.AllowedDomain {
			http.Error(w, "domain not allowed", http.StatusForbidden)
			return
		}
	}

	u, err := database.GetUserByEmail(ctx, claims.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		// first SSO login provisions a regular active account
		u, err = database.CreateUser(ctx, claims.Email, claims.Name, "", true, false)
		if err == nil {
			services.Events.Publish(services.Event{Type: "user.created", Email: u.Email, Actor: "sso"})
		}
	}
	if err != nil {
		errorLog("auth: sso provisioning failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if !u.IsActive {
		http.Error(w, "inactive user", http.StatusForbidden)
		return
	}

	if err := establishSession(r, u); err != nil {
		errorLog("auth: session setup failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	// store id_token server-side keyed by sid for RP-initiated logout
	sid := randHex(32)
	sessionManager.Put(r.Context(), "sid", sid)
	exp := time.Now().Add(sessionLifetime)
	if claims.Exp > 0 {
		if te := time.Unix(claims.Exp, 0); te.Before(exp) {
			exp = te
		}
	}
	idtStore.put(sid, rawID, exp)

	services.Events.Publish(services.Event{Type: "login", Email: u.Email, Actor: "sso"})
	infoLog("auth: sso login ok email=%s", u.Email)
	http.Redirect(w, r, "/", http.StatusFound)
}

// LogoutHandler destroys the session, with RP-initiated logout for SSO
// sessions when the provider supports it.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sid := sessionManager.GetString(r.Context(), "sid")
	rawID := idtStore.pop(sid) // empty if absent/expired

	if err := sessionManager.Destroy(r.Context()); err != nil {
		errorLog("auth: failed to destroy session: %v", err)
	}

	if endSessionEndpoint != "" && strings.TrimSpace(rawID) != "" {
		u, _ := url.Parse(endSessionEndpoint)
		q := u.Query()
		q.Set("id_token_hint", rawID)
		if authCfg.PostLogoutRedirectURL != "" {
			q.Set("post_logout_redirect_uri", authCfg.PostLogoutRedirectURL)
		}
		if authCfg.ClientID != "" {
			q.Set("client_id", authCfg.ClientID)
		}
		u.RawQuery = q.Encode()
		infoLog("auth: rp-logout redirecting to OP end_session_endpoint")
		http.Redirect(w, r, u.String(), http.StatusSeeOther)
		return
	}

	if r.Header.Get("Accept") == "application/json" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SessionHandler is the public session probe.
func SessionHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := sessionManager.Get(r.Context(), "user").(middleware.User)
	exp := sessionManager.GetInt64(r.Context(), "exp")

	if !ok || exp == 0 || time.Now().Unix() > exp {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// RecoverPasswordHandler emails a reset token. Always answers 202 so the
// endpoint cannot be used to probe for accounts.
func RecoverPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if u, err := database.GetUserByEmail(r.Context(), req.Email); err == nil && u.IsActive {
		token, terr := database.CreatePasswordResetToken(r.Context(), u.ID, resetTokenTTL)
		if terr != nil {
			errorLog("auth: reset token create failed: %v", terr)
		} else {
			services.SendResetPasswordEmail(u.Email, token.String())
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"detail": "if the account exists, a recovery email was sent"})
}

// ResetPasswordHandler consumes a reset token and sets a new password.
func ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	token, err := uuid.Parse(strings.TrimSpace(req.Token))
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusBadRequest)
		return
	}
	hashed, err := services.HashPassword(req.NewPassword)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := database.ConsumePasswordResetToken(r.Context(), token)
	if errors.Is(err, database.ErrTokenInvalid) {
		http.Error(w, "invalid or expired token", http.StatusBadRequest)
		return
	}
	if err != nil {
		errorLog("auth: reset token consume failed: %v", err)
		http.Error(w, "password reset failed", http.StatusInternalServerError)
		return
	}

	u, err := database.UpdateUser(r.Context(), userID, database.UserPatch{HashedPassword: &hashed})
	if err != nil {
		errorLog("auth: password update failed: %v", err)
		http.Error(w, "password reset failed", http.StatusInternalServerError)
		return
	}
	services.Events.Publish(services.Event{Type: "user.updated", Email: u.Email, Actor: u.Email})
	infoLog("auth: password reset email=%s", u.Email)
	writeJSON(w, http.StatusOK, map[string]any{"detail": "password updated"})
}

// --- auth helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(v)
}

func domainForClaims(email, hd, dom string) string {
	if hd != "" {
		return hd
	}
	if dom != "" {
		return dom
	}
	i := strings.LastIndex(email, "@")
	if i > 0 {
		return email[i+1:]
	}
	return ""
}
