// Command rp-demo is a minimal app that signs in against the identity provider,
// refreshes its tokens on demand and ends its sessions on single-logout.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jrsteele09/go-sso-idp/internal/config"
	"github.com/jrsteele09/go-sso-idp/internal/logger"
	"github.com/jrsteele09/go-sso-idp/rp"
	"github.com/rs/zerolog/log"
)

const (
	appCookieName  = "rp_demo_session"
	pendingAuthTTL = 10 * time.Minute
	appSessionTTL  = 8 * time.Hour
)

type app struct {
	client        *rp.Client
	sessions      *rp.SessionStore
	pending       *ttlcache.Cache[string, *rp.AuthRequest]
	ssoCookieName string
}

func main() {
	c := config.New()
	logger.Setup(c.GetEnv(), c.GetLogLevel())

	port := config.GetEnv("RP_PORT", ":9090")
	client, err := rp.New(context.Background(), rp.Config{
		Issuer:       config.GetEnv("RP_ISSUER", c.GetIssuer()),
		ClientID:     config.GetEnv("RP_CLIENT_ID", c.GetBootstrapClientID()),
		ClientSecret: config.GetEnv("RP_CLIENT_SECRET", c.GetBootstrapClientSecret()),
		RedirectURL:  config.GetEnv("RP_REDIRECT_URL", "http://localhost"+port+"/callback"),
		SigningKey:   c.GetSigningKey(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create relying party")
	}

	a := &app{
		client:        client,
		sessions:      rp.NewSessionStore(appSessionTTL),
		pending:       ttlcache.New[string, *rp.AuthRequest](ttlcache.WithTTL[string, *rp.AuthRequest](pendingAuthTTL)),
		ssoCookieName: c.GetSessionCookieName(),
	}
	go a.pending.Start()
	defer a.pending.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.home)
	mux.HandleFunc("GET /login", a.login)
	mux.HandleFunc("GET /callback", a.callback)
	mux.HandleFunc("POST /refresh", a.refresh)
	mux.Handle("POST /sso/logout", a.sessions.LogoutHandler())

	log.Info().Str("addr", port).Msg("rp-demo listening")
	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func (a *app) home(w http.ResponseWriter, r *http.Request) {
	_, session, ok := a.current(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"login": "/login"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":   session.Identity,
		"expires_at": session.Token.Expiry,
	})
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	authReq := a.client.AuthCodeURL()
	a.pending.Set(authReq.State, authReq, ttlcache.DefaultTTL)
	http.Redirect(w, r, authReq.URL, http.StatusFound)
}

func (a *app) callback(w http.ResponseWriter, r *http.Request) {
	if e := r.FormValue("error"); e != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": e, "error_description": r.FormValue("error_description")})
		return
	}
	item, _ := a.pending.GetAndDelete(r.FormValue("state"))
	if item == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown or expired state"})
		return
	}

	// Only apps served from the provider's cookie domain can see its session cookie.
	var ssoToken string
	if cookie, err := r.Cookie(a.ssoCookieName); err == nil {
		ssoToken = cookie.Value
	}

	session, err := a.client.Exchange(r.Context(), r.FormValue("code"), item.Value().Verifier, ssoToken)
	if err != nil {
		log.Error().Err(err).Msg("sign in failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "sign in failed"})
		return
	}

	id := uuid.NewString()
	a.sessions.Put(id, session)
	http.SetCookie(w, &http.Cookie{
		Name:     appCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https") || r.TLS != nil,
	})
	log.Info().Str("sub", session.Identity.Subject).Str("tenant_id", session.Identity.TenantID).Msg("signed in")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *app) refresh(w http.ResponseWriter, r *http.Request) {
	id, session, ok := a.current(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"login": "/login"})
		return
	}
	fresh, err := a.client.Refresh(r.Context(), session.Token)
	if err != nil {
		log.Warn().Err(err).Msg("refresh failed")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"login": "/login"})
		return
	}
	updated := *session
	updated.Token = fresh
	a.sessions.Put(id, &updated)
	writeJSON(w, http.StatusOK, map[string]any{"expires_at": fresh.Expiry})
}

func (a *app) current(r *http.Request) (string, *rp.Session, bool) {
	cookie, err := r.Cookie(appCookieName)
	if err != nil {
		return "", nil, false
	}
	session, ok := a.sessions.Get(cookie.Value)
	return cookie.Value, session, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
