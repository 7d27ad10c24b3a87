package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-sso-idp/auth"
	"github.com/jrsteele09/go-sso-idp/slo"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/rs/zerolog/log"
)

const defaultActivityLimit = 50

type createSessionRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TenantID   string `json:"tenant_id"`
	RememberMe bool   `json:"remember_me"`
}

// sessionView is a session as shown to its owner. The token itself is only ever sent as a cookie.
type sessionView struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	TenantID       string         `json:"tenant_id"`
	IPAddress      string         `json:"ip_address,omitempty"`
	DeviceType     sso.DeviceType `json:"device_type"`
	DeviceName     string         `json:"device_name,omitempty"`
	RememberMe     bool           `json:"remember_me"`
	ExpiresAt      time.Time      `json:"expires_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	CreatedAt      time.Time      `json:"created_at"`
	Current        bool           `json:"current,omitempty"`
}

func newSessionView(session *sso.Session, currentToken string) sessionView {
	return sessionView{
		ID:             session.ID,
		UserID:         session.UserID,
		TenantID:       session.TenantID,
		IPAddress:      session.IPAddress,
		DeviceType:     session.DeviceType,
		DeviceName:     session.DeviceName,
		RememberMe:     session.RememberMe,
		ExpiresAt:      session.ExpiresAt,
		LastActivityAt: session.LastActivityAt,
		CreatedAt:      session.CreatedAt,
		Current:        session.Token == currentToken,
	}
}

// CreateSession signs the user in with email and password and issues the SSO session cookie.
func (s *Server) CreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createSessionRequest
		form, err := decodeBody(w, r, &body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if form != nil {
			body = createSessionRequest{
				Email:    form.Get("email"),
				Password: form.Get("password"),
				TenantID: form.Get("tenant_id"),
			}
			body.RememberMe, _ = strconv.ParseBool(form.Get("remember_me"))
		}

		session, err := s.auth.Login(r.Context(), auth.LoginRequest{
			Email:      body.Email,
			Password:   body.Password,
			TenantID:   body.TenantID,
			IPAddress:  sso.ClientIP(r),
			UserAgent:  r.UserAgent(),
			RememberMe: body.RememberMe,
		})
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeJSONError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		case errors.Is(err, auth.ErrNoTenantMembership):
			writeJSONError(w, http.StatusBadRequest, "No tenant associated with user")
			return
		case err != nil:
			log.Error().Err(err).Msg("failed to create sso session")
			writeJSONError(w, http.StatusInternalServerError, "Failed to create SSO session")
			return
		}

		s.metrics.SessionsCreatedTotal.Inc()
		s.SetSessionCookie(w, session.Token, session.RememberMe)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"session": map[string]any{
				"id":          session.ID,
				"expires_at":  session.ExpiresAt,
				"device_type": session.DeviceType,
				"device_name": session.DeviceName,
			},
		})
	}
}

// GetSession describes the current SSO session with its connected apps and activity count.
func (s *Server) GetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.activeSession(w, r)
		if !ok {
			return
		}
		ctx := r.Context()

		apps, err := s.sessions.ConnectedApps(ctx, session.ID)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to list connected apps")
			writeJSONError(w, http.StatusInternalServerError, "Failed to get SSO session")
			return
		}
		if apps == nil {
			apps = []*sso.ConnectedApp{}
		}
		count, err := s.sessions.ActivityCount(ctx, session.ID)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to count activity")
			writeJSONError(w, http.StatusInternalServerError, "Failed to get SSO session")
			return
		}

		limit := defaultActivityLimit
		if raw := r.URL.Query().Get("activity_limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
				limit = n
			}
		}
		activity, err := s.sessions.Activity(ctx, session.ID, limit)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to list activity")
			writeJSONError(w, http.StatusInternalServerError, "Failed to get SSO session")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": map[string]any{
				"session":        newSessionView(session, session.Token),
				"connected_apps": apps,
				"activity_count": count,
				"activity":       activity,
			},
		})
	}
}

// DeleteSession revokes the current session without notifying connected apps.
func (s *Server) DeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := s.sessionToken(r); token != "" {
			if err := s.sessions.Revoke(r.Context(), token); err != nil && !errors.Is(err, sso.ErrSessionNotFound) {
				log.Error().Err(err).Msg("failed to revoke sso session")
				writeJSONError(w, http.StatusInternalServerError, "Failed to revoke SSO session")
				return
			}
		}
		s.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// DisconnectApp removes one connected app from the current session.
func (s *Server) DisconnectApp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.activeSession(w, r)
		if !ok {
			return
		}
		if err := s.sessions.DisconnectApp(r.Context(), session.ID, r.PathValue("clientID")); err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to disconnect app")
			writeJSONError(w, http.StatusInternalServerError, "Failed to disconnect app")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// ListSessions lists the signed-in user's active sessions, most recently used first.
func (s *Server) ListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.activeSession(w, r)
		if !ok {
			return
		}
		sessions, err := s.sessions.ListActive(r.Context(), session.UserID)
		if err != nil {
			log.Error().Err(err).Str("user_id", session.UserID).Msg("failed to list sessions")
			writeJSONError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
		views := make([]sessionView, 0, len(sessions))
		for _, sess := range sessions {
			views = append(views, newSessionView(sess, session.Token))
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
	}
}

// RevokeOtherSessions signs the user out everywhere except the current session.
func (s *Server) RevokeOtherSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.activeSession(w, r)
		if !ok {
			return
		}
		n, err := s.sessions.RevokeAllExcept(r.Context(), session.UserID, session.Token, "revoked_by_user")
		if err != nil {
			log.Error().Err(err).Str("user_id", session.UserID).Msg("failed to revoke sessions")
			writeJSONError(w, http.StatusInternalServerError, "Failed to revoke sessions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
	}
}

type logoutRequest struct {
	NotifyApps *bool `json:"notify_apps"`
}

// Logout is the Single-Logout endpoint. The session is revoked, every connected app is
// told, and the cookie is cleared whatever happens.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notifyApps := true
		var body logoutRequest
		form, err := decodeBody(w, r, &body)
		switch {
		case err != nil && !errors.Is(err, io.EOF):
			log.Debug().Err(err).Msg("ignoring unreadable logout body")
		case form != nil:
			if v, err := strconv.ParseBool(form.Get("notify_apps")); err == nil {
				notifyApps = v
			}
		case body.NotifyApps != nil:
			notifyApps = *body.NotifyApps
		}

		result, err := s.singleLogout(r, notifyApps)
		s.ClearSessionCookie(w)
		if err != nil {
			log.Error().Err(err).Msg("logout failed")
			writeJSONError(w, http.StatusInternalServerError, "Logout completed with errors")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":             true,
			"apps_notified":       result.Success,
			"notification_errors": result.Failed,
		})
	}
}

// LogoutRedirect is the browser form of Logout. It always ends on the login page.
func (s *Server) LogoutRedirect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.singleLogout(r, true); err != nil {
			log.Error().Err(err).Msg("logout failed")
		}
		s.ClearSessionCookie(w)

		v := url.Values{}
		v.Set("logged_out", "true")
		http.Redirect(w, r, s.config.GetLoginURL()+"?"+v.Encode(), http.StatusFound)
	}
}

func (s *Server) singleLogout(r *http.Request, notifyApps bool) (*slo.Result, error) {
	token := s.sessionToken(r)
	if token == "" {
		return &slo.Result{Success: []string{}, Failed: []slo.Failure{}}, nil
	}
	result, err := s.logout.Logout(r.Context(), token, slo.Options{
		NotifyApps: notifyApps,
		IPAddress:  sso.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLogout(len(result.Success), len(result.Failed))
	return result, nil
}

// activeSession resolves the session cookie, writing a 404 when there is no usable session.
func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) (*sso.Session, bool) {
	session, err := s.sessions.Active(r.Context(), s.sessionToken(r))
	if err != nil {
		if errors.Is(err, sso.ErrSessionNotFound) || errors.Is(err, sso.ErrSessionExpired) {
			writeJSONError(w, http.StatusNotFound, "SSO session not found or expired")
			return nil, false
		}
		log.Error().Err(err).Msg("failed to get sso session")
		writeJSONError(w, http.StatusInternalServerError, "Failed to get SSO session")
		return nil, false
	}
	return session, true
}
