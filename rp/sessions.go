package rp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jrsteele09/go-sso-idp/slo"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/rs/zerolog/log"
)

const maxNotificationBytes = 4096

// SessionStore holds the app's own sessions and ends them when the identity provider
// reports that the SSO session behind them has logged out.
type SessionStore struct {
	mu       sync.Mutex
	sessions *ttlcache.Cache[string, *Session]
	// bySSO indexes local session IDs by the SSO session token they were created under.
	bySSO map[string]map[string]struct{}
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	s := &SessionStore{
		sessions: ttlcache.New[string, *Session](ttlcache.WithTTL[string, *Session](ttl)),
		bySSO:    map[string]map[string]struct{}{},
	}
	s.sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		if reason == ttlcache.EvictionReasonExpired {
			s.unindex(item.Key(), item.Value())
		}
	})
	return s
}

func (s *SessionStore) Put(id string, session *Session) {
	s.sessions.Set(id, session, ttlcache.DefaultTTL)
	if session.SSOToken == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.bySSO[session.SSOToken]
	if !ok {
		ids = map[string]struct{}{}
		s.bySSO[session.SSOToken] = ids
	}
	ids[id] = struct{}{}
}

func (s *SessionStore) Get(id string) (*Session, bool) {
	item := s.sessions.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *SessionStore) Delete(id string) {
	if item := s.sessions.Get(id); item != nil {
		s.unindex(id, item.Value())
	}
	s.sessions.Delete(id)
}

// Cleanup removes expired sessions.
func (s *SessionStore) Cleanup() {
	s.sessions.DeleteExpired()
}

// EndSSOSession drops every local session created under the SSO session and returns how many there were.
func (s *SessionStore) EndSSOSession(ssoToken string) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.bySSO[ssoToken]))
	for id := range s.bySSO[ssoToken] {
		ids = append(ids, id)
	}
	delete(s.bySSO, ssoToken)
	s.mu.Unlock()

	for _, id := range ids {
		s.sessions.Delete(id)
	}
	return len(ids)
}

func (s *SessionStore) unindex(id string, session *Session) {
	if session == nil || session.SSOToken == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ids, ok := s.bySSO[session.SSOToken]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.bySSO, session.SSOToken)
		}
	}
}

// LogoutHandler receives the identity provider's back-channel logout notification.
func (s *SessionStore) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var n slo.Notification
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBytes)).Decode(&n); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid notification"})
			return
		}
		if n.Event != slo.LogoutEvent {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported event"})
			return
		}
		if !sso.IsValidToken(n.SessionToken) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session token"})
			return
		}

		ended := s.EndSSOSession(n.SessionToken)
		log.Info().Int("sessions", ended).Str("timestamp", n.Timestamp).Msg("sso logout received")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions_ended": ended})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
