package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/go-sso-idp/clients"
	internalerrors "github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/rs/zerolog/log"
)

// clientRequest is the admin API's client shape. TTLs are in seconds.
type clientRequest struct {
	ClientID          *string             `json:"client_id,omitempty"`
	Name              *string             `json:"name,omitempty"`
	Description       *string             `json:"description,omitempty"`
	LogoURL           *string             `json:"logo_url,omitempty"`
	HomepageURL       *string             `json:"homepage_url,omitempty"`
	LogoutURL         *string             `json:"logout_url,omitempty"`
	RedirectURIs      *[]string           `json:"redirect_uris,omitempty"`
	AllowedScopes     *[]string           `json:"allowed_scopes,omitempty"`
	AllowedGrantTypes *[]oauth2.GrantType `json:"allowed_grant_types,omitempty"`
	AccessTokenTTL    *int64              `json:"access_token_ttl,omitempty"`
	RefreshTokenTTL   *int64              `json:"refresh_token_ttl,omitempty"`
	IsActive          *bool               `json:"is_active,omitempty"`
	IsFirstParty      *bool               `json:"is_first_party,omitempty"`
}

type clientView struct {
	ClientID          string             `json:"client_id"`
	ClientSecret      string             `json:"client_secret,omitempty"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	LogoURL           string             `json:"logo_url,omitempty"`
	HomepageURL       string             `json:"homepage_url,omitempty"`
	LogoutURL         string             `json:"logout_url,omitempty"`
	RedirectURIs      []string           `json:"redirect_uris"`
	AllowedScopes     []string           `json:"allowed_scopes"`
	AllowedGrantTypes []oauth2.GrantType `json:"allowed_grant_types"`
	AccessTokenTTL    int64              `json:"access_token_ttl"`
	RefreshTokenTTL   int64              `json:"refresh_token_ttl"`
	IsActive          bool               `json:"is_active"`
	IsFirstParty      bool               `json:"is_first_party"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func newClientView(c *clients.Client, secret string) clientView {
	return clientView{
		ClientID:          c.ClientID,
		ClientSecret:      secret,
		Name:              c.Name,
		Description:       c.Description,
		LogoURL:           c.LogoURL,
		HomepageURL:       c.HomepageURL,
		LogoutURL:         c.LogoutURL,
		RedirectURIs:      c.RedirectURIs,
		AllowedScopes:     c.AllowedScopes,
		AllowedGrantTypes: c.AllowedGrantTypes,
		AccessTokenTTL:    int64(c.AccessTokenTTL / time.Second),
		RefreshTokenTTL:   int64(c.RefreshTokenTTL / time.Second),
		IsActive:          c.IsActive,
		IsFirstParty:      c.IsFirstParty,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func seconds(v *int64) *time.Duration {
	return utils.MapPtr(v, func(s int64) time.Duration { return time.Duration(s) * time.Second })
}

// AdminListClients lists clients, optionally filtered by ?is_active= and ?is_first_party=
func (s *Server) AdminListClients() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := clients.ListFilter{}
		q := r.URL.Query()
		for name, target := range map[string]**bool{
			"is_active":      &filter.IsActive,
			"is_first_party": &filter.IsFirstParty,
		} {
			raw := q.Get(name)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "Invalid "+name+" filter")
				return
			}
			*target = &v
		}

		list, err := s.clients.List(r.Context(), filter)
		if err != nil {
			log.Error().Err(err).Msg("failed to list clients")
			writeJSONError(w, http.StatusInternalServerError, "Failed to list clients")
			return
		}
		views := make([]clientView, 0, len(list))
		for _, c := range list {
			views = append(views, newClientView(c, ""))
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": views})
	}
}

// AdminCreateClient registers a client. The response is the only place the secret is ever shown.
func (s *Server) AdminCreateClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body clientRequest
		if _, err := decodeBody(w, r, &body); err != nil || !isJSONRequest(r) {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		client, secret, err := s.clients.Create(r.Context(), clients.NewClient{
			ClientID:          utils.Value(body.ClientID),
			Name:              utils.Value(body.Name),
			Description:       utils.Value(body.Description),
			LogoURL:           utils.Value(body.LogoURL),
			HomepageURL:       utils.Value(body.HomepageURL),
			LogoutURL:         utils.Value(body.LogoutURL),
			RedirectURIs:      utils.Value(body.RedirectURIs),
			AllowedScopes:     utils.Value(body.AllowedScopes),
			AllowedGrantTypes: utils.Value(body.AllowedGrantTypes),
			AccessTokenTTL:    utils.Value(seconds(body.AccessTokenTTL)),
			RefreshTokenTTL:   utils.Value(seconds(body.RefreshTokenTTL)),
			IsFirstParty:      utils.Value(body.IsFirstParty),
		})
		if err != nil {
			writeClientError(w, "create", err)
			return
		}
		log.Info().Str("client_id", client.ClientID).Str("name", client.Name).Msg("client registered")
		writeJSON(w, http.StatusCreated, newClientView(client, secret))
	}
}

func (s *Server) AdminGetClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := s.clients.Lookup(r.Context(), r.PathValue("clientID"))
		if err != nil {
			writeClientError(w, "get", err)
			return
		}
		writeJSON(w, http.StatusOK, newClientView(client, ""))
	}
}

// AdminUpdateClient applies a partial update. The client id cannot change.
func (s *Server) AdminUpdateClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body clientRequest
		if _, err := decodeBody(w, r, &body); err != nil || !isJSONRequest(r) {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		clientID := r.PathValue("clientID")
		if body.ClientID != nil && *body.ClientID != clientID {
			writeJSONError(w, http.StatusBadRequest, "client_id cannot be changed")
			return
		}

		client, err := s.clients.Update(r.Context(), clientID, clients.ClientUpdate{
			Name:              body.Name,
			Description:       body.Description,
			LogoURL:           body.LogoURL,
			HomepageURL:       body.HomepageURL,
			LogoutURL:         body.LogoutURL,
			RedirectURIs:      body.RedirectURIs,
			AllowedScopes:     body.AllowedScopes,
			AllowedGrantTypes: body.AllowedGrantTypes,
			AccessTokenTTL:    seconds(body.AccessTokenTTL),
			RefreshTokenTTL:   seconds(body.RefreshTokenTTL),
			IsActive:          body.IsActive,
			IsFirstParty:      body.IsFirstParty,
		})
		if err != nil {
			writeClientError(w, "update", err)
			return
		}
		writeJSON(w, http.StatusOK, newClientView(client, ""))
	}
}

func (s *Server) AdminDeleteClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.PathValue("clientID")
		if err := s.clients.Delete(r.Context(), clientID); err != nil {
			writeClientError(w, "delete", err)
			return
		}
		log.Info().Str("client_id", clientID).Msg("client deleted")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// AdminRotateClientSecret issues a new secret. The old one stops working immediately.
func (s *Server) AdminRotateClientSecret() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.PathValue("clientID")
		secret, err := s.clients.RotateSecret(r.Context(), clientID)
		if err != nil {
			writeClientError(w, "rotate secret", err)
			return
		}
		log.Info().Str("client_id", clientID).Msg("client secret rotated")
		writeJSON(w, http.StatusOK, map[string]string{
			"client_id":     clientID,
			"client_secret": secret,
		})
	}
}

func writeClientError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, clients.ErrClientNotFound):
		writeJSONError(w, http.StatusNotFound, "Client not found")
	case errors.Is(err, clients.ErrInvalidClient):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case internalerrors.Is(err, internalerrors.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "Client already exists")
	default:
		log.Error().Err(err).Str("op", op).Msg("client administration failed")
		writeJSONError(w, http.StatusInternalServerError, "Failed to "+op+" client")
	}
}

// AdminSweep removes expired codes, tokens and sessions on demand
func (s *Server) AdminSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.auth.Sweep(r.Context())
		s.metrics.ObserveSweep(res.Codes, res.AccessTokens, res.RefreshTokens, res.Sessions)
		if err != nil {
			log.Error().Err(err).Msg("sweep failed")
			writeJSONError(w, http.StatusInternalServerError, "Sweep failed")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Health reports whether the storage backend is reachable
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.storage != nil {
			if err := s.storage.Ping(r.Context()); err != nil {
				log.Warn().Err(err).Msg("storage health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
