package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-sso-idp/auth"
	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/internal/config"
	"github.com/jrsteele09/go-sso-idp/internal/metrics"
	"github.com/jrsteele09/go-sso-idp/slo"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether the storage backend is reachable. It backs the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the services the HTTP surface is built on.
type Deps struct {
	Auth     *auth.AuthorizationService
	Sessions *sso.Store
	Logout   *slo.Orchestrator
	Clients  *clients.Registry
	Metrics  *metrics.Metrics
	Storage  Pinger // optional
}

type Server struct {
	env      string // Environment (e.g., "DEV", "production")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.AuthorizationService
	sessions *sso.Store
	logout   *slo.Orchestrator
	clients  *clients.Registry
	metrics  *metrics.Metrics
	storage  Pinger
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("[Server New] authorization service is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[Server New] session store is required")
	}
	if deps.Logout == nil {
		return nil, errors.New("[Server New] logout orchestrator is required")
	}
	if deps.Clients == nil {
		return nil, errors.New("[Server New] client registry is required")
	}
	if deps.Metrics == nil {
		return nil, errors.New("[Server New] metrics are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		logout:   deps.Logout,
		clients:  deps.Clients,
		metrics:  deps.Metrics,
		storage:  deps.Storage,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
