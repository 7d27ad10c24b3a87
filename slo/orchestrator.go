package slo

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/sso"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Failure is a connected app whose notification could not be delivered.
type Failure struct {
	ClientID string `json:"client_id"`
	Error    string `json:"error"`
}

// Result aggregates per-app delivery outcomes. Neither slice is ever nil.
type Result struct {
	Success []string  `json:"success"`
	Failed  []Failure `json:"failed"`
}

func emptyResult() *Result {
	return &Result{Success: []string{}, Failed: []Failure{}}
}

type Options struct {
	NotifyApps bool
	IPAddress  string
	UserAgent  string
}

// ClientLookup resolves the registered logout URL of apps that did not supply one on connect.
type ClientLookup interface {
	Lookup(ctx context.Context, clientID string) (*clients.Client, error)
}

// Orchestrator revokes an SSO session and tells every app connected to it.
type Orchestrator struct {
	sessions *sso.Store
	clients  ClientLookup
	notifier Notifier
}

func NewOrchestrator(sessions *sso.Store, clientLookup ClientLookup, notifier Notifier) (*Orchestrator, error) {
	if sessions == nil {
		return nil, stderrors.New("[NewOrchestrator] session store is required")
	}
	if notifier == nil {
		return nil, stderrors.New("[NewOrchestrator] notifier is required")
	}
	return &Orchestrator{sessions: sessions, clients: clientLookup, notifier: notifier}, nil
}

type target struct {
	clientID  string
	logoutURL string
}

// Logout is idempotent: a missing or already revoked session yields an empty Result.
// Delivery failures are reported in the Result and never returned as an error.
func (o *Orchestrator) Logout(ctx context.Context, sessionToken string, opts Options) (*Result, error) {
	session, err := o.sessions.Active(ctx, sessionToken)
	if err != nil {
		if stderrors.Is(err, sso.ErrSessionNotFound) || stderrors.Is(err, sso.ErrSessionExpired) {
			return emptyResult(), nil
		}
		return nil, pkgerrors.Wrap(err, "[Orchestrator.Logout] failed to get session")
	}

	var targets []target
	if opts.NotifyApps {
		apps, err := o.sessions.ConnectedApps(ctx, session.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "[Orchestrator.Logout] failed to list connected apps")
		}
		targets = o.resolveTargets(ctx, apps)
	}

	if err := o.sessions.Revoke(ctx, sessionToken); err != nil {
		return nil, pkgerrors.Wrap(err, "[Orchestrator.Logout] failed to revoke session")
	}
	if err := o.sessions.LogActivity(ctx, &sso.Activity{
		SessionID: session.ID,
		Type:      sso.ActivityLogout,
		IPAddress: opts.IPAddress,
		UserAgent: opts.UserAgent,
		Metadata:  map[string]any{"apps_to_notify": len(targets)},
	}); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to log logout activity")
	}

	result := o.notify(ctx, sessionToken, targets)

	log.Info().
		Str("session_id", session.ID).
		Int("notified", len(result.Success)).
		Int("failed", len(result.Failed)).
		Msg("sso session logged out")
	return result, nil
}

func (o *Orchestrator) resolveTargets(ctx context.Context, apps []*sso.ConnectedApp) []target {
	targets := make([]target, 0, len(apps))
	for _, app := range apps {
		logoutURL := app.LogoutURL
		if logoutURL == "" && o.clients != nil {
			client, err := o.clients.Lookup(ctx, app.ClientID)
			if err != nil {
				log.Warn().Err(err).Str("client_id", app.ClientID).Msg("failed to resolve logout url")
				continue
			}
			logoutURL = client.SingleLogoutURL()
		}
		if logoutURL == "" {
			continue
		}
		targets = append(targets, target{clientID: app.ClientID, logoutURL: logoutURL})
	}
	return targets
}

func (o *Orchestrator) notify(ctx context.Context, sessionToken string, targets []target) *Result {
	result := emptyResult()
	if len(targets) == 0 {
		return result
	}

	notification := NewNotification(sessionToken, o.sessions.Now())
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			err := o.notifier.Notify(gctx, t.logoutURL, notification)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("client_id", t.clientID).Str("logout_url", t.logoutURL).Msg("logout notification failed")
				result.Failed = append(result.Failed, Failure{ClientID: t.clientID, Error: err.Error()})
				return nil
			}
			result.Success = append(result.Success, t.clientID)
			return nil
		})
	}
	_ = g.Wait()
	return result
}
