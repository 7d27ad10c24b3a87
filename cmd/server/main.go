package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-sso-idp/auth"
	"github.com/jrsteele09/go-sso-idp/clients"
	fakeclientrepo "github.com/jrsteele09/go-sso-idp/clients/fakerepo"
	"github.com/jrsteele09/go-sso-idp/grants"
	grantrepofake "github.com/jrsteele09/go-sso-idp/grants/repofake"
	"github.com/jrsteele09/go-sso-idp/internal/config"
	"github.com/jrsteele09/go-sso-idp/internal/logger"
	"github.com/jrsteele09/go-sso-idp/internal/metrics"
	"github.com/jrsteele09/go-sso-idp/server"
	"github.com/jrsteele09/go-sso-idp/slo"
	"github.com/jrsteele09/go-sso-idp/sso"
	ssorepofake "github.com/jrsteele09/go-sso-idp/sso/repofake"
	"github.com/jrsteele09/go-sso-idp/storage/redisstore"
	tenantrepofakes "github.com/jrsteele09/go-sso-idp/tenants/repofakes"
	"github.com/jrsteele09/go-sso-idp/token"
	fakeuserrepo "github.com/jrsteele09/go-sso-idp/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const revokedTokenCacheSize = 100_000

func main() {
	c := config.New()
	logger.Setup(c.GetEnv(), c.GetLogLevel())

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if c.GetSigningKey() == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if token.WeakSigningKey(c.GetSigningKey()) {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes", token.MinSigningKeyBytes)
		}
		log.Warn().Int("min_bytes", token.MinSigningKeyBytes).Msg("JWT_SECRET is short, do not use it in production")
	}
	displayAppname(c.GetAppName())

	ctx := context.Background()
	repos, closeRepos, err := openRepos(ctx, c)
	if err != nil {
		return err
	}
	defer closeRepos()

	codec := token.NewCodec(token.Config{SigningKey: c.GetSigningKey(), Issuer: c.GetIssuer()})
	registry := clients.NewRegistry(repos.clients)
	grantStore := grants.NewStore(repos.grants, codec,
		grants.WithCodeTTL(c.GetAuthCodeTimeout()),
		grants.WithRevokedTokenCache(token.NewRevokedTokenCache(revokedTokenCacheSize)),
	)
	sessions := sso.NewStore(repos.sso, sso.WithSessionTTL(c.GetSessionTTL(), c.GetRememberMeTTL()))

	if _, err := server.BootstrapSystem(ctx, c, server.BootstrapRepos{
		Users:   repos.users,
		Tenants: repos.tenants,
		Clients: registry,
	}); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	service, err := auth.NewAuthorizationService(auth.Deps{
		Clients:  registry,
		Grants:   grantStore,
		Sessions: sessions,
		Users:    repos.users,
		Tenants:  repos.tenants,
		Codec:    codec,
	}, auth.WithLoginURL(c.GetLoginURL()), auth.WithConsentURL(c.GetConsentURL()))
	if err != nil {
		return err
	}

	notifier := slo.NewHTTPNotifier(&http.Client{}, c.GetLogoutNotifyTimeout())
	orchestrator, err := slo.NewOrchestrator(sessions, registry, notifier)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := server.New(c, server.Deps{
		Auth:     service,
		Sessions: sessions,
		Logout:   orchestrator,
		Clients:  registry,
		Metrics:  metrics.NewMetrics(promRegistry),
		Storage:  repos.pinger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

type repoSet struct {
	clients clients.Repo
	grants  grants.Repo
	sso     sso.Repo
	users   *fakeuserrepo.FakeUserRepo
	tenants *tenantrepofakes.FakeTenantRepo
	pinger  server.Pinger
}

// openRepos picks the storage backend. Users and tenants are a directory owned elsewhere,
// so they are always held in memory and seeded by the bootstrap.
func openRepos(ctx context.Context, c config.Config) (repoSet, func(), error) {
	set := repoSet{
		users:   fakeuserrepo.NewFakeUserRepo(),
		tenants: tenantrepofakes.NewFakeTenantRepo(),
	}

	switch c.GetStorageDriver() {
	case config.RedisStorage:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:      c.GetRedisAddr(),
			Password:  c.GetRedisPassword(),
			DB:        c.GetRedisDB(),
			KeyPrefix: c.GetRedisKeyPrefix(),
		})
		if err != nil {
			return set, nil, err
		}
		set.clients, set.grants, set.sso, set.pinger = store, store, store, store
		log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis storage")
		return set, func() { _ = store.Close() }, nil
	case config.MemoryStorage:
		set.clients = fakeclientrepo.NewFakeClientRepo()
		set.grants = grantrepofake.NewFakeGrantRepo()
		set.sso = ssorepofake.NewFakeSSORepo()
		log.Warn().Msg("using in-memory storage, all state is lost on restart")
		return set, func() {}, nil
	default:
		return set, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", c.GetStorageDriver())
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
