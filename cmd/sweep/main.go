// Command sweep deletes expired authorization codes, tokens and SSO sessions from redis.
// Run it from cron; the server never sweeps on its own.
package main

import (
	"context"
	"time"

	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/config"
	"github.com/jrsteele09/go-sso-idp/internal/logger"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/jrsteele09/go-sso-idp/storage/redisstore"
	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/rs/zerolog/log"
)

const sweepTimeout = 5 * time.Minute

func main() {
	c := config.New()
	logger.Setup(c.GetEnv(), c.GetLogLevel())

	if c.GetStorageDriver() != config.RedisStorage {
		log.Fatal().Str("driver", string(c.GetStorageDriver())).Msg("sweep only runs against redis storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	store, err := redisstore.Open(ctx, redisstore.Config{
		Addr:      c.GetRedisAddr(),
		Password:  c.GetRedisPassword(),
		DB:        c.GetRedisDB(),
		KeyPrefix: c.GetRedisKeyPrefix(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	codec := token.NewCodec(token.Config{SigningKey: c.GetSigningKey(), Issuer: c.GetIssuer()})
	start := time.Now()

	res, err := grants.NewStore(store, codec).Sweep(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("grant sweep failed")
	}
	sessions, err := sso.NewStore(store).Sweep(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("session sweep failed")
	}

	log.Info().
		Int("codes", res.Codes).
		Int("access_tokens", res.AccessTokens).
		Int("refresh_tokens", res.RefreshTokens).
		Int("sessions", sessions).
		Dur("took", time.Since(start)).
		Msg("sweep complete")
}
