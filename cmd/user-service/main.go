// Command user-service runs the account and authentication HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/storefront-kit/storefront/auth"
	"github.com/storefront-kit/storefront/cache"
	"github.com/storefront-kit/storefront/cache/redis"
	"github.com/storefront-kit/storefront/config"
	"github.com/storefront-kit/storefront/db/sql/postgres"
	"github.com/storefront-kit/storefront/event"
	"github.com/storefront-kit/storefront/httpx"
	"github.com/storefront-kit/storefront/logging"
	"github.com/storefront-kit/storefront/userapi"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "user-service:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadUserService()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "user-service",
	})

	db, err := postgres.Open(postgres.WithDSN(cfg.Database.ConnString()))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.MigrateUsers(ctx, db); err != nil {
		return err
	}

	sessionCache := cache.New(ctx,
		redis.NewStore(redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		cache.WithLogger(logger),
	)

	tokens, err := auth.NewTokenProvider(auth.TokenProviderConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		return err
	}

	revocationOpts := []auth.RevocationOption{auth.WithSessionTTL(cfg.TokenTTL)}
	if cfg.RevocationFailClosed {
		revocationOpts = append(revocationOpts, auth.WithRevocationFailClosed())
	}

	publisher := event.NewPublisher(cfg.Broker.URL, event.WithPublisherLogger(logger))
	defer publisher.Close()

	service, err := auth.NewService(auth.ServiceConfig{
		Repository:  postgres.NewUserRepository(db),
		Tokens:      tokens,
		Revocations: auth.NewRevocationStore(sessionCache, revocationOpts...),
		Events:      publisher,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	api := userapi.New(service, userapi.Health{
		Database: func(ctx context.Context) bool { return db.PingContext(ctx) == nil },
		Cache:    sessionCache.Healthy,
		Queue:    publisher.Healthy,
	}, logger)

	server := httpx.NewServer(
		httpx.WithAddress(cfg.Address()),
		httpx.WithMiddlewares(httpx.RecoverMiddleware(), httpx.SlogRequestLogger(logger)),
		httpx.WithCORS(nil),
	)
	server.RegisterRoutes(api.Routes)

	logger.Info("user service listening", "address", cfg.Address())
	return server.Start(ctx)
}
