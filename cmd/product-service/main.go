// Command product-service runs the catalog HTTP API and the inventory
// event consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storefront-kit/storefront/authclient"
	"github.com/storefront-kit/storefront/cache"
	"github.com/storefront-kit/storefront/cache/redis"
	"github.com/storefront-kit/storefront/catalog"
	"github.com/storefront-kit/storefront/catalogapi"
	"github.com/storefront-kit/storefront/config"
	"github.com/storefront-kit/storefront/db/sql/postgres"
	"github.com/storefront-kit/storefront/event"
	"github.com/storefront-kit/storefront/httpx"
	"github.com/storefront-kit/storefront/logging"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "product-service:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadProductService()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "product-service",
	})

	db, err := postgres.Open(postgres.WithDSN(cfg.Database.ConnString()))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.MigrateProducts(ctx, db); err != nil {
		return err
	}

	// A dead cache backend downgrades to pass-through instead of failing
	// the boot.
	productCache := cache.New(ctx,
		redis.NewStore(redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		cache.WithLogger(logger),
	)

	publisher := event.NewPublisher(cfg.Broker.URL, event.WithPublisherLogger(logger))
	defer publisher.Close()

	service, err := catalog.NewService(catalog.ServiceConfig{
		Store:    postgres.NewProductRepository(db),
		Cache:    productCache,
		CacheTTL: cfg.CacheTTL,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	consumer := event.NewConsumer(service.HandleEvent, event.ConsumerOptions{
		URL:        cfg.Broker.URL,
		Queue:      cfg.InventoryQueue,
		RoutingKey: event.KindInventoryUpdate,
		Logger:     logger,
	})
	consumer.Start(ctx)
	defer consumer.Stop()

	verifier := authclient.New(cfg.UserServiceURL, 5*time.Second)

	api := catalogapi.New(service, verifier, catalogapi.Health{
		Database: func(ctx context.Context) bool { return db.PingContext(ctx) == nil },
		Cache:    productCache.Healthy,
		Queue:    consumer,
	}, logger)

	server := httpx.NewServer(
		httpx.WithAddress(cfg.Address()),
		httpx.WithMiddlewares(httpx.RecoverMiddleware(), httpx.SlogRequestLogger(logger)),
		httpx.WithCORS(nil),
	)
	server.RegisterRoutes(api.Routes)

	logger.Info("product service listening", "address", cfg.Address())
	return server.Start(ctx)
}
