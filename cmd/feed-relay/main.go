package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/afonso-rickman/newdelivery/internal/changefeed"
	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/db"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
	"github.com/afonso-rickman/newdelivery/pkg/migrate"
	"github.com/afonso-rickman/newdelivery/pkg/outbox"
	"github.com/afonso-rickman/newdelivery/pkg/pubsub"
	"github.com/afonso-rickman/newdelivery/pkg/redis"
)

const serviceKind = "feed-relay"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Relay.Driver == config.FeedDriverMemory {
		logg.Error(context.Background(), "memory relay only works in-process", errors.New("choose a broker driver"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	deps := changefeed.Deps{DB: dbClient.DB(), Logger: logg}
	var broker pinger

	switch cfg.Relay.Driver {
	case config.FeedDriverRedis:
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		deps.Redis = redisClient
		broker = redisClient
	case config.FeedDriverPubSub:
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		deps.PubSub = pubsubClient
		broker = pubsubClient
	}

	pub, err := changefeed.NewPublisher(cfg, deps)
	if err != nil {
		logg.Error(ctx, "failed to build publisher", err)
		os.Exit(1)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logg.Error(context.Background(), "error closing publisher", err)
		}
	}()

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Publisher:  pub,
		Broker:     broker,
	})
	if err != nil {
		logg.Error(ctx, "failed to create feed relay", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"publisher":   pub.Name(),
	})
	logg.Info(ctx, "starting feed relay")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "feed relay stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "feed relay shutting down gracefully")
}
