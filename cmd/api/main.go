package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/afonso-rickman/newdelivery/api/controllers"
	"github.com/afonso-rickman/newdelivery/api/routes"
	"github.com/afonso-rickman/newdelivery/internal/changefeed"
	"github.com/afonso-rickman/newdelivery/internal/deliverers"
	"github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/internal/reconcile"
	"github.com/afonso-rickman/newdelivery/internal/tenants"
	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/db"
	"github.com/afonso-rickman/newdelivery/pkg/instance"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
	"github.com/afonso-rickman/newdelivery/pkg/metrics"
	"github.com/afonso-rickman/newdelivery/pkg/migrate"
	"github.com/afonso-rickman/newdelivery/pkg/pubsub"
	"github.com/afonso-rickman/newdelivery/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	loc, err := cfg.App.Location()
	if err != nil {
		logg.Error(context.Background(), "failed to load time zone", err)
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

	ready := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}

	var pubsubClient *pubsub.Client
	if cfg.Feed.Driver == config.FeedDriverPubSub {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		ready["pubsub"] = pubsubClient
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reconcileMetrics := metrics.NewReconcileMetrics(reg)
	transitionMetrics := metrics.NewTransitionMetrics(reg)

	instanceID := instance.GetID()
	source, err := changefeed.NewSource(cfg, changefeed.Deps{
		DB:         dbClient.DB(),
		Redis:      redisClient,
		PubSub:     pubsubClient,
		Logger:     logg,
		InstanceID: instanceID,
	})
	if err != nil {
		logg.Error(ctx, "failed to build change feed source", err)
		os.Exit(1)
	}

	hub := changefeed.NewHub(logg,
		changefeed.WithFeedRecorder(reconcileMetrics),
		changefeed.WithFreshWindow(cfg.Reconcile.FreshWindow),
	)

	gateway, err := orders.NewGateway(orders.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create order gateway", err)
		os.Exit(1)
	}

	registry := reconcile.NewRegistry(gateway, hub, reconcileMetrics, logg, reconcile.Options{
		Debounce:      cfg.Reconcile.Debounce,
		FetchTimeout:  cfg.Reconcile.FetchTimeout,
		FreshWindow:   cfg.Reconcile.FreshWindow,
		RetryDelay:    cfg.Reconcile.RetryDelay,
		MaxRetryDelay: cfg.Reconcile.MaxRetryDelay,
	}, cfg.Reconcile.ViewIdleTTL)
	defer func() {
		if err := registry.CloseAll(); err != nil {
			logg.Error(context.Background(), "error closing views", err)
		}
	}()

	service, err := orders.NewService(gateway, logg,
		orders.WithObserver(registry),
		orders.WithRecorder(transitionMetrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to create order service", err)
		os.Exit(1)
	}

	coordinator, err := deliverers.NewCoordinator(deliverers.NewRepository(dbClient.DB()), gateway, registry, transitionMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create deliverer coordinator", err)
		os.Exit(1)
	}

	resolver, err := tenants.NewResolver(tenants.NewRepository(dbClient.DB()), redisClient, cfg.Tenants.CacheTTL, logg)
	if err != nil {
		logg.Error(ctx, "failed to create tenant resolver", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    instanceID,
		"feed_driver": source.Name(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Gateway:     gateway,
			Service:     service,
			Coordinator: coordinator,
			Registry:    registry,
			Tenants:     resolver,
			Location:    loc,
			Gatherer:    reg,
			Ready:       ready,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the views ends open event streams so Shutdown can drain.
	server.RegisterOnShutdown(func() {
		if err := registry.CloseAll(); err != nil {
			logg.Warn(ctx, "closing views on shutdown reported errors")
		}
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return hub.Run(gctx, source)
	})
	group.Go(func() error {
		return registry.Run(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
