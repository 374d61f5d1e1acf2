package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/creatorpage-backend/api/routes"
	"github.com/angelmondragon/creatorpage-backend/internal/catalog"
	"github.com/angelmondragon/creatorpage-backend/internal/dispatch"
	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/internal/intents"
	"github.com/angelmondragon/creatorpage-backend/internal/orders"
	"github.com/angelmondragon/creatorpage-backend/internal/pendingtoken"
	squarewebhook "github.com/angelmondragon/creatorpage-backend/internal/webhooks/square"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db"
	"github.com/angelmondragon/creatorpage-backend/pkg/instance"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpage-backend/pkg/migrate"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpage-backend/pkg/redis"
	"github.com/angelmondragon/creatorpage-backend/pkg/square"
)

const (
	shutdownTimeout   = 20 * time.Second
	webhookDedupeTTL  = 72 * time.Hour
	webhookDedupeName = "square"
)

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

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	intentMetrics := metrics.NewIntentMetrics(registry)
	supervisionMetrics := metrics.NewSupervisionMetrics(registry)

	var squareClient *square.Client
	if strings.EqualFold(strings.TrimSpace(cfg.Gateway.Provider), config.GatewayProviderSquare) {
		squareClient, err = square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create square client", err)
			os.Exit(1)
		}
	}
	var gw gateway.Gateway
	if squareClient != nil {
		gw, err = gateway.New(cfg.Gateway, squareClient)
	} else {
		gw, err = gateway.New(cfg.Gateway, nil)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	slot, err := pendingtoken.NewSlot(redisClient, cfg.Intents.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create pending intent slot", err)
		os.Exit(1)
	}

	loader, err := catalog.NewLoader(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog loader", err)
		os.Exit(1)
	}

	intentRepo := intents.NewRepository(dbClient.DB())
	resolver, err := intents.NewResolver(loader, intentRepo, slot, cfg.Intents, intentMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create intent resolver", err)
		os.Exit(1)
	}
	gate, err := intents.NewGate(intentRepo, dbClient, outboxService, slot, intentMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create intent gate", err)
		os.Exit(1)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orderRepo, dbClient, outboxService, gw, gate, cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}
	supervisor, err := orders.NewSupervisor(orderService, orderRepo, cfg.Supervisor, supervisionMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create supervisor", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.NewDispatcher(intentRepo, gate, dispatch.NewLeadRepository(dbClient.DB()), supervisor, dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Intents:    resolver,
		Resumer:    gate,
		Dispatcher: dispatcher,
		Orders:     orderService,
		Supervisor: supervisor,
	}
	if squareClient != nil {
		webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
			Orders:  orderRepo,
			Applier: orderService,
			Logger:  logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create square webhook service", err)
			os.Exit(1)
		}
		guard, err := squarewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, webhookDedupeName)
		if err != nil {
			logg.Error(context.Background(), "failed to create webhook guard", err)
			os.Exit(1)
		}
		deps.SquareWebhook = webhookService
		deps.SquareGuard = guard
		deps.SquareSecret = squareClient.SigningSecret()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"gateway":  gw.Name(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(logg.Inherit(ctx, context.Background()), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http shutdown failed", err)
	}
	// Orders left pending are picked up by the sweep.
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "supervisor shutdown failed", err)
	}
	logg.Info(shutdownCtx, "api server stopped")
}
