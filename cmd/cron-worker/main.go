package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/creatorpage-backend/internal/cron"
	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/internal/intents"
	"github.com/angelmondragon/creatorpage-backend/internal/orders"
	"github.com/angelmondragon/creatorpage-backend/internal/pendingtoken"
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

// minOrphanWindow keeps the sweep off orders an api instance is still polling.
const minOrphanWindow = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	gw, err := buildGateway(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	slot, err := pendingtoken.NewSlot(redisClient, cfg.Intents.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create pending intent slot", err)
		os.Exit(1)
	}
	intentRepo := intents.NewRepository(dbClient.DB())
	gate, err := intents.NewGate(intentRepo, dbClient, outboxService, slot, nil, logg)
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

	intentExpiry, err := cron.NewIntentExpiryJob(cron.IntentExpiryJobParams{
		Logger:       logg,
		Reader:       intentRepo,
		Expirer:      gate,
		ResumedGrace: cfg.Intents.ResumedGrace,
		BatchSize:    cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create intent expiry job", err)
		os.Exit(1)
	}

	orphaned := 3 * cfg.Supervisor.PollInterval
	if orphaned < minOrphanWindow {
		orphaned = minOrphanWindow
	}
	orderSweep, err := cron.NewOrderSweepJob(cron.OrderSweepJobParams{
		Logger:      logg,
		Orders:      orderRepo,
		Svc:         orderService,
		Orphaned:    orphaned,
		Budget:      cfg.Supervisor.Budget(),
		CreatedTTL:  cfg.Cron.CreatedOrderTTL,
		PollTimeout: cfg.Supervisor.PollTimeout,
		BatchSize:   cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order sweep job", err)
		os.Exit(1)
	}

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(intentExpiry, orderSweep, outboxRetention),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"gateway":     gw.Name(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildGateway(cfg *config.Config, logg *logger.Logger) (gateway.Gateway, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Gateway.Provider), config.GatewayProviderSquare) {
		return gateway.New(cfg.Gateway, nil)
	}
	client, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		return nil, err
	}
	return gateway.New(cfg.Gateway, client)
}
