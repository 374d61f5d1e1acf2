package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/creatorpage-backend/api/controllers"
	intentcontrollers "github.com/angelmondragon/creatorpage-backend/api/controllers/intents"
	ordercontrollers "github.com/angelmondragon/creatorpage-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/creatorpage-backend/api/controllers/webhooks"
	"github.com/angelmondragon/creatorpage-backend/api/middleware"
	squarewebhook "github.com/angelmondragon/creatorpage-backend/internal/webhooks/square"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/creatorpage-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer relies on.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger
	DB     controllers.Pinger
	Redis  RedisStore
	// Metrics serves /metrics when set.
	Metrics http.Handler

	Intents    intentcontrollers.IntentCreator
	Resumer    intentcontrollers.IntentResumer
	Dispatcher intentcontrollers.IntentDispatcher
	Orders     ordercontrollers.Reader
	Supervisor ordercontrollers.Supervisor

	// SquareWebhook and SquareGuard are nil unless the Square provider is
	// configured. SquareSecret is the signing key of the Square client.
	SquareWebhook webhookcontrollers.SquareWebhookService
	SquareGuard   *squarewebhook.IdempotencyGuard
	SquareSecret  string
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	intentPolicy := middleware.NewRateLimitPolicy("intents", cfg.HTTP.RateLimitWindow, cfg.HTTP.IntentRateLimit)
	orderPolicy := middleware.NewRateLimitPolicy("orders", cfg.HTTP.RateLimitWindow, cfg.HTTP.OrderRateLimit)

	var redisPinger controllers.Pinger
	if d.Redis != nil {
		redisPinger = d.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    redisPinger,
		}))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	if d.SquareWebhook != nil && d.SquareGuard != nil {
		signing := webhookcontrollers.SquareSigning{
			Secret:          d.SquareSecret,
			NotificationURL: cfg.Square.WebhookURL,
		}
		r.Post("/api/v1/webhooks/square", webhookcontrollers.SquareWebhook(d.SquareWebhook, signing, d.SquareGuard, logg))
	}

	var store pkgredis.IdempotencyStore
	if d.Redis != nil {
		store = d.Redis
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Device(cfg.Intents.DeviceCookie, cfg.App.IsProd(), logg))
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Route("/intents", func(r chi.Router) {
			r.With(middleware.RateLimit(intentPolicy, d.Redis, logg)).Post("/", intentcontrollers.Create(d.Intents, d.Dispatcher, logg))
			r.With(middleware.RequireAuth(logg)).Post("/resume", intentcontrollers.Resume(d.Resumer, logg))
			r.Post("/{intentId}/dispatch", intentcontrollers.Dispatch(d.Dispatcher, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RateLimit(orderPolicy, d.Redis, logg)).Post("/", ordercontrollers.Create(d.Supervisor, d.Dispatcher, cfg.Gateway.Currency, logg))
			r.Get("/{orderId}", ordercontrollers.Status(d.Orders, d.Supervisor, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(d.Orders, d.Supervisor, logg))
			r.Post("/{orderId}/retry", ordercontrollers.Retry(d.Orders, d.Supervisor, logg))
		})
	})

	return r
}
