package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Intents      IntentsConfig
	Supervisor   SupervisorConfig
	Gateway      GatewayConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREATORPAGE_APP_ENV" required:"true"`
	Port         string `envconfig:"CREATORPAGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CREATORPAGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREATORPAGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREATORPAGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREATORPAGE_DB_DSN"`
	Driver string `envconfig:"CREATORPAGE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CREATORPAGE_DB_HOST"`
	Port     int    `envconfig:"CREATORPAGE_DB_PORT" default:"5432"`
	User     string `envconfig:"CREATORPAGE_DB_USER"`
	Password string `envconfig:"CREATORPAGE_DB_PASSWORD"`
	Name     string `envconfig:"CREATORPAGE_DB_NAME"`
	SSLMode  string `envconfig:"CREATORPAGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREATORPAGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREATORPAGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREATORPAGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREATORPAGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREATORPAGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CREATORPAGE_REDIS_ADDR"`
	Password     string        `envconfig:"CREATORPAGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREATORPAGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREATORPAGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREATORPAGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREATORPAGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREATORPAGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREATORPAGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the identity provider. The backend
// only verifies them.
type JWTConfig struct {
	Secret            string `envconfig:"CREATORPAGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CREATORPAGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CREATORPAGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// HTTPConfig covers browser-facing concerns of the API.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"CREATORPAGE_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow time.Duration `envconfig:"CREATORPAGE_RATE_LIMIT_WINDOW" default:"1m"`
	IntentRateLimit int           `envconfig:"CREATORPAGE_INTENT_RATE_LIMIT" default:"30"`
	OrderRateLimit  int           `envconfig:"CREATORPAGE_ORDER_RATE_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CREATORPAGE_AUTO_MIGRATE" default:"false"`
}

type IntentsConfig struct {
	TTL          time.Duration `envconfig:"CREATORPAGE_INTENT_TTL" default:"15m"`
	ResumedGrace time.Duration `envconfig:"CREATORPAGE_INTENT_RESUMED_GRACE" default:"30m"`
	DeviceCookie string        `envconfig:"CREATORPAGE_DEVICE_COOKIE" default:"cp_device"`
}

type SupervisorConfig struct {
	PollInterval time.Duration `envconfig:"CREATORPAGE_SUPERVISOR_POLL_INTERVAL" default:"5s"`
	MaxAttempts  int           `envconfig:"CREATORPAGE_SUPERVISOR_MAX_ATTEMPTS" default:"60"`
	PollTimeout  time.Duration `envconfig:"CREATORPAGE_SUPERVISOR_POLL_TIMEOUT" default:"4s"`
}

// Budget returns the wall-clock span a supervision run may take.
func (s SupervisorConfig) Budget() time.Duration {
	if s.MaxAttempts <= 0 || s.PollInterval <= 0 {
		return 0
	}
	return time.Duration(s.MaxAttempts) * s.PollInterval
}

type GatewayConfig struct {
	Provider       string        `envconfig:"CREATORPAGE_GATEWAY_PROVIDER" default:"sandbox"`
	BaseURL        string        `envconfig:"CREATORPAGE_GATEWAY_BASE_URL"`
	APIKey         string        `envconfig:"CREATORPAGE_GATEWAY_API_KEY"`
	Timeout        time.Duration `envconfig:"CREATORPAGE_GATEWAY_TIMEOUT" default:"10s"`
	CreateAttempts int           `envconfig:"CREATORPAGE_GATEWAY_CREATE_ATTEMPTS" default:"3"`
	Currency       string        `envconfig:"CREATORPAGE_GATEWAY_CURRENCY" default:"INR"`
}

func (g GatewayConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(g.Provider)) {
	case GatewayProviderSandbox, GatewayProviderSquare:
		return nil
	case GatewayProviderHTTP:
		if strings.TrimSpace(g.BaseURL) == "" {
			return fmt.Errorf("%s is required for the http gateway", EnvGatewayBaseURL)
		}
		return nil
	default:
		return fmt.Errorf("unsupported gateway provider %q", g.Provider)
	}
}

type SquareConfig struct {
	AccessToken   string `envconfig:"CREATORPAGE_SQUARE_ACCESS_TOKEN"`
	LocationID    string `envconfig:"CREATORPAGE_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"CREATORPAGE_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"CREATORPAGE_SQUARE_WEBHOOK_URL"`
	Env           string `envconfig:"CREATORPAGE_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CREATORPAGE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CREATORPAGE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"CREATORPAGE_PUBSUB_DOMAIN_TOPIC" default:"cp-domain-events"`
	// OrderTopic and LeadTopic split payment and enquiry events off the
	// domain topic. Empty means the domain topic.
	OrderTopic string `envconfig:"CREATORPAGE_PUBSUB_ORDER_TOPIC"`
	LeadTopic  string `envconfig:"CREATORPAGE_PUBSUB_LEAD_TOPIC"`
}

// Topics lists the distinct configured topics, domain topic first.
func (c PubSubConfig) Topics() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range []string{c.DomainTopic, c.OrderTopic, c.LeadTopic} {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CREATORPAGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CREATORPAGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CREATORPAGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"CREATORPAGE_CRON_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"CREATORPAGE_CRON_LOCK_TTL" default:"5m"`
	CreatedOrderTTL time.Duration `envconfig:"CREATORPAGE_CRON_CREATED_ORDER_TTL" default:"10m"`
	SweepBatchSize  int           `envconfig:"CREATORPAGE_CRON_SWEEP_BATCH_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
