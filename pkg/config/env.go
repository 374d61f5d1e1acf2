package config

const EnvPrefix = "CREATORPAGE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	GatewayProviderSandbox = "sandbox"
	GatewayProviderHTTP    = "http"
	GatewayProviderSquare  = "square"
)

const (
	EnvAppEnv = "CREATORPAGE_APP_ENV"
	EnvPort   = "CREATORPAGE_APP_PORT"

	EnvDBDSN  = "CREATORPAGE_DB_DSN"
	EnvDBHost = "CREATORPAGE_DB_HOST"
	EnvDBUser = "CREATORPAGE_DB_USER"
	EnvDBName = "CREATORPAGE_DB_NAME"

	EnvRedisURL = "CREATORPAGE_REDIS_URL"

	EnvJWTSecret = "CREATORPAGE_JWT_SECRET"
	EnvJWTIssuer = "CREATORPAGE_JWT_ISSUER"

	EnvIntentTTL          = "CREATORPAGE_INTENT_TTL"
	EnvSupervisorInterval = "CREATORPAGE_SUPERVISOR_POLL_INTERVAL"
	EnvSupervisorAttempts = "CREATORPAGE_SUPERVISOR_MAX_ATTEMPTS"

	EnvGatewayProvider = "CREATORPAGE_GATEWAY_PROVIDER"
	EnvGatewayBaseURL  = "CREATORPAGE_GATEWAY_BASE_URL"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
