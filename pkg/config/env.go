package config

const EnvPrefix = "LECTERN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv         = "LECTERN_APP_ENV"
	EnvPort           = "LECTERN_APP_PORT"
	EnvDBDSN          = "LECTERN_DB_DSN"
	EnvDBHost         = "LECTERN_DB_HOST"
	EnvDBUser         = "LECTERN_DB_USER"
	EnvDBName         = "LECTERN_DB_NAME"
	EnvRedisURL       = "LECTERN_REDIS_URL"
	EnvJWTSecret      = "LECTERN_JWT_SECRET"
	EnvJWTIssuer      = "LECTERN_JWT_ISSUER"
	EnvStripeAPIKey   = "LECTERN_STRIPE_API_KEY"
	EnvStripeSecret   = "LECTERN_STRIPE_WEBHOOK_SECRET"
	EnvGatewayTimeout = "LECTERN_GATEWAY_TIMEOUT"
	EnvLedgerRetain   = "LECTERN_WEBHOOK_LEDGER_RETENTION"

	EnvIdempotencyTTL    = "LECTERN_IDEMPOTENCY_TTL"
	EnvOutboxMaxAttempts = "LECTERN_OUTBOX_MAX_ATTEMPTS"
	EnvCORSOrigins       = "LECTERN_CORS_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
