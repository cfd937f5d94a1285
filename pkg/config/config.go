package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Webhooks WebhookConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	BigQuery BigQueryConfig
	Outbox   OutboxConfig
	Cron     CronConfig
	Flags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every invalid setting at once so a bad deploy shows the
// whole list.
func (c *Config) validate() error {
	err := multierr.Combine(
		c.DB.ensureDSN(),
		c.Gateway.validate(),
		positiveDuration(EnvIdempotencyTTL, c.App.IdempotencyTTL),
		positiveDuration(EnvLedgerRetain, c.Webhooks.LedgerRetention),
	)
	if c.Outbox.MaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("%s must be at least 1", EnvOutboxMaxAttempts))
	}
	return err
}

func positiveDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"LECTERN_APP_ENV" required:"true"`
	Port         string `envconfig:"LECTERN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LECTERN_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LECTERN_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LECTERN_LOG_WARN_STACK" default:"false"`

	CORSOrigins    []string      `envconfig:"LECTERN_CORS_ORIGINS" default:"http://localhost:3000"`
	IdempotencyTTL time.Duration `envconfig:"LECTERN_IDEMPOTENCY_TTL" default:"24h"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LECTERN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LECTERN_DB_DSN"`
	Driver string `envconfig:"LECTERN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LECTERN_DB_HOST"`
	LegacyPort     int    `envconfig:"LECTERN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LECTERN_DB_USER"`
	LegacyPassword string `envconfig:"LECTERN_DB_PASSWORD"`
	LegacyName     string `envconfig:"LECTERN_DB_NAME"`
	LegacySSLMode  string `envconfig:"LECTERN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LECTERN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LECTERN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LECTERN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LECTERN_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"LECTERN_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LECTERN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LECTERN_REDIS_ADDR"`
	Password     string        `envconfig:"LECTERN_REDIS_PASSWORD"`
	DB           int           `envconfig:"LECTERN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LECTERN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LECTERN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LECTERN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LECTERN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LECTERN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LECTERN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LECTERN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LECTERN_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig carries the Stripe credentials used for payment intents.
type GatewayConfig struct {
	APIKey  string        `envconfig:"LECTERN_STRIPE_API_KEY"`
	Secret  string        `envconfig:"LECTERN_STRIPE_WEBHOOK_SECRET"`
	Env     string        `envconfig:"LECTERN_STRIPE_ENV" default:"test"`
	Timeout time.Duration `envconfig:"LECTERN_GATEWAY_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (g GatewayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (g GatewayConfig) validate() error {
	return positiveDuration(EnvGatewayTimeout, g.Timeout)
}

type WebhookConfig struct {
	MaxBodyBytes    int64         `envconfig:"LECTERN_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
	LedgerRetention time.Duration `envconfig:"LECTERN_WEBHOOK_LEDGER_RETENTION" default:"2160h"`
	EventIDHeader   string        `envconfig:"LECTERN_WEBHOOK_EVENT_ID_HEADER" default:"Webhook-Event-Id"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LECTERN_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LECTERN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// BigQueryConfig enables the settlement analytics sink when Dataset is set.
type BigQueryConfig struct {
	Dataset          string `envconfig:"LECTERN_BIGQUERY_DATASET"`
	SettlementsTable string `envconfig:"LECTERN_BIGQUERY_SETTLEMENTS_TABLE" default:"payment_settlements"`
}

// Enabled reports whether settlement rows should be streamed to BigQuery.
func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}

type PubSubConfig struct {
	EnrollmentTopic string `envconfig:"LECTERN_PUBSUB_ENROLLMENT_TOPIC" default:"lectern-enrollment-events"`
	PaymentsTopic   string `envconfig:"LECTERN_PUBSUB_PAYMENTS_TOPIC" default:"lectern-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LECTERN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"LECTERN_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts    int           `envconfig:"LECTERN_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"LECTERN_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"LECTERN_CRON_INTERVAL" default:"15m"`
	StalePaymentAfter  time.Duration `envconfig:"LECTERN_CRON_STALE_PAYMENT_AFTER" default:"1h"`
	ReconcileBatchSize int           `envconfig:"LECTERN_CRON_RECONCILE_BATCH_SIZE" default:"100"`
	OutboxRetention    time.Duration `envconfig:"LECTERN_CRON_OUTBOX_RETENTION" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LECTERN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
