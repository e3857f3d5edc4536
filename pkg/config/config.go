package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
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
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Gateways     GatewaysConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Gateways.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port           string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat      string   `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS"`
	// MetricsAddr exposes /metrics from the background workers when set.
	MetricsAddr string `envconfig:"STOREFRONT_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL            string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address        string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password       string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB             int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"24h"`
	// PaymentIdempotencyTTL applies to payment and refund requests.
	PaymentIdempotencyTTL time.Duration `envconfig:"STOREFRONT_PAYMENT_IDEMPOTENCY_TTL" default:"168h"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
	GuestTokenMinutes int    `envconfig:"STOREFRONT_GUEST_TOKEN_TTL_MINUTES" default:"10080"`
}

// GuestTokenTTL returns how long a guest device token stays valid.
func (j JWTConfig) GuestTokenTTL() time.Duration {
	if j.GuestTokenMinutes <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(j.GuestTokenMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOREFRONT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOREFRONT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOREFRONT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOREFRONT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOREFRONT_ARGON_KEY_LEN" default:"32"`
}

// RateLimitConfig throttles the public checkout address endpoint.
type RateLimitConfig struct {
	CheckoutWindow     time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit    int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"30"`
	CheckoutEmailLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_EMAIL_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupTTL      time.Duration `envconfig:"STOREFRONT_WEBHOOK_DEDUP_TTL" default:"24h"`
}

// GatewaysConfig selects which payment gateways the registry exposes.
type GatewaysConfig struct {
	Default string        `envconfig:"STOREFRONT_GATEWAY_DEFAULT" default:"stripe"`
	Enabled []string      `envconfig:"STOREFRONT_GATEWAYS_ENABLED" default:"stripe"`
	Timeout time.Duration `envconfig:"STOREFRONT_GATEWAY_TIMEOUT" default:"15s"`
}

// IsEnabled reports whether the named gateway is part of the enabled list.
func (g GatewaysConfig) IsEnabled(name string) bool {
	name = strings.TrimSpace(name)
	return slices.ContainsFunc(g.Enabled, func(enabled string) bool {
		return strings.EqualFold(strings.TrimSpace(enabled), name)
	})
}

func (g GatewaysConfig) validate() error {
	if len(g.Enabled) == 0 {
		return fmt.Errorf("%s must list at least one gateway", EnvGatewaysEnabled)
	}
	if !g.IsEnabled(g.Default) {
		return fmt.Errorf("%s %q is not in %s", EnvGatewayDefault, g.Default, EnvGatewaysEnabled)
	}
	if g.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvGatewayTimeout)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"STOREFRONT_PUBSUB_PAYMENTS_TOPIC" default:"payment-events"`
	// CustomersTopic receives customer lifecycle events; empty means PaymentsTopic.
	CustomersTopic        string `envconfig:"STOREFRONT_PUBSUB_CUSTOMERS_TOPIC"`
	AnalyticsSubscription string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"payment-events-analytics"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	PaymentEventsTable string `envconfig:"STOREFRONT_BIGQUERY_PAYMENT_EVENTS_TABLE" default:"payment_events"`
	InsertBatchSize    int    `envconfig:"STOREFRONT_BIGQUERY_INSERT_BATCH_SIZE" default:"50"`
	// CreateTables provisions missing tables instead of failing startup.
	CreateTables bool `envconfig:"STOREFRONT_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	// EphemeralKeyVersion is the Stripe API version the mobile SDK pins ephemeral keys to.
	EphemeralKeyVersion string `envconfig:"STOREFRONT_STRIPE_EPHEMERAL_KEY_VERSION" default:"2024-06-20"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken     string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	WebhookKey      string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	NotificationURL string `envconfig:"STOREFRONT_SQUARE_NOTIFICATION_URL"`
	LocationID      string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	Env             string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// ensureDSN builds a postgres URL from the discrete DB variables when no
// DSN is given. SQLite mode gets a local file.
func (db *DBConfig) ensureDSN(sqlite bool) error {
	switch {
	case db.DSN != "":
		return nil
	case sqlite:
		db.DSN = "file:storefront.db?cache=shared"
		return nil
	}

	parts := map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName}
	var missing []string
	for _, env := range legacyDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
