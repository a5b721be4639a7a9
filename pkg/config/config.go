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
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Idempotency  IdempotencyConfig
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
	// All validation failures are reported together.
	err := multierr.Combine(
		cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite),
		cfg.Checkout.validate(),
		cfg.Outbox.validate(),
		cfg.Cron.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SCENTMARKET_APP_ENV" required:"true"`
	Port         string   `envconfig:"SCENTMARKET_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"SCENTMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SCENTMARKET_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SCENTMARKET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SCENTMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SCENTMARKET_DB_DSN"`
	Driver string `envconfig:"SCENTMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCENTMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"SCENTMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCENTMARKET_DB_USER"`
	LegacyPassword string `envconfig:"SCENTMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCENTMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCENTMARKET_DB_SSLMODE" default:"disable"`

	// SQLitePath is used instead of DSN when the sqlite feature flag is on.
	SQLitePath string `envconfig:"SCENTMARKET_SQLITE_PATH" default:"file:scentmarket.db?cache=shared&_busy_timeout=5000"`

	MaxOpenConns    int           `envconfig:"SCENTMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCENTMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCENTMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCENTMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"SCENTMARKET_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCENTMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SCENTMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"SCENTMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCENTMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCENTMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCENTMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCENTMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCENTMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCENTMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SCENTMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SCENTMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SCENTMARKET_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SCENTMARKET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SCENTMARKET_AUTO_MIGRATE" default:"false"`
}

type CheckoutConfig struct {
	// LockTimeout bounds how long a checkout waits on a variant row lock.
	LockTimeout  time.Duration `envconfig:"SCENTMARKET_CHECKOUT_LOCK_TIMEOUT" default:"5s"`
	MaxLineItems int           `envconfig:"SCENTMARKET_CHECKOUT_MAX_LINE_ITEMS" default:"100"`

	// RateLimitPerMinute caps checkout attempts per user; zero disables the limit.
	RateLimitPerMinute int64 `envconfig:"SCENTMARKET_CHECKOUT_RATE_LIMIT_PER_MINUTE" default:"10"`
}

func (c CheckoutConfig) validate() error {
	return multierr.Combine(
		mustBePositive(EnvCheckoutLockTimeout, c.LockTimeout),
		mustBePositive(EnvCheckoutMaxLineItems, c.MaxLineItems),
		mustNotBeNegative(EnvCheckoutRateLimit, c.RateLimitPerMinute),
	)
}

func mustBePositive[T int | int64 | time.Duration](env string, v T) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %v", env, v)
	}
	return nil
}

func mustNotBeNegative[T int | int64](env string, v T) error {
	if v < 0 {
		return fmt.Errorf("%s must not be negative, got %v", env, v)
	}
	return nil
}

type IdempotencyConfig struct {
	CheckoutTTL time.Duration `envconfig:"SCENTMARKET_IDEMPOTENCY_CHECKOUT_TTL" default:"168h"`
	CartTTL     time.Duration `envconfig:"SCENTMARKET_IDEMPOTENCY_CART_TTL" default:"24h"`

	// AdminStatusTTL covers admin order status updates.
	AdminStatusTTL time.Duration `envconfig:"SCENTMARKET_IDEMPOTENCY_ADMIN_STATUS_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SCENTMARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SCENTMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SCENTMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"SCENTMARKET_PUBSUB_ORDERS_TOPIC" default:"sm-order-events"`
	OrdersSubscription string `envconfig:"SCENTMARKET_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SCENTMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SCENTMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SCENTMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`

	PublishTimeout time.Duration `envconfig:"SCENTMARKET_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`

	// PublishGuardTTL is how long a published event id is remembered in redis.
	PublishGuardTTL time.Duration `envconfig:"SCENTMARKET_OUTBOX_PUBLISH_GUARD_TTL" default:"72h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SCENTMARKET_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"SCENTMARKET_CRON_LOCK_TTL" default:"1h"`

	OutboxRetentionDays int `envconfig:"SCENTMARKET_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int `envconfig:"SCENTMARKET_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

func (o OutboxConfig) validate() error {
	return multierr.Combine(
		mustBePositive(EnvOutboxBatchSize, o.BatchSize),
		mustBePositive(EnvOutboxMaxAttempts, o.MaxAttempts),
	)
}

func (c CronConfig) validate() error {
	return multierr.Combine(
		mustBePositive(EnvCronInterval, c.Interval),
		mustNotBeNegative(EnvCronOutboxRetention, c.OutboxRetentionDays),
		mustNotBeNegative(EnvCronDLQRetention, c.DLQRetentionDays),
	)
}

// PollInterval returns the publisher poll interval.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 0
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

// ensureDSN fills DSN from the discrete host/user/name settings when no DSN
// was given. SQLite deployments need neither.
func (db *DBConfig) ensureDSN(useSQLite bool) error {
	switch {
	case db.DSN != "":
		return nil
	case useSQLite && db.SQLitePath == "":
		return fmt.Errorf("%s is required when %s is set", EnvSQLitePath, EnvUseSQLite)
	case useSQLite:
		return nil
	}

	var missing []string
	for env, val := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if val == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
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
