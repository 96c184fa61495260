package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Idempotency  IdempotencyConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Donations    DonationsConfig
	Webhook      WebhookConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Donations.Rate(); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(cfg.App.HostURL); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvHostURL, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TIPJAR_APP_ENV" required:"true"`
	Port         string `envconfig:"TIPJAR_APP_PORT" default:"8080"`
	HostURL      string `envconfig:"TIPJAR_HOST_URL" required:"true"`
	CORSOrigins  string `envconfig:"TIPJAR_CORS_ORIGINS" default:"*"`
	LogLevel     string `envconfig:"TIPJAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TIPJAR_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"TIPJAR_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BaseURL returns HostURL without a trailing slash.
func (a AppConfig) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(a.HostURL), "/")
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, part := range strings.Split(a.CORSOrigins, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"TIPJAR_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics, e.g. ":9090".
	// Empty disables it. The API serves /metrics on its own port.
	MetricsAddr string `envconfig:"TIPJAR_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"TIPJAR_DB_DSN"`
	Driver string `envconfig:"TIPJAR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TIPJAR_DB_HOST"`
	Port     int    `envconfig:"TIPJAR_DB_PORT" default:"5432"`
	User     string `envconfig:"TIPJAR_DB_USER"`
	Password string `envconfig:"TIPJAR_DB_PASSWORD"`
	Name     string `envconfig:"TIPJAR_DB_NAME"`
	SSLMode  string `envconfig:"TIPJAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIPJAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIPJAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIPJAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIPJAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Queries slower than this are logged at warn. Zero disables the check.
	SlowQueryThreshold time.Duration `envconfig:"TIPJAR_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIPJAR_REDIS_URL"`
	Address      string        `envconfig:"TIPJAR_REDIS_ADDR"`
	Password     string        `envconfig:"TIPJAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIPJAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIPJAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIPJAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIPJAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIPJAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIPJAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the auth provider; this service never issues them.
type JWTConfig struct {
	Secret string `envconfig:"TIPJAR_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TIPJAR_JWT_ISSUER"`
}

type RateLimitConfig struct {
	CheckoutWindow  time.Duration `envconfig:"TIPJAR_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int           `envconfig:"TIPJAR_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"20"`
}

// IdempotencyConfig bounds how long a replayable response is kept for an
// Idempotency-Key, and how long an in-flight claim blocks duplicates.
type IdempotencyConfig struct {
	TTL        time.Duration `envconfig:"TIPJAR_IDEMPOTENCY_TTL" default:"24h"`
	PendingTTL time.Duration `envconfig:"TIPJAR_IDEMPOTENCY_PENDING_TTL" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TIPJAR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TIPJAR_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TIPJAR_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DonationEventsTopic string `envconfig:"TIPJAR_PUBSUB_DONATION_EVENTS_TOPIC" default:"tipjar-donation-events"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"TIPJAR_STRIPE_API_KEY" required:"true"`
	WebhookSecret string `envconfig:"TIPJAR_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env           string `envconfig:"TIPJAR_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"TIPJAR_STRIPE_CURRENCY" default:"brl"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type DonationsConfig struct {
	FeeRate       string        `envconfig:"TIPJAR_DONATION_FEE_RATE" default:"0.10"`
	MinPriceCents int64         `envconfig:"TIPJAR_DONATION_MIN_PRICE_CENTS" default:"1500"`
	PendingTTL    time.Duration `envconfig:"TIPJAR_DONATION_PENDING_TTL" default:"48h"`
}

// Rate parses FeeRate and rejects values outside [0, 1).
func (d DonationsConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(d.FeeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", EnvDonationFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("invalid %s: %s must be in [0, 1)", EnvDonationFeeRate, rate)
	}
	return rate, nil
}

type WebhookConfig struct {
	InlineProcessing bool          `envconfig:"TIPJAR_WEBHOOK_INLINE_PROCESSING" default:"true"`
	MaxAttempts      int           `envconfig:"TIPJAR_WEBHOOK_MAX_ATTEMPTS" default:"8"`
	BatchSize        int           `envconfig:"TIPJAR_WEBHOOK_BATCH_SIZE" default:"25"`
	PollInterval     time.Duration `envconfig:"TIPJAR_WEBHOOK_POLL_INTERVAL" default:"2s"`
	RetentionDays    int           `envconfig:"TIPJAR_WEBHOOK_RETENTION_DAYS" default:"30"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TIPJAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TIPJAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TIPJAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TIPJAR_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TIPJAR_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"TIPJAR_CRON_LOCK_TTL" default:"10m"`
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
	for _, env := range discreteDBEnvVars {
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
