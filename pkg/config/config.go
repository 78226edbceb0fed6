package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Features FeatureFlagsConfig
	Stripe   StripeConfig
	Sync     SyncConfig
	Cron     CronConfig
	Shipping ShippingConfig
	Limits   RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LEDGER_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is comma separated; "*" allows any origin.
	CORSOrigins []string `envconfig:"LEDGER_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGER_DB_DSN"`
	Driver string `envconfig:"LEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGER_DB_USER"`
	LegacyPassword string `envconfig:"LEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LEDGER_DB_SLOW_QUERY" default:"500ms"`
	TxAttempts      int           `envconfig:"LEDGER_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the hosting platform for function calls.
type JWTConfig struct {
	Secret string `envconfig:"LEDGER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LEDGER_JWT_ISSUER"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"LEDGER_AUTO_MIGRATE" default:"false"`
	WebhookResync bool `envconfig:"LEDGER_FEATURE_WEBHOOK_RESYNC" default:"true"`
}

// StripeConfig carries one key pair per mode; sync requests pick the mode explicitly.
type StripeConfig struct {
	TestAPIKey        string  `envconfig:"LEDGER_STRIPE_TEST_API_KEY"`
	TestWebhookSecret string  `envconfig:"LEDGER_STRIPE_TEST_WEBHOOK_SECRET"`
	LiveAPIKey        string  `envconfig:"LEDGER_STRIPE_LIVE_API_KEY"`
	LiveWebhookSecret string  `envconfig:"LEDGER_STRIPE_LIVE_WEBHOOK_SECRET"`
	DefaultMode       string  `envconfig:"LEDGER_STRIPE_DEFAULT_MODE" default:"test"`
	RequestsPerSecond float64 `envconfig:"LEDGER_STRIPE_RPS" default:"20"`
	Burst             int     `envconfig:"LEDGER_STRIPE_BURST" default:"5"`
}

// Mode returns the normalized default Stripe mode (test/live).
func (s StripeConfig) Mode() string {
	mode := strings.TrimSpace(strings.ToLower(s.DefaultMode))
	if mode == "" {
		return "test"
	}
	return mode
}

type SyncConfig struct {
	LookbackDays    int           `envconfig:"LEDGER_SYNC_LOOKBACK_DAYS" default:"365"`
	BatchLimit      int           `envconfig:"LEDGER_SYNC_BATCH_LIMIT" default:"500"`
	IdempotencyTTL  time.Duration `envconfig:"LEDGER_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	UpsertChunkSize int           `envconfig:"LEDGER_SYNC_UPSERT_CHUNK" default:"200"`
}

// Lookback converts the configured day count into a duration.
func (s SyncConfig) Lookback() time.Duration {
	if s.LookbackDays <= 0 {
		return 365 * 24 * time.Hour
	}
	return time.Duration(s.LookbackDays) * 24 * time.Hour
}

// RateLimitConfig throttles manual sync calls per token subject and per donor email.
type RateLimitConfig struct {
	SyncWindow      time.Duration `envconfig:"LEDGER_SYNC_RATE_WINDOW" default:"1m"`
	SyncCallerLimit int           `envconfig:"LEDGER_SYNC_RATE_CALLER_LIMIT" default:"60"`
	SyncEmailLimit  int           `envconfig:"LEDGER_SYNC_RATE_EMAIL_LIMIT" default:"6"`
}

type CronConfig struct {
	Schedule   string        `envconfig:"LEDGER_CRON_SCHEDULE" default:"0 */6 * * *"`
	Modes      []string      `envconfig:"LEDGER_CRON_MODES" default:"live"`
	RunOnStart bool          `envconfig:"LEDGER_CRON_RUN_ON_START" default:"false"`
	LockTTL    time.Duration `envconfig:"LEDGER_CRON_LOCK_TTL" default:"10m"`
}

type ShippingConfig struct {
	EasyPostAPIKey  string        `envconfig:"LEDGER_EASYPOST_API_KEY"`
	EasyPostBaseURL string        `envconfig:"LEDGER_EASYPOST_BASE_URL" default:"https://api.easypost.com/v2"`
	ShippoAPIKey    string        `envconfig:"LEDGER_SHIPPO_API_KEY"`
	ShippoBaseURL   string        `envconfig:"LEDGER_SHIPPO_BASE_URL" default:"https://api.goshippo.com"`
	OriginPostal    string        `envconfig:"LEDGER_SHIPPING_ORIGIN_POSTAL" default:"97201"`
	OriginCountry   string        `envconfig:"LEDGER_SHIPPING_ORIGIN_COUNTRY" default:"US"`
	QuoteTTL        time.Duration `envconfig:"LEDGER_SHIPPING_QUOTE_TTL" default:"15m"`
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
