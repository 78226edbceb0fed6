package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "LEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "LEDGER_APP_ENV"
	EnvPort      = "LEDGER_APP_PORT"
	EnvDBDSN     = "LEDGER_DB_DSN"
	EnvDBHost    = "LEDGER_DB_HOST"
	EnvDBUser    = "LEDGER_DB_USER"
	EnvDBName    = "LEDGER_DB_NAME"
	EnvRedisURL  = "LEDGER_REDIS_URL"
	EnvJWTSecret = "LEDGER_JWT_SECRET"

	EnvStripeTestKey = "LEDGER_STRIPE_TEST_API_KEY"
	EnvStripeLiveKey = "LEDGER_STRIPE_LIVE_API_KEY"
	EnvCronSchedule  = "LEDGER_CRON_SCHEDULE"
	EnvCronModes     = "LEDGER_CRON_MODES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
