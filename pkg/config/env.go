package config

const (
	EnvPrefix = "TIPJAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv          = "TIPJAR_APP_ENV"
	EnvPort            = "TIPJAR_APP_PORT"
	EnvHostURL         = "TIPJAR_HOST_URL"
	EnvDBDSN           = "TIPJAR_DB_DSN"
	EnvDBHost          = "TIPJAR_DB_HOST"
	EnvDBUser          = "TIPJAR_DB_USER"
	EnvDBName          = "TIPJAR_DB_NAME"
	EnvUseSQLite       = "TIPJAR_USE_SQLITE"
	EnvRedisURL        = "TIPJAR_REDIS_URL"
	EnvJWTSecret       = "TIPJAR_JWT_SECRET"
	EnvStripeAPIKey    = "TIPJAR_STRIPE_API_KEY"
	EnvStripeWebhook   = "TIPJAR_STRIPE_WEBHOOK_SECRET"
	EnvStripeEnv       = "TIPJAR_STRIPE_ENV"
	EnvDonationFeeRate = "TIPJAR_DONATION_FEE_RATE"
	EnvPendingTTL      = "TIPJAR_DONATION_PENDING_TTL"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
