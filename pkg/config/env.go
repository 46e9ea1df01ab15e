package config

const EnvPrefix = "PACKFINDERZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvPort     = "PACKFINDERZ_APP_PORT"
	EnvDBDSN    = "PACKFINDERZ_DB_DSN"
	EnvDBHost   = "PACKFINDERZ_DB_HOST"
	EnvDBUser   = "PACKFINDERZ_DB_USER"
	EnvDBName   = "PACKFINDERZ_DB_NAME"
	EnvRedisURL = "PACKFINDERZ_REDIS_URL"

	EnvJWTSecret  = "PACKFINDERZ_JWT_SECRET"
	EnvJWTIssuer  = "PACKFINDERZ_JWT_ISSUER"
	EnvJWTExpMins = "PACKFINDERZ_JWT_EXPIRATION_MINUTES"

	EnvProvidersSimulated = "PACKFINDERZ_PROVIDERS_SIMULATED"
	EnvCommissionRate     = "PACKFINDERZ_SETTLEMENT_COMMISSION_RATE"
	EnvRenewalMaxAttempts = "PACKFINDERZ_RENEWAL_MAX_ATTEMPTS"
	EnvSquareAccessToken  = "PACKFINDERZ_SQUARE_ACCESS_TOKEN"
	EnvSquareEnv          = "PACKFINDERZ_SQUARE_ENV"
	EnvStripeAPIKey       = "PACKFINDERZ_STRIPE_API_KEY"
	EnvStripeEnv          = "PACKFINDERZ_STRIPE_ENV"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
