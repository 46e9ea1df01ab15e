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
	FeatureFlags FeatureFlagsConfig
	Settlement   SettlementConfig
	Providers    ProvidersConfig
	Square       SquareConfig
	Stripe       StripeConfig
	BankTransfer BankTransferConfig
	Renewal      RenewalConfig
	Webhooks     WebhooksConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces cross-field rules envconfig cannot express.
func (c *Config) Validate() error {
	if c.Providers.Simulated {
		if c.App.IsProd() {
			return fmt.Errorf("%s cannot be enabled when %s=%s", EnvProvidersSimulated, EnvAppEnv, c.App.Env)
		}
		if c.Square.HasLiveCredentials() || c.Stripe.HasLiveCredentials() {
			return fmt.Errorf("%s cannot be enabled while production provider credentials are configured", EnvProvidersSimulated)
		}
	}
	if c.Settlement.CommissionRate.IsNegative() || c.Settlement.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvCommissionRate)
	}
	if c.Renewal.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvRenewalMaxAttempts)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"PACKFINDERZ_CORS_ORIGINS" default:"http://localhost:3000"`

	ShutdownGrace time.Duration `envconfig:"PACKFINDERZ_APP_SHUTDOWN_GRACE" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"PACKFINDERZ_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"PACKFINDERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"PACKFINDERZ_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite         bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate       bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
	AllowBankTransfer bool `envconfig:"PACKFINDERZ_FEATURE_ALLOW_BANK_TRANSFER" default:"true"`
}

// SettlementConfig tunes the coordinator.
type SettlementConfig struct {
	ProviderTimeout time.Duration   `envconfig:"PACKFINDERZ_SETTLEMENT_PROVIDER_TIMEOUT" default:"15s"`
	DefaultCurrency string          `envconfig:"PACKFINDERZ_SETTLEMENT_DEFAULT_CURRENCY" default:"USD"`
	CommissionRate  decimal.Decimal `envconfig:"PACKFINDERZ_SETTLEMENT_COMMISSION_RATE" default:"0.10"`
	ReturnURL       string          `envconfig:"PACKFINDERZ_SETTLEMENT_RETURN_URL"`
}

// ProvidersConfig switches every adapter into deterministic simulated mode.
type ProvidersConfig struct {
	Simulated bool `envconfig:"PACKFINDERZ_PROVIDERS_SIMULATED" default:"false"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"PACKFINDERZ_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"PACKFINDERZ_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"PACKFINDERZ_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"PACKFINDERZ_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"PACKFINDERZ_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// HasLiveCredentials reports whether a production Square token is configured.
func (s SquareConfig) HasLiveCredentials() bool {
	return strings.TrimSpace(s.AccessToken) != "" && s.Environment() == "production"
}

type StripeConfig struct {
	APIKey            string `envconfig:"PACKFINDERZ_STRIPE_API_KEY"`
	Secret            string `envconfig:"PACKFINDERZ_STRIPE_SECRET"`
	Env               string `envconfig:"PACKFINDERZ_STRIPE_ENV" default:"test"`
	InstantMethodType string `envconfig:"PACKFINDERZ_STRIPE_INSTANT_METHOD_TYPE" default:"promptpay"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// HasLiveCredentials reports whether a live Stripe key is configured.
func (s StripeConfig) HasLiveCredentials() bool {
	key := strings.TrimSpace(s.APIKey)
	return s.Environment() == "live" || strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live")
}

// BankTransferConfig carries the routing details printed on invoices.
type BankTransferConfig struct {
	Beneficiary   string `envconfig:"PACKFINDERZ_BANK_BENEFICIARY" default:"PackFinderz LLC"`
	BankName      string `envconfig:"PACKFINDERZ_BANK_NAME"`
	AccountNumber string `envconfig:"PACKFINDERZ_BANK_ACCOUNT_NUMBER"`
	RoutingNumber string `envconfig:"PACKFINDERZ_BANK_ROUTING_NUMBER"`
	SWIFT         string `envconfig:"PACKFINDERZ_BANK_SWIFT"`
	DueDays       int    `envconfig:"PACKFINDERZ_BANK_INVOICE_DUE_DAYS" default:"7"`
	WebhookSecret string `envconfig:"PACKFINDERZ_BANK_WEBHOOK_SECRET"`
}

// RenewalConfig drives the renewal, retry, and expiry jobs.
type RenewalConfig struct {
	Lookahead      time.Duration `envconfig:"PACKFINDERZ_RENEWAL_LOOKAHEAD" default:"72h"`
	Interval       time.Duration `envconfig:"PACKFINDERZ_RENEWAL_INTERVAL" default:"24h"`
	RetryInterval  time.Duration `envconfig:"PACKFINDERZ_RENEWAL_RETRY_INTERVAL" default:"4h"`
	RetryWindow    time.Duration `envconfig:"PACKFINDERZ_RENEWAL_RETRY_WINDOW" default:"72h"`
	MaxAttempts    int           `envconfig:"PACKFINDERZ_RENEWAL_MAX_ATTEMPTS" default:"3"`
	ExpiryInterval time.Duration `envconfig:"PACKFINDERZ_RENEWAL_EXPIRY_INTERVAL" default:"1h"`
	BatchSize      int           `envconfig:"PACKFINDERZ_RENEWAL_BATCH_SIZE" default:"200"`
	DefaultMethod  string        `envconfig:"PACKFINDERZ_RENEWAL_DEFAULT_METHOD" default:"card"`
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"PACKFINDERZ_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// RateLimitConfig throttles payment initiation per caller.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"PACKFINDERZ_RATE_LIMIT_WINDOW" default:"1m"`
	UserLimit int           `envconfig:"PACKFINDERZ_RATE_LIMIT_USER" default:"20"`
	IPLimit   int           `envconfig:"PACKFINDERZ_RATE_LIMIT_IP" default:"60"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"PACKFINDERZ_PUBSUB_PAYMENTS_TOPIC" default:"pf-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention      time.Duration `envconfig:"PACKFINDERZ_OUTBOX_RETENTION" default:"720h"`
	PurgeBatchSize int           `envconfig:"PACKFINDERZ_OUTBOX_PURGE_BATCH_SIZE" default:"500"`
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
