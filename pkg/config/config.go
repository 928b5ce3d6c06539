package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "riceup"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Billing      BillingConfig
	Mail         MailConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RICEUP_APP_ENV" required:"true"`
	Port         string `envconfig:"RICEUP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RICEUP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RICEUP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"RICEUP_DB_DSN"`
	Driver string `envconfig:"RICEUP_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"RICEUP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RICEUP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RICEUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RICEUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d DBConfig) validate() error {
	if strings.TrimSpace(d.DSN) == "" {
		return fmt.Errorf("RICEUP_DB_DSN is required")
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"RICEUP_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"RICEUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RICEUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RICEUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RICEUP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RICEUP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"RICEUP_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"RICEUP_JWT_ISSUER" default:"riceup"`
}

// GatewayConfig carries the payment gateway credentials. The key secret is
// also the HMAC secret for callback signature verification.
type GatewayConfig struct {
	KeyID          string        `envconfig:"RICEUP_GATEWAY_KEY_ID"`
	KeySecret      string        `envconfig:"RICEUP_GATEWAY_KEY_SECRET"`
	Currency       string        `envconfig:"RICEUP_GATEWAY_CURRENCY" default:"INR"`
	RequestTimeout time.Duration `envconfig:"RICEUP_GATEWAY_REQUEST_TIMEOUT" default:"15s"`

	// Fixed-window throttle for the unauthenticated callback route.
	CallbackRateLimit  int64         `envconfig:"RICEUP_GATEWAY_CALLBACK_RATE_LIMIT" default:"60"`
	CallbackRateWindow time.Duration `envconfig:"RICEUP_GATEWAY_CALLBACK_RATE_WINDOW" default:"1m"`
}

type BillingConfig struct {
	TaxRatePercent    int    `envconfig:"RICEUP_BILLING_TAX_RATE_PERCENT" default:"5"`
	InvoiceSeller     string `envconfig:"RICEUP_BILLING_INVOICE_SELLER" default:"RiceUp Marketplace"`
	InvoiceNumPrefix  string `envconfig:"RICEUP_BILLING_INVOICE_NUM_PREFIX" default:"INV"`
	DefaultCancelNote string `envconfig:"RICEUP_BILLING_DEFAULT_CANCEL_NOTE" default:"Cancelled by user request"`
}

type MailConfig struct {
	Enabled     bool   `envconfig:"RICEUP_MAIL_ENABLED" default:"false"`
	FromAddress string `envconfig:"RICEUP_MAIL_FROM" default:"orders@riceup.example"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"RICEUP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"RICEUP_PUBSUB_DOMAIN_TOPIC" default:"riceup-domain-events"`
	DomainSubscription string `envconfig:"RICEUP_PUBSUB_DOMAIN_SUBSCRIPTION" default:"riceup-domain-events-worker"`
}

type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"RICEUP_OUTBOX_POLL_INTERVAL" default:"2s"`
	BatchSize    int           `envconfig:"RICEUP_OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts  int           `envconfig:"RICEUP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"RICEUP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RICEUP_AUTO_MIGRATE" default:"false"`
}
