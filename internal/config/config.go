// Package config loads application configuration from environment
// variables and validates it before the rest of the process boots.
package config

import (
	"time"

	"github.com/gabapcia/paywatch/internal/pkg/validator"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime setting of the service. Values come from
// environment variables; sensible defaults cover local development.
type Config struct {
	// HTTPAddr is the listen address of the REST API.
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	// DatabaseMaxOpenConns caps the connection pool size.
	DatabaseMaxOpenConns int `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"10"`

	// Redis connection settings, used for sync watermarks.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// SolanaRPCEndpoint is the JSON-RPC endpoint of the Solana node.
	SolanaRPCEndpoint string `envconfig:"SOLANA_RPC_ENDPOINT" default:"https://api.mainnet-beta.solana.com" validate:"http_url"`
	// TokenMint is the SPL token mint whose transfers are tracked.
	TokenMint string `envconfig:"TOKEN_MINT" default:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`
	// TokenName and TokenSymbol label balances in API responses.
	TokenName   string `envconfig:"TOKEN_NAME" default:"USD Coin"`
	TokenSymbol string `envconfig:"TOKEN_SYMBOL" default:"USDC"`

	// Chain polling settings.
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	PollBatchLimit int           `envconfig:"POLL_BATCH_LIMIT" default:"20" validate:"gt=0"`
	PollMaxWallets int           `envconfig:"POLL_MAX_CONCURRENT_WALLETS" default:"4" validate:"gt=0"`

	// Webhook delivery settings.
	WebhookSecret           string        `envconfig:"WEBHOOK_SECRET"`
	WebhookNotifyOn         []string      `envconfig:"WEBHOOK_NOTIFY_ON" default:"confirmed,failed"`
	WebhookMaxAttempts      int           `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"5" validate:"gt=0"`
	WebhookBackoffBase      time.Duration `envconfig:"WEBHOOK_BACKOFF_BASE" default:"30s"`
	WebhookBackoffCeiling   time.Duration `envconfig:"WEBHOOK_BACKOFF_CEILING" default:"1h"`
	WebhookDispatchInterval time.Duration `envconfig:"WEBHOOK_DISPATCH_INTERVAL" default:"5s"`
	WebhookDispatchBatch    int           `envconfig:"WEBHOOK_DISPATCH_BATCH" default:"100" validate:"gt=0"`
	WebhookLeaseTTL         time.Duration `envconfig:"WEBHOOK_LEASE_TTL" default:"1m"`

	// LogLevel sets the minimum severity of emitted logs.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// OtelExporterEndpoint enables telemetry export when set.
	OtelExporterEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
