package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Token store backends.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// UPS
	UPSClientID       string        `envconfig:"UPS_CLIENT_ID"`
	UPSClientSecret   string        `envconfig:"UPS_CLIENT_SECRET"`
	UPSAccount        string        `envconfig:"UPS_ACCOUNT"`
	UPSMerchantID     string        `envconfig:"UPS_MERCHANT_ID"`
	UPSBaseURL        string        `envconfig:"UPS_BASE_URL" default:"https://wwwcie.ups.com"`
	UPSTransactionSrc string        `envconfig:"UPS_TRANSACTION_SRC" default:"upsbridge"`
	UPSServiceCode    string        `envconfig:"UPS_SERVICE_CODE" default:"03"`
	UPSLabelFormat    string        `envconfig:"UPS_LABEL_FORMAT" default:"gif"`
	UPSTimeout        time.Duration `envconfig:"UPS_TIMEOUT" default:"30s"`
	UPSUseMock        bool          `envconfig:"UPS_USE_MOCK" default:"false"`

	// Token cache
	TokenStore    string `envconfig:"TOKEN_STORE" default:"memory"`
	TokenCacheKey string `envconfig:"TOKEN_CACHE_KEY" default:"access_token"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"upsbridge:"`

	// Records and labels
	LabelDir     string `envconfig:"LABEL_DIR" default:"labels"`
	AgenciesFile string `envconfig:"AGENCIES_FILE" default:"agencies.yaml"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"upsbridge"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables. Each file in
// envFiles is loaded first; variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings envconfig cannot express.
func (c *Config) Validate() error {
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreRedis:
	default:
		return fmt.Errorf("invalid TOKEN_STORE %q: want %q or %q", c.TokenStore, TokenStoreMemory, TokenStoreRedis)
	}

	if !c.UPSUseMock && (c.UPSClientID == "" || c.UPSClientSecret == "") {
		return fmt.Errorf("UPS_CLIENT_ID and UPS_CLIENT_SECRET are required unless UPS_USE_MOCK is set")
	}
	if !c.UPSUseMock && c.UPSAccount == "" {
		return fmt.Errorf("UPS_ACCOUNT is required unless UPS_USE_MOCK is set")
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("ups.base_url", c.UPSBaseURL),
		attribute.Bool("ups.mock", c.UPSUseMock),
		attribute.String("token.store", c.TokenStore),
	}
}
