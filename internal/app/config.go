package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/gateway"
)

// Config holds the complete application configuration, loadable from
// environment variables (EMART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (EMART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Mongo       MongoConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	JWT         JWTConfig
	Payment     gateway.Config
	Delivery    DeliveryConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// MongoConfig locates the status history store. An empty URI disables it.
type MongoConfig struct {
	URI      string `usage:"MongoDB URI for order status history"`
	Database string `default:"emart" usage:"MongoDB database name"`
}

// RedisConfig locates the idempotency key store. An empty Addr disables
// Idempotency-Key handling.
type RedisConfig struct {
	Addr           string        `usage:"Redis address (host:port)"`
	Password       string        `usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database number"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long idempotent responses are replayed" flag:"idempotency-ttl"`
}

// KafkaConfig controls the outbox relay. Without brokers events stay in
// the outbox table.
type KafkaConfig struct {
	Brokers      string        `usage:"Comma separated Kafka brokers"`
	Topic        string        `default:"emart.orders" usage:"Topic for order events"`
	PollInterval time.Duration `default:"1s" usage:"Outbox poll interval" flag:"outbox-poll-interval"`
	BatchSize    int           `default:"100" usage:"Outbox rows per relay batch" flag:"outbox-batch-size"`
}

// JWTConfig verifies bearer tokens.
type JWTConfig struct {
	Secret string `usage:"HMAC secret for bearer tokens (EMART_JWT_SECRET or JWT_SECRET)"`
	Issuer string `default:"emart" usage:"Required token issuer; empty accepts any"`
}

// DeliveryConfig is the flat-rate delivery table.
type DeliveryConfig struct {
	MetroKeyword  string  `default:"dhaka" usage:"City substring that gets the metro rate" flag:"delivery-metro"`
	MetroCharge   float64 `default:"60" usage:"Delivery charge inside the metro area" flag:"delivery-metro-charge"`
	DefaultCharge float64 `default:"120" usage:"Delivery charge elsewhere" flag:"delivery-default-charge"`
}

// Rates converts the table to domain values.
func (c DeliveryConfig) Rates() order.DeliveryRates {
	return order.DeliveryRates{
		MetroKeyword:  c.MetroKeyword,
		MetroCharge:   decimal.NewFromFloat(c.MetroCharge),
		DefaultCharge: decimal.NewFromFloat(c.DefaultCharge),
	}
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"10" usage:"Sustained requests per second per client"`
	Burst int     `default:"50" usage:"Requests a client may send at once"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EMART",
		Files:     []string{"config.yaml", "/etc/emart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set EMART_DATABASE_URL or DATABASE_URL")
	case c.JWT.Secret == "":
		return errors.New("JWT secret is required: set EMART_JWT_SECRET or JWT_SECRET")
	case c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0:
		return errors.New("rate limit RPS and burst must be positive")
	case c.Delivery.MetroCharge < 0 || c.Delivery.DefaultCharge < 0:
		return errors.New("delivery charges must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's EMART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.JWT.Secret == "" {
		c.JWT.Secret = os.Getenv("JWT_SECRET")
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = os.Getenv("MONGODB_URI")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
