package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	// STORE_DRIVER selects the booking store: "mongo" or "memory".
	StoreDriver string `mapstructure:"STORE_DRIVER"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisAuthDB   int    `mapstructure:"REDIS_AUTH_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	// Payments.
	StripeSecretKey string  `mapstructure:"STRIPE_SECRET_KEY"`
	LedgerDriver    string  `mapstructure:"LEDGER_DRIVER"`
	DefaultCurrency string  `mapstructure:"DEFAULT_CURRENCY"`
	PlatformFeeRate float64 `mapstructure:"PLATFORM_FEE_RATE"`

	// Booking transitions.
	ClaimTTL     time.Duration `mapstructure:"CLAIM_TTL"`
	DedupeWindow time.Duration `mapstructure:"DEDUPE_WINDOW"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 200)
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "gigbook")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_AUTH_DB", 1)
	v.SetDefault("REDIS_QUEUE_DB", 2)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	v.SetDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("LEDGER_DRIVER", "stripe")
	v.SetDefault("DEFAULT_CURRENCY", "sgd")
	v.SetDefault("PLATFORM_FEE_RATE", 0.05)
	v.SetDefault("CLAIM_TTL", 2*time.Minute)
	v.SetDefault("DEDUPE_WINDOW", 10*time.Second)
}

func newViper() *viper.Viper {
	v := viper.New()
	// Look for a config file named "config.yaml" in the current and "config" directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadConfig reads config.yaml (if present) and the environment into AppConfig.
func LoadConfig() (*Config, error) {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.LedgerDriver {
	case "stripe", "memory":
	default:
		return fmt.Errorf("config: unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}
	if c.LedgerDriver == "stripe" && c.StripeSecretKey == "" {
		return fmt.Errorf("config: STRIPE_SECRET_KEY is required when LEDGER_DRIVER=stripe")
	}
	if c.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("config: JWT_SECRET is required in production")
	}
	if c.PlatformFeeRate < 0 || c.PlatformFeeRate >= 1 {
		return fmt.Errorf("config: PLATFORM_FEE_RATE must be in [0, 1), got %v", c.PlatformFeeRate)
	}
	return nil
}

// StripeKey re-reads the Stripe secret so a rotated key is picked up without a restart.
func StripeKey() (string, error) {
	v := newViper()
	_ = v.ReadInConfig()
	key := v.GetString("STRIPE_SECRET_KEY")
	if key == "" {
		return "", fmt.Errorf("config: STRIPE_SECRET_KEY is empty")
	}
	return key, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func IsProduction() bool {
	return AppConfig.IsProduction()
}
