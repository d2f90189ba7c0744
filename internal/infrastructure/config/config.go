package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Charge        ChargeConfig        `mapstructure:"charge"`
	Fees          FeesConfig          `mapstructure:"fees"`
	Surcharges    SurchargesConfig    `mapstructure:"surcharges"`
	Gateways      GatewaysConfig      `mapstructure:"gateways"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// ChargeConfig tunes the charge lifecycle machinery: per-charge locking,
// how long an unfinished charge lives before the expiry sweep cancels it,
// and how long a SUBMITTED status may sit before reconciliation queries the
// gateway for the truth.
type ChargeConfig struct {
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	ExpiryWindow            time.Duration `mapstructure:"expiry_window"`
	ReconcileAfter          time.Duration `mapstructure:"reconcile_after"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// FeesConfig drives the gateway fee breakdown. TransactionRateBasisPoints is
// a rate in hundredths of a percent; the flat fees are in minor units.
type FeesConfig struct {
	TransactionRateBasisPoints int64 `mapstructure:"transaction_rate_basis_points"`
	RadarFee                   int64 `mapstructure:"radar_fee"`
	ThreeDSFee                 int64 `mapstructure:"three_ds_fee"`
}

// SurchargesConfig holds the flat corporate surcharge amounts in minor
// units. Zero means the surcharge is not levied for that card class.
type SurchargesConfig struct {
	CorporateCredit        int64 `mapstructure:"corporate_credit"`
	CorporateDebit         int64 `mapstructure:"corporate_debit"`
	CorporatePrepaidCredit int64 `mapstructure:"corporate_prepaid_credit"`
	CorporatePrepaidDebit  int64 `mapstructure:"corporate_prepaid_debit"`
}

type GatewaysConfig struct {
	Sandbox  SandboxGatewayConfig  `mapstructure:"sandbox"`
	Stripe   StripeGatewayConfig   `mapstructure:"stripe"`
	Worldpay WorldpayGatewayConfig `mapstructure:"worldpay"`
	Smartpay SmartpayGatewayConfig `mapstructure:"smartpay"`
}

type SandboxGatewayConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	WebhookToken string `mapstructure:"webhook_token"`
}

type StripeGatewayConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	ConnectAccountID string        `mapstructure:"connect_account_id"`
	Timeout          time.Duration `mapstructure:"timeout"`
	WebhookToken     string        `mapstructure:"webhook_token"`
}

type WorldpayGatewayConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	MerchantCode string        `mapstructure:"merchant_code"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Timeout      time.Duration `mapstructure:"timeout"`
	WebhookToken string        `mapstructure:"webhook_token"`
	// WebhookCIDRs restricts notification sources; empty means no IP check.
	WebhookCIDRs []string `mapstructure:"webhook_cidrs"`
}

type SmartpayGatewayConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url"`
	MerchantAccount string        `mapstructure:"merchant_account"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Timeout         time.Duration `mapstructure:"timeout"`
	WebhookToken    string        `mapstructure:"webhook_token"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("CHARGEGATE")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chargegate")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Charge.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("charge.lock_ttl must be positive"))
	}
	if c.Charge.ExpiryWindow <= 0 {
		errs = append(errs, fmt.Errorf("charge.expiry_window must be positive"))
	}
	if c.Fees.TransactionRateBasisPoints < 0 {
		errs = append(errs, fmt.Errorf("fees.transaction_rate_basis_points cannot be negative"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Gateways.Stripe.Enabled && c.Gateways.Stripe.APIKey == "" {
			errs = append(errs, fmt.Errorf("gateways.stripe.api_key required in production"))
		}
		if c.Gateways.Worldpay.Enabled && c.Gateways.Worldpay.Password == "" {
			errs = append(errs, fmt.Errorf("gateways.worldpay.password required in production"))
		}
		if c.Gateways.Smartpay.Enabled && c.Gateways.Smartpay.Password == "" {
			errs = append(errs, fmt.Errorf("gateways.smartpay.password required in production"))
		}
		if c.Gateways.Sandbox.Enabled {
			errs = append(errs, fmt.Errorf("gateways.sandbox cannot be enabled in production"))
		}
	}

	for name, token := range map[string]string{
		"gateways.stripe.webhook_token":   c.Gateways.Stripe.WebhookToken,
		"gateways.worldpay.webhook_token": c.Gateways.Worldpay.WebhookToken,
		"gateways.smartpay.webhook_token": c.Gateways.Smartpay.WebhookToken,
	} {
		if token != "" && len(token) < 32 {
			errs = append(errs, fmt.Errorf("%s must be at least 32 characters", name))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chargegate")
	v.SetDefault("database.database", "chargegate")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Charge lifecycle defaults
	v.SetDefault("charge.lock_ttl", "30s")
	v.SetDefault("charge.expiry_window", "90m")
	v.SetDefault("charge.reconcile_after", "10m")
	v.SetDefault("charge.circuit_breaker_threshold", 10)
	v.SetDefault("charge.circuit_breaker_timeout", "30s")

	// Fee defaults: 50bps transaction rate, 5 minor units radar, 10 for 3DS
	v.SetDefault("fees.transaction_rate_basis_points", 50)
	v.SetDefault("fees.radar_fee", 5)
	v.SetDefault("fees.three_ds_fee", 10)

	// Surcharges default to not configured
	v.SetDefault("surcharges.corporate_credit", 0)
	v.SetDefault("surcharges.corporate_debit", 0)
	v.SetDefault("surcharges.corporate_prepaid_credit", 0)
	v.SetDefault("surcharges.corporate_prepaid_debit", 0)

	// Gateway defaults
	v.SetDefault("gateways.sandbox.enabled", true)
	v.SetDefault("gateways.stripe.enabled", false)
	v.SetDefault("gateways.stripe.base_url", "https://api.stripe.com")
	v.SetDefault("gateways.stripe.timeout", "50s")
	v.SetDefault("gateways.worldpay.enabled", false)
	v.SetDefault("gateways.worldpay.timeout", "50s")
	v.SetDefault("gateways.smartpay.enabled", false)
	v.SetDefault("gateways.smartpay.timeout", "50s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.sweep_interval", "30s")
	v.SetDefault("worker.consumer_group", "charge-processors")
	v.SetDefault("worker.idempotency_ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "chargegate-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
