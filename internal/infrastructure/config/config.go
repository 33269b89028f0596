package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig              `mapstructure:"server"`
	Database      DatabaseConfig            `mapstructure:"database"`
	Redis         RedisConfig               `mapstructure:"redis"`
	Worker        WorkerConfig              `mapstructure:"worker"`
	Observability ObservabilityConfig       `mapstructure:"observability"`
	Auth          AuthConfig                `mapstructure:"auth"`
	Idempotency   IdempotencyConfig         `mapstructure:"idempotency"`
	Providers     map[string]ProviderConfig `mapstructure:"providers"`
	InstanceID    string                    `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
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
	ConnectRetries  uint          `mapstructure:"connect_retries"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// WorkerConfig drives the background poll sweep and the outbox relay.
type WorkerConfig struct {
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SweepGrace         time.Duration `mapstructure:"sweep_grace"`
	SweepMaxAge        time.Duration `mapstructure:"sweep_max_age"`
	SweepBatchSize     int           `mapstructure:"sweep_batch_size"`
	SweepConcurrency   int           `mapstructure:"sweep_concurrency"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	EventStream        string        `mapstructure:"event_stream"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ProviderConfig is one row of the provider table. The map key is the
// provider key callers use; Type picks the adapter builder and defaults to
// the key.
type ProviderConfig struct {
	Type             string        `mapstructure:"type"`
	Enabled          bool          `mapstructure:"enabled"`
	Mode             string        `mapstructure:"mode"`
	PublicKey        string        `mapstructure:"public_key"`
	SecretKey        string        `mapstructure:"secret_key"`
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	AccessToken      string        `mapstructure:"access_token"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

const (
	ModeSandbox = "sandbox"
	ModeLive    = "live"
)

// IsLive reports whether the provider talks to production endpoints.
func (p ProviderConfig) IsLive() bool {
	return strings.EqualFold(p.Mode, ModeLive)
}

// knownProviders get defaults so their keys bind to env vars such as
// PAYGATE_PROVIDERS_STRIPE_SECRET_KEY.
var knownProviders = []string{"stripe", "paypal", "revolut", "mercadopago"}

func Load() (*Config, error) {
	// A local .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paygate")

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
	if c.Worker.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker.sweep_interval must be positive"))
	}
	if c.Worker.SweepBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.sweep_batch_size must be positive"))
	}
	if c.Worker.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("worker.lock_ttl must be positive"))
	}

	for _, key := range c.ProviderKeys() {
		p := c.Providers[key]
		if p.Mode != "" && !strings.EqualFold(p.Mode, ModeSandbox) && !strings.EqualFold(p.Mode, ModeLive) {
			errs = append(errs, fmt.Errorf("providers.%s.mode must be %q or %q, got %q", key, ModeSandbox, ModeLive, p.Mode))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.timeout must not be negative", key))
		}
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

// ProviderKeys returns the configured provider keys in sorted order.
func (c *Config) ProviderKeys() []string {
	keys := make([]string, 0, len(c.Providers))
	for k := range c.Providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.rate_limit", 600)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paygate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "paygate")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Worker defaults
	v.SetDefault("worker.sweep_interval", "1m")
	v.SetDefault("worker.sweep_grace", "2m")
	v.SetDefault("worker.sweep_max_age", "72h")
	v.SetDefault("worker.sweep_batch_size", 100)
	v.SetDefault("worker.sweep_concurrency", 8)
	v.SetDefault("worker.lock_ttl", "55s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.outbox_batch_size", 50)
	v.SetDefault("worker.event_stream", "paygate:status_events")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("idempotency.ttl", "24h")

	for _, key := range knownProviders {
		prefix := "providers." + key + "."
		v.SetDefault(prefix+"type", key)
		v.SetDefault(prefix+"enabled", false)
		v.SetDefault(prefix+"mode", ModeSandbox)
		for _, field := range []string{"public_key", "secret_key", "client_id", "client_secret", "access_token", "webhook_secret", "base_url"} {
			v.SetDefault(prefix+field, "")
		}
		v.SetDefault(prefix+"timeout", "30s")
		v.SetDefault(prefix+"breaker_threshold", 10)
		v.SetDefault(prefix+"breaker_timeout", "30s")
	}

	v.SetDefault("instance_id", "paygate-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
