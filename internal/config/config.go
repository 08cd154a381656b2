package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CLINIC_DATABASE_HOST.
const EnvPrefix = "CLINIC"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" split_words:"true"`
	Database  DatabaseConfig  `mapstructure:"database" split_words:"true"`
	JWT       JWTConfig       `mapstructure:"jwt" split_words:"true"`
	Redis     RedisConfig     `mapstructure:"redis" split_words:"true"`
	Spatial   SpatialConfig   `mapstructure:"spatial" split_words:"true"`
	Analytics AnalyticsConfig `mapstructure:"analytics" split_words:"true"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Booking   BookingConfig   `mapstructure:"booking" split_words:"true"`
	Outbox    OutboxConfig    `mapstructure:"outbox" split_words:"true"`
	SMTP      SMTPConfig      `mapstructure:"smtp" split_words:"true"`
	Log       LogConfig       `mapstructure:"log" split_words:"true"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"host" split_words:"true"`
	Port         int           `mapstructure:"port" split_words:"true"`
	User         string        `mapstructure:"user" split_words:"true"`
	Password     string        `mapstructure:"password" split_words:"true"`
	Name         string        `mapstructure:"name" split_words:"true"`
	SSLMode      string        `mapstructure:"sslmode" split_words:"true"`
	MaxOpenConns int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLife  time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" split_words:"true"`
	Expiry time.Duration `mapstructure:"expiry" split_words:"true"`
	Issuer string        `mapstructure:"issuer" split_words:"true"`
}

// RedisConfig is optional; an empty URL disables Redis-backed features.
type RedisConfig struct {
	URL          string        `mapstructure:"url" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	Channel      string        `mapstructure:"channel" split_words:"true"`
}

type SpatialConfig struct {
	Resolution int `mapstructure:"resolution" split_words:"true"`
	MaxRing    int `mapstructure:"max_ring" split_words:"true"`
}

type AnalyticsConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl" split_words:"true"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" split_words:"true"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst" split_words:"true"`
}

type BookingConfig struct {
	LockTTL time.Duration `mapstructure:"lock_ttl" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize    int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval time.Duration `mapstructure:"poll_interval" split_words:"true"`
	MaxAttempts  int           `mapstructure:"max_attempts" split_words:"true"`
	// HealthPort serves the worker's health and metrics endpoints.
	HealthPort int `mapstructure:"health_port" split_words:"true"`
}

// SMTPConfig enables e-mail delivery of patient notifications when Host is set.
type SMTPConfig struct {
	Host     string `mapstructure:"host" split_words:"true"`
	Port     int    `mapstructure:"port" split_words:"true"`
	Username string `mapstructure:"username" split_words:"true"`
	Password string `mapstructure:"password" split_words:"true"`
	From     string `mapstructure:"from" split_words:"true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" split_words:"true"`
	Format string `mapstructure:"format" split_words:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("jwt.expiry", 30*time.Minute)
	v.SetDefault("jwt.issuer", "clinic-api")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.channel", "clinic.events")
	v.SetDefault("spatial.resolution", 7)
	v.SetDefault("spatial.max_ring", 3)
	v.SetDefault("analytics.cache_ttl", 30*time.Second)
	v.SetDefault("analytics.cleanup_interval", 5*time.Minute)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("booking.lock_ttl", 10*time.Second)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.health_port", 8081)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads config.yml from the usual locations, then applies
// CLINIC_* environment overrides. A missing file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.JWT.Expiry <= 0 {
		problems = append(problems, "jwt.expiry must be positive")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}
	if c.Spatial.Resolution < 0 || c.Spatial.Resolution > 15 {
		problems = append(problems, "spatial.resolution must be within 0..15")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.MaxAttempts <= 0 {
		problems = append(problems, "outbox batch_size, poll_interval and max_attempts must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
