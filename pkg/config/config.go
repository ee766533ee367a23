package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all application configuration
type Config struct {
	App          AppConfig        `mapstructure:"app"`
	Server       ServerConfig     `mapstructure:"server"`
	Fipe         FipeConfig       `mapstructure:"fipe"`
	AuthDatabase DatabaseConfig   `mapstructure:"auth_database"` // Profiles live in the auth platform database
	Redis        RedisConfig      `mapstructure:"redis"`
	Kafka        KafkaConfig      `mapstructure:"kafka"`
	JWT          JWTConfig        `mapstructure:"jwt"`
	AuthEvents   AuthEventsConfig `mapstructure:"auth_events"`
	Session      SessionConfig    `mapstructure:"session"`
	OTel         OTelConfig       `mapstructure:"otel"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FipeConfig holds settings for the upstream FIPE pricing API
type FipeConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Token    string        `mapstructure:"token"` // may be empty; sent as an empty header value
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 0 disables the lookup cache
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// JWTConfig holds settings for verifying access tokens issued by the auth platform
type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// AuthEventsConfig selects where auth state notifications travel
type AuthEventsConfig struct {
	Backend       string `mapstructure:"backend"` // redis or kafka
	Channel       string `mapstructure:"channel"`
	Topic         string `mapstructure:"topic"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// SessionConfig holds user session loader defaults
type SessionConfig struct {
	IncludeProfile  bool          `mapstructure:"include_profile"`
	LoginPath       string        `mapstructure:"login_path"`
	ProfileCacheTTL time.Duration `mapstructure:"profile_cache_ttl"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The frontend build exposed the token under its public name
	_ = v.BindEnv("FIPE_API_TOKEN", "FIPE_API_TOKEN", "NEXT_PUBLIC_FIPE_API_TOKEN")

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "fipe-garage")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// FIPE upstream
	v.SetDefault("FIPE_API_BASE_URL", "https://fipe.parallelum.com.br/api/v2")
	v.SetDefault("FIPE_API_TOKEN", "")
	v.SetDefault("FIPE_API_TIMEOUT", "30s")
	v.SetDefault("FIPE_CACHE_TTL", "0s")

	// Auth Database (profiles table)
	v.SetDefault("AUTH_DATABASE_HOST", "localhost")
	v.SetDefault("AUTH_DATABASE_PORT", 5432)
	v.SetDefault("AUTH_DATABASE_USER", "postgres")
	v.SetDefault("AUTH_DATABASE_PASSWORD", "postgres")
	v.SetDefault("AUTH_DATABASE_DBNAME", "auth_db")
	v.SetDefault("AUTH_DATABASE_SSLMODE", "disable")
	v.SetDefault("AUTH_DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("AUTH_DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("AUTH_DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("AUTH_DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "fipe-garage")

	// JWT defaults
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", "1h")

	// Auth events
	v.SetDefault("AUTH_EVENTS_BACKEND", "redis")
	v.SetDefault("AUTH_EVENTS_CHANNEL", "auth:events")
	v.SetDefault("AUTH_EVENTS_TOPIC", "auth.events")
	v.SetDefault("AUTH_EVENTS_WEBHOOK_SECRET", "")

	// Session loader
	v.SetDefault("SESSION_INCLUDE_PROFILE", true)
	v.SetDefault("SESSION_LOGIN_PATH", "/login")
	v.SetDefault("SESSION_PROFILE_CACHE_TTL", "0s")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "fipe-garage")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// FIPE
	cfg.Fipe.BaseURL = strings.TrimRight(v.GetString("FIPE_API_BASE_URL"), "/")
	cfg.Fipe.Token = v.GetString("FIPE_API_TOKEN")
	cfg.Fipe.Timeout = v.GetDuration("FIPE_API_TIMEOUT")
	cfg.Fipe.CacheTTL = v.GetDuration("FIPE_CACHE_TTL")

	// Auth Database
	cfg.AuthDatabase.Host = v.GetString("AUTH_DATABASE_HOST")
	cfg.AuthDatabase.Port = v.GetInt("AUTH_DATABASE_PORT")
	cfg.AuthDatabase.User = v.GetString("AUTH_DATABASE_USER")
	cfg.AuthDatabase.Password = v.GetString("AUTH_DATABASE_PASSWORD")
	cfg.AuthDatabase.DBName = v.GetString("AUTH_DATABASE_DBNAME")
	cfg.AuthDatabase.SSLMode = v.GetString("AUTH_DATABASE_SSLMODE")
	cfg.AuthDatabase.MaxOpenConns = v.GetInt("AUTH_DATABASE_MAX_OPEN_CONNS")
	cfg.AuthDatabase.MaxIdleConns = v.GetInt("AUTH_DATABASE_MAX_IDLE_CONNS")
	cfg.AuthDatabase.ConnMaxLifetime = v.GetDuration("AUTH_DATABASE_CONN_MAX_LIFETIME")
	cfg.AuthDatabase.ConnMaxIdleTime = v.GetDuration("AUTH_DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")
	cfg.JWT.AccessTokenTTL = v.GetDuration("JWT_ACCESS_TOKEN_TTL")

	// Auth events
	cfg.AuthEvents.Backend = strings.ToLower(v.GetString("AUTH_EVENTS_BACKEND"))
	cfg.AuthEvents.Channel = v.GetString("AUTH_EVENTS_CHANNEL")
	cfg.AuthEvents.Topic = v.GetString("AUTH_EVENTS_TOPIC")
	cfg.AuthEvents.WebhookSecret = v.GetString("AUTH_EVENTS_WEBHOOK_SECRET")

	// Session
	cfg.Session.IncludeProfile = v.GetBool("SESSION_INCLUDE_PROFILE")
	cfg.Session.LoginPath = v.GetString("SESSION_LOGIN_PATH")
	cfg.Session.ProfileCacheTTL = v.GetDuration("SESSION_PROFILE_CACHE_TTL")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration shared by every service
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Fipe.BaseURL == "" {
		return fmt.Errorf("FIPE_API_BASE_URL is required")
	}

	switch c.AuthEvents.Backend {
	case "redis", "kafka":
	default:
		return fmt.Errorf("unsupported AUTH_EVENTS_BACKEND: %q", c.AuthEvents.Backend)
	}

	return nil
}

// ValidateJWT validates token verification settings (account-service)
func (c *Config) ValidateJWT() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}
	return nil
}

// ValidateAuthDatabase validates auth database configuration
func (c *Config) ValidateAuthDatabase() error {
	if c.AuthDatabase.Host == "" {
		return fmt.Errorf("AUTH_DATABASE_HOST is required")
	}
	if c.AuthDatabase.DBName == "" {
		return fmt.Errorf("AUTH_DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
