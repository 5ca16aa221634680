package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "dev-secret"

// Backend names for pluggable stores.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Shutdown  ShutdownConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	ProxyHeader           string
	MetricsEnabled        bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	BufferSize int
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
	ClockSkewSeconds      int
	BcryptCost            int
	RevocationBackend     string
	Diagnostics           bool
}

// RateLimitConfig bounds requests per client on the auth prefix.
type RateLimitConfig struct {
	WindowMs    int
	MaxRequests int
	Backend     string
	KeyPrefix   string
}

// AuditConfig tunes the login history recorder.
type AuditConfig struct {
	QueueSize      int
	WriteTimeoutMs int
}

// ShutdownConfig bounds the graceful drain.
type ShutdownConfig struct {
	DrainTimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "chantiers-api"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", getEnv("PORT", "5000")),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			ProxyHeader:           os.Getenv("HTTP_PROXY_HEADER"),
			MetricsEnabled:        getEnvAsBool("METRICS_ENABLED", true),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			BufferSize: getEnvAsInt("LOG_BUFFER_SIZE", 500),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", DefaultJWTSecret),
			Issuer:                getEnv("AUTH_JWT_ISSUER", "chantiers-api"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ClockSkewSeconds:      getEnvAsInt("AUTH_CLOCK_SKEW_SECONDS", 30),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			RevocationBackend:     strings.ToLower(getEnv("AUTH_REVOCATION_BACKEND", BackendMemory)),
			Diagnostics:           getEnvAsBool("AUTH_DIAGNOSTICS", false),
		},
		RateLimit: RateLimitConfig{
			WindowMs:    getEnvAsInt("RATE_LIMIT_WINDOW_MS", 15*60*1000),
			MaxRequests: getEnvAsInt("RATE_LIMIT_MAX", 100),
			Backend:     strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
			KeyPrefix:   getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:auth"),
		},
		Audit: AuditConfig{
			QueueSize:      getEnvAsInt("AUDIT_QUEUE_SIZE", 256),
			WriteTimeoutMs: getEnvAsInt("AUDIT_WRITE_TIMEOUT_MS", 2000),
		},
		Shutdown: ShutdownConfig{
			DrainTimeoutSeconds: getEnvAsInt("SHUTDOWN_DRAIN_TIMEOUT_SECONDS", 15),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot safely run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == DefaultJWTSecret {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set in production"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must not be empty"))
	}
	for name, backend := range map[string]string{
		"RATE_LIMIT_BACKEND":      c.RateLimit.Backend,
		"AUTH_REVOCATION_BACKEND": c.Auth.RevocationBackend,
	} {
		switch backend {
		case BackendMemory:
		case BackendRedis:
			if c.Redis.Addr == "" {
				errs = append(errs, fmt.Errorf("%s=redis requires REDIS_ADDR", name))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid %s %q", name, backend))
		}
	}
	if c.RateLimit.WindowMs <= 0 || c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_MS and RATE_LIMIT_MAX must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs in production mode.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// ClockSkew returns the expiry grace, capped at one minute.
func (a AuthConfig) ClockSkew() time.Duration {
	switch {
	case a.ClockSkewSeconds <= 0:
		return 0
	case a.ClockSkewSeconds > 60:
		return time.Minute
	default:
		return time.Duration(a.ClockSkewSeconds) * time.Second
	}
}

// DiagnosticsEnabled exposes internal failure reasons to clients outside production only.
func (c *Config) DiagnosticsEnabled() bool {
	return c.Auth.Diagnostics && !c.App.IsProduction()
}

// Window returns the rate limit window.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// WriteTimeout returns the per-entry audit write bound.
func (a AuditConfig) WriteTimeout() time.Duration {
	if a.WriteTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.WriteTimeoutMs) * time.Millisecond
}

// DrainTimeout returns the graceful shutdown bound.
func (s ShutdownConfig) DrainTimeout() time.Duration {
	if s.DrainTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.DrainTimeoutSeconds) * time.Second
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.RateLimit.Backend == BackendRedis || c.Auth.RevocationBackend == BackendRedis
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
