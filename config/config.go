package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/heycarlitos/llm-proxy/utils"
	"github.com/joho/godotenv"
)

// Rate-limit storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ProviderKind identifies which upstream provider serves requests
type ProviderKind string

const (
	ProviderNone       ProviderKind = ""
	ProviderAnthropic  ProviderKind = "anthropic"
	ProviderOpenRouter ProviderKind = "openrouter"
)

// DefaultAllowedOrigins are the browser origins served by the proxy
var DefaultAllowedOrigins = []string{
	"https://contaleacarlitos.vercel.app",
	"https://heycarlitos.app",
	"http://localhost:3000",
}

// Config represents the complete application configuration
type Config struct {
	Environment   string `validate:"required"`
	Server        ServerConfig
	Providers     ProvidersConfig
	RateLimit     RateLimitConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	MaxBodyBytes    int64         `validate:"gt=0"`
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	Anthropic       AnthropicConfig
	OpenRouter      OpenRouterConfig
	UpstreamTimeout time.Duration `validate:"gt=0"`
}

// AnthropicConfig holds Anthropic provider configuration
type AnthropicConfig struct {
	APIKey  string
	BaseURL string `validate:"required,url"`
	Version string `validate:"required"`
}

// OpenRouterConfig holds OpenRouter provider configuration
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string `validate:"required,url"`
	Referer string
	Title   string
}

// RateLimitConfig holds the per-caller quota settings
type RateLimitConfig struct {
	Capacity      int           `validate:"min=1"`
	Window        time.Duration `validate:"gt=0"`
	Backend       string        `validate:"oneof=memory postgres redis"`
	SweepInterval time.Duration `validate:"gt=0"`
}

// DatabaseConfig holds PostgreSQL settings for the postgres rate-limit backend
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL
	MaxOpenConns     int    `validate:"min=1"`
	MaxIdleConns     int    `validate:"min=0"`
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds Redis settings for the redis rate-limit backend
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int `validate:"min=0"`
	KeyPrefix string
}

// CORSConfig holds the browser origin allow-list
type CORSConfig struct {
	AllowedOrigins []string `validate:"min=1,dive,required"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required"`
	LogFormat      string `validate:"oneof=json console"`
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getEnvAsInt("MAX_BODY_BYTES", 1<<20)),
		},
		Providers: ProvidersConfig{
			Anthropic: AnthropicConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Version: getEnv("ANTHROPIC_VERSION", "2023-06-01"),
			},
			OpenRouter: OpenRouterConfig{
				APIKey:  getEnv("OPENROUTER_API_KEY", ""),
				BaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
				Referer: getEnv("OPENROUTER_REFERER", "https://contaleacarlitos.vercel.app"),
				Title:   getEnv("OPENROUTER_TITLE", "Contale a Carlitos"),
			},
			UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Capacity:      getEnvAsInt("RATE_LIMIT_CAPACITY", 20),
			Window:        getEnvAsDuration("RATE_LIMIT_WINDOW", time.Hour),
			Backend:       strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
			SweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 10*time.Minute),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ratelimit:"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigins),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct constraints and backend-specific requirements.
// Missing provider keys are allowed; requests then fail with a configuration error.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		if fields := utils.GetValidationFields(err); len(fields) > 0 {
			return fmt.Errorf("%w: %v", err, fields)
		}
		return err
	}

	switch c.RateLimit.Backend {
	case BackendPostgres:
		if c.Database.ConnectionString == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres rate limit backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis rate limit backend")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Selected returns the provider used for every request. Anthropic always
// wins when its key is present.
func (p *ProvidersConfig) Selected() ProviderKind {
	switch {
	case p.Anthropic.APIKey != "":
		return ProviderAnthropic
	case p.OpenRouter.APIKey != "":
		return ProviderOpenRouter
	default:
		return ProviderNone
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
