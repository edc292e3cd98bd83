package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Router        RouterConfig
	Session       SessionConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds the optional PostgreSQL connection used for route auditing.
// An empty ConnectionString disables persistence.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds AI vendor configurations
type ProvidersConfig struct {
	OpenAI   VendorConfig
	Gemini   VendorConfig
	DeepSeek VendorConfig
}

// VendorConfig holds credentials and transport settings for a single vendor.
// An empty APIKey leaves the adapter registered but failing fast.
type VendorConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// RouterConfig holds persona routing configuration
type RouterConfig struct {
	PersonasFile   string // YAML persona table; empty uses the built-in personas
	DefaultPersona string
}

// SessionConfig holds per-user session store configuration
type SessionConfig struct {
	TTL             time.Duration
	MaxUsers        int
	MaxHistory      int
	CleanupInterval time.Duration
}

// AuditConfig holds route audit worker configuration
type AuditConfig struct {
	BufferSize  int
	Workers     int
	StopTimeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
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
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Providers: ProvidersConfig{
			OpenAI: VendorConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 2*time.Minute),
			},
			Gemini: VendorConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 2*time.Minute),
			},
			DeepSeek: VendorConfig{
				APIKey:  getEnv("DEEPSEEK_API_KEY", ""),
				BaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
				Timeout: getEnvAsDuration("DEEPSEEK_TIMEOUT", 2*time.Minute),
			},
		},
		Router: RouterConfig{
			PersonasFile:   getEnv("PERSONAS_FILE", ""),
			DefaultPersona: strings.ToUpper(getEnv("DEFAULT_PERSONA", "ALEX")),
		},
		Session: SessionConfig{
			TTL:             getEnvAsDuration("SESSION_TTL", 30*time.Minute),
			MaxUsers:        getEnvAsInt("SESSION_MAX_USERS", 10000),
			MaxHistory:      getEnvAsInt("SESSION_MAX_HISTORY", 20),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			Workers:     getEnvAsInt("AUDIT_WORKERS", 2),
			StopTimeout: getEnvAsDuration("AUDIT_STOP_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	if c.Router.DefaultPersona == "" {
		return fmt.Errorf("default persona is required")
	}

	// Provider validation (at least one vendor API key required in production)
	if c.IsProduction() && !c.Providers.AnyConfigured() {
		return fmt.Errorf("at least one AI provider must be configured in production")
	}

	if c.Session.MaxHistory < 0 {
		return fmt.Errorf("session max history cannot be negative")
	}
	if c.Session.MaxUsers < 0 {
		return fmt.Errorf("session max users cannot be negative")
	}

	if c.Database.Enabled() {
		if c.Audit.Workers < 1 {
			return fmt.Errorf("audit workers must be at least 1 when DATABASE_URL is set")
		}
		if c.Audit.BufferSize < 1 {
			return fmt.Errorf("audit buffer size must be at least 1 when DATABASE_URL is set")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "console", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.Observability.LogFormat)
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

// AnyConfigured reports whether at least one vendor has a credential
func (p *ProvidersConfig) AnyConfigured() bool {
	return p.OpenAI.APIKey != "" || p.Gemini.APIKey != "" || p.DeepSeek.APIKey != ""
}

// Enabled reports whether route auditing to Postgres is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != ""
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
