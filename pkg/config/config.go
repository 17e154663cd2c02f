package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Inbox         InboxConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
	SessionTTL         time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// ImportConfig tunes extraction and duplicate detection.
type ImportConfig struct {
	DefaultCurrency    string
	DateToleranceDays  int
	DuplicateThreshold float64
	Workers            int
	SilentErrors       bool
}

// InboxConfig drives the scheduled folder sweep.
type InboxConfig struct {
	Enabled   bool
	Dir       string
	Schedule  string
	AccountID string
	Preset    string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
	ServiceName    string
}

type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 10<<20)),
			SessionTTL:         getEnvAsDuration("SERVER_SESSION_TTL", 30*time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "statement-import"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
		},
		Import: ImportConfig{
			DefaultCurrency:    strings.ToUpper(getEnv("IMPORT_DEFAULT_CURRENCY", "EUR")),
			DateToleranceDays:  getEnvAsInt("IMPORT_DATE_TOLERANCE_DAYS", 3),
			DuplicateThreshold: getEnvAsFloat("IMPORT_DUPLICATE_THRESHOLD", 0.75),
			Workers:            getEnvAsInt("IMPORT_WORKERS", 0),
			SilentErrors:       getEnvAsBool("IMPORT_SILENT_ERRORS", false),
		},
		Inbox: InboxConfig{
			Enabled:   getEnvAsBool("INBOX_ENABLED", false),
			Dir:       getEnv("INBOX_DIR", "./inbox"),
			Schedule:  getEnv("INBOX_SCHEDULE", "*/15 * * * *"),
			AccountID: getEnv("INBOX_ACCOUNT_ID", ""),
			Preset:    getEnv("INBOX_PRESET", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "statement-import"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Import.DuplicateThreshold <= 0 || c.Import.DuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("IMPORT_DUPLICATE_THRESHOLD must be in (0, 1], got %v", c.Import.DuplicateThreshold))
	}
	if c.Import.DateToleranceDays < 0 {
		errs = append(errs, fmt.Errorf("IMPORT_DATE_TOLERANCE_DAYS must not be negative, got %d", c.Import.DateToleranceDays))
	}
	if len(c.Import.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf("IMPORT_DEFAULT_CURRENCY must be an ISO 4217 code, got %q", c.Import.DefaultCurrency))
	}
	if c.Inbox.Enabled && c.Inbox.AccountID == "" {
		errs = append(errs, errors.New("INBOX_ACCOUNT_ID is required when INBOX_ENABLED is set"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("SERVER_MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.MaxConns,
	)
}

// Addr returns the HTTP listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level name to a slog level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
