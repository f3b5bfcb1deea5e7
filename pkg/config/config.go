package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Storage       StorageConfig
	Snapshot      SnapshotConfig
	Pricing       PricingConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
}

type DatabaseConfig struct {
	Driver         string // postgres or memory
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxConns       int
	MinConns       int
	MigrateOnStart bool
}

type ImportConfig struct {
	MaxUploadBytes int64
	BatchSize      int
	NumberMode     string // comma or detect-dot
}

type StorageConfig struct {
	Path string
}

type SnapshotConfig struct {
	Enabled    bool
	Spec       string
	MaxRetries int
}

type PricingConfig struct {
	UCOValue  float64
	FilmValue float64
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

type LogConfig struct {
	Format string // json or text
	Level  string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads configuration from environment variables, after loading a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 100),
			CORSOrigins:        getEnvAsList("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DATABASE_DRIVER", DriverPostgres),
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnvAsInt("POSTGRES_PORT", 5432),
			User:           getEnv("POSTGRES_USER", "postgres"),
			Password:       getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:       getEnv("POSTGRES_DB", "cbhpm"),
			SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:       getEnvAsInt("POSTGRES_MAX_CONNS", 10),
			MinConns:       getEnvAsInt("POSTGRES_MIN_CONNS", 1),
			MigrateOnStart: getEnvAsBool("POSTGRES_MIGRATE", true),
		},
		Import: ImportConfig{
			MaxUploadBytes: int64(getEnvAsInt("IMPORT_MAX_UPLOAD_MB", 64)) << 20,
			BatchSize:      getEnvAsInt("IMPORT_BATCH_SIZE", 500),
			NumberMode:     getEnv("IMPORT_NUMBER_MODE", "comma"),
		},
		Storage: StorageConfig{
			Path: getEnv("STORAGE_LOCAL_PATH", "./data"),
		},
		Snapshot: SnapshotConfig{
			Enabled:    getEnvAsBool("SNAPSHOT_ENABLED", true),
			Spec:       getEnv("SNAPSHOT_CRON", "0 3 * * *"),
			MaxRetries: getEnvAsInt("SNAPSHOT_MAX_RETRIES", 5),
		},
		Pricing: PricingConfig{
			UCOValue:  getEnvAsFloat("UCO_VALOR", 1.00),
			FilmValue: getEnvAsFloat("FILME_VALOR", 21.70),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Log: LogConfig{
			Format: getEnv("LOG_FORMAT", "json"),
			Level:  getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverMemory {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver))
	}
	if c.Import.BatchSize <= 0 {
		errs = append(errs, errors.New("IMPORT_BATCH_SIZE must be positive"))
	}
	if c.Snapshot.MaxRetries < 0 {
		errs = append(errs, errors.New("SNAPSHOT_MAX_RETRIES must not be negative"))
	}
	if c.Pricing.UCOValue < 0 || c.Pricing.FilmValue < 0 {
		errs = append(errs, errors.New("UCO_VALOR and FILME_VALOR must not be negative"))
	}
	return errors.Join(errs...)
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns host:port for the HTTP listener
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

// getEnvAsFloat accepts both "21.70" and "21,70".
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.ReplaceAll(os.Getenv(key), ",", ".")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
