package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/corefacility/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Core entity behaviour
	Core CoreConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds relational and cache backend configuration
type DatabaseConfig struct {
	// Driver is either "postgres" or "sqlite3".
	Driver string
	// DSN is the driver-specific connection string.
	DSN string
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int

	// RedisAddr enables the ACL cache when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// ACLCacheTTL bounds how long resolved access lists stay cached.
	ACLCacheTTL time.Duration
}

// CoreConfig holds entity-layer behaviour toggles
type CoreConfig struct {
	// ManageUnixUsers mirrors user accounts as OS accounts.
	ManageUnixUsers bool
	// ManageUnixGroups mirrors projects as OS groups.
	ManageUnixGroups bool
	// ProjectDirRoot is the root under which project directories are
	// materialised. Empty disables the files backend for projects.
	ProjectDirRoot string
	// UserBaseDir is the root under which user home directories are
	// created; empty disables the files provider.
	UserBaseDir string
	// AvatarRoot is where uploaded pictures land.
	AvatarRoot string
	// RoutesDir is where entry point route files are regenerated.
	RoutesDir string
	// TokenSweepInterval is how often expired credentials are removed.
	TokenSweepInterval time.Duration
	// ThrottleWindow is the failed-authorization counting window.
	ThrottleWindow time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Core:          loadCoreConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CORE_HOST", "0.0.0.0"),
		Port:            getEnv("CORE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CORE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CORE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CORE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CORE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CORE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads backend configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:        getEnv("CORE_DB_DRIVER", "sqlite3"),
		DSN:           getEnv("CORE_DB_DSN", "file:corefacility.db?_fk=1"),
		MaxOpenConns:  getEnvInt("CORE_DB_MAX_CONNS", 10),
		RedisAddr:     getEnv("CORE_REDIS_ADDR", ""),
		RedisPassword: getEnv("CORE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("CORE_REDIS_DB", 0),
		ACLCacheTTL:   getEnvDuration("CORE_ACL_CACHE_TTL", 5*time.Minute),
	}
}

// loadCoreConfig loads entity-layer configuration from environment
func loadCoreConfig() CoreConfig {
	return CoreConfig{
		ManageUnixUsers:    getEnvBool("CORE_MANAGE_UNIX_USERS", false),
		ManageUnixGroups:   getEnvBool("CORE_MANAGE_UNIX_GROUPS", false),
		UserBaseDir:        getEnv("CORE_USER_BASEDIR", ""),
		ProjectDirRoot:     getEnv("CORE_PROJECT_DIRROOT", ""),
		AvatarRoot:         getEnv("CORE_AVATAR_ROOT", ""),
		RoutesDir:          getEnv("CORE_ROUTES_DIR", ""),
		TokenSweepInterval: getEnvDuration("CORE_TOKEN_SWEEP_INTERVAL", 10*time.Minute),
		ThrottleWindow:     getEnvDuration("CORE_THROTTLE_WINDOW", 10*time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("CORE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("CORE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	// The POSIX providers only make sense on a writable base dir
	if c.Core.ManageUnixUsers && c.Core.UserBaseDir == "" {
		return fmt.Errorf("CORE_USER_BASEDIR is required when unix users are managed")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
