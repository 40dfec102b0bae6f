// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CORE_HOST="0.0.0.0"
//	CORE_PORT="8080"
//	CORE_HEALTH_PORT="9090"
//	CORE_READ_TIMEOUT="15s"
//	CORE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	CORE_DB_DRIVER="postgres"  # postgres, sqlite3
//	CORE_DB_DSN="postgres://localhost/corefacility"
//	CORE_DB_MAX_CONNS="10"
//	CORE_REDIS_ADDR="localhost:6379"
//	CORE_ACL_CACHE_TTL="5m"
//
// Entity-layer settings:
//
//	CORE_MANAGE_UNIX_USERS="false"
//	CORE_MANAGE_UNIX_GROUPS="false"
//	CORE_USER_BASEDIR="/home"
//	CORE_AVATAR_ROOT="/var/corefacility/media"
//	CORE_ROUTES_DIR="/var/corefacility/routes"
//	CORE_TOKEN_SWEEP_INTERVAL="10m"
//	CORE_THROTTLE_WINDOW="10m"
//
// Observability settings:
//
//	CORE_LOG_LEVEL="info"  # debug, info, warn, error
//	CORE_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Database: %s\n", cfg.Database.Driver)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/users, pkg/projects: Use the entity-layer toggles
package config
