// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Defaults run the server entirely in memory for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendMariaDB = "mariadb"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and redirects.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Storage selects where the audit log and notes are persisted.
	Storage StorageConfig

	// Database holds MariaDB connection settings (mariadb backend only).
	Database DatabaseConfig

	// Redis holds Redis connection settings (redis backend only).
	Redis RedisConfig

	// Audit holds audit-trail behaviour settings.
	Audit AuditConfig

	// HTTP holds settings of the echo server's middleware stack.
	HTTP HTTPConfig
}

// HTTPConfig holds request-handling settings.
type HTTPConfig struct {
	// CORSOrigins may call the JSON API cross-origin (default: BaseURL).
	CORSOrigins []string

	// TrustedProxies are the CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	// RateLimit caps JSON API requests per client IP per RateWindow.
	// Zero disables the limiter.
	RateLimit  int
	RateWindow time.Duration
}

// StorageConfig picks the key-value backend.
type StorageConfig struct {
	// Backend is one of "memory", "redis" or "mariadb" (default: "memory").
	Backend string
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsPath optionally overrides the embedded kv_store migrations
	// with a directory on disk.
	MigrationsPath string
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() so special characters in
// passwords survive.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// KeyPrefix namespaces every key written by the store (default: "beacon:").
	KeyPrefix string
}

// AuditConfig holds audit-trail settings.
type AuditConfig struct {
	// DefaultUser is the attribution written when no identity is supplied.
	DefaultUser string

	// CatalogPath optionally points at a YAML file replacing the embedded
	// field catalog. Empty means use the embedded catalog.
	CatalogPath string

	// MaxDrawerSessions bounds how many browser sessions keep drawer state.
	MaxDrawerSessions int
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if a value is present but unusable.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		},

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "beacon"),
			Password:        getEnv("DB_PASSWORD", "beacon"),
			Name:            getEnv("DB_NAME", "beacon"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", ""),
		},

		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379"),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "beacon:"),
		},

		Audit: AuditConfig{
			DefaultUser:       getEnv("AUDIT_DEFAULT_USER", "localUser"),
			CatalogPath:       getEnv("AUDIT_CATALOG_PATH", ""),
			MaxDrawerSessions: getEnvInt("AUDIT_MAX_DRAWER_SESSIONS", 1024),
		},
	}

	cfg.HTTP = HTTPConfig{
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{cfg.BaseURL}),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
		}),
		RateLimit:  getEnvInt("API_RATE_LIMIT", 600),
		RateWindow: getEnvDuration("API_RATE_WINDOW", time.Minute),
	}

	switch cfg.Storage.Backend {
	case BackendMemory, BackendRedis, BackendMariaDB:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be one of memory, redis, mariadb (got %q)", cfg.Storage.Backend)
	}

	if strings.TrimSpace(cfg.Audit.DefaultUser) == "" {
		return nil, fmt.Errorf("AUDIT_DEFAULT_USER must not be blank")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping blank items.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "5m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
