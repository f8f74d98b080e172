package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deskforge/deskforge/pkg/cache"
	"github.com/deskforge/deskforge/pkg/observability"
)

// Cache backend selection values for DESKFORGE_CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Audit sink selection values for DESKFORGE_AUDIT_SINK.
const (
	AuditSinkDatabase = "database"
	AuditSinkNone     = "none"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Cache configuration
	Cache CacheConfig

	// Audit configuration
	Audit AuditConfig

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

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// CacheConfig holds resolution cache configuration
type CacheConfig struct {
	// Backend is one of memory, redis, or none
	Backend string

	// Memory backend
	MemorySize int

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL ceilings per entry kind
	TTL cache.TTLConfig
}

// AuditConfig holds audit sink configuration
type AuditConfig struct {
	// Sink is one of database or none
	Sink string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Audit:         loadAuditConfig(),
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
		Host:            getEnv("DESKFORGE_HOST", "0.0.0.0"),
		Port:            getEnv("DESKFORGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DESKFORGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DESKFORGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DESKFORGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DESKFORGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DESKFORGE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("DESKFORGE_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("DESKFORGE_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("DESKFORGE_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("DESKFORGE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadCacheConfig loads resolution cache configuration from environment
func loadCacheConfig() CacheConfig {
	ttl := cache.DefaultTTLConfig()
	if d := getEnvDuration("DESKFORGE_CACHE_IDENTITY_TTL", 0); d > 0 {
		ttl.Identity = d
	}
	if d := getEnvDuration("DESKFORGE_CACHE_SCOPE_TTL", 0); d > 0 {
		ttl.Scope = d
	}
	if d := getEnvDuration("DESKFORGE_CACHE_TEAM_MEMBERS_TTL", 0); d > 0 {
		ttl.TeamMembers = d
	}

	return CacheConfig{
		Backend:       getEnv("DESKFORGE_CACHE_BACKEND", CacheBackendMemory),
		MemorySize:    getEnvInt("DESKFORGE_CACHE_MEMORY_SIZE", cache.DefaultMemorySize),
		RedisAddr:     getEnv("DESKFORGE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("DESKFORGE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("DESKFORGE_REDIS_DB", 0),
		TTL:           ttl,
	}
}

// loadAuditConfig loads audit sink configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Sink: getEnv("DESKFORGE_AUDIT_SINK", AuditSinkDatabase),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       ParseLogLevel(getEnv("DESKFORGE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("DESKFORGE_METRICS_ENABLED", true),
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
		if c.Cache.MemorySize <= 0 {
			return fmt.Errorf("memory cache size must be positive")
		}
	case CacheBackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis cache backend")
		}
	case CacheBackendNone:
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or none)", c.Cache.Backend)
	}

	if c.Cache.TTL.Identity <= 0 || c.Cache.TTL.Scope <= 0 || c.Cache.TTL.TeamMembers <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	switch c.Audit.Sink {
	case AuditSinkDatabase, AuditSinkNone:
	default:
		return fmt.Errorf("invalid audit sink: %s (must be database or none)", c.Audit.Sink)
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
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
