package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "BeetleBooks"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultResolverCacheTTL = time.Hour
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	DatabaseURL      string
	RedisURL         string
	TBAddress        string
	TBClusterID      uint64
	AllowAdd         bool
	AllowMigrate     bool
	APITokenHash     string
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
	ResolverCacheTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config
// instance. DATABASE_URL, REDIS_URL and TB_ADDRESS are mandatory outside
// development; in development a missing backend falls back to its in-memory
// stand-in.
func Load() (Config, error) {
	cfg := Config{
		AppName:      getEnv("APP_NAME", defaultAppName),
		AppEnv:       getEnv("APP_ENV", defaultAppEnv),
		Port:         getEnv("PORT", defaultPort),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		TBAddress:    os.Getenv("TB_ADDRESS"),
		APITokenHash: os.Getenv("API_TOKEN_HASH"),
	}

	var err error
	if cfg.AllowAdd, err = boolEnv("ALLOW_ADD", true); err != nil {
		return Config{}, err
	}
	if cfg.AllowMigrate, err = boolEnv("ALLOW_MIGRATE", false); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("TB_CLUSTER_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TB_CLUSTER_ID: %w", err)
		}
		cfg.TBClusterID = id
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ResolverCacheTTL, err = durationEnv("RESOLVER_CACHE_TTL", defaultResolverCacheTTL); err != nil {
		return Config{}, err
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.TBAddress == "" {
			return Config{}, fmt.Errorf("TB_ADDRESS must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the process runs in a development-like environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
