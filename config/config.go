// Package config reads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config holds the process settings read from the environment.
type Config struct {
	Port       int
	HealthPort int

	StorageBackend string
	StorageDir     string
	StorageKey     string

	RedisAddr      string
	RedisNamespace string

	CatalogPath string

	LogLevel       string
	OTLPEndpoint   string
	HealthInterval time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	// A missing .env is fine; real deployments set the variables directly.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only. Malformed numbers and durations are errors.
func FromEnv() (Config, error) {
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	healthPort, err := getEnvInt("HEALTH_PORT", 7070)
	if err != nil {
		return Config{}, err
	}
	interval, err := getEnvDuration("HEALTH_INTERVAL", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:           port,
		HealthPort:     healthPort,
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendFile)),
		StorageDir:     getEnv("STORAGE_DIR", ".cartdata"),
		StorageKey:     getEnv("STORAGE_KEY", "cart"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisNamespace: getEnv("REDIS_NAMESPACE", "storefront"),
		CatalogPath:    os.Getenv("CATALOG_PATH"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HealthInterval: interval,
	}

	// Only append the default port when none is given.
	if !strings.HasPrefix(cfg.RedisAddr, "redis://") && !strings.HasPrefix(cfg.RedisAddr, "rediss://") &&
		!strings.Contains(cfg.RedisAddr, ":") {
		cfg.RedisAddr += ":6379"
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return Config{}, errors.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.HealthInterval <= 0 {
		return Config{}, errors.Errorf("HEALTH_INTERVAL must be positive, got %v", cfg.HealthInterval)
	}
	return cfg, nil
}

// TracingEnabled reports whether an OTLP endpoint is configured.
func (c Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return d, nil
}
