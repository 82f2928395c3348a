package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "pagebase.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PAGEBASE_PORT")
	setString(&cfg.Server.CORSOrigin, "PAGEBASE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PAGEBASE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PAGEBASE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PAGEBASE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PAGEBASE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PAGEBASE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt64(&cfg.Cache.MaxSizeMB, "PAGEBASE_CACHE_SIZE_MB")
	setDuration(&cfg.Resolver.TTL, "PAGEBASE_RESOLVER_TTL")
	setDuration(&cfg.Resolver.DirectoryTimeout, "PAGEBASE_RESOLVER_DIRECTORY_TIMEOUT")
	setInt(&cfg.Rate.UsageBuffer, "PAGEBASE_RATE_USAGE_BUFFER")
	setDuration(&cfg.Rate.CleanupInterval, "PAGEBASE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "PAGEBASE_RATE_MAX_IDLE_TIME")
	setInt(&cfg.Breaker.MaxFailures, "PAGEBASE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PAGEBASE_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "PAGEBASE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PAGEBASE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "PAGEBASE_LOG_ASYNC")
	setBool(&cfg.Telemetry.Enabled, "PAGEBASE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "PAGEBASE_TELEMETRY_ENDPOINT")
	setString(&cfg.Provision.Secret, "PAGEBASE_PROVISIONING_SECRET")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Resolver.TTL <= 0 {
		return errors.New("resolver.ttl must be positive")
	}
	if cfg.Resolver.DirectoryTimeout <= 0 {
		return errors.New("resolver.directory_timeout must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
