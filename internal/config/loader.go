package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "neuronfeed.yaml"

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

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses server command-line flags.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("neuronfeed", flag.ContinueOnError)

	var (
		configPath, port, logLevel, dsn, natsURL string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		}
	})
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags applied last. It returns the
// config and the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator flags
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
	setString(&cfg.Server.Port, "NEURONFEED_PORT")
	setString(&cfg.Server.CORSOrigin, "NEURONFEED_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "NEURONFEED_REQUEST_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "NEURONFEED_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "NEURONFEED_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "NEURONFEED_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "NEURONFEED_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "NEURONFEED_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "NEURONFEED_NATS_STREAM")

	setString(&cfg.Logging.Level, "NEURONFEED_LOG_LEVEL")
	setString(&cfg.Logging.Service, "NEURONFEED_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "NEURONFEED_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "NEURONFEED_LOG_ASYNC_BUFFER")
	setInt(&cfg.Logging.AsyncWorkers, "NEURONFEED_LOG_ASYNC_WORKERS")

	setDuration(&cfg.Stream.Heartbeat, "NEURONFEED_STREAM_HEARTBEAT")
	setDuration(&cfg.Stream.StatusPollInterval, "NEURONFEED_STATUS_POLL_INTERVAL")
	setDuration(&cfg.Stream.WriteTimeout, "NEURONFEED_STREAM_WRITE_TIMEOUT")

	setInt64(&cfg.Cache.L1MaxSizeMB, "NEURONFEED_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "NEURONFEED_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.OverviewTTL, "NEURONFEED_CACHE_OVERVIEW_TTL")

	setInt(&cfg.Breaker.MaxFailures, "NEURONFEED_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "NEURONFEED_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "NEURONFEED_RATE_RPS")
	setInt(&cfg.Rate.Burst, "NEURONFEED_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "NEURONFEED_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "NEURONFEED_RATE_MAX_IDLE_TIME")

	setString(&cfg.Control.KeyHash, "NEURONFEED_CONTROL_KEY_HASH")
	setInt(&cfg.Control.BcryptCost, "NEURONFEED_CONTROL_BCRYPT_COST")

	setBool(&cfg.Telemetry.Enabled, "NEURONFEED_OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "NEURONFEED_OTEL_INSECURE")
	setDuration(&cfg.Telemetry.MetricInterval, "NEURONFEED_OTEL_METRIC_INTERVAL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.NATS.Stream == "" {
		return errors.New("nats.stream is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Stream.StatusPollInterval <= 0 {
		return errors.New("stream.status_poll_interval must be > 0")
	}
	if cfg.Stream.Heartbeat <= 0 {
		return errors.New("stream.heartbeat must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Control.KeyHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.Control.KeyHash)); err != nil {
			return errors.New("control.key_hash is not a bcrypt hash")
		}
	}
	if cfg.Control.BcryptCost < bcrypt.MinCost || cfg.Control.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("control.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
