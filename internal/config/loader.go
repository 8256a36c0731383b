package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskpilot.yaml"

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
	setString(&cfg.Server.Port, "TASKPILOT_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKPILOT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKPILOT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKPILOT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKPILOT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKPILOT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TASKPILOT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "TASKPILOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKPILOT_LOG_SERVICE")

	setDuration(&cfg.Poller.Interval, "TASKPILOT_POLL_INTERVAL")
	setString(&cfg.Poller.WorkerID, "TASKPILOT_WORKER_ID")
	setDuration(&cfg.Poller.LockTimeout, "TASKPILOT_LOCK_TIMEOUT")
	setString(&cfg.Poller.WorkspaceRoot, "TASKPILOT_WORKSPACE_ROOT")
	setBool(&cfg.Poller.NotifyOnSuccess, "TASKPILOT_NOTIFY_ON_SUCCESS")

	setInt(&cfg.Queue.Prefetch, "TASKPILOT_QUEUE_PREFETCH")
	setInt(&cfg.Queue.MaxRetries, "TASKPILOT_QUEUE_MAX_RETRIES")

	setInt(&cfg.Pipeline.Attempts, "TASKPILOT_PIPELINE_ATTEMPTS")
	setDuration(&cfg.Pipeline.InitialBackoff, "TASKPILOT_PIPELINE_BACKOFF")
	setString(&cfg.Pipeline.CallbackBaseURL, "TASKPILOT_CALLBACK_BASE_URL")
	setBool(&cfg.Pipeline.MockMode, "TASKPILOT_PIPELINE_MOCK")
	setString(&cfg.Pipeline.ProxyURL, "TASKPILOT_PIPELINE_PROXY")
	setString(&cfg.Pipeline.CIVersion, "TASKPILOT_CI_VERSION")

	setString(&cfg.Executor.HostURL, "TASKPILOT_EXECUTOR_HOST_URL")
	setString(&cfg.Executor.TokenSecretRef, "TASKPILOT_EXECUTOR_TOKEN_REF")
	setString(&cfg.Executor.GroupPath, "TASKPILOT_EXECUTOR_GROUP")

	setStringSlice(&cfg.Runners.Enabled, "TASKPILOT_RUNNERS")
	setInt(&cfg.Git.MaxConcurrent, "TASKPILOT_GIT_MAX_CONCURRENT")
	setInt64(&cfg.Cache.MaxSizeMB, "TASKPILOT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "TASKPILOT_CACHE_TTL")
	setBool(&cfg.Cache.Shared, "TASKPILOT_CACHE_SHARED")
	setString(&cfg.Slack.WebhookURL, "TASKPILOT_SLACK_WEBHOOK")
	setString(&cfg.Discord.WebhookURL, "TASKPILOT_DISCORD_WEBHOOK")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate rejects configurations the services cannot run with.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats url is required")
	}
	if cfg.Poller.Interval <= 0 {
		return errors.New("poller interval must be positive")
	}
	if cfg.Poller.LockTimeout <= 0 {
		return errors.New("poller lock_timeout must be positive")
	}
	if cfg.Queue.Prefetch < 1 {
		return errors.New("queue prefetch must be at least 1")
	}
	if cfg.Queue.MaxRetries < 1 {
		return errors.New("queue max_retries must be at least 1")
	}
	if cfg.Pipeline.Attempts < 1 {
		return errors.New("pipeline attempts must be at least 1")
	}
	if len(cfg.Runners.Enabled) == 0 {
		return errors.New("at least one runner must be enabled")
	}
	for _, r := range cfg.Runners.Enabled {
		if _, err := worker.ParseRunnerType(r); err != nil {
			return fmt.Errorf("runners.enabled: %w", err)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
