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
const DefaultConfigFile = "agentdeck.yaml"

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
	setString(&cfg.Server.Port, "AGENTDECK_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTDECK_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimitRPS, "AGENTDECK_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "AGENTDECK_RATE_LIMIT_BURST")

	setString(&cfg.Remote.BaseURL, "AGENTDECK_REMOTE_BASE_URL")
	setString(&cfg.Remote.OrgID, "AGENTDECK_ORG_ID")
	setString(&cfg.Remote.APIToken, "AGENTDECK_API_TOKEN")
	setDuration(&cfg.Remote.Timeout, "AGENTDECK_REMOTE_TIMEOUT")
	setInt(&cfg.Remote.MaxRetries, "AGENTDECK_REMOTE_MAX_RETRIES")
	setDuration(&cfg.Remote.RetryDelay, "AGENTDECK_REMOTE_RETRY_DELAY")
	setFloat64(&cfg.Remote.RetryBackoffFactor, "AGENTDECK_REMOTE_BACKOFF_FACTOR")
	setDuration(&cfg.Remote.PollInterval, "AGENTDECK_POLL_INTERVAL")
	setDuration(&cfg.Remote.PollTimeout, "AGENTDECK_POLL_TIMEOUT")
	setInt(&cfg.Remote.RateLimitRequests, "AGENTDECK_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.Remote.RateLimitPeriod, "AGENTDECK_RATE_LIMIT_PERIOD")
	setString(&cfg.Remote.CacheBackend, "AGENTDECK_CACHE_BACKEND")
	setInt(&cfg.Remote.CacheMaxEntries, "AGENTDECK_CACHE_MAX_ENTRIES")
	setDuration(&cfg.Remote.CacheTTL, "AGENTDECK_CACHE_TTL")

	setString(&cfg.Store.Backend, "AGENTDECK_STORE_BACKEND")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTDECK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTDECK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTDECK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTDECK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTDECK_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "AGENTDECK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTDECK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTDECK_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "AGENTDECK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTDECK_BREAKER_TIMEOUT")

	setBool(&cfg.Telemetry.Enabled, "AGENTDECK_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "AGENTDECK_TELEMETRY_ENDPOINT")

	setString(&cfg.Validation.CloneCommand, "AGENTDECK_VALIDATE_CLONE_COMMAND")
	setString(&cfg.Validation.SetupCommand, "AGENTDECK_VALIDATE_SETUP_COMMAND")
	setString(&cfg.Validation.DeployCommand, "AGENTDECK_VALIDATE_DEPLOY_COMMAND")
	setString(&cfg.Validation.AnalyzeCommand, "AGENTDECK_VALIDATE_ANALYZE_COMMAND")
	setString(&cfg.Validation.TestCommand, "AGENTDECK_VALIDATE_TEST_COMMAND")
	setDuration(&cfg.Validation.StageTimeout, "AGENTDECK_VALIDATE_STAGE_TIMEOUT")
	setString(&cfg.Validation.WorkDir, "AGENTDECK_VALIDATE_WORK_DIR")
	setInt(&cfg.Validation.MaxConcurrent, "AGENTDECK_VALIDATE_MAX_CONCURRENT")

	setString(&cfg.Agent.PlanningStatement, "AGENTDECK_PLANNING_STATEMENT")
	setInt(&cfg.Agent.MaxPromptLen, "AGENTDECK_MAX_PROMPT_LEN")

	setBool(&cfg.MCP.Enabled, "AGENTDECK_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "AGENTDECK_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "AGENTDECK_MCP_API_KEY")
}

// validate checks that required fields are set and knobs are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required")
	}
	if cfg.Remote.MaxRetries < 0 {
		return errors.New("remote.max_retries must be >= 0")
	}
	if cfg.Remote.RetryBackoffFactor < 1 {
		return errors.New("remote.retry_backoff_factor must be >= 1")
	}
	if cfg.Remote.RateLimitRequests < 1 {
		return errors.New("remote.rate_limit_requests must be >= 1")
	}
	if cfg.Remote.RateLimitPeriod <= 0 {
		return errors.New("remote.rate_limit_period must be > 0")
	}
	if cfg.Remote.PollInterval <= 0 {
		return errors.New("remote.poll_interval must be > 0")
	}
	switch cfg.Remote.CacheBackend {
	case "memory", "ristretto":
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required when remote.cache_backend is nats")
		}
	default:
		return fmt.Errorf("remote.cache_backend must be memory, ristretto or nats, got %q", cfg.Remote.CacheBackend)
	}
	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required when store.backend is postgres")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.backend must be memory or postgres, got %q", cfg.Store.Backend)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Agent.MaxPromptLen < 1 {
		return errors.New("agent.max_prompt_len must be >= 1")
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required when mcp.enabled is true")
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
