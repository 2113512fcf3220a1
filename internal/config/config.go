package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

// Database drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// Config holds the quotagate configuration.
type Config struct {
	HTTP      HTTPConfig                  `yaml:"http"`
	Database  DatabaseConfig              `yaml:"database"`
	Postgres  PostgresConfig              `yaml:"postgres"`
	Auth      AuthConfig                  `yaml:"auth"`
	Storage   StorageConfig               `yaml:"storage"`
	Logging   LoggingConfig               `yaml:"logging"`
	Plans     map[string]map[string]int64 `yaml:"plans"` // tier -> resource -> monthly allowance
	Enforcer  EnforcerConfig              `yaml:"enforcer"`
	Scheduler SchedulerConfig             `yaml:"scheduler"`
	Telemetry TelemetryConfig             `yaml:"telemetry"`
	CORS      CORSConfig                  `yaml:"cors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds shared-state store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ClientName       string   `yaml:"client_name"` // CLIENT SETNAME, default quotagate
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig configures the optional audit mirror. Empty DSN disables it.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EnforcerConfig tunes optimistic retries.
type EnforcerConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	BackoffInitialMs int `yaml:"backoff_initial_ms"`
	BackoffMaxMs     int `yaml:"backoff_max_ms"`
	ClaimTTLMs       int `yaml:"claim_ttl_ms"`
}

// InitialBackoff returns the first retry delay.
func (e EnforcerConfig) InitialBackoff() time.Duration {
	return time.Duration(e.BackoffInitialMs) * time.Millisecond
}

// MaxBackoff returns the retry delay cap.
func (e EnforcerConfig) MaxBackoff() time.Duration {
	return time.Duration(e.BackoffMaxMs) * time.Millisecond
}

// ClaimTTL returns the correlation-id claim lifetime.
func (e EnforcerConfig) ClaimTTL() time.Duration {
	return time.Duration(e.ClaimTTLMs) * time.Millisecond
}

// SchedulerConfig controls background workers.
type SchedulerConfig struct {
	Enabled          *bool `yaml:"enabled"` // default true
	IntervalSec      int   `yaml:"interval_sec"`
	SweepIntervalSec int   `yaml:"sweep_interval_sec"`
}

// IsEnabled reports whether background workers run in this process.
func (s SchedulerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Exporter    string `yaml:"exporter"` // none, stdout, otlp (default: none)
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded first.
func Load(env string) (Config, error) {
	_ = godotenv.Load() // optional

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in data, decodes it and validates the result.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "quotagate:"
	}
	if c.Enforcer.MaxAttempts <= 0 {
		c.Enforcer.MaxAttempts = 5
	}
	if c.Enforcer.BackoffInitialMs <= 0 {
		c.Enforcer.BackoffInitialMs = 2
	}
	if c.Enforcer.BackoffMaxMs <= 0 {
		c.Enforcer.BackoffMaxMs = 50
	}
	if c.Enforcer.ClaimTTLMs <= 0 {
		c.Enforcer.ClaimTTLMs = 5000
	}
	if c.Scheduler.IntervalSec <= 0 {
		c.Scheduler.IntervalSec = 60
	}
	if c.Scheduler.SweepIntervalSec <= 0 {
		c.Scheduler.SweepIntervalSec = 300
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "none"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "quotagate"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be memory, redis or valkey, got %q", c.Database.Driver)
	}
	if len(c.Plans) == 0 {
		return fmt.Errorf("plans: at least one tier is required")
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	if c.Enforcer.BackoffMaxMs < c.Enforcer.BackoffInitialMs {
		return fmt.Errorf("enforcer.backoff_max_ms (%d) must be >= backoff_initial_ms (%d)",
			c.Enforcer.BackoffMaxMs, c.Enforcer.BackoffInitialMs)
	}
	switch c.Telemetry.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("telemetry.exporter must be none, stdout or otlp, got %q", c.Telemetry.Exporter)
	}
	return nil
}

// Catalog builds the plan catalog from the plans section.
func (c *Config) Catalog() (plan.Catalog, error) {
	tiers := make(map[plan.Tier]plan.Allowances, len(c.Plans))
	for tier, resources := range c.Plans {
		a := make(plan.Allowances, len(resources))
		for res, n := range resources {
			rt, err := domain.ParseResourceType(res)
			if err != nil {
				return plan.Catalog{}, fmt.Errorf("plans.%s: %w", tier, err)
			}
			a[rt] = n
		}
		tiers[plan.Tier(tier)] = a
	}
	cat, err := plan.NewCatalog(tiers)
	if err != nil {
		return plan.Catalog{}, fmt.Errorf("plans: %w", err)
	}
	return cat, nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
