package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/fedsync/internal/desired"
	"github.com/dokzlo13/fedsync/internal/secret"
)

// Config represents the application configuration
type Config struct {
	ND              NDConfig          `yaml:"nd"`
	Members         []desired.Entry   `yaml:"members"`      // Inline desired members
	MembersFile     string            `yaml:"members_file"` // YAML or Lua file with desired members
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Daemon          DaemonConfig      `yaml:"daemon"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Lock            LockConfig        `yaml:"lock"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// NDConfig contains management API connection settings
type NDConfig struct {
	Host         string       `yaml:"host"`
	Username     string       `yaml:"username"`
	Password     secret.Value `yaml:"password"`
	LoginDomain  string       `yaml:"login_domain"`
	Timeout      Duration     `yaml:"timeout"` // HTTP timeout for API requests
	Insecure     bool         `yaml:"insecure"`
	RateLimitRPS float64      `yaml:"rate_limit_rps"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"` // Empty disables the ledger
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	Format string `yaml:"format"` // console or json
}

// DaemonConfig contains settings for the periodic reconcile loop
type DaemonConfig struct {
	Interval Duration `yaml:"interval"`
	MinGap   Duration `yaml:"min_gap"` // Shortest time between two runs, including triggered ones
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LockConfig contains single-writer lock settings. An empty address
// disables locking.
type LockConfig struct {
	RedisAddr     string       `yaml:"redis_addr"`
	RedisPassword secret.Value `yaml:"redis_password"`
	RedisDB       int          `yaml:"redis_db"`
	Key           string       `yaml:"key"`
	TTL           Duration     `yaml:"ttl"`
}

// Enabled reports whether a lock backend is configured.
func (c LockConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file. An empty path yields the
// defaults, so the tool can run from flags and environment alone.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return Parse(data)
}

// Parse parses configuration bytes and fills in defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Environment fallbacks for the connection, so secrets can stay out of files
	if cfg.ND.Host == "" {
		cfg.ND.Host = os.Getenv("ND_HOST")
	}
	if cfg.ND.Username == "" {
		cfg.ND.Username = os.Getenv("ND_USERNAME")
	}
	if cfg.ND.Password.IsZero() {
		cfg.ND.Password = secret.Value(os.Getenv("ND_PASSWORD"))
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	// ND defaults
	if cfg.ND.Username == "" {
		cfg.ND.Username = "admin"
	}
	if cfg.ND.LoginDomain == "" {
		cfg.ND.LoginDomain = "DefaultAuth"
	}
	if cfg.ND.Timeout == 0 {
		cfg.ND.Timeout = Duration(30 * time.Second)
	}
	if cfg.ND.RateLimitRPS == 0 {
		cfg.ND.RateLimitRPS = 10.0 // 10 requests per second
	}

	// Daemon defaults
	if cfg.Daemon.Interval == 0 {
		cfg.Daemon.Interval = Duration(5 * time.Minute)
	}
	if cfg.Daemon.MinGap == 0 {
		cfg.Daemon.MinGap = Duration(10 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// Lock defaults
	if cfg.Lock.Key == "" {
		cfg.Lock.Key = "fedsync:lock"
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = Duration(2 * time.Minute)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// Validate checks settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.ND.Host == "" {
		errs = append(errs, errors.New("nd.host is required"))
	}
	if c.ND.Password.IsZero() {
		errs = append(errs, errors.New("nd.password is required"))
	}
	if len(c.Members) > 0 && c.MembersFile != "" {
		errs = append(errs, errors.New("members and members_file are mutually exclusive"))
	}
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"nd.timeout", c.ND.Timeout},
		{"daemon.interval", c.Daemon.Interval},
		{"daemon.min_gap", c.Daemon.MinGap},
		{"ledger.cleanup_interval", c.Ledger.CleanupInterval},
		{"lock.ttl", c.Lock.TTL},
		{"shutdown_timeout", c.ShutdownTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value.Duration()))
		}
	}
	if c.Ledger.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("ledger.retention_days must not be negative, got %d", c.Ledger.RetentionDays))
	}
	if c.ND.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("nd.rate_limit_rps must not be negative, got %g", c.ND.RateLimitRPS))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
