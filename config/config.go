package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Database DatabaseConfig `mapstructure:"database"`
	State    StateConfig    `mapstructure:"state"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Target   TargetConfig   `mapstructure:"target"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Server   ServerConfig   `mapstructure:"server"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// StateConfig selects where issue lists and score history are kept.
type StateConfig struct {
	Backend  string `mapstructure:"backend"` // sqlite | redis
	RedisURL string `mapstructure:"redis_url"`
}

type RulesConfig struct {
	Dir string `mapstructure:"dir"`
}

type TargetConfig struct {
	BaseURL      string   `mapstructure:"base_url"`
	ExternalURLs []string `mapstructure:"external_urls"`
	FormURLs     []string `mapstructure:"form_urls"`

	// LatestWordPress is the newest core release known to the operator
	LatestWordPress string `mapstructure:"latest_wordpress"`
}

type ProbeConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	UserAgent          string        `mapstructure:"user_agent"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type InstalledPlugin struct {
	Slug    string `mapstructure:"slug"`
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Active  bool   `mapstructure:"active"`
}

type PluginsConfig struct {
	AdvisoriesFile string            `mapstructure:"advisories_file"`
	Installed      []InstalledPlugin `mapstructure:"installed"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	StateSQLite = "sqlite"
	StateRedis  = "redis"
)

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "wpvulscan.db?_journal=WAL")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("state.backend", StateSQLite)
	v.SetDefault("state.redis_url", "redis://localhost:6379/0")
	v.SetDefault("rules.dir", "configs/rules")
	// keys without a real default are still registered so WPVULSCAN_* reaches them
	v.SetDefault("target.base_url", "")
	v.SetDefault("target.external_urls", []string{})
	v.SetDefault("target.form_urls", []string{})
	v.SetDefault("target.latest_wordpress", "6.5.4")
	v.SetDefault("probe.timeout", "8s")
	v.SetDefault("probe.requests_per_second", 5)
	v.SetDefault("probe.burst", 2)
	v.SetDefault("probe.user_agent", "WP-VulScan/1.0")
	v.SetDefault("probe.insecure_skip_verify", true)
	v.SetDefault("plugins.advisories_file", "")
	v.SetDefault("server.addr", ":8080")
}

// Load reads configuration from v: defaults, optional config file, then
// WPVULSCAN_* environment variables.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("WPVULSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Rules.Dir == "" {
		return errors.New("rules.dir must not be empty")
	}
	switch c.State.Backend {
	case StateSQLite, StateRedis:
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %s", c.Probe.Timeout)
	}
	return nil
}
