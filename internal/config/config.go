// Package config loads beacon's settings from defaults, an optional YAML file,
// BEACON_* environment variables and command-line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Beacon/server/internal/httpapi"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

const EnvPrefix = "BEACON"

type Config struct {
	Env           string                    `mapstructure:"env" yaml:"env"`
	HTTP          HTTPConfig                `mapstructure:"http" yaml:"http"`
	GRPC          GRPCConfig                `mapstructure:"grpc" yaml:"grpc"`
	DB            DBConfig                  `mapstructure:"db" yaml:"db"`
	Retention     RetentionConfig           `mapstructure:"retention" yaml:"retention"`
	Monitor       MonitorConfig             `mapstructure:"monitor" yaml:"monitor"`
	Log           observability.LogConfig   `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
	Tracing       observability.TraceConfig `mapstructure:"tracing" yaml:"tracing"`
	RateLimit     httpapi.RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	KnownServices []string                  `mapstructure:"known_services" yaml:"known_services"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// GRPCConfig holds the health endpoint address. Empty disables it.
type GRPCConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" | "memory"
	Path   string `mapstructure:"path" yaml:"path"`
}

type RetentionConfig struct {
	Days               int `mapstructure:"days" yaml:"days"` // 0 = keep forever
	PruneIntervalHours int `mapstructure:"prune_interval_hours" yaml:"prune_interval_hours"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SetDefaults registers every key so env lookups and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", "")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "./data/beacon.db")
	v.SetDefault("retention.days", 0)
	v.SetDefault("retention.prune_interval_hours", 6)
	v.SetDefault("monitor.interval", 15*time.Second)

	logCfg := observability.DefaultLogConfig()
	v.SetDefault("log.level", logCfg.Level)
	v.SetDefault("log.format", logCfg.Format)
	v.SetDefault("log.development", logCfg.Development)

	v.SetDefault("metrics.enabled", true)

	traceCfg := observability.DefaultTraceConfig()
	v.SetDefault("tracing.enabled", traceCfg.Enabled)
	v.SetDefault("tracing.service_name", traceCfg.ServiceName)
	v.SetDefault("tracing.environment", traceCfg.Environment)

	rl := httpapi.DefaultRateLimitConfig()
	v.SetDefault("rate_limit.enabled", rl.Enabled)
	v.SetDefault("rate_limit.requests_per_second", rl.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", rl.Burst)
	v.SetDefault("rate_limit.cleanup_interval", rl.CleanupInterval)

	v.SetDefault("known_services", []string{})
}

// New builds a viper instance reading configFile (if non-empty), the BEACON_*
// environment and flags. Flag names must match config keys, e.g. "http.addr".
func New(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	// BEACON_DB_PATH overrides db.path.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	return v, nil
}

// Load unmarshals and validates v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.KnownServices = splitList(cfg.KnownServices)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Env != "dev" && c.Env != "prod" {
		errs = append(errs, fmt.Errorf("env must be dev or prod, got %q", c.Env))
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch c.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(c.DB.Path) == "" {
			errs = append(errs, errors.New("db.path is required for the sqlite driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("db.driver must be sqlite or memory, got %q", c.DB.Driver))
	}
	if c.Retention.Days < 0 {
		errs = append(errs, errors.New("retention.days must not be negative"))
	}
	if c.Retention.Days > 0 && c.Retention.PruneIntervalHours <= 0 {
		errs = append(errs, errors.New("retention.prune_interval_hours must be positive when retention is enabled"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("rate_limit.requests_per_second must be positive"))
		}
		if c.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.burst must be positive"))
		}
	}

	return errors.Join(errs...)
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// splitList flattens comma-separated entries, as env vars deliver them.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
