// Package config loads the exporter's nested, typed configuration using
// viper: environment variables, an optional YAML file, and documented
// defaults, validated against the bounds the engine depends on.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// Config is the root configuration record consumed by the engine.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Intervals  IntervalsConfig  `mapstructure:"intervals"`
	Collectors CollectorsConfig `mapstructure:"collectors"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

// APIConfig governs the upstream façade.
type APIConfig struct {
	Key                string        `mapstructure:"key"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	ConcurrencyLimit   int           `mapstructure:"concurrency_limit"`
	BatchSize          int           `mapstructure:"batch_size"`
	BatchDelay         time.Duration `mapstructure:"batch_delay"`
	RateLimitRetryWait time.Duration `mapstructure:"rate_limit_retry_wait"`
}

// IntervalsConfig governs the three scheduler tier periods.
type IntervalsConfig struct {
	Fast   time.Duration `mapstructure:"fast"`
	Medium time.Duration `mapstructure:"medium"`
	Slow   time.Duration `mapstructure:"slow"`
}

// Periods projects IntervalsConfig onto the domain.TierPeriods validated by
// the engine.
func (c IntervalsConfig) Periods() domain.TierPeriods {
	return domain.TierPeriods{Fast: c.Fast, Medium: c.Medium, Slow: c.Slow}
}

// CollectorsConfig gates which collectors register and their shared timeout.
type CollectorsConfig struct {
	Enabled []string      `mapstructure:"enabled"` // empty => all
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enables reports whether name is permitted to register, honoring the "all"
// default when Enabled is empty.
func (c CollectorsConfig) Enables(name string) bool {
	if len(c.Enabled) == 0 {
		return true
	}
	for _, n := range c.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// MonitoringConfig governs health, TTL, and cardinality thresholds.
type MonitoringConfig struct {
	MaxConsecutiveFailures int             `mapstructure:"max_consecutive_failures"`
	MetricTTLMultiplier    float64         `mapstructure:"metric_ttl_multiplier"`
	Cardinality            CardinalityCfg  `mapstructure:"cardinality"`
	SecondaryExporter      SecondaryExpCfg `mapstructure:"secondary_exporter"`
}

// CardinalityCfg holds the per-metric series-count thresholds.
type CardinalityCfg struct {
	Warning  int `mapstructure:"warning"`
	Critical int `mapstructure:"critical"`
}

// SecondaryExpCfg toggles the optional OTel dual-routing exporter.
type SecondaryExpCfg struct {
	Enabled bool `mapstructure:"enabled"`
}

// ServerConfig governs the scrape HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig governs the slog handler and optional rotating file sink.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // "text" or "json"
	Filename string `mapstructure:"filename"`
}

const envPrefix = "meraki_exporter"

// Load reads configuration from environment variables (prefixed
// MERAKI_EXPORTER_) and, when configPath is non-empty, a YAML file, layering
// over the defaults set in setDefaults. It validates the result before
// returning.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.meraki.com/api/v1")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.concurrency_limit", 5)
	v.SetDefault("api.batch_size", 20)
	v.SetDefault("api.batch_delay", "500ms")
	v.SetDefault("api.rate_limit_retry_wait", "5s")

	v.SetDefault("intervals.fast", "60s")
	v.SetDefault("intervals.medium", "300s")
	v.SetDefault("intervals.slow", "900s")

	v.SetDefault("collectors.enabled", []string{})
	v.SetDefault("collectors.timeout", "120s")

	v.SetDefault("monitoring.max_consecutive_failures", 10)
	v.SetDefault("monitoring.metric_ttl_multiplier", 2.0)
	v.SetDefault("monitoring.cardinality.warning", 1000)
	v.SetDefault("monitoring.cardinality.critical", 10000)
	v.SetDefault("monitoring.secondary_exporter.enabled", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9099)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate enforces every bound the engine depends on, aggregating all
// violations into a single error so operators see the whole picture at once.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Intervals.Periods().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.API.Timeout < 10*time.Second || c.API.Timeout > 300*time.Second {
		errs = append(errs, fmt.Sprintf("api.timeout %s out of bounds [10s,300s]", c.API.Timeout))
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		errs = append(errs, fmt.Sprintf("api.max_retries %d out of bounds [0,10]", c.API.MaxRetries))
	}
	if c.API.ConcurrencyLimit < 1 || c.API.ConcurrencyLimit > 20 {
		errs = append(errs, fmt.Sprintf("api.concurrency_limit %d out of bounds [1,20]", c.API.ConcurrencyLimit))
	}
	if c.API.BatchSize < 1 || c.API.BatchSize > 100 {
		errs = append(errs, fmt.Sprintf("api.batch_size %d out of bounds [1,100]", c.API.BatchSize))
	}
	if c.API.BatchDelay < 0 || c.API.BatchDelay > 5*time.Second {
		errs = append(errs, fmt.Sprintf("api.batch_delay %s out of bounds [0,5s]", c.API.BatchDelay))
	}
	if c.API.RateLimitRetryWait < time.Second || c.API.RateLimitRetryWait > 60*time.Second {
		errs = append(errs, fmt.Sprintf("api.rate_limit_retry_wait %s out of bounds [1s,60s]", c.API.RateLimitRetryWait))
	}
	if c.Collectors.Timeout < 30*time.Second || c.Collectors.Timeout > 600*time.Second {
		errs = append(errs, fmt.Sprintf("collectors.timeout %s out of bounds [30s,600s]", c.Collectors.Timeout))
	}
	if c.Monitoring.MaxConsecutiveFailures < 1 || c.Monitoring.MaxConsecutiveFailures > 100 {
		errs = append(errs, fmt.Sprintf("monitoring.max_consecutive_failures %d out of bounds [1,100]", c.Monitoring.MaxConsecutiveFailures))
	}
	if c.Monitoring.MetricTTLMultiplier < 1 || c.Monitoring.MetricTTLMultiplier > 10 {
		errs = append(errs, fmt.Sprintf("monitoring.metric_ttl_multiplier %.2f out of bounds [1,10]", c.Monitoring.MetricTTLMultiplier))
	}
	if c.Monitoring.Cardinality.Warning <= 0 {
		errs = append(errs, "monitoring.cardinality.warning must be positive")
	}
	if c.Monitoring.Cardinality.Critical < c.Monitoring.Cardinality.Warning {
		errs = append(errs, "monitoring.cardinality.critical must be >= monitoring.cardinality.warning")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Redacted returns a copy of c with the API key masked, safe for logging or
// a debug dump.
func (c Config) Redacted() Config {
	if c.API.Key != "" {
		c.API.Key = "***redacted***"
	}
	return c
}
