package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Endpoint is one HTTP target, relative to the environment base URL unless
// absolute.
type Endpoint struct {
	Path   string `mapstructure:"path"`
	Method string `mapstructure:"method"`
}

// Query is one named SQL target.
type Query struct {
	Name string `mapstructure:"name"`
	SQL  string `mapstructure:"sql"`
}

// Scenario is a named, pre-configured load pattern.
type Scenario struct {
	Name             string     `mapstructure:"name"`
	Concurrency      int        `mapstructure:"concurrency"`
	RequestsPerActor int        `mapstructure:"requestsPerActor"`
	DelayMs          int        `mapstructure:"delayMs"`
	Endpoints        []Endpoint `mapstructure:"endpoints"`
	Queries          []Query    `mapstructure:"queries"`
	WarmUp           bool       `mapstructure:"warmUp"`
}

func (s Scenario) Delay() time.Duration {
	return time.Duration(s.DelayMs) * time.Millisecond
}

// Spike configures the baseline/spike/recovery sequence.
type Spike struct {
	BaseUsers        int      `mapstructure:"baseUsers"`
	SpikeUsers       int      `mapstructure:"spikeUsers"`
	RequestsPerActor int      `mapstructure:"requestsPerActor"`
	RecoveryPauseSec int      `mapstructure:"recoveryPauseSec"`
	Endpoint         Endpoint `mapstructure:"endpoint"`
}

// Endurance configures the sustained-duration test.
type Endurance struct {
	DurationSec        int      `mapstructure:"durationSec"`
	Concurrency        int      `mapstructure:"concurrency"`
	DelayMs            int      `mapstructure:"delayMs"`
	EstimatedLatencyMs int      `mapstructure:"estimatedLatencyMs"`
	Endpoint           Endpoint `mapstructure:"endpoint"`
}

// Monitor configures continuous sampling.
type Monitor struct {
	IntervalSec int      `mapstructure:"intervalSec"`
	Endpoint    Endpoint `mapstructure:"endpoint"`
}

// Database configures the query-side pool. An empty DSN disables database
// scenarios entirely.
type Database struct {
	DSN               string `mapstructure:"dsn"`
	MaxConns          int    `mapstructure:"maxConns"`
	AcquireTimeoutMs  int    `mapstructure:"acquireTimeoutMs"`
	QueryTimeoutMs    int    `mapstructure:"queryTimeoutMs"`
	ConnMaxLifetimeMs int    `mapstructure:"connMaxLifetimeMs"`
}

// Thresholds are the environment-specific readiness overrides.
type Thresholds struct {
	MaxAvgLatencyMs     float64 `mapstructure:"maxAvgLatencyMs"`
	MaxErrorRatePercent float64 `mapstructure:"maxErrorRatePercent"`
}

// Config is the full harness configuration: environment, targets and the
// per-scenario load shapes. Scenarios are listed lightest to heaviest; the
// comprehensive suite runs them in order.
type Config struct {
	Environment      string     `mapstructure:"environment"`
	BaseURL          string     `mapstructure:"baseUrl"`
	RequestTimeoutMs int        `mapstructure:"requestTimeoutMs"`
	RecoveryPauseSec int        `mapstructure:"recoveryPauseSec"`
	Scenarios        []Scenario `mapstructure:"scenarios"`
	Spike            Spike      `mapstructure:"spike"`
	Endurance        Endurance  `mapstructure:"endurance"`
	Monitor          Monitor    `mapstructure:"monitor"`
	Database         Database   `mapstructure:"database"`
	Thresholds       Thresholds `mapstructure:"thresholds"`

	RedisAddress string `mapstructure:"redisAddress"`
	RedisAuth    string `mapstructure:"redisAuth"`
}

// Load reads a YAML config file, letting LOADTEST_* environment variables
// override individual keys.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("loadtest")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading config %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("requestTimeoutMs", 10000)
	v.SetDefault("recoveryPauseSec", 30)
	v.SetDefault("monitor.intervalSec", 120)
	v.SetDefault("endurance.estimatedLatencyMs", 100)
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.acquireTimeoutMs", 5000)
	v.SetDefault("database.queryTimeoutMs", 10000)
}

// Validate rejects configurations the orchestrator cannot run.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("baseUrl is required")
	}

	seen := map[string]bool{}
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return errors.New("scenario name is required")
		}
		if seen[s.Name] {
			return errors.Errorf("duplicate scenario name %q", s.Name)
		}
		seen[s.Name] = true

		if s.Concurrency < 1 {
			return errors.Errorf("scenario %q: concurrency must be positive", s.Name)
		}
		if s.RequestsPerActor < 1 {
			return errors.Errorf("scenario %q: requestsPerActor must be at least 1", s.Name)
		}
		if s.DelayMs < 0 {
			return errors.Errorf("scenario %q: delayMs must not be negative", s.Name)
		}
	}

	if c.Spike.BaseUsers > 0 && c.Spike.SpikeUsers < c.Spike.BaseUsers {
		return errors.New("spike: spikeUsers must be at least baseUsers")
	}

	return nil
}

// Scenario looks a scenario up by name.
func (c *Config) Scenario(name string) (Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// URL resolves an endpoint against the environment base URL.
func (c *Config) URL(e Endpoint) string {
	if strings.HasPrefix(e.Path, "http://") || strings.HasPrefix(e.Path, "https://") {
		return e.Path
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(e.Path, "/")
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) RecoveryPause() time.Duration {
	return time.Duration(c.RecoveryPauseSec) * time.Second
}
