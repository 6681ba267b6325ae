package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/prometheus/common/model"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Source is one upstream exposition endpoint to scrape.
type Source struct {
	URL         string            `mapstructure:"url"`
	TimeoutSecs int               `mapstructure:"timeout_secs" default:"10"`
	Headers     map[string]string `mapstructure:"headers"`
	ExtraLabels map[string]string `mapstructure:"extra_labels"`
}

// Config is the validated set of parameters the core pipeline consumes.
type Config struct {
	Listen             string   `mapstructure:"listen" default:"0.0.0.0:9090"`
	NumShards          uint32   `mapstructure:"num_shards"`
	ScrapeIntervalSecs int      `mapstructure:"scrape_interval_secs" default:"15"`
	Sources            []Source `mapstructure:"sources"`
	LogLevel           LogLevel `mapstructure:"log_level" default:"info"`
}

func init() {
	pflag.StringP("listen", "l", "0.0.0.0:9090", "host:port to serve shard endpoints on")
	pflag.String("log_level", "info", "level to log at")
}

func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("Listen", c.Listen)
	enc.AddUint32("NumShards", c.NumShards)
	enc.AddInt("ScrapeIntervalSecs", c.ScrapeIntervalSecs)
	enc.AddInt("NumSources", len(c.Sources))
	enc.AddString("LogLevel", string(c.LogLevel))
	return nil
}

// Read loads and validates configuration from the TOML file at path.
func Read(path string) (*Config, error) {
	viper.SetConfigType("toml")

	viper.SetEnvPrefix("PROM_SHARD_REAPER")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(pflag.CommandLine)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	if err := viper.ReadConfig(file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate enforces the invariants spec.md §6 requires before the config is
// handed to the scrape orchestrator.
func Validate(c *Config) error {
	if c.NumShards == 0 {
		return fmt.Errorf("num_shards must be >= 1")
	}
	if c.ScrapeIntervalSecs <= 0 {
		return fmt.Errorf("scrape_interval_secs must be >= 1")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources must not be empty")
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.URL == "" {
			return fmt.Errorf("sources[%d]: url is required", i)
		}
		if _, dup := seen[s.URL]; dup {
			return fmt.Errorf("sources[%d]: duplicate url %q", i, s.URL)
		}
		seen[s.URL] = struct{}{}

		if s.TimeoutSecs <= 0 {
			s.TimeoutSecs = 10
		}

		for name := range s.ExtraLabels {
			if name == model.MetricNameLabel {
				return fmt.Errorf("sources[%d]: extra_labels must not redefine %q", i, model.MetricNameLabel)
			}
			if !model.LabelName(name).IsValid() {
				return fmt.Errorf("sources[%d]: extra_labels key %q is not a valid label name", i, name)
			}
		}
	}

	return nil
}

// Sample returns an annotated TOML document suitable for `generate-config`.
func Sample() string {
	return `# prom-shard-reaper configuration

# address the HTTP server listens on
listen = "0.0.0.0:9090"

# number of shards to split the combined series set across
num_shards = 4

# how often to scrape all configured sources
scrape_interval_secs = 15

[[sources]]
url = "http://localhost:9283/metrics"
timeout_secs = 10

  [sources.headers]
  # Authorization = "Bearer <token>"

  [sources.extra_labels]
  # cluster = "ceph-prod"
`
}
