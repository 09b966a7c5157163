// Package config holds the top level configuration of eip7702-checker.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/eip7702-checker/pkg/checker"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
	"github.com/ethpandaops/eip7702-checker/pkg/leaderelection"
	"github.com/ethpandaops/eip7702-checker/pkg/redis"
	"github.com/ethpandaops/eip7702-checker/pkg/report"
)

// FunderKeyEnv overrides checker.funderPrivateKey so the key can stay out of config files.
const FunderKeyEnv = "EIP7702_FUNDER_KEY"

type WatchConfig struct {
	// Interval between checks.
	Interval time.Duration `yaml:"interval" default:"10m"`
	// RunOnStart runs the first check immediately instead of after one interval.
	RunOnStart bool `yaml:"runOnStart" default:"true"`
	// LeaderElection lets only one of several replicas run checks.
	LeaderElection leaderelection.Config `yaml:"leaderElection"`
}

func (c *WatchConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("watch interval must be positive")
	}

	return c.LeaderElection.Validate()
}

// Config is the main configuration for eip7702-checker.
type Config struct {
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Output is the report format written to stdout: text or json.
	Output string `yaml:"output" default:"text"`
	// MetricsAddr is the address to listen on for metrics in watch mode.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// MetricsTextfile, if set, receives the metrics after every run in node-exporter textfile format.
	MetricsTextfile string `yaml:"metricsTextfile"`
	// HealthCheckAddr is the address to listen on for healthcheck in watch mode.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof in watch mode.
	PProfAddr *string `yaml:"pprofAddr"`
	// RunTimeout bounds a single check.
	RunTimeout time.Duration `yaml:"runTimeout" default:"10m"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
	// Ethereum is the ethereum network configuration.
	Ethereum ethereum.Config `yaml:"ethereum"`
	// Checker configures the delegation check itself.
	Checker checker.Config `yaml:"checker"`
	// Redis, if set, stores every report.
	Redis *redis.Config `yaml:"redis"`
	// Watch configures the watch subcommand.
	Watch WatchConfig `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := report.ParseFormat(c.Output); err != nil {
		return err
	}

	if c.RunTimeout <= 0 {
		return errors.New("runTimeout must be positive")
	}

	if err := c.Ethereum.Validate(); err != nil {
		return fmt.Errorf("invalid ethereum configuration: %w", err)
	}

	if err := c.Checker.Validate(); err != nil {
		return fmt.Errorf("invalid checker configuration: %w", err)
	}

	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis configuration: %w", err)
		}
	}

	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("invalid watch configuration: %w", err)
	}

	if c.Watch.LeaderElection.Enabled && c.Redis == nil {
		return errors.New("watch.leaderElection requires redis")
	}

	return nil
}

// New returns a configuration with every default applied.
func New() (*Config, error) {
	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile applies defaults, then the YAML file, then environment overrides.
// A missing file is not an error when allowMissing is set.
func LoadFromFile(file string, allowMissing bool) (*Config, error) {
	config, err := New()
	if err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file)

	switch {
	case err == nil:
		type plain Config

		if err := yaml.Unmarshal(yamlFile, (*plain)(config)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	case errors.Is(err, os.ErrNotExist) && allowMissing:
	default:
		return nil, err
	}

	// Defaults are not applied to pointers the YAML left nil.
	if config.Redis != nil {
		if err := defaults.Set(config.Redis); err != nil {
			return nil, err
		}
	}

	if key := strings.TrimSpace(os.Getenv(FunderKeyEnv)); key != "" {
		config.Checker.FunderPrivateKey = key
	}

	return config, nil
}
