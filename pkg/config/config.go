// Package config loads and validates monitoroor configuration from a yaml
// file, with MONITOROOR_* environment variables overriding any key.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8090"

	// DefaultSessionTTL is the default dashboard session lifetime.
	DefaultSessionTTL = "24h"

	// DefaultRefreshInterval is the default periodic snapshot refresh.
	DefaultRefreshInterval = "60s"

	// DefaultFetchTimeout bounds a single snapshot fetch.
	DefaultFetchTimeout = "10s"

	// DefaultFetchLimit caps how many runs one snapshot pass loads.
	DefaultFetchLimit = 500

	// DefaultFeedChannel is the redis pub/sub channel for change events.
	DefaultFeedChannel = "monitoroor:changes"
)

// EnvPrefix is the environment variable prefix for config overrides, e.g.
// MONITOROOR_API_SERVER_LISTEN overrides api.server.listen.
const EnvPrefix = "MONITOROOR"

// Config is the root configuration.
type Config struct {
	Global GlobalConfig            `yaml:"global" mapstructure:"global"`
	API    *APIConfig              `yaml:"api,omitempty" mapstructure:"api"`
	Health []monitor.HealthSection `yaml:"health,omitempty" mapstructure:"health"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, and decodes the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("api.server.listen", DefaultListen)
	v.SetDefault("api.auth.session_ttl", DefaultSessionTTL)
	v.SetDefault("api.database.driver", "sqlite")
	v.SetDefault("api.database.sqlite.path", "./monitoroor.db")
	v.SetDefault("api.feed.driver", "memory")
	v.SetDefault("api.feed.redis.channel", DefaultFeedChannel)
	v.SetDefault("api.refresher.interval", DefaultRefreshInterval)
	v.SetDefault("api.refresher.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("api.refresher.fetch_limit", DefaultFetchLimit)
}

// Dump renders the effective configuration as yaml, for the `config`
// debug subcommand.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshalling config: %w", err)
	}

	return string(out), nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API == nil {
		return errors.New("api section is required")
	}

	if err := c.API.validate(); err != nil {
		return err
	}

	return c.validateHealth()
}

func (c *Config) validateHealth() error {
	for i, section := range c.Health {
		if section.Title == "" {
			return fmt.Errorf("health section %d: title is required", i)
		}

		for j, check := range section.Checks {
			if check.Label == "" {
				return fmt.Errorf(
					"health section %q check %d: label is required",
					section.Title, j,
				)
			}

			if len(check.Dependencies) == 0 {
				return fmt.Errorf(
					"health check %q: at least one dependency is required",
					check.Label,
				)
			}
		}
	}

	return nil
}

// parseDuration validates a duration config value, tolerating empty.
func parseDuration(field, value string) error {
	if value == "" {
		return nil
	}

	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}

	return nil
}
