package config

import (
	"fmt"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server    APIServerConfig   `yaml:"server" mapstructure:"server"`
	Auth      APIAuthConfig     `yaml:"auth" mapstructure:"auth"`
	Database  APIDatabaseConfig `yaml:"database" mapstructure:"database"`
	Feed      FeedConfig        `yaml:"feed,omitempty" mapstructure:"feed"`
	Refresher RefresherConfig   `yaml:"refresher,omitempty" mapstructure:"refresher"`
	Archive   *ArchiveConfig    `yaml:"archive,omitempty" mapstructure:"archive"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	SessionTTL    string          `yaml:"session_ttl" mapstructure:"session_ttl"`
	AnonymousRead bool            `yaml:"anonymous_read" mapstructure:"anonymous_read"`
	Users         []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a dashboard user seeded from config.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Role     string `yaml:"role" mapstructure:"role"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// FeedConfig selects and configures the change-notification feed that
// triggers snapshot refreshes. The memory driver only notifies within one
// process; redis fans out across API replicas.
type FeedConfig struct {
	Driver string          `yaml:"driver" mapstructure:"driver"`
	Redis  RedisFeedConfig `yaml:"redis,omitempty" mapstructure:"redis"`
}

// RedisFeedConfig contains redis pub/sub settings.
type RedisFeedConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Channel  string `yaml:"channel,omitempty" mapstructure:"channel"`
}

// RefresherConfig tunes the background snapshot service.
type RefresherConfig struct {
	Interval     string `yaml:"interval,omitempty" mapstructure:"interval"`
	FetchTimeout string `yaml:"fetch_timeout,omitempty" mapstructure:"fetch_timeout"`
	FetchLimit   int    `yaml:"fetch_limit,omitempty" mapstructure:"fetch_limit"`
}

// ArchiveConfig configures daily report archival to S3-compatible storage.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

func (c *APIConfig) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("api.server.listen is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("api.database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("api.database.postgres.host is required")
		}
	default:
		return fmt.Errorf(
			"unsupported database driver: %s", c.Database.Driver,
		)
	}

	switch c.Feed.Driver {
	case "", "memory":
	case "redis":
		if c.Feed.Redis.Addr == "" {
			return fmt.Errorf("api.feed.redis.addr is required")
		}
	default:
		return fmt.Errorf("unsupported feed driver: %s", c.Feed.Driver)
	}

	if err := parseDuration(
		"api.auth.session_ttl", c.Auth.SessionTTL,
	); err != nil {
		return err
	}

	if err := parseDuration(
		"api.refresher.interval", c.Refresher.Interval,
	); err != nil {
		return err
	}

	if err := parseDuration(
		"api.refresher.fetch_timeout", c.Refresher.FetchTimeout,
	); err != nil {
		return err
	}

	if c.Refresher.FetchLimit < 0 {
		return fmt.Errorf("api.refresher.fetch_limit must not be negative")
	}

	if c.Archive != nil && c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("api.archive.bucket is required")
	}

	for i, u := range c.Auth.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf(
				"api.auth.users[%d]: username and password are required", i,
			)
		}
	}

	return nil
}
