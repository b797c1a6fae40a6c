// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration. Runtime settings that admins can
// change live in the settings table instead.
type Config struct {
	Server    ServerConfig
	Forum     ForumConfig
	Directory DirectoryConfig
	Cache     CacheConfig
	NATS      NATSConfig
	Twilio    TwilioConfig
	Jobs      JobsConfig

	DBPath       string  `envconfig:"DB_PATH" default:"barcode.db"`
	BanPolicy    string  `envconfig:"BAN_POLICY" default:""`
	GoogleAPIKey string  `envconfig:"GOOGLE_API_KEY" default:""`
	Admins       []int64 `envconfig:"ADMIN_USERS"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `envconfig:"LISTEN_ADDR" default:":8080"`
	AllowedOrigins  []string      `envconfig:"CORS_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	NotifyTimeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"30s"`
}

// ForumConfig holds the XenForo REST API settings.
type ForumConfig struct {
	URL       string `envconfig:"FORUM_URL" default:""`
	APIKey    string `envconfig:"FORUM_API_KEY" default:""`
	BotUserID int64  `envconfig:"FORUM_BOT_USER_ID" default:"1"`
}

// DirectoryConfig holds the forum database settings used to look up users.
type DirectoryConfig struct {
	DSN           string  `envconfig:"FORUM_DB_DSN" default:""`
	HoldersGroup  int64   `envconfig:"HOLDERS_GROUP" default:"0"`
	AllowedGroups []int64 `envconfig:"ALLOWED_GROUPS"`
}

// CacheConfig holds the user cache settings. Type is "memory" or "redis".
type CacheConfig struct {
	Type     string        `envconfig:"CACHE_TYPE" default:"memory"`
	Size     int           `envconfig:"CACHE_SIZE" default:"1000"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"10m"`
	RedisURL string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB  int           `envconfig:"REDIS_DB" default:"0"`
}

// NATSConfig enables publishing forum messages instead of sending them
// directly. Empty URL sends directly.
type NATSConfig struct {
	URL     string `envconfig:"NATS_URL" default:""`
	Subject string `envconfig:"NATS_SUBJECT" default:"barcode.forum"`
}

// TwilioConfig holds SMS settings. Without an account, codes are logged.
type TwilioConfig struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID" default:""`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" default:""`
	From       string `envconfig:"TWILIO_FROM" default:""`
}

// JobsConfig holds scheduler settings.
type JobsConfig struct {
	Enabled         bool          `envconfig:"JOBS_ENABLED" default:"true"`
	LockDir         string        `envconfig:"JOBS_LOCK_DIR" default:""`
	LockHoldOver    time.Duration `envconfig:"JOBS_LOCK_HOLD_OVER" default:"10m"`
	DistributeEvery time.Duration `envconfig:"DISTRIBUTE_EVERY" default:"24h"`
	Timeout         time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Forum.URL != "" && c.Forum.APIKey == "" {
		return fmt.Errorf("FORUM_API_KEY is required with FORUM_URL")
	}
	if c.Jobs.LockDir != "" && c.Jobs.LockHoldOver >= c.Jobs.DistributeEvery {
		return fmt.Errorf("job lock hold-over must be shorter than the distribution interval")
	}
	return nil
}

// Load reads envFile, if it exists, and then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("barcode", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
