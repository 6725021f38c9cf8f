package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// EnvPrefix prefixes every environment override, e.g. LISTINGSYNC_SERVER_PORT
const EnvPrefix = "LISTINGSYNC"

// KnownPlatforms get defaults registered so their settings can come from
// the environment alone.
var KnownPlatforms = []string{"rentboard", "homefeed"}

// Config represents the application configuration
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Security  SecurityConfig            `mapstructure:"security"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Redis     RedisConfig               `mapstructure:"redis"`
	OAuth     OAuthConfig               `mapstructure:"oauth"`
	HTTP      HTTPConfig                `mapstructure:"http"`
	Publish   PublishConfig             `mapstructure:"publish"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms" validate:"dive"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SecurityConfig contains API access settings
type SecurityConfig struct {
	APIKey             string `mapstructure:"api_key" validate:"required"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" validate:"min=0"`
}

// LoggingConfig selects the log handler
type LoggingConfig struct {
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
}

// RedisConfig points at the shared OAuth flow store. An empty address keeps
// flows in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// Enabled reports whether a Redis address is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// OAuthConfig contains authorization flow settings
type OAuthConfig struct {
	FlowTTL         time.Duration `mapstructure:"flow_ttl" validate:"gt=0"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	CallbackBaseURL string        `mapstructure:"callback_base_url" validate:"omitempty,url"`
	ReturnURLBase   string        `mapstructure:"return_url_base" validate:"omitempty,url"`
}

// HTTPConfig tunes outbound platform calls
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay" validate:"gte=0"`
}

// PublishConfig sizes the publish worker pool and the stale sync
type PublishConfig struct {
	Workers      int           `mapstructure:"workers" validate:"min=1"`
	QueueSize    int           `mapstructure:"queue_size" validate:"min=1"`
	JobTimeout   time.Duration `mapstructure:"job_timeout" validate:"gt=0"`
	StaleHours   int           `mapstructure:"stale_hours" validate:"min=1"`
	SyncInterval time.Duration `mapstructure:"sync_interval" validate:"gt=0"`
}

// PlatformConfig holds one platform's credentials. Missing values never
// fail loading; the registry reports them as diagnostics instead.
type PlatformConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri" validate:"omitempty,url"`
	BaseURL      string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey       string `mapstructure:"api_key"`
}

// Platform returns the settings for key, zero valued when absent
func (c *Config) Platform(key string) PlatformConfig {
	return c.Platforms[key]
}

// RedirectURI returns the OAuth callback for a platform: the configured
// redirect_uri, else one derived from oauth.callback_base_url.
func (c *Config) RedirectURI(key string) string {
	if uri := c.Platform(key).RedirectURI; uri != "" {
		return uri
	}
	if c.OAuth.CallbackBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.OAuth.CallbackBaseURL, "/") + "/v1/platforms/" + key + "/callback"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads an optional YAML or JSON file and applies LISTINGSYNC_*
// environment overrides. An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, ErrConfigFileNotFound
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./listingsync.db")

	v.SetDefault("security.api_key", "")
	v.SetDefault("security.rate_limit_per_minute", 120)

	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.level", "info")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("oauth.flow_ttl", 15*time.Minute)
	v.SetDefault("oauth.sweep_interval", 5*time.Minute)
	v.SetDefault("oauth.callback_base_url", "")
	v.SetDefault("oauth.return_url_base", "")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_base_delay", 2*time.Second)
	v.SetDefault("http.rate_limit_delay", 0)

	v.SetDefault("publish.workers", 4)
	v.SetDefault("publish.queue_size", 64)
	v.SetDefault("publish.job_timeout", 2*time.Minute)
	v.SetDefault("publish.stale_hours", 24)
	v.SetDefault("publish.sync_interval", time.Hour)

	for _, key := range KnownPlatforms {
		prefix := "platforms." + key + "."
		for _, field := range []string{"client_id", "client_secret", "redirect_uri", "base_url", "api_key"} {
			v.SetDefault(prefix+field, "")
		}
	}
}
