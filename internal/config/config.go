package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance. When path is empty the standard locations
// are searched and a missing file means defaults.
func New(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/greylist-filter/")
		v.AddConfigPath("$HOME/.greylist-filter")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("GREYLIST_FILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	c := &Config{v: v}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.tempfail", false)
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("server.headers.flag", "X-Sagrey")
	v.SetDefault("server.headers.reason", "X-Sagrey-Reason")
	v.SetDefault("server.postfix.enabled", true)
	v.SetDefault("server.postfix.address", "127.0.0.1")
	v.SetDefault("server.postfix.port", 10026)

	// Greylist defaults
	v.SetDefault("greylist.window", "300s")
	v.SetDefault("greylist.record_lifetime", "336h")
	v.SetDefault("greylist.reputation_threshold", 5)
	v.SetDefault("greylist.whitelist_file", "/etc/greylist-filter/whitelist")

	// Store defaults
	v.SetDefault("store.type", "memcached")
	v.SetDefault("store.address", "127.0.0.1:11211")
	v.SetDefault("store.redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("store.sqlite_path", "/var/lib/greylist-filter/greylist.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/greylist")
	v.SetDefault("store.timeout", "2s")
	v.SetDefault("store.cleanup_frequency", "1h")

	// Scorer defaults
	v.SetDefault("scorer.type", "headers")
	v.SetDefault("scorer.spamd_address", "127.0.0.1:783")
	v.SetDefault("scorer.timeout", "20s")

	// Signal defaults
	v.SetDefault("signals.status_header", "X-Spam-Status")
	v.SetDefault("signals.first_contact_rule", "GREY_FIRST_CONTACT")

	// Metrics defaults
	v.SetDefault("metrics.listen_address", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

// Set overrides a configuration value
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
