package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mikey/greylist-filter/internal/core"
)

// ServerConfig represents the host integration settings
type ServerConfig struct {
	FilterType     string
	ListenAddress  string
	Tempfail       bool
	Timeout        time.Duration
	FlagHeader     string
	ReasonHeader   string
	PostfixEnabled bool
	PostfixAddress string
	PostfixPort    int
}

// GreylistConfig represents the greylisting parameters
type GreylistConfig struct {
	Window              time.Duration
	RecordLifetime      time.Duration
	ReputationThreshold int
	WhitelistFile       string
}

// StoreConfig represents the shared store settings
type StoreConfig struct {
	Type             string
	Servers          []string
	RedisURL         string
	SQLitePath       string
	MySQLDSN         string
	Timeout          time.Duration
	CleanupFrequency time.Duration
}

// ScorerConfig represents the content scanner settings
type ScorerConfig struct {
	Type         string
	SpamdAddress string
	Timeout      time.Duration
}

// SignalsConfig names where the per-message signals come from
type SignalsConfig struct {
	StatusHeader     string
	FirstContactRule string
}

// MetricsConfig represents the prometheus endpoint settings
type MetricsConfig struct {
	ListenAddress string
}

// Store types
const (
	StoreMemcached = "memcached"
	StoreRedis     = "redis"
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreMySQL     = "mysql"
)

// Scorer types
const (
	ScorerHeaders = "headers"
	ScorerSpamc   = "spamc"
)

// GetServer returns the server configuration
func (c *Config) GetServer() ServerConfig {
	timeout, _ := c.GetDuration("server.timeout")
	return ServerConfig{
		FilterType:     c.GetString("server.filter_type"),
		ListenAddress:  c.GetString("server.listen_address"),
		Tempfail:       c.GetBool("server.tempfail"),
		Timeout:        timeout,
		FlagHeader:     c.GetString("server.headers.flag"),
		ReasonHeader:   c.GetString("server.headers.reason"),
		PostfixEnabled: c.GetBool("server.postfix.enabled"),
		PostfixAddress: c.GetString("server.postfix.address"),
		PostfixPort:    c.GetInt("server.postfix.port"),
	}
}

// GetGreylist returns the greylist configuration
func (c *Config) GetGreylist() GreylistConfig {
	window, _ := c.GetDuration("greylist.window")
	lifetime, _ := c.GetDuration("greylist.record_lifetime")
	return GreylistConfig{
		Window:              window,
		RecordLifetime:      lifetime,
		ReputationThreshold: c.GetInt("greylist.reputation_threshold"),
		WhitelistFile:       c.GetString("greylist.whitelist_file"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	timeout, _ := c.GetDuration("store.timeout")
	cleanup, _ := c.GetDuration("store.cleanup_frequency")

	var servers []string
	for _, s := range strings.Split(c.GetString("store.address"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}

	return StoreConfig{
		Type:             strings.ToLower(c.GetString("store.type")),
		Servers:          servers,
		RedisURL:         c.GetString("store.redis_url"),
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		Timeout:          timeout,
		CleanupFrequency: cleanup,
	}
}

// GetScorer returns the scorer configuration
func (c *Config) GetScorer() ScorerConfig {
	timeout, _ := c.GetDuration("scorer.timeout")
	return ScorerConfig{
		Type:         strings.ToLower(c.GetString("scorer.type")),
		SpamdAddress: c.GetString("scorer.spamd_address"),
		Timeout:      timeout,
	}
}

// GetSignals returns the signal source configuration
func (c *Config) GetSignals() SignalsConfig {
	return SignalsConfig{
		StatusHeader:     c.GetString("signals.status_header"),
		FirstContactRule: c.GetString("signals.first_contact_rule"),
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// GetEngine returns the decision engine parameters
func (c *Config) GetEngine() core.EngineConfig {
	g := c.GetGreylist()
	return core.EngineConfig{
		GreylistWindow:      g.Window,
		RecordLifetime:      g.RecordLifetime,
		ReputationThreshold: g.ReputationThreshold,
		StoreTimeout:        c.GetStore().Timeout,
	}
}

// Validate rejects configurations the filter cannot run with
func (c *Config) Validate() error {
	for _, key := range []string{
		"server.timeout",
		"greylist.window",
		"greylist.record_lifetime",
		"store.timeout",
		"store.cleanup_frequency",
		"scorer.timeout",
	} {
		if _, err := c.GetDuration(key); err != nil {
			return err
		}
	}

	g := c.GetGreylist()
	if g.Window <= 0 {
		return fmt.Errorf("%w: greylist.window must be positive", ErrInvalidConfig)
	}
	if g.RecordLifetime <= 0 {
		return fmt.Errorf("%w: greylist.record_lifetime must be positive", ErrInvalidConfig)
	}
	if g.ReputationThreshold < 0 {
		return fmt.Errorf("%w: greylist.reputation_threshold must not be negative", ErrInvalidConfig)
	}

	s := c.GetStore()
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: store.timeout must be positive", ErrInvalidConfig)
	}
	switch s.Type {
	case StoreMemcached:
		if len(s.Servers) == 0 {
			return fmt.Errorf("%w: store.address is empty", ErrInvalidConfig)
		}
		for _, server := range s.Servers {
			if _, _, err := net.SplitHostPort(server); err != nil && !strings.HasPrefix(server, "/") {
				return fmt.Errorf("%w: store.address %q: %v", ErrInvalidConfig, server, err)
			}
		}
	case StoreRedis:
		if _, err := redis.ParseURL(s.RedisURL); err != nil {
			return fmt.Errorf("%w: store.redis_url: %v", ErrInvalidConfig, err)
		}
	case StoreSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("%w: store.sqlite_path is empty", ErrInvalidConfig)
		}
	case StoreMySQL:
		if s.MySQLDSN == "" {
			return fmt.Errorf("%w: store.mysql_dsn is empty", ErrInvalidConfig)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, s.Type)
	}

	switch f := c.GetServer().FilterType; f {
	case "postfix", "milter", "cli":
	default:
		return fmt.Errorf("%w: unknown filter type %q", ErrInvalidConfig, f)
	}

	switch sc := c.GetScorer().Type; sc {
	case ScorerHeaders, ScorerSpamc:
	default:
		return fmt.Errorf("%w: unknown scorer type %q", ErrInvalidConfig, sc)
	}

	return nil
}
