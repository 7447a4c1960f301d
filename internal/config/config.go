package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "TUNER_"

// DefaultFallbackMirrors are known-good directory mirrors in distinct regions.
var DefaultFallbackMirrors = []string{
	"https://de1.api.radio-browser.info",
	"https://nl1.api.radio-browser.info",
	"https://at1.api.radio-browser.info",
	"https://fi1.api.radio-browser.info",
}

// Config is the top-level configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig holds HTTP server and persistence settings
type ServerConfig struct {
	Listen    string  `yaml:"listen"`
	DBPath    string  `yaml:"db_path"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// GatewayConfig holds mirror selection and request execution settings
type GatewayConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMultiple  float64       `yaml:"retry_multiplier"`
	DefaultLimit   int           `yaml:"default_limit"`
	MaxLimit       int           `yaml:"max_limit"`
}

// DiscoveryConfig controls how candidate mirrors are found
type DiscoveryConfig struct {
	SRVService      string   `yaml:"srv_service"`
	SRVProto        string   `yaml:"srv_proto"`
	Domain          string   `yaml:"domain"`
	LookupHost      string   `yaml:"lookup_host"`
	Nameserver      string   `yaml:"nameserver"`
	FallbackMirrors []string `yaml:"fallback_mirrors"`
}

// CacheConfig holds the list-response cache settings
type CacheConfig struct {
	ListTTL  time.Duration `yaml:"list_ttl"`
	ListSize int           `yaml:"list_size"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:    "0.0.0.0:8080",
			DBPath:    "tuner.db",
			RateLimit: 20,
			RateBurst: 40,
		},
		Gateway: GatewayConfig{
			UserAgent:      "tuner/1.0",
			CacheTTL:       10 * time.Minute,
			ProbeTimeout:   5 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RetryMultiple:  2,
			DefaultLimit:   50,
			MaxLimit:       1000,
		},
		Discovery: DiscoveryConfig{
			SRVService:      "api",
			SRVProto:        "tcp",
			Domain:          "radio-browser.info",
			LookupHost:      "all.api.radio-browser.info",
			FallbackMirrors: append([]string(nil), DefaultFallbackMirrors...),
		},
		Cache: CacheConfig{
			ListTTL:  time.Hour,
			ListSize: 64,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"tuner.yaml",
		"/etc/tuner/tuner.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "tuner", "tuner.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// ApplyEnv overrides settings from TUNER_* variables. lookup is usually
// os.LookupEnv; unset or empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	durations := map[string]*time.Duration{
		"CACHE_TTL":        &c.Gateway.CacheTTL,
		"PROBE_TIMEOUT":    &c.Gateway.ProbeTimeout,
		"REQUEST_TIMEOUT":  &c.Gateway.RequestTimeout,
		"RETRY_BASE_DELAY": &c.Gateway.RetryBaseDelay,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"MAX_RETRIES":   &c.Gateway.MaxRetries,
		"DEFAULT_LIMIT": &c.Gateway.DefaultLimit,
		"MAX_LIMIT":     &c.Gateway.MaxLimit,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := get("RETRY_MULTIPLIER"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRETRY_MULTIPLIER: %w", EnvPrefix, err)
		}
		c.Gateway.RetryMultiple = f
	}

	strs := map[string]*string{
		"USER_AGENT": &c.Gateway.UserAgent,
		"NAMESERVER": &c.Discovery.Nameserver,
		"LISTEN":     &c.Server.Listen,
		"DB_PATH":    &c.Server.DBPath,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("FALLBACK_MIRRORS"); ok {
		var mirrors []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				mirrors = append(mirrors, m)
			}
		}
		c.Discovery.FallbackMirrors = mirrors
	}

	return nil
}

// Validate checks the settings that would otherwise break the gateway at runtime
func (c *Config) Validate() error {
	g := c.Gateway
	if g.CacheTTL <= 0 {
		return fmt.Errorf("gateway.cache_ttl must be positive, got %s", g.CacheTTL)
	}
	if g.ProbeTimeout <= 0 {
		return fmt.Errorf("gateway.probe_timeout must be positive, got %s", g.ProbeTimeout)
	}
	if g.RequestTimeout <= 0 {
		return fmt.Errorf("gateway.request_timeout must be positive, got %s", g.RequestTimeout)
	}
	if g.MaxRetries < 0 {
		return fmt.Errorf("gateway.max_retries must not be negative, got %d", g.MaxRetries)
	}
	if g.RetryBaseDelay < 0 {
		return fmt.Errorf("gateway.retry_base_delay must not be negative, got %s", g.RetryBaseDelay)
	}
	if g.RetryMultiple < 1 {
		return fmt.Errorf("gateway.retry_multiplier must be at least 1, got %g", g.RetryMultiple)
	}
	if g.MaxLimit < 1 {
		return fmt.Errorf("gateway.max_limit must be at least 1, got %d", g.MaxLimit)
	}
	if g.DefaultLimit < 1 || g.DefaultLimit > g.MaxLimit {
		return fmt.Errorf("gateway.default_limit must be within [1, %d], got %d", g.MaxLimit, g.DefaultLimit)
	}
	if strings.TrimSpace(g.UserAgent) == "" {
		return fmt.Errorf("gateway.user_agent is required")
	}
	if c.Cache.ListSize < 0 {
		return fmt.Errorf("cache.list_size must not be negative, got %d", c.Cache.ListSize)
	}
	return nil
}

// Fallbacks returns the configured fallback mirrors, or the built-in list
// when none are configured.
func (c *Config) Fallbacks() []string {
	if len(c.Discovery.FallbackMirrors) == 0 {
		return append([]string(nil), DefaultFallbackMirrors...)
	}
	return append([]string(nil), c.Discovery.FallbackMirrors...)
}
