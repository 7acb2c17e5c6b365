// Package config handles configuration loading and management for wirechat.
package config

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the request timeout applied when the configuration
// does not specify one. It matches the timeout the official web client
// uses for its long-poll requests.
const DefaultTimeout = 30 * time.Second

// DefaultMaxLoginAttempts is the number of login attempts before the
// handshake is reported as rejected.
const DefaultMaxLoginAttempts = 5

// defaultUserAgents is the pool a user agent is picked from when the
// configuration does not pin one. These mirror common desktop browsers;
// the service serves the full chat page to any of them.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// PickUserAgent returns a random entry from the default pool.
func PickUserAgent() string {
	return defaultUserAgents[rand.IntN(len(defaultUserAgents))]
}

// PickUserAgent returns the pinned user agent, or a random entry from
// the configured pool.
func (c *Config) PickUserAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	if len(c.UserAgents) > 0 {
		return c.UserAgents[rand.IntN(len(c.UserAgents))]
	}
	return PickUserAgent()
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
	// File is an optional log file path. Rotation is handled automatically.
	File string `yaml:"file"`
	// JSON switches log output to JSON format.
	JSON bool `yaml:"json"`
	// Components restricts logging to the named components (empty means all).
	Components []string `yaml:"components"`
}

// Config represents the complete wirechat configuration.
type Config struct {
	// UserAgent pins the User-Agent header. When empty, one is picked
	// at random from UserAgents.
	UserAgent string `yaml:"user_agent"`
	// UserAgents is the pool to pick from when UserAgent is unset.
	UserAgents []string `yaml:"user_agents"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxLoginAttempts bounds login retries.
	MaxLoginAttempts int `yaml:"max_login_attempts"`
	// SessionFile overrides the default persisted session location.
	SessionFile string `yaml:"session_file"`
	// Log holds logging settings.
	Log LogConfig `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		UserAgents:       append([]string(nil), defaultUserAgents...),
		Timeout:          DefaultTimeout,
		MaxLoginAttempts: DefaultMaxLoginAttempts,
		Log:              LogConfig{Level: "info"},
	}
}

// Load reads and parses the configuration file from the given path.
// A missing file is not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data into a Config struct,
// filling unset fields with defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = append([]string(nil), defaultUserAgents...)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return cfg, nil
}
