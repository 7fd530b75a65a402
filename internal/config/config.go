// Package config provides configuration management for browser_driver.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is the current version of browser_driver.
// This is set at build time via ldflags.
var Version = "dev"

// Config holds all configuration options for browser_driver.
type Config struct {
	// Target
	RootURL string `mapstructure:"root_url"`

	// Browser
	ChromePort string   `mapstructure:"port"`
	ChromePath string   `mapstructure:"chrome_path"`
	Visible    bool     `mapstructure:"-"`
	ChromeArgs []string `mapstructure:"-"`

	// Polling
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Output
	TranscriptDir string `mapstructure:"transcript_dir"`
	Redact        bool   `mapstructure:"redact"`

	Logger LoggerConfig `mapstructure:"logger"`
}

// LoggerConfig holds the diagnostic logger settings.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogFile    string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChromePort: "0",

		Timeout:      600 * time.Second,
		PollInterval: 0,

		Redact: true,

		Logger: LoggerConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		},
	}
}

// SetDefaults registers the defaults with v.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("root_url", d.RootURL)
	v.SetDefault("port", d.ChromePort)
	v.SetDefault("chrome_path", d.ChromePath)
	v.SetDefault("visible", d.Visible)
	v.SetDefault("chrome_args", "")
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("transcript_dir", d.TranscriptDir)
	v.SetDefault("redact", d.Redact)
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.log_file", d.Logger.LogFile)
	v.SetDefault("logger.max_size", d.Logger.MaxSize)
	v.SetDefault("logger.max_backups", d.Logger.MaxBackups)
	v.SetDefault("logger.max_age", d.Logger.MaxAge)
}

// BindEnv maps the environment variables the host process sets to config keys.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("root_url", "ROOT_URL")
	_ = v.BindEnv("visible", "TEST_BROWSER_VISIBLE")
	_ = v.BindEnv("chrome_args", "TEST_CHROME_ARGS")
	_ = v.BindEnv("timeout", "TEST_BROWSER_TIMEOUT")
	_ = v.BindEnv("poll_interval", "TEST_BROWSER_POLL_INTERVAL")
	_ = v.BindEnv("chrome_path", "TEST_CHROME_PATH")
	_ = v.BindEnv("transcript_dir", "TEST_BROWSER_TRANSCRIPT_DIR")
}

// Load builds a Config from v. Extra Chrome arguments are decoded with ParseChromeArgs.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Visible = truthy(v.GetString("visible"))
	cfg.ChromeArgs = ParseChromeArgs(v.GetString("chrome_args"))
	return cfg, nil
}

// ParseChromeArgs splits a whitespace separated argument list. Any "%20" in an
// argument is decoded to a space so arguments can carry spaces.
func ParseChromeArgs(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, strings.ReplaceAll(f, "%20", " "))
	}
	return args
}

// Validate checks the configuration for a run.
func (c *Config) Validate() error {
	if c.RootURL == "" {
		return errors.New("root URL is required (set ROOT_URL or --root-url)")
	}
	u, err := url.Parse(c.RootURL)
	if err != nil {
		return fmt.Errorf("invalid root URL %q: %w", c.RootURL, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return fmt.Errorf("invalid root URL %q: unsupported scheme %q", c.RootURL, u.Scheme)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", c.PollInterval)
	}
	if n, err := strconv.Atoi(c.ChromePort); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("chrome port must be a number between 0 and 65535, got %q", c.ChromePort)
	}
	return nil
}

// truthy treats any non-empty value other than an explicit false as set, the
// way shell environment flags are usually read.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
