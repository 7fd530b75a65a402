package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0", cfg.ChromePort)
	assert.False(t, cfg.Visible)
	assert.Empty(t, cfg.ChromeArgs)
	assert.Equal(t, 600*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.PollInterval)
	assert.True(t, cfg.Redact)
	assert.Empty(t, cfg.TranscriptDir)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestParseChromeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   \t ", nil},
		{"single", "--no-sandbox", []string{"--no-sandbox"}},
		{"mixed whitespace", " --a \t--b\n--c ", []string{"--a", "--b", "--c"}},
		{"encoded space", "--user-agent=My%20Agent%20v1 --x", []string{"--user-agent=My Agent v1", "--x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseChromeArgs(tt.in))
		})
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ROOT_URL", "http://localhost:3000/")
	t.Setenv("TEST_BROWSER_VISIBLE", "1")
	t.Setenv("TEST_CHROME_ARGS", "--no-sandbox --window-size=800,600 --lang=en%20US")
	t.Setenv("TEST_BROWSER_TIMEOUT", "90s")
	t.Setenv("TEST_BROWSER_TRANSCRIPT_DIR", "/tmp/transcripts")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/", cfg.RootURL)
	assert.True(t, cfg.Visible)
	assert.Equal(t, []string{"--no-sandbox", "--window-size=800,600", "--lang=en US"}, cfg.ChromeArgs)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "0", cfg.ChromePort)
	assert.Equal(t, "/tmp/transcripts", cfg.TranscriptDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.False(t, cfg.Visible)
	assert.Nil(t, cfg.ChromeArgs)
	assert.Equal(t, 600*time.Second, cfg.Timeout)
	assert.True(t, cfg.Redact)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
root_url: http://127.0.0.1:4000/
port: "9333"
poll_interval: 25ms
redact: false
transcript_dir: ./transcripts
logger:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4000/", cfg.RootURL)
	assert.Equal(t, "9333", cfg.ChromePort)
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.Redact)
	assert.Equal(t, "./transcripts", cfg.TranscriptDir)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestTruthy(t *testing.T) {
	for _, s := range []string{"1", "true", "TRUE", "yes", "anything"} {
		assert.True(t, truthy(s), s)
	}
	for _, s := range []string{"", " ", "0", "false", "False", "no", "off"} {
		assert.False(t, truthy(s), s)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.RootURL = "http://localhost:3000"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"file url", func(c *Config) { c.RootURL = "file:///tmp/index.html" }, ""},
		{"missing url", func(c *Config) { c.RootURL = "" }, "root URL is required"},
		{"bad scheme", func(c *Config) { c.RootURL = "ftp://example.com" }, "unsupported scheme"},
		{"unparseable url", func(c *Config) { c.RootURL = "http://[::1" }, "invalid root URL"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"negative interval", func(c *Config) { c.PollInterval = -time.Second }, "poll interval"},
		{"no port", func(c *Config) { c.ChromePort = "" }, "chrome port"},
		{"port not a number", func(c *Config) { c.ChromePort = "auto" }, "chrome port"},
		{"port out of range", func(c *Config) { c.ChromePort = "70000" }, "chrome port"},
		{"fixed port", func(c *Config) { c.ChromePort = "9222" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
