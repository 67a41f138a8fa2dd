package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chatlens.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
base_url = "https://coach.example.com/"
`)

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
	if cfg.Server.BaseURL != "https://coach.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Server.BaseURL)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("unexpected request timeout: %s", cfg.RequestTimeout())
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.ProcessingTimeout() != 10*time.Minute {
		t.Fatalf("unexpected processing timeout: %s", cfg.ProcessingTimeout())
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Paths.LogDir != filepath.Join(cfg.Paths.StateDir, "logs") {
		t.Fatalf("expected log dir under state dir, got %q", cfg.Paths.LogDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	stateDir := t.TempDir()
	path := writeConfig(t, `
[server]
base_url = "http://localhost:8000"
request_timeout = 5

[paths]
state_dir = "`+stateDir+`"

[upload]
poll_interval = 7
processing_timeout = 120

[logging]
format = "json"
level = "debug"
`)

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("unexpected request timeout: %s", cfg.RequestTimeout())
	}
	if cfg.Paths.StateDir != stateDir {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.PollInterval() != 7*time.Second || cfg.ProcessingTimeout() != 2*time.Minute {
		t.Fatalf("unexpected upload settings: %+v", cfg.Upload)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "relative base url",
			mutate: func(c *Config) { c.Server.BaseURL = "coach.example.com" },
			want:   "absolute",
		},
		{
			name:   "unsupported scheme",
			mutate: func(c *Config) { c.Server.BaseURL = "ftp://coach.example.com" },
			want:   "scheme",
		},
		{
			name:   "zero poll interval",
			mutate: func(c *Config) { c.Upload.PollInterval = 0 },
			want:   "poll_interval",
		},
		{
			name: "timeout shorter than interval",
			mutate: func(c *Config) {
				c.Upload.PollInterval = 30
				c.Upload.ProcessingTimeout = 10
			},
			want: "processing_timeout",
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Logging.Format = "yaml" },
			want:   "logging.format",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			want:   "logging.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.BaseURL = "http://localhost:8000"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Server.BaseURL = "http://localhost:8000"
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	expanded, err := ExpandPath("~/chatlens-test")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if expanded != filepath.Join(home, "chatlens-test") {
		t.Fatalf("unexpected expansion: %s", expanded)
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := writeConfig(t, SampleConfig())

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if cfg.Server.BaseURL != "http://localhost:8000" {
		t.Fatalf("unexpected sample base url: %q", cfg.Server.BaseURL)
	}
}
