package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"monarch"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config Validate() error = %v", err)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
id: com.example.editor
health: false
send:
  attempts: 3
  retry_delay: 250ms
receive:
  read_timeout: 2s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	want.ID = "com.example.editor"
	want.Health = false
	want.Send.Attempts = 3
	want.Send.RetryDelay = 250 * time.Millisecond
	want.Receive.ReadTimeout = 2 * time.Second
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("send: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.ID = "org.example.viewer"
	cfg.RuntimeDir = "/run/user/1000/monarch"
	cfg.Send.RedirectTimeout = 2 * time.Second

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestPath_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got, want := Path(), "/tmp/xdg/monarch/config.yaml"; got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "bad id", mutate: func(c *Config) { c.ID = "1app" }, wantErr: "id:"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "zero attempts", mutate: func(c *Config) { c.Send.Attempts = 0 }, wantErr: "send.attempts"},
		{name: "negative delay", mutate: func(c *Config) { c.Send.RetryDelay = -time.Second }, wantErr: "send.retry_delay"},
		{name: "zero read timeout", mutate: func(c *Config) { c.Receive.ReadTimeout = 0 }, wantErr: "receive.read_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_BadIDWrapsIdentityError(t *testing.T) {
	cfg := Default()
	cfg.ID = "ab"
	var idErr *monarch.IdentityError
	if err := cfg.Validate(); !errors.As(err, &idErr) || idErr.Rule != monarch.RuleTooShort {
		t.Fatalf("Validate() error = %v, want IdentityError(too-short)", err)
	}
}
