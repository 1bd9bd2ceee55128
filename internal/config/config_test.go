package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Client.Parts != 4 {
		t.Errorf("expected default parts 4, got %d", cfg.Client.Parts)
	}
	if cfg.Client.Retry.Attempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Client.Retry.Attempts)
	}
	if cfg.Client.Retry.Backoff != time.Second {
		t.Errorf("expected default retry backoff 1s, got %v", cfg.Client.Retry.Backoff)
	}
	if cfg.Client.PollInterval != 5*time.Second {
		t.Errorf("expected default poll interval 5s, got %v", cfg.Client.PollInterval)
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("expected default max conns 64, got %d", cfg.Server.MaxConns)
	}
	if err := cfg.Server.Validate(); err != nil {
		t.Errorf("default server config invalid: %v", err)
	}
	if err := cfg.Client.Validate(); err != nil {
		t.Errorf("default client config invalid: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  listen: 0.0.0.0:7000
  dir: /srv/files
  max_conns: 0
client:
  address: files.local:7000
  parts: 8
  probe_timeout: 500ms
  retry:
    attempts: 5
    backoff: 2s
`
	configPath := filepath.Join(t.TempDir(), "partfetch.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:7000" || cfg.Server.Dir != "/srv/files" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.MaxConns != 0 {
		t.Errorf("expected max conns 0 (unbounded), got %d", cfg.Server.MaxConns)
	}
	if cfg.Client.Parts != 8 {
		t.Errorf("expected parts 8, got %d", cfg.Client.Parts)
	}
	if cfg.Client.ProbeTimeout != 500*time.Millisecond {
		t.Errorf("expected probe timeout 500ms, got %v", cfg.Client.ProbeTimeout)
	}
	if cfg.Client.Retry.Attempts != 5 || cfg.Client.Retry.Backoff != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Client.Retry)
	}
	// untouched keys keep their defaults
	if cfg.Client.PollInterval != 5*time.Second {
		t.Errorf("expected default poll interval to survive, got %v", cfg.Client.PollInterval)
	}
	if cfg.Client.Reconnect.Attempts != 3 {
		t.Errorf("expected default reconnect attempts to survive, got %d", cfg.Client.Reconnect.Attempts)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("client:\n  probe_timeout: soon\n"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARTFETCH_ADDRESS", "10.0.0.1:65432")
	t.Setenv("PARTFETCH_PARTS", "16")
	t.Setenv("PARTFETCH_POLL_INTERVAL", "1m")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Client.Address != "10.0.0.1:65432" || cfg.Client.Parts != 16 || cfg.Client.PollInterval != time.Minute {
		t.Errorf("client = %+v", cfg.Client)
	}

	t.Setenv("PARTFETCH_PARTS", "many")
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for non-numeric parts")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Client.Parts = 0
	if err := cfg.Client.Validate(); err == nil {
		t.Error("expected error for zero parts")
	}
	cfg = Default()
	cfg.Server.Dir = ""
	if err := cfg.Server.Validate(); err == nil {
		t.Error("expected error for empty dir")
	}
}
