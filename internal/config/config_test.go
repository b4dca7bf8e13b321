package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("listen_addr = %s", cfg.Server.ListenAddr)
	}
	if !cfg.Worker.Enabled {
		t.Error("worker should default to enabled")
	}
	if cfg.Worker.PollInterval.Std() != 60*time.Second {
		t.Errorf("poll_interval = %v", cfg.Worker.PollInterval.Std())
	}
	if cfg.Worker.BatchSize != 50 {
		t.Errorf("batch_size = %d", cfg.Worker.BatchSize)
	}
	if cfg.Worker.ClaimGrace.Std() != 5*time.Minute {
		t.Errorf("claim_grace = %v", cfg.Worker.ClaimGrace.Std())
	}
	if cfg.Sender.Provider != "sandbox" {
		t.Errorf("provider = %s", cfg.Sender.Provider)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9000"
  api_key: topsecret
database:
  path: /tmp/test.db
worker:
  enabled: false
  poll_interval: 30s
  batch_size: 10
  claim_grace: 2m
sender:
  provider: http
  http:
    base_url: https://gateway.example.com
    api_key: provider-key
    timeout: 10s
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.APIKey != "topsecret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Worker.Enabled {
		t.Error("worker.enabled should be false")
	}
	if cfg.Worker.PollInterval.Std() != 30*time.Second {
		t.Errorf("poll_interval = %v", cfg.Worker.PollInterval.Std())
	}
	if cfg.Sender.HTTP.Timeout.Std() != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Sender.HTTP.Timeout.Std())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  api_key: from-file
database:
  path: /tmp/test.db
`)

	t.Setenv("SALESFLOW_API_KEY", "from-env")
	t.Setenv("SALESFLOW_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIKey != "from-env" {
		t.Errorf("api_key = %s, want env override", cfg.Server.APIKey)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %s", cfg.Database.Path)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "http provider without base url",
			content: `
sender:
  provider: http
`,
		},
		{
			name: "smtp provider without addr",
			content: `
sender:
  provider: smtp
  smtp:
    from: crm@example.com
`,
		},
		{
			name: "smtp provider without from",
			content: `
sender:
  provider: smtp
  smtp:
    addr: relay:587
`,
		},
		{
			name: "unknown provider",
			content: `
sender:
  provider: carrier-pigeon
`,
		},
		{
			name: "invalid duration",
			content: `
worker:
  poll_interval: soon
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected Load() to fail")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
