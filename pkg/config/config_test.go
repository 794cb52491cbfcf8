package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes yamlContent to a config.yaml in a temp dir and returns its path.
func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// clearEnv unsets variables that would leak into the test from the host.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PGHOST", "BASE_URL", "PORT", "ENVIRONMENT", "REDIS_HOST", "SESSION_SECRET",
		"SESSION_STORE", "WORKFLOW_SUBMIT_TIMEOUT", "METRICS_PATH",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	yamlContent := `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
redis:
  host: "redis.example.com"
  port: 6379
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Change to temp directory so Load() finds config.yaml
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:4443" {
		t.Errorf("expected BaseURL=http://localhost:4443 (auto-derived from PORT), got %s", cfg.BaseURL)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Redis.Addr() != "redis.example.com:6379" {
		t.Errorf("expected Redis.Addr()=redis.example.com:6379, got %s", cfg.Redis.Addr())
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(writeConfig(t, "env: \"local\"\n"), "dev")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Workflow.SubmitTimeout != 30*time.Second {
		t.Errorf("expected default submit timeout 30s, got %s", cfg.Workflow.SubmitTimeout)
	}
	if cfg.Workflow.FilterPrefix != "cleansing" {
		t.Errorf("expected default filter prefix cleansing, got %s", cfg.Workflow.FilterPrefix)
	}
	if cfg.Session.Store != "cookie" {
		t.Errorf("expected default session store cookie, got %s", cfg.Session.Store)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected metrics enabled at /metrics, got %v %s", cfg.Metrics.Enabled, cfg.Metrics.Path)
	}
	if cfg.Redis.Host != "" {
		t.Errorf("expected redis disabled by default, got host %q", cfg.Redis.Host)
	}
}

func TestLoad_WorkflowFromYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(writeConfig(t, `
env: "local"
workflow:
  submit_timeout: 5s
  filter_prefix: "import-42"
`), "dev")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Workflow.SubmitTimeout != 5*time.Second {
		t.Errorf("expected submit timeout 5s, got %s", cfg.Workflow.SubmitTimeout)
	}
	if cfg.Workflow.FilterPrefix != "import-42" {
		t.Errorf("expected filter prefix import-42, got %s", cfg.Workflow.FilterPrefix)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "dev")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "redis session store needs redis",
			yaml:    "env: \"local\"\nsession:\n  store: \"redis\"\n",
			wantErr: "requires redis.host",
		},
		{
			name:    "unknown session store",
			yaml:    "env: \"local\"\nsession:\n  store: \"memcached\"\n",
			wantErr: "unknown session store",
		},
		{
			name:    "production requires a session secret",
			yaml:    "env: \"production\"\n",
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "metrics path must be absolute",
			yaml:    "env: \"local\"\nmetrics:\n  path: \"metrics\"\n",
			wantErr: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeConfig(t, tt.yaml), "dev")
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_BaseURLExplicit(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(writeConfig(t, "env: \"local\"\nbase_url: \"https://cleansing.example.com\"\n"), "dev")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.BaseURL != "https://cleansing.example.com" {
		t.Errorf("expected explicit BaseURL, got %s", cfg.BaseURL)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	want := "host=h port=5433 user=u password=p dbname=d sslmode=require"
	if got := c.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
