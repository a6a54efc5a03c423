package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmerrifield20/ethosguard/internal/config"
)

func TestLoad_defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load(config.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Backend != config.BackendMemory {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != 24*time.Hour || cfg.AuditInterval != time.Minute {
		t.Errorf("unexpected durations: ttl=%s interval=%s", cfg.TokenTTL, cfg.AuditInterval)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be disabled without a secret")
	}
	if cfg.ConfigFile != "" {
		t.Errorf("expected no config file, got %q", cfg.ConfigFile)
	}
}

func TestLoad_envOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ETHOSGUARD_LEDGER_BACKEND", "SQLite")
	t.Setenv("ETHOSGUARD_SERVER_PORT", "9090")
	t.Setenv("ETHOSGUARD_AUTH_TOKEN_SECRET", "0123456789abcdef")

	cfg, err := config.Load(config.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != config.BackendSQLite || cfg.Port != 9090 || !cfg.AuthEnabled() {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoad_file(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := "ledger:\n  backend: postgres\naudit:\n  interval: 30s\n"
	if err := os.WriteFile(filepath.Join(dir, "ethosguard.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(config.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != config.BackendPostgres || cfg.AuditInterval != 30*time.Second {
		t.Errorf("file not applied: %+v", cfg)
	}
	if filepath.Base(cfg.ConfigFile) != "ethosguard.yaml" {
		t.Errorf("unexpected config file %q", cfg.ConfigFile)
	}
}

func TestValidate(t *testing.T) {
	base, err := config.Load(config.New())
	if err != nil {
		t.Fatal(err)
	}

	bad := base
	bad.Backend = "mongo"
	if bad.Validate() == nil {
		t.Error("expected error for unknown backend")
	}

	bad = base
	bad.TokenSecret = "short"
	if bad.Validate() == nil {
		t.Error("expected error for short secret")
	}

	bad = base
	bad.Port = 0
	if bad.Validate() == nil {
		t.Error("expected error for port 0")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
