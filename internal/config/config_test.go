package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %s, want :8080", cfg.Server.Address)
	}
	if cfg.Queue.Kind != "memory" || cfg.Store.Kind != "memory" {
		t.Fatalf("default backends wrong: queue=%s store=%s", cfg.Queue.Kind, cfg.Store.Kind)
	}
	if cfg.Workers.Count != 4 {
		t.Fatalf("worker count = %d, want 4", cfg.Workers.Count)
	}
	if cfg.Store.LeaseTTL != 30*time.Second {
		t.Fatalf("lease TTL = %s, want 30s", cfg.Store.LeaseTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`server:
  address: ":9090"
workers:
  count: 8
store:
  kind: memory
  leaseTTL: 45s
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("address = %s, want :9090", cfg.Server.Address)
	}
	if cfg.Workers.Count != 8 {
		t.Fatalf("worker count = %d, want 8", cfg.Workers.Count)
	}
	if cfg.Store.LeaseTTL != 45*time.Second {
		t.Fatalf("lease TTL = %s, want 45s", cfg.Store.LeaseTTL)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("metrics address = %s, want :2112", cfg.Server.MetricsAddress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DECISION_ENGINE_SERVER_ADDRESS", ":7070")
	t.Setenv("DECISION_ENGINE_LOG_LEVEL", "debug")
	t.Setenv("DECISION_ENGINE_LOG_FORMAT", "json")
	t.Setenv("DECISION_ENGINE_WORKER_COUNT", "2")
	t.Setenv("DECISION_ENGINE_STORE_LEASE_TTL", "1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("address = %s, want :7070", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Fatalf("logging override not applied: %+v", cfg.Logging)
	}
	if cfg.Workers.Count != 2 {
		t.Fatalf("worker count = %d, want 2", cfg.Workers.Count)
	}
	if cfg.Store.LeaseTTL != time.Minute {
		t.Fatalf("lease TTL = %s, want 1m", cfg.Store.LeaseTTL)
	}
}

func TestValidateRejectsIncompleteBackends(t *testing.T) {
	t.Setenv("DECISION_ENGINE_QUEUE_KIND", "redis")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected redis queue without addr to be rejected")
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	t.Setenv("DECISION_ENGINE_STORE_KIND", "cassandra")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected unknown store kind to be rejected")
	}
}
