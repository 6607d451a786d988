package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Session.Backend != SessionBackendRedis {
		t.Errorf("expected redis session backend, got %s", cfg.Session.Backend)
	}
	if cfg.Session.CookieName != "grus_session" {
		t.Errorf("expected grus_session cookie, got %s", cfg.Session.CookieName)
	}
	if cfg.Matches.JoinRetries != 3 {
		t.Errorf("expected 3 join retries, got %d", cfg.Matches.JoinRetries)
	}
	if !cfg.Worker.Enabled {
		t.Error("expected worker enabled by default")
	}
	if cfg.Worker.Interval != time.Minute {
		t.Errorf("expected 1m worker interval, got %v", cfg.Worker.Interval)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("GRUS_TEST_DATABASE_URL", "postgres://u:p@db:5432/grus")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
postgres:
  url: ${GRUS_TEST_DATABASE_URL}
session:
  backend: memory
matches:
  timezone: UTC
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if got := cfg.Postgres.ConnectionString(); got != "postgres://u:p@db:5432/grus" {
		t.Errorf("expected expanded url, got %q", got)
	}
	if cfg.Session.Backend != SessionBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Session.Backend)
	}
	if len(cfg.Kafka.Brokers) != 2 || !cfg.Kafka.Enabled {
		t.Errorf("unexpected kafka config: %+v", cfg.Kafka)
	}
	if cfg.Kafka.Topic != "grus-match-events" {
		t.Errorf("expected default topic, got %s", cfg.Kafka.Topic)
	}
	if cfg.Matches.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Matches.Location())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConnectionStringFromFields(t *testing.T) {
	c := PostgresConfig{User: "grus", Password: "pw", Host: "localhost", Port: 5432, Database: "grus"}
	want := "postgres://grus:pw@localhost:5432/grus?sslmode=disable"
	if got := c.ConnectionString(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLocationFallback(t *testing.T) {
	c := MatchesConfig{Timezone: "Not/AZone"}
	if c.Location() != time.UTC {
		t.Error("expected UTC fallback for unknown timezone")
	}
}
