package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	contents := `
server:
  host: 127.0.0.1
  port: 9090
database:
  driver: postgres
  dsn: "host=db dbname=app user=app"
resolver:
  cache_ttl: 5m
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Fatalf("expected overridden server config, got %+v", cfg.Server)
	}
	if cfg.Database.DSN != "host=db dbname=app user=app" {
		t.Fatalf("expected overridden dsn, got %q", cfg.Database.DSN)
	}
	if cfg.RateLimit.RequestsPerSecond != 50 {
		t.Fatalf("expected default rate limit to survive partial override, got %d", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadServiceFileRequiresPathAndService(t *testing.T) {
	os.Unsetenv("PGSERVICEFILE")
	os.Unsetenv("PGSERVICE")
	if _, err := LoadServiceFile("", ""); err == nil {
		t.Fatalf("expected error when neither path nor PGSERVICEFILE set")
	}
}

func TestLoadServiceFileReadsNamedSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pg_service.conf")
	contents := "[reporting]\nhost=db.internal\nport=5432\ndbname=reports\nuser=svc_reports\napplication_name=rpcgateway\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write service file: %v", err)
	}

	entry, err := LoadServiceFile(path, "reporting")
	if err != nil {
		t.Fatalf("LoadServiceFile: %v", err)
	}
	if entry.Host != "db.internal" || entry.Port != 5432 || entry.DBName != "reports" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	dsn := entry.DSN()
	if dsn == "" {
		t.Fatalf("expected non-empty DSN")
	}
}
