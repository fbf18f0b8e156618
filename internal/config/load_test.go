package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labstore.yaml")
	data := []byte("database:\n  host: db.lab.local\n  password: secret\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "db.lab.local" {
		t.Errorf("host = %q", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 || cfg.Database.User != "postgres" {
		t.Errorf("defaults not applied: %+v", cfg.Database)
	}
	if cfg.Database.AdminDB != "postgres" || cfg.Database.SSLMode != "disable" {
		t.Errorf("defaults not applied: %+v", cfg.Database)
	}
	if cfg.Env != "development" {
		t.Errorf("env = %q", cfg.Env)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	d := Database{Host: "h", Port: 5433, User: "u", Password: "p", SSLMode: "require"}
	got := d.DSN("proj_demo")
	want := "host=h port=5433 user=u password=p dbname=proj_demo sslmode=require"
	if got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
