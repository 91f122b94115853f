package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/arklim/workforce-biometric/internal/infra/config"
)

func TestEmbeddedMigrationsCarryGooseAnnotations(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for _, entry := range entries {
		body, err := fs.ReadFile(migrations, migrationsDir+"/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		text := string(body)
		if !strings.Contains(text, "-- +goose Up") || !strings.Contains(text, "-- +goose Down") {
			t.Fatalf("%s is missing goose annotations", entry.Name())
		}
	}
}

func TestInitialMigrationCreatesEngineTables(t *testing.T) {
	body, err := fs.ReadFile(migrations, migrationsDir+"/00001_init.sql")
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	for _, table := range []string{
		"biometric.biometric_profiles",
		"biometric.identity_security_states",
		"biometric.verification_logs",
		"biometric.device_fingerprints",
		"biometric.audit_events",
		"biometric.rate_limit_attempts",
	} {
		if !strings.Contains(string(body), "CREATE TABLE "+table) {
			t.Fatalf("initial migration does not create %s", table)
		}
	}
}

func TestDSN(t *testing.T) {
	got := DSN(config.PostgresSettings{
		Host:     "db",
		Port:     5432,
		User:     "biometric",
		Password: "secret",
		Database: "workforce",
		SSLMode:  "disable",
	})
	if got != "postgres://biometric:secret@db:5432/workforce?sslmode=disable" {
		t.Fatalf("unexpected dsn: %s", got)
	}
}
