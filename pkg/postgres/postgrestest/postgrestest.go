// Package postgrestest provides a Postgres client for tests that skips when
// no database is reachable.
package postgrestest

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres"
	"github.com/google/uuid"
)

// New connects to the database described by the TEST_POSTGRES_* variables
// and returns a client bound to a fresh schema holding empty index tables.
// Each test gets its own schema, so packages can run in parallel against
// one database. The test is skipped when no database is reachable.
func New(t testing.TB) *postgres.Client {
	t.Helper()
	cfg := Config()
	admin, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ctx := t.Context()
	if _, err := admin.DB.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := admin.DB.ExecContext(ctx, `DROP SCHEMA `+schema+` CASCADE`); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	cfg.SearchPath = schema
	db, err := postgres.New(cfg)
	if err != nil {
		t.Fatalf("connect to schema %s: %v", schema, err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

// Config returns the connection settings used by New.
func Config() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "search_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "search"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
