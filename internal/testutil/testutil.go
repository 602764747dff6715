// Package testutil provides PostgreSQL and Redis fixtures for integration tests.
//
// Tests skip when the infrastructure is unreachable. Set TEST_REQUIRE_DB, TEST_REQUIRE_REDIS or
// TEST_REQUIRE_INFRA to turn those skips into failures in CI.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/refresh-orchestrator/internal/migrate"
)

const (
	dbProbeTimeout   = 2 * time.Second
	dbSetupTimeout   = 10 * time.Second
	dbCleanupTimeout = 30 * time.Second
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestDBConfig holds configuration for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to 55432, the local
// docker-compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "refresh"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "refresh"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "refresh_orchestrator"),
	}
}

func buildBaseDSN(cfg TestDBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.DBName,
	}
	q := u.Query()
	q.Set("sslmode", getEnvOrDefault("DB_SSL_MODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// Child tables first so foreign keys hold.
var cleanupTables = []string{
	"refresh_job_runs",
	"refresh_jobs",
	"database_query_parameters",
	"database_queries",
	"organizations",
}

// SkipIfNoTestDB skips the test when the test database does not answer a ping.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", buildBaseDSN(DefaultTestDBConfig()))
	if err == nil {
		defer closeAndLog(t, "probe DB", db)
		ctx, cancel := context.WithTimeout(context.Background(), dbProbeTimeout)
		defer cancel()
		err = db.PingContext(ctx)
	}
	if err != nil {
		if requireDB() {
			t.Fatal("Test database not available:", err)
		}
		t.Skip("Test database not available:", err)
	}
}

// SetupTestDB connects to the shared test database, applies migrations and empties every table.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db := openPinged(t, buildBaseDSN(DefaultTestDBConfig()))
	migrateOrFail(t, db)
	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB removes all rows written by the refresh schema.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), dbCleanupTimeout)
	defer cancel()

	for _, table := range cleanupTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("Failed to clean up table %s: %v", table, err)
		}
	}
}

// SetupEphemeralSchemaDB migrates a fresh schema that is dropped when the test ends.
// Parallel packages then never see each other's rows.
func SetupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	base := buildBaseDSN(DefaultTestDBConfig())
	admin := openPinged(t, base)
	schema := generateSchemaName()

	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		closeAndLog(t, "admin DB", admin)
		t.Fatalf("Failed to create schema %s: %v", schema, err)
	}

	u, err := url.Parse(base)
	if err != nil {
		closeAndLog(t, "admin DB", admin)
		t.Fatal("Failed to parse DSN:", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db := openPinged(t, u.String())
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	t.Logf("Using ephemeral schema: %s", schema)
	onCleanup(t, func() {
		closeAndLog(t, "schema DB", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), dbSetupTimeout)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("Warning: failed to drop schema %s: %v", schema, err)
		}
		closeAndLog(t, "admin DB", admin)
	})

	migrateOrFail(t, db)
	return db
}

// WithAutoDB hands fn an ephemeral schema when TEST_DB_EPHEMERAL is truthy and the
// cleaned shared database otherwise.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(SetupEphemeralSchemaDB(t))
		return
	}
	db := SetupTestDB(t)
	defer func() {
		CleanupTestDB(t, db)
		closeAndLog(t, "test DB", db)
	}()
	fn(db)
}

func openPinged(t TestingTB, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		closeAndLog(t, "DB", db)
		t.Fatal("Failed to connect to test database. Make sure PostgreSQL is running (docker compose up -d):", err)
	}
	return db
}

func migrateOrFail(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}
}

// generateSchemaName returns t_ followed by eight random hex digits.
func generateSchemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

// onCleanup registers fn with t when it supports Cleanup and leaves it unregistered otherwise.
func onCleanup(t TestingTB, fn func()) {
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(fn)
	}
}

func closeAndLog(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: failed to close %s: %v", name, err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }

// TestTime returns the fixed instant integration tests start from.
func TestTime() time.Time {
	return time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC)
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// RunStateInfo is a refresh job run row as stored.
type RunStateInfo struct {
	ID           string
	RefreshJobID string
	Status       string
	FireKey      *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InspectRunStates returns every refresh job run in the database, oldest first.
func InspectRunStates(t TestingTB, db *sql.DB) []RunStateInfo {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, refresh_job_id, status, fire_key, created_at, updated_at
		FROM refresh_job_runs
		ORDER BY created_at, id`)
	if err != nil {
		t.Fatalf("Failed to query run states: %v", err)
	}
	defer closeAndLog(t, "run state rows", rows)

	var runs []RunStateInfo
	for rows.Next() {
		var r RunStateInfo
		if err := rows.Scan(&r.ID, &r.RefreshJobID, &r.Status, &r.FireKey, &r.CreatedAt, &r.UpdatedAt); err != nil {
			t.Fatalf("Failed to scan run state: %v", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Error iterating over run states: %v", err)
	}
	return runs
}

// LogRunStates logs every run, for debugging a failing integration test.
func LogRunStates(t TestingTB, db *sql.DB, message string) {
	t.Helper()

	t.Logf("=== %s ===", message)
	for i, r := range InspectRunStates(t, db) {
		fireKey := "-"
		if r.FireKey != nil {
			fireKey = *r.FireKey
		}
		t.Logf("Run %d: ID=%s Job=%s Status=%s FireKey=%s UpdatedAt=%s",
			i+1, r.ID, r.RefreshJobID, r.Status, fireKey, r.UpdatedAt.Format(time.RFC3339))
	}
	t.Logf("=== End %s ===", message)
}
