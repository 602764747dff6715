package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// activeOnly is the soft-delete predicate applied to every read of owned records.
const activeOnly = "deleted_at IS NULL"

// Advisory lock namespace for refresh run maintenance.
// Two-arg pg_try_advisory_xact_lock(major, minor) keeps these apart from other users of the database.
const (
	advisoryLockRunsMajor     = 2100
	advisoryLockRunsTimeout   = 1 // minor key for TimeoutStale
	advisoryLockRunsRetention = 2 // minor key for DeleteTerminalRuns
)

// typeMap decodes Postgres arrays through the database/sql bridge.
var typeMap = pgtype.NewMap()

func textArray(dst *[]string) sql.Scanner {
	return typeMap.SQLScanner(dst)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// tryAdvisoryXactLock takes a transaction-scoped advisory lock without waiting.
func tryAdvisoryXactLock(ctx context.Context, tx *sql.Tx, minor int) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockRunsMajor, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return locked, nil
}
