package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expendables/internal/core"

	_ "modernc.org/sqlite"
)

// txAttempts bounds automatic retries of a transaction that hit a
// transient busy/locked condition before ErrStorageUnavailable surfaces.
const txAttempts = 3

// LedgerRepository owns the SQLite database. All mutating operations go
// through InTx so that every logical operation is one atomic transaction.
type LedgerRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewLedgerRepository(dbPath string) (*LedgerRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows a single writer; funneling all access through one
	// connection removes in-process busy contention entirely.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &LedgerRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *LedgerRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Queries returns the non-transactional query set for plain reads.
func (r *LedgerRepository) Queries() *Queries {
	return r.queries
}

// InTx runs fn inside a single transaction. Busy/locked failures are
// retried a bounded number of times with a short backoff; when retries
// are exhausted the error wraps core.ErrStorageUnavailable so callers
// know the operation is safe to retry with the same idempotency key.
// Domain errors from fn roll the transaction back untouched.
func (r *LedgerRepository) InTx(ctx context.Context, fn func(q *Queries) error) error {
	var lastErr error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "Retrying ledger transaction",
				"attempt", attempt+1, "error", lastErr)
			select {
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, lastErr)
}

func (r *LedgerRepository) runTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
