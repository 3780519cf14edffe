package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const maxLockRetries = 2

// executeInTransaction runs fn inside a transaction, retrying when SQLite
// reports lock contention.
func (s *SQLStore) executeInTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxLockRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}

		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isLockError(err) {
			return err
		}
		lastErr = err
		s.log.Warnw("Database locked, retrying", "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("failed after %d attempts: %w", maxLockRetries, lastErr)
}

func (s *SQLStore) runTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db transaction failed: %w", err)
	}

	// Rollback transaction on panic
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// isLockError checks if the error is due to database lock contention
func isLockError(err error) bool {
	return strings.Contains(err.Error(), "locked") ||
		strings.Contains(err.Error(), "busy")
}
