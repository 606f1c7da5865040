package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	txAttempts  = 4
	txBaseDelay = 20 * time.Millisecond
)

// transient reports whether a failed transaction may succeed if run again:
// serialization failures, deadlocks and lock timeouts.
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

// inTx runs fn in a transaction and commits it. Transient failures restart
// the whole transaction after a jittered, doubling delay, so fn must not keep
// state between calls other than its final result.
func (db *DB) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	delay := txBaseDelay
	for attempt := 1; ; attempt++ {
		err := pgx.BeginFunc(ctx, db.pool, fn)
		if err == nil || !transient(err) || attempt == txAttempts {
			return err
		}
		db.logger.Debug("storage: retrying transaction", "attempt", attempt, "error", err)

		wait := delay + time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter only
		select {
		case <-ctx.Done():
			return fmt.Errorf("storage: retry aborted: %w", ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
	}
}
