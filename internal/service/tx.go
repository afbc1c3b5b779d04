package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// withTx runs fn inside one transaction and rolls back on any error.
func withTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit transaction")
	}
	return nil
}

// keyLocker serialises mutations on one aggregate key.
type keyLocker struct {
	mu      *lock.KeyedMutex
	timeout time.Duration
}

func newKeyLocker(mu *lock.KeyedMutex, timeout time.Duration) keyLocker {
	if mu == nil {
		mu = lock.NewKeyedMutex()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return keyLocker{mu: mu, timeout: timeout}
}

func (l keyLocker) acquire(ctx context.Context, key string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	unlock, err := l.mu.Lock(lockCtx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStateConflict.Code, appErrors.ErrStateConflict.Status, "resource busy, retry later")
		}
		return nil, appErrors.Internal(err, "lock acquisition cancelled")
	}
	return unlock, nil
}

// notFoundAs maps sql.ErrNoRows to tmpl, anything else to an internal error.
func notFoundAs(err error, tmpl *appErrors.Error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(tmpl, message)
	}
	return appErrors.Internal(err, message)
}
