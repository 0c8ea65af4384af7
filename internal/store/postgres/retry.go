package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"carebridge/backend/internal/store"
)

// RetryPolicy reruns an operation that failed with a transient database
// error. The whole operation, including its transaction, is repeated.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	OnRetry   func(operation string, attempt int, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 25 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, fails permanently, or the attempts are spent.
// Exhausted transient failures are returned wrapped in store.ErrUnavailable.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, operation, ctx.Err())
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(operation, attempt, err)
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, operation, ctx.Err())
			case <-timer.C:
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}
	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, operation, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err)
}
