package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ledger-market/backend/internal/models"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how many times a conflicting atomic unit is run again.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(time.Second, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Run calls fn until it succeeds, fails with anything other than
// ErrConcurrencyConflict, or runs out of attempts. The last conflict is returned as is.
func (p RetryPolicy) Run(ctx context.Context, onConflict func(attempt int, err error), fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && errors.Is(err, models.ErrConcurrencyConflict) {
			if onConflict != nil {
				onConflict(attempt, err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
}
