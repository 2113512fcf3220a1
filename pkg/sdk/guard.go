package quotagate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultGuardAttempts  = 3
	guardInitialRetryWait = 20 * time.Millisecond
	guardMaxRetryWait     = 250 * time.Millisecond
)

// GuardOption configures one Guard call.
type GuardOption func(*guardConfig)

type guardConfig struct {
	correlationID string
	attempts      int
}

// WithCorrelationID reserves under id instead of a fresh one. Reuse the id of
// a job when Guard itself may be retried, so a reservation that landed before
// a lost response is replayed rather than charged twice.
func WithCorrelationID(id string) GuardOption {
	return func(g *guardConfig) { g.correlationID = id }
}

// WithTransientRetries sets how many times a transient reservation is
// attempted under the same correlation id. n < 1 means one attempt.
func WithTransientRetries(n int) GuardOption {
	return func(g *guardConfig) { g.attempts = n }
}

// Guard reserves amount units, runs fn, and releases the reservation if fn fails.
//
// A transient outcome is retried with the same correlation id before
// ErrTransient is returned. A denial returns *DeniedError and fn is not called.
// If fn fails its error is returned, joined with the release error if the
// release failed too.
func (c *Client) Guard(
	ctx context.Context, accountID string, res Resource, amount int64,
	fn func(ctx context.Context) error, opts ...GuardOption,
) error {
	g := guardConfig{attempts: defaultGuardAttempts}
	for _, o := range opts {
		o(&g)
	}
	if g.correlationID == "" {
		g.correlationID = c.newID()
	}
	if g.attempts < 1 {
		g.attempts = 1
	}
	id := g.correlationID

	d, err := c.reserveWithRetry(ctx, ReserveRequest{
		AccountID:     accountID,
		Resource:      res,
		Amount:        amount,
		CorrelationID: id,
	}, g.attempts)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &DeniedError{Decision: d}
	}

	workErr := fn(ctx)
	if workErr == nil {
		return nil
	}
	// Release even if ctx was canceled.
	if _, err := c.Release(context.WithoutCancel(ctx), id); err != nil {
		return errors.Join(workErr, fmt.Errorf("release %s: %w", id, err))
	}
	return workErr
}

func (c *Client) reserveWithRetry(ctx context.Context, req ReserveRequest, attempts int) (Decision, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = guardInitialRetryWait
	b.MaxInterval = guardMaxRetryWait

	d, err := backoff.Retry(ctx, func() (Decision, error) {
		d, err := c.Reserve(ctx, req)
		if err != nil {
			return Decision{}, backoff.Permanent(err)
		}
		if d.Outcome == OutcomeTransient {
			return d, ErrTransient
		}
		return d, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(attempts)))
	if errors.Is(err, ErrTransient) {
		return Decision{}, ErrTransient
	}
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}
