package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownPlan signals a plan tier absent from the catalog.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrUnknownAccount signals a reservation for an account that is not registered.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrAccountSuspended signals a reservation for a suspended account.
	ErrAccountSuspended = errors.New("account suspended")

	// ErrQuotaExhausted signals that plan allowance and credit lots cannot cover a request.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrContention signals that optimistic retries were exhausted.
	ErrContention = errors.New("contention: retries exhausted")
	// ErrIdempotencyConflict signals a reused correlation id with different arguments.
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	// ErrInvariantViolation signals a counter that would leave its legal range.
	ErrInvariantViolation = errors.New("internal invariant violation")
	// ErrInvalidLot signals a lot that fails validation (quantity, expiry).
	ErrInvalidLot = errors.New("invalid credit lot")
)

// InvariantViolationError wraps ErrInvariantViolation with the offending counter.
type InvariantViolationError struct {
	Target string // "plan" or a lot id
	Key    string
	Value  int64
	Limit  int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s %s would become %d (limit %d)",
		ErrInvariantViolation.Error(), e.Target, e.Key, e.Value, e.Limit)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

// NewInvariantViolation creates an invariant violation error.
func NewInvariantViolation(target, key string, value, limit int64) error {
	return &InvariantViolationError{Target: target, Key: key, Value: value, Limit: limit}
}
