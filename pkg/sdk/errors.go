package quotagate

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound            = domain.ErrNotFound
	ErrInvalidRequest      = domain.ErrInvalidRequest
	ErrUnknownPlan         = domain.ErrUnknownPlan
	ErrUnknownAccount      = domain.ErrUnknownAccount
	ErrAccountSuspended    = domain.ErrAccountSuspended
	ErrQuotaExhausted      = domain.ErrQuotaExhausted
	ErrIdempotencyConflict = domain.ErrIdempotencyConflict
	ErrInvariantViolation  = domain.ErrInvariantViolation
	ErrInvalidLot          = domain.ErrInvalidLot
	ErrContention          = domain.ErrContention
)

// ErrTransient is returned by Guard when optimistic retries were exhausted.
// The caller may retry the whole operation.
var ErrTransient = errors.New("quotagate: transient failure, retry later")

// DeniedError is returned by Guard when the reservation was denied.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("quotagate: reservation %s denied: %s", e.Decision.CorrelationID, e.Decision.Reason)
}

// Unwrap maps the denial reason to a sentinel, so
// errors.Is(err, ErrQuotaExhausted) holds for an exhausted quota.
func (e *DeniedError) Unwrap() error { return consumption.Reason(e.Decision.Reason).Err() }
