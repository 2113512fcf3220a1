// Package lot models purchased, expiring overage credit packs.
package lot

import (
	"fmt"
	"time"

	"go.jetify.com/typeid/v2"

	"github.com/kailas-cloud/quotagate/internal/domain"
)

// idPrefix is the TypeID prefix of credit lot ids ("lot_01h...").
const idPrefix = "lot"

// Status is the lot lifecycle state.
type Status string

const (
	// StatusActive lots may be drawn from while unexpired.
	StatusActive Status = "active"
	// StatusExpired lots were marked by the expiry sweep.
	StatusExpired Status = "expired"
)

// Lot is a credit pack. Invariant: 0 <= remaining <= quantity.
type Lot struct {
	id             string
	accountID      string
	resource       domain.ResourceType
	quantity       int64
	remaining      int64
	purchasedAt    time.Time
	expiresAt      time.Time
	status         Status
	idempotencyKey string
	version        int64
}

// NewID generates a sortable lot id.
func NewID() (string, error) {
	tid, err := typeid.Generate(idPrefix)
	if err != nil {
		return "", fmt.Errorf("generate lot id: %w", err)
	}
	return tid.String(), nil
}

// ValidID reports whether s is a well-formed lot id.
func ValidID(s string) bool {
	tid, err := typeid.Parse(s)
	return err == nil && tid.Prefix() == idPrefix
}

// New validates and creates an active full Lot.
// quantity must be positive and expiresAt must be after now.
func New(
	accountID string, resource domain.ResourceType, quantity int64,
	expiresAt, now time.Time, idempotencyKey string,
) (Lot, error) {
	if accountID == "" {
		return Lot{}, fmt.Errorf("%w: account id is required", domain.ErrInvalidLot)
	}
	if !resource.IsValid() {
		return Lot{}, fmt.Errorf("%w: unknown resource type %q", domain.ErrInvalidLot, resource)
	}
	if quantity <= 0 {
		return Lot{}, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidLot, quantity)
	}
	if !expiresAt.After(now) {
		return Lot{}, fmt.Errorf("%w: expires_at must be in the future", domain.ErrInvalidLot)
	}
	if idempotencyKey == "" {
		return Lot{}, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidLot)
	}
	id, err := NewID()
	if err != nil {
		return Lot{}, err
	}
	return Lot{
		id:             id,
		accountID:      accountID,
		resource:       resource,
		quantity:       quantity,
		remaining:      quantity,
		purchasedAt:    now.UTC(),
		expiresAt:      expiresAt.UTC(),
		status:         StatusActive,
		idempotencyKey: idempotencyKey,
	}, nil
}

// Reconstruct creates a Lot without validation (storage hydration).
func Reconstruct(
	id, accountID string, resource domain.ResourceType,
	quantity, remaining int64, purchasedAt, expiresAt time.Time,
	status Status, idempotencyKey string, version int64,
) Lot {
	return Lot{
		id:             id,
		accountID:      accountID,
		resource:       resource,
		quantity:       quantity,
		remaining:      remaining,
		purchasedAt:    purchasedAt.UTC(),
		expiresAt:      expiresAt.UTC(),
		status:         status,
		idempotencyKey: idempotencyKey,
		version:        version,
	}
}

// ID returns the lot id.
func (l Lot) ID() string { return l.id }

// AccountID returns the owning account.
func (l Lot) AccountID() string { return l.accountID }

// Resource returns the metered resource the lot covers.
func (l Lot) Resource() domain.ResourceType { return l.resource }

// Quantity returns the purchased amount.
func (l Lot) Quantity() int64 { return l.quantity }

// Remaining returns units still available.
func (l Lot) Remaining() int64 { return l.remaining }

// PurchasedAt returns the purchase time.
func (l Lot) PurchasedAt() time.Time { return l.purchasedAt }

// ExpiresAt returns the expiry time.
func (l Lot) ExpiresAt() time.Time { return l.expiresAt }

// Status returns the stored status. Use Usable for enforcement.
func (l Lot) Status() Status { return l.status }

// IdempotencyKey returns the payment key the lot was created under.
func (l Lot) IdempotencyKey() string { return l.idempotencyKey }

// Version returns the compare-and-swap token.
func (l Lot) Version() int64 { return l.version }

// Usable reports whether the lot can satisfy reservations at now,
// independent of whether the expiry sweep has run.
func (l Lot) Usable(now time.Time) bool {
	return l.status == StatusActive && l.expiresAt.After(now) && l.remaining > 0
}

// Draw returns the lot with remaining changed by -delta (negative delta credits back).
// The result is rejected, never clamped, when it would leave [0, quantity].
func (l Lot) Draw(delta int64) (Lot, error) {
	next := l
	next.remaining -= delta
	if next.remaining < 0 {
		return Lot{}, domain.NewInvariantViolation("lot", l.id, next.remaining, 0)
	}
	if next.remaining > l.quantity {
		return Lot{}, domain.NewInvariantViolation("lot", l.id, next.remaining, l.quantity)
	}
	return next, nil
}

// Expire returns the lot marked expired.
func (l Lot) Expire() Lot {
	l.status = StatusExpired
	return l
}
