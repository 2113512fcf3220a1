package lots

import (
	"context"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
)

// Repository persists credit lots.
type Repository interface {
	Create(ctx context.Context, l domlot.Lot) (domlot.Lot, bool, error)
	Get(ctx context.Context, id string) (domlot.Lot, error)
	ListActive(ctx context.Context, accountID string, resource domain.ResourceType, now time.Time) ([]domlot.Lot, error)
	ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
}
