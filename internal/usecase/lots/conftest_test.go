package lots

import (
	"context"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
)

type mockRepo struct {
	createFn      func(ctx context.Context, l domlot.Lot) (domlot.Lot, bool, error)
	getFn         func(ctx context.Context, id string) (domlot.Lot, error)
	listActiveFn  func(ctx context.Context, accountID string, res domain.ResourceType, now time.Time) ([]domlot.Lot, error)
	expiredIDsFn  func(ctx context.Context, now time.Time, limit int) ([]string, error)
	markExpiredFn func(ctx context.Context, id string) (bool, error)
}

func (m *mockRepo) Create(ctx context.Context, l domlot.Lot) (domlot.Lot, bool, error) {
	return m.createFn(ctx, l)
}

func (m *mockRepo) Get(ctx context.Context, id string) (domlot.Lot, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) ListActive(
	ctx context.Context, accountID string, res domain.ResourceType, now time.Time,
) ([]domlot.Lot, error) {
	return m.listActiveFn(ctx, accountID, res, now)
}

func (m *mockRepo) ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return m.expiredIDsFn(ctx, now, limit)
}

func (m *mockRepo) MarkExpired(ctx context.Context, id string) (bool, error) {
	return m.markExpiredFn(ctx, id)
}
