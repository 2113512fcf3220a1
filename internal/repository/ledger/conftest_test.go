package ledger

import (
	"context"
	"testing"

	"github.com/kailas-cloud/quotagate/internal/db/memory"
)

const testPrefix = "qg:"

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetAllFn func(ctx context.Context, key string) (map[string]string, error)
	casFn     func(ctx context.Context, key string, expected int64, fields map[string]string) (int64, error)
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) CompareAndSwap(
	ctx context.Context, key string, expected int64, fields map[string]string,
) (int64, error) {
	if m.casFn != nil {
		return m.casFn(ctx, key, expected, fields)
	}
	return expected + 1, nil
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	return New(memory.New(), testPrefix)
}
