package quotagate

import (
	"context"
	"sync"

	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/usecase/enforcer"
)

// --- quotaUseCase mock ---

type mockQuotaUC struct {
	mu        sync.Mutex
	released  []string
	reserveFn func(ctx context.Context, req enforcer.ReserveRequest) (consumption.Decision, error)
	releaseFn func(ctx context.Context, id string) (consumption.ReleaseOutcome, error)
}

func (m *mockQuotaUC) Reserve(ctx context.Context, req enforcer.ReserveRequest) (consumption.Decision, error) {
	return m.reserveFn(ctx, req)
}

func (m *mockQuotaUC) Release(ctx context.Context, id string) (consumption.ReleaseOutcome, error) {
	m.mu.Lock()
	m.released = append(m.released, id)
	m.mu.Unlock()
	if m.releaseFn == nil {
		return consumption.ReleaseReleased, nil
	}
	return m.releaseFn(ctx, id)
}

func decisionWith(outcome consumption.Outcome, reason consumption.Reason) func(
	context.Context, enforcer.ReserveRequest,
) (consumption.Decision, error) {
	return func(_ context.Context, req enforcer.ReserveRequest) (consumption.Decision, error) {
		return consumption.Decision{
			CorrelationID: req.CorrelationID,
			Outcome:       outcome,
			Reason:        reason,
			Remediation:   consumption.RemediationsFor(reason),
		}, nil
	}
}

// --- helpers ---

func testClient(quota quotaUseCase) *Client {
	return &Client{
		quotaSvc: quota,
		newID:    func() string { return "guard-1" },
	}
}
