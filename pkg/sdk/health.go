package quotagate

import (
	"context"

	healthuc "github.com/kailas-cloud/quotagate/internal/usecase/health"
)

// HealthStatus is the aggregated store health seen by this client.
type HealthStatus struct {
	Status string            // "ok" or "error"
	Checks map[string]string // component -> "ok"/"error"
}

// OK reports whether reservations can currently be decided.
func (h HealthStatus) OK() bool { return h.Status == string(healthuc.Healthy) }

// Health pings the shared store. The SDK has no audit mirror, so the only
// component is "database".
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{Status: string(report.Status), Checks: checks}
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
