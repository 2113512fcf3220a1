package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        Pinger
	auditSink Pinger
}

// New creates a Service. auditSink is the optional Postgres mirror and can be nil.
func New(db Pinger, auditSink Pinger) *Service {
	return &Service{db: db, auditSink: auditSink}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.auditSink != nil {
		if err := s.auditSink.Ping(ctx); err != nil {
			checks["audit_sink"] = CheckError
		} else {
			checks["audit_sink"] = CheckOK
		}
	}

	// Without the database no reservation can be decided.
	status := Healthy
	switch {
	case checks["database"] == CheckError:
		status = Unhealthy
	case checks["audit_sink"] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
