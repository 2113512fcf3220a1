package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
	logpkg "github.com/kailas-cloud/quotagate/internal/logger"
	accountuc "github.com/kailas-cloud/quotagate/internal/usecase/account"
	"github.com/kailas-cloud/quotagate/internal/usecase/enforcer"
	healthuc "github.com/kailas-cloud/quotagate/internal/usecase/health"
	lotsuc "github.com/kailas-cloud/quotagate/internal/usecase/lots"
	usageuc "github.com/kailas-cloud/quotagate/internal/usecase/usage"
)

// IdempotencyKeyHeader carries the payment id on POST /v1/lots.
const IdempotencyKeyHeader = "Idempotency-Key"

// retryAfterSeconds is advertised on transient reservation failures.
const retryAfterSeconds = "1"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the quotagate HTTP API.
type Server struct {
	enforcer      *enforcer.Service
	lots          *lotsuc.Service
	accounts      *accountuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	validate      *validator.Validate
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	enf *enforcer.Service,
	lots *lotsuc.Service,
	accounts *accountuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		enforcer: enf,
		lots:     lots,
		accounts: accounts,
		usage:    usage,
		health:   health,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidLot, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrUnknownPlan, http.StatusForbidden, codeForbidden),
		sentinelHandler(domain.ErrIdempotencyConflict, http.StatusConflict, codeIdempotencyConflict),
		sentinelHandler(domain.ErrInvariantViolation, http.StatusInternalServerError, codeInvariantViolation),
		sentinelHandler(domain.ErrContention, http.StatusServiceUnavailable, codeContention),
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chirouter.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chirouter.Router) {
		r.Post("/reservations", s.Reserve)
		r.Post("/reservations/{correlation_id}/release", s.Release)
		r.Post("/lots", s.CreateLot)
		r.Put("/accounts/{id}", s.UpsertAccount)
		r.Get("/accounts/{id}", s.GetAccount)
		r.Post("/accounts/{id}/plan", s.SetPlan)
		r.Get("/accounts/{id}/balance", s.GetBalance)
		r.Get("/accounts/{id}/usage", s.GetUsage)
	})
}

// Reserve handles POST /v1/reservations.
func (s *Server) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !s.decode(w, r, &req) {
		return
	}

	d, err := s.enforcer.Reserve(r.Context(), enforcer.ReserveRequest{
		AccountID:     req.AccountID,
		Resource:      domain.ResourceType(req.Resource),
		Amount:        req.Amount,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if d.Outcome == consumption.OutcomeTransient {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, decisionStatus(d), decisionToResponse(d))
}

// decisionStatus maps a decision to its HTTP status.
func decisionStatus(d consumption.Decision) int {
	switch d.Outcome {
	case consumption.OutcomeAllowed:
		return http.StatusOK
	case consumption.OutcomeTransient:
		return http.StatusServiceUnavailable
	}
	if d.Reason == consumption.ReasonQuotaExhausted {
		return http.StatusPaymentRequired
	}
	return http.StatusForbidden
}

// Release handles POST /v1/reservations/{correlation_id}/release.
func (s *Server) Release(w http.ResponseWriter, r *http.Request) {
	id := chirouter.URLParam(r, "correlation_id")
	outcome, err := s.enforcer.Release(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleaseResponse{CorrelationID: id, Outcome: string(outcome)})
}

// CreateLot handles POST /v1/lots.
func (s *Server) CreateLot(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, IdempotencyKeyHeader+" header is required")
		return
	}

	var req CreateLotRequest
	if !s.decode(w, r, &req) {
		return
	}

	l, created, err := s.lots.CreateLot(r.Context(), lotsuc.CreateRequest{
		AccountID:      req.AccountID,
		Resource:       domain.ResourceType(req.Resource),
		Quantity:       req.Quantity,
		ExpiresAt:      req.ExpiresAt,
		IdempotencyKey: key,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, lotToResponse(l))
}

// UpsertAccount handles PUT /v1/accounts/{id}.
func (s *Server) UpsertAccount(w http.ResponseWriter, r *http.Request) {
	var req UpsertAccountRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, created, err := s.accounts.Upsert(r.Context(), accountuc.UpsertRequest{
		ID:     chirouter.URLParam(r, "id"),
		Tier:   plan.Tier(req.Tier),
		Anchor: req.Anchor,
		Status: domaccount.Status(req.Status),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/v1/accounts/"+a.ID())
	}
	writeJSON(w, status, accountToResponse(a))
}

// GetAccount handles GET /v1/accounts/{id}.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.accounts.Get(r.Context(), chirouter.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToResponse(a))
}

// SetPlan handles POST /v1/accounts/{id}/plan.
func (s *Server) SetPlan(w http.ResponseWriter, r *http.Request) {
	var req SetPlanRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, err := s.accounts.SetPlan(r.Context(), chirouter.URLParam(r, "id"), plan.Tier(req.Tier))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToResponse(a))
}

// GetBalance handles GET /v1/accounts/{id}/balance?resource=.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	var resource string
	if err := runtime.BindQueryParameter("form", true, true, "resource", r.URL.Query(), &resource); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid query parameter: "+err.Error())
		return
	}
	res, err := domain.ParseResourceType(resource)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	b, err := s.usage.GetBalance(r.Context(), chirouter.URLParam(r, "id"), res)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceToResponse(b))
}

// GetUsage handles GET /v1/accounts/{id}/usage?from=&to=.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "from", query, &from); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid query parameter: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "to", query, &to); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid query parameter: "+err.Error())
		return
	}

	id := chirouter.URLParam(r, "id")
	recs, sum, err := s.usage.History(r.Context(), id, deref(from), deref(to))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageToResponse(id, recs, sum))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decode reads a JSON body into dst and validates it. It writes the 400 itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Validation failed: "+err.Error())
		return false
	}
	return true
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Validation errors keep their detail since it only describes caller input.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidLot) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrUnknownPlan,
		domain.ErrIdempotencyConflict,
		domain.ErrInvariantViolation,
		domain.ErrContention,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
