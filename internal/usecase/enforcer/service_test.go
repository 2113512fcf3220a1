package enforcer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/domain/cycle"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
)

const day = 24 * time.Hour

func TestReserve_PlanOnly(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 10, 0)

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 4, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed() {
		t.Fatalf("expected allowed, got %+v", dec)
	}
	if dec.PlanRemaining != 6 {
		t.Errorf("expected plan_remaining 6, got %d", dec.PlanRemaining)
	}
	if len(dec.Breakdown) != 1 || !dec.Breakdown[0].IsPlan() || dec.Breakdown[0].Amount != 4 {
		t.Errorf("unexpected breakdown: %+v", dec.Breakdown)
	}
	if dec.Breakdown[0].CycleID != cycle.ID(anchor, t0) {
		t.Errorf("plan portion should carry cycle %d, got %d", cycle.ID(anchor, t0), dec.Breakdown[0].CycleID)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 4 {
		t.Errorf("expected used 4, got %d", got)
	}
}

// Quota 5, used 3, one lot of 3: reserving 4 splits 2 plan / 2 credit,
// and releasing restores both sources exactly.
func TestReserveRelease_Scenario(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 3)
	l := h.addLot(t, "acc", domain.ResourceAICall, 3, 30*day)

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 4, "c1"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !dec.Allowed() {
		t.Fatalf("expected allowed, got %+v", dec)
	}
	if dec.PlanRemaining != 0 || dec.CreditRemaining != 1 {
		t.Errorf("expected plan 0 / credit 1, got %d / %d", dec.PlanRemaining, dec.CreditRemaining)
	}
	want := []consumption.Portion{
		{Source: consumption.SourcePlan, Amount: 2, CycleID: cycle.ID(anchor, t0)},
		{Source: l.ID(), Amount: 2},
	}
	if fmt.Sprint(dec.Breakdown) != fmt.Sprint(want) {
		t.Errorf("breakdown = %+v, want %+v", dec.Breakdown, want)
	}

	out, err := h.svc.Release(context.Background(), "c1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if out != consumption.ReleaseReleased {
		t.Errorf("expected released, got %q", out)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 3 {
		t.Errorf("expected used 3 after release, got %d", got)
	}
	if got := h.lot(t, l.ID()).Remaining(); got != 3 {
		t.Errorf("expected lot remaining 3 after release, got %d", got)
	}

	out, err = h.svc.Release(context.Background(), "c1")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if out != consumption.ReleaseAlreadyReleased {
		t.Errorf("expected already_released, got %q", out)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 3 {
		t.Errorf("second release must not credit again, used=%d", got)
	}
}

func TestReserve_DeniedLeavesNoDeduction(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 3)
	l := h.addLot(t, "acc", domain.ResourceAICall, 1, 30*day)

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 4, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != consumption.OutcomeDenied || dec.Reason != consumption.ReasonQuotaExhausted {
		t.Fatalf("expected quota_exhausted denial, got %+v", dec)
	}
	if dec.PlanRemaining != 0 || dec.CreditRemaining != 1 {
		t.Errorf("expected plan 0 / credit 1, got %d / %d", dec.PlanRemaining, dec.CreditRemaining)
	}
	if len(dec.Remediation) != 2 {
		t.Errorf("expected upgrade and credit pack hints, got %v", dec.Remediation)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 3 {
		t.Errorf("plan portion must be compensated, used=%d", got)
	}
	if got := h.lot(t, l.ID()).Remaining(); got != 1 {
		t.Errorf("lot portion must be compensated, remaining=%d", got)
	}

	rec, err := h.audit.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("denial should be recorded: %v", err)
	}
	if rec.Status() != consumption.StatusDenied {
		t.Errorf("expected denied record, got %q", rec.Status())
	}
}

func TestReserve_LotsSoonestExpiringFirst(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 5)
	late := h.addLot(t, "acc", domain.ResourceAICall, 2, 10*day)
	soon := h.addLot(t, "acc", domain.ResourceAICall, 2, 3*day)

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 3, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []consumption.Portion{{Source: soon.ID(), Amount: 2}, {Source: late.ID(), Amount: 1}}
	if fmt.Sprint(dec.Breakdown) != fmt.Sprint(want) {
		t.Errorf("breakdown = %+v, want %+v", dec.Breakdown, want)
	}
	if dec.CreditRemaining != 1 {
		t.Errorf("expected credit_remaining 1, got %d", dec.CreditRemaining)
	}
}

func TestReserve_ExpiredLotIgnored(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 5)
	l := h.addLot(t, "acc", domain.ResourceAICall, 3, time.Hour)
	h.clock.Advance(2 * time.Hour) // expired, but never swept

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != consumption.OutcomeDenied {
		t.Fatalf("expected denial, got %+v", dec)
	}
	if dec.CreditRemaining != 0 {
		t.Errorf("expired lot must not count as credit, got %d", dec.CreditRemaining)
	}
	if got := h.lot(t, l.ID()).Remaining(); got != 3 {
		t.Errorf("expired lot must not be drawn, remaining=%d", got)
	}
}

func TestReserve_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)

	first, err := h.svc.Reserve(context.Background(), reserveReq("acc", 2, "c1"))
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	second, err := h.svc.Reserve(context.Background(), reserveReq("acc", 2, "c1"))
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if first.Replayed || !second.Replayed {
		t.Errorf("expected only the second decision replayed: %v %v", first.Replayed, second.Replayed)
	}
	if second.Outcome != first.Outcome || second.PlanRemaining != first.PlanRemaining {
		t.Errorf("replay differs: %+v vs %+v", second, first)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 2 {
		t.Errorf("replay must not deduct again, used=%d", got)
	}
}

func TestReserve_ReusedIDWithDifferentArgs(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)

	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1")); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	_, err := h.svc.Reserve(context.Background(), reserveReq("acc", 2, "c1"))
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestReserve_FailClosed(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "gold-acc", "gold")
	sus := h.addAccount(t, "sus", "free")
	if _, err := h.accounts.Save(context.Background(), sus.WithStatus(domaccount.StatusSuspended)); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	tests := []struct {
		account string
		reason  consumption.Reason
	}{
		{"ghost", consumption.ReasonUnknownAccount},
		{"sus", consumption.ReasonAccountSuspended},
		{"gold-acc", consumption.ReasonUnknownPlan},
	}
	for _, tc := range tests {
		t.Run(tc.account, func(t *testing.T) {
			dec, err := h.svc.Reserve(context.Background(), reserveReq(tc.account, 1, "c-"+tc.account))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dec.Outcome != consumption.OutcomeDenied || dec.Reason != tc.reason {
				t.Errorf("expected %s denial, got %+v", tc.reason, dec)
			}
			if len(dec.Remediation) != 1 || dec.Remediation[0] != consumption.RemediationContactSupport {
				t.Errorf("expected contact_support, got %v", dec.Remediation)
			}
		})
	}
}

func TestReserve_LazyLedgerInit(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 2, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed() || dec.PlanRemaining != 3 {
		t.Fatalf("expected allowed with 3 left, got %+v", dec)
	}
	e := h.ledger(t, "acc", domain.ResourceAICall)
	if e.MonthlyQuota() != 5 || e.Used() != 2 || e.CycleID() != cycle.ID(anchor, t0) {
		t.Errorf("unexpected ledger: quota=%d used=%d cycle=%d", e.MonthlyQuota(), e.Used(), e.CycleID())
	}
}

func TestReserve_ResourcesAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 5)

	req := reserveReq("acc", 30, "v1")
	req.Resource = domain.ResourceVoiceSecond
	dec, err := h.svc.Reserve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed() || dec.PlanRemaining != 30 {
		t.Errorf("voice allowance must not be affected by AI calls, got %+v", dec)
	}
}

func TestReserve_TransientWhenRetriesExhausted(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)

	var calls atomic.Int32
	h.ledgers.swapFn = func(_ context.Context, _ domledger.Entry) (domledger.Entry, error) {
		calls.Add(1)
		return domledger.Entry{}, fmt.Errorf("ledger CAS: %w", db.ErrVersionConflict)
	}

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != consumption.OutcomeTransient {
		t.Fatalf("expected transient failure, got %+v", dec)
	}
	if calls.Load() != 5 {
		t.Errorf("expected 5 attempts, got %d", calls.Load())
	}
	if _, err := h.audit.Get(context.Background(), "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("transient failures must not be recorded, got %v", err)
	}

	// Retrying with the same id succeeds once contention clears.
	h.ledgers.swapFn = nil
	dec, err = h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1"))
	if err != nil || !dec.Allowed() {
		t.Fatalf("retry should be allowed, got %+v, %v", dec, err)
	}
}

func TestReserve_LotConflictRetried(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 5)
	l := h.addLot(t, "acc", domain.ResourceAICall, 3, 30*day)

	var conflicts int
	h.lots.swapFn = func(ctx context.Context, next domlot.Lot) (domlot.Lot, error) {
		if conflicts < 2 {
			conflicts++
			return domlot.Lot{}, db.ErrVersionConflict
		}
		return h.lots.LotStore.Swap(ctx, next)
	}

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 2, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed() {
		t.Fatalf("expected allowed, got %+v", dec)
	}
	if got := h.lot(t, l.ID()).Remaining(); got != 1 {
		t.Errorf("expected remaining 1, got %d", got)
	}
}

func TestReserve_ClaimHeldByAnotherCaller(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)

	if _, ok, err := h.leases.Acquire(context.Background(), "reserve:c1", time.Minute); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != consumption.OutcomeTransient {
		t.Errorf("expected transient while another caller holds the id, got %+v", dec)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 0 {
		t.Errorf("nothing may be deducted, used=%d", got)
	}
}

func TestReserve_AppendFailureCompensates(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)
	l := h.addLot(t, "acc", domain.ResourceAICall, 3, 30*day)

	h.audit.appendFn = func(context.Context, consumption.Record) (consumption.Record, bool, error) {
		return consumption.Record{}, false, errors.New("disk full")
	}

	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 7, "c1")); err == nil {
		t.Fatal("expected error")
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 0 {
		t.Errorf("plan must be restored, used=%d", got)
	}
	if got := h.lot(t, l.ID()).Remaining(); got != 3 {
		t.Errorf("lot must be restored, remaining=%d", got)
	}
}

func TestReserve_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	long := make([]byte, maxCorrelationIDLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		req  ReserveRequest
	}{
		{"no account", ReserveRequest{Resource: domain.ResourceAICall, Amount: 1, CorrelationID: "c"}},
		{"bad resource", ReserveRequest{AccountID: "a", Resource: "GPU", Amount: 1, CorrelationID: "c"}},
		{"zero amount", ReserveRequest{AccountID: "a", Resource: domain.ResourceAICall, CorrelationID: "c"}},
		{"no correlation id", ReserveRequest{AccountID: "a", Resource: domain.ResourceAICall, Amount: 1}},
		{"long correlation id", ReserveRequest{
			AccountID: "a", Resource: domain.ResourceAICall, Amount: 1, CorrelationID: string(long),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Reserve(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestReserve_ConcurrentNeverOverspends(t *testing.T) {
	h := newHarness(t)
	h.svc.WithConfig(Config{MaxAttempts: 200})
	h.addAccount(t, "acc", "pro")
	h.setLedger(t, "acc", domain.ResourceAICall, 50, 0)
	l := h.addLot(t, "acc", domain.ResourceAICall, 30, 30*day)

	const callers = 200
	var allowed, denied, transient atomic.Int64
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dec, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, fmt.Sprintf("c%d", i)))
			if err != nil {
				errs <- err
				return
			}
			switch dec.Outcome {
			case consumption.OutcomeAllowed:
				allowed.Add(1)
			case consumption.OutcomeDenied:
				denied.Add(1)
			default:
				transient.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	used := h.ledger(t, "acc", domain.ResourceAICall).Used()
	drawn := 30 - h.lot(t, l.ID()).Remaining()
	if used > 50 || drawn > 30 {
		t.Fatalf("counters out of bounds: used=%d drawn=%d", used, drawn)
	}
	if used+drawn != allowed.Load() {
		t.Errorf("deductions (%d) must equal allowed reservations (%d)", used+drawn, allowed.Load())
	}
	if allowed.Load() > 80 {
		t.Errorf("allowed %d exceeds plan+credit 80", allowed.Load())
	}
	if transient.Load() == 0 && allowed.Load() != 80 {
		t.Errorf("without transient failures all 80 units should be granted, got %d", allowed.Load())
	}
	if allowed.Load()+denied.Load()+transient.Load() != callers {
		t.Errorf("every caller needs a decision")
	}
}

func TestRelease_PlanPortionFromPastCycleDropped(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)
	l := h.addLot(t, "acc", domain.ResourceAICall, 3, 60*day)

	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 7, "c1")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	h.clock.Advance(30 * day)
	next := cycle.ID(anchor, h.clock.Now())
	if out, err := h.ledgerDB.ApplyCycleReset(context.Background(), "acc", domain.ResourceAICall, 5, next); err != nil || out != domledger.ResetAdvanced {
		t.Fatalf("reset: outcome=%v err=%v", out, err)
	}

	out, err := h.svc.Release(context.Background(), "c1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if out != consumption.ReleaseReleased {
		t.Errorf("expected released, got %q", out)
	}
	e := h.ledger(t, "acc", domain.ResourceAICall)
	if e.Used() != 0 || e.CycleID() != next {
		t.Errorf("new cycle must not receive the old plan portion: used=%d cycle=%d", e.Used(), e.CycleID())
	}
	if got := h.lot(t, l.ID()).Remaining(); got != 3 {
		t.Errorf("lot portion must be credited back, remaining=%d", got)
	}
}

func TestRelease_UnknownAndDenied(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 5)

	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "denied")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	for _, id := range []string{"never-seen", "denied"} {
		out, err := h.svc.Release(context.Background(), id)
		if err != nil {
			t.Fatalf("release %s: %v", id, err)
		}
		if out != consumption.ReleaseUnknown {
			t.Errorf("release %s: expected unknown, got %q", id, out)
		}
	}

	if _, err := h.svc.Release(context.Background(), ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for empty id, got %v", err)
	}
}

func TestRelease_RefusesToDriveCounterNegative(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)

	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 4, "c1")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// Out-of-band write within the same cycle.
	e := h.ledger(t, "acc", domain.ResourceAICall)
	zeroed, err := e.Consume(-4)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := h.ledgerDB.Swap(context.Background(), zeroed); err != nil {
		t.Fatalf("swap: %v", err)
	}

	_, err = h.svc.Release(context.Background(), "c1")
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	var v *domain.InvariantViolationError
	if !errors.As(err, &v) || v.Value != -4 {
		t.Errorf("expected violation detail with value -4, got %v", err)
	}
	if got := h.ledger(t, "acc", domain.ResourceAICall).Used(); got != 0 {
		t.Errorf("counter must not be clamped or written, used=%d", got)
	}
}

func TestReserve_MirrorReceivesRecords(t *testing.T) {
	h := newHarness(t)
	m := &mockMirror{}
	h.svc.WithMirror(m)
	h.addAccount(t, "acc", "free")
	h.setLedger(t, "acc", domain.ResourceAICall, 5, 0)

	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := h.svc.Reserve(context.Background(), reserveReq("acc", 1, "c1")); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if _, err := h.svc.Release(context.Background(), "c1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	if len(m.records) != 1 || m.records[0].CorrelationID != "c1" {
		t.Errorf("expected one mirrored record, got %+v", m.records)
	}
	if len(m.released) != 1 {
		t.Errorf("expected one mirrored release, got %v", m.released)
	}
}
