package enforcer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/db/memory"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/domain/cycle"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
	accountrepo "github.com/kailas-cloud/quotagate/internal/repository/account"
	auditrepo "github.com/kailas-cloud/quotagate/internal/repository/audit"
	"github.com/kailas-cloud/quotagate/internal/repository/lease"
	ledgerrepo "github.com/kailas-cloud/quotagate/internal/repository/ledger"
	lotrepo "github.com/kailas-cloud/quotagate/internal/repository/lot"
)

const prefix = "test:"

var (
	anchor = time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	t0     = time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
)

// --- Clock ---

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Func-field overrides over the real repositories ---

type ledgerStoreFunc struct {
	LedgerStore
	swapFn func(ctx context.Context, next domledger.Entry) (domledger.Entry, error)
}

func (m *ledgerStoreFunc) Swap(ctx context.Context, next domledger.Entry) (domledger.Entry, error) {
	if m.swapFn != nil {
		return m.swapFn(ctx, next)
	}
	return m.LedgerStore.Swap(ctx, next)
}

type lotStoreFunc struct {
	LotStore
	swapFn func(ctx context.Context, l domlot.Lot) (domlot.Lot, error)
}

func (m *lotStoreFunc) Swap(ctx context.Context, l domlot.Lot) (domlot.Lot, error) {
	if m.swapFn != nil {
		return m.swapFn(ctx, l)
	}
	return m.LotStore.Swap(ctx, l)
}

type auditLogFunc struct {
	AuditLog
	appendFn func(ctx context.Context, rec consumption.Record) (consumption.Record, bool, error)
}

func (m *auditLogFunc) Append(ctx context.Context, rec consumption.Record) (consumption.Record, bool, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, rec)
	}
	return m.AuditLog.Append(ctx, rec)
}

type mockMirror struct {
	mu       sync.Mutex
	records  []consumption.Record
	released []string
}

func (m *mockMirror) Record(_ context.Context, rec consumption.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockMirror) Release(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, id)
	return nil
}

// --- Harness ---

type harness struct {
	clock    *clock
	ledgers  *ledgerStoreFunc
	lots     *lotStoreFunc
	audit    *auditLogFunc
	accounts *accountrepo.Repo
	leases   *lease.Store
	ledgerDB *ledgerrepo.Repo
	svc      *Service
	lotSeq   int
}

func defaultCatalog(t *testing.T) plan.Catalog {
	t.Helper()
	c, err := plan.NewCatalog(map[plan.Tier]plan.Allowances{
		"free": {domain.ResourceAICall: 5, domain.ResourceVoiceSecond: 60},
		"pro":  {domain.ResourceAICall: 100},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{t: t0}
	store := memory.New(memory.WithClock(clk.Now))

	h := &harness{
		clock:    clk,
		ledgerDB: ledgerrepo.New(store, prefix),
		accounts: accountrepo.New(store, prefix),
		leases:   lease.New(store, prefix),
	}
	h.ledgers = &ledgerStoreFunc{LedgerStore: h.ledgerDB}
	h.lots = &lotStoreFunc{LotStore: lotrepo.New(store, prefix)}
	h.audit = &auditLogFunc{AuditLog: auditrepo.New(store, prefix)}

	h.svc = New(h.ledgers, h.lots, h.audit, h.accounts, defaultCatalog(t), h.leases, zap.NewNop()).
		WithConfig(Config{MaxAttempts: 5, InitialBackoff: time.Microsecond, MaxBackoff: 10 * time.Microsecond}).
		WithClock(clk.Now)
	return h
}

func (h *harness) addAccount(t *testing.T, id string, tier plan.Tier) domaccount.Account {
	t.Helper()
	a, err := domaccount.New(id, tier, anchor)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	saved, err := h.accounts.Save(context.Background(), a)
	if err != nil {
		t.Fatalf("save account: %v", err)
	}
	return saved
}

// setLedger initializes the current cycle with the given counters.
func (h *harness) setLedger(t *testing.T, accountID string, res domain.ResourceType, quota, used int64) {
	t.Helper()
	cur, err := h.ledgerDB.Get(context.Background(), accountID, res)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	next, err := cur.Reset(quota, cycle.ID(anchor, h.clock.Now())).Consume(used)
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	if _, err := h.ledgerDB.Swap(context.Background(), next); err != nil {
		t.Fatalf("swap ledger: %v", err)
	}
}

func (h *harness) ledger(t *testing.T, accountID string, res domain.ResourceType) domledger.Entry {
	t.Helper()
	e, err := h.ledgerDB.Get(context.Background(), accountID, res)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	return e
}

func (h *harness) addLot(
	t *testing.T, accountID string, res domain.ResourceType, qty int64, ttl time.Duration,
) domlot.Lot {
	t.Helper()
	now := h.clock.Now()
	h.lotSeq++
	l, err := domlot.New(accountID, res, qty, now.Add(ttl), now, fmt.Sprintf("pay-%d", h.lotSeq))
	if err != nil {
		t.Fatalf("new lot: %v", err)
	}
	stored, _, err := h.lots.LotStore.(*lotrepo.Repo).Create(context.Background(), l)
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return stored
}

func (h *harness) lot(t *testing.T, id string) domlot.Lot {
	t.Helper()
	l, err := h.lots.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	return l
}

func reserveReq(account string, amount int64, id string) ReserveRequest {
	return ReserveRequest{
		AccountID:     account,
		Resource:      domain.ResourceAICall,
		Amount:        amount,
		CorrelationID: id,
	}
}
