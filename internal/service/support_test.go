package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/events"
	"github.com/vam12375/muying-mall-sub003/internal/gateway"
)

// memStore is an in-memory Store/Reader/TxRunner for service tests. RunInTx
// holds one mutex for the whole unit of work, which serializes concurrent
// units the way row locks do in Postgres, and restores a snapshot on error,
// which models transaction rollback.
type memStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*domain.Order
	payments map[uuid.UUID]*domain.Payment
	refunds  map[uuid.UUID]*domain.Refund
	accounts map[uuid.UUID]*domain.Account // keyed by user id
	ledger   []domain.LedgerEntry
	logs     []domain.StateLog
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[uuid.UUID]*domain.Order),
		payments: make(map[uuid.UUID]*domain.Payment),
		refunds:  make(map[uuid.UUID]*domain.Refund),
		accounts: make(map[uuid.UUID]*domain.Account),
	}
}

type memSnapshot struct {
	orders   map[uuid.UUID]*domain.Order
	payments map[uuid.UUID]*domain.Payment
	refunds  map[uuid.UUID]*domain.Refund
	accounts map[uuid.UUID]*domain.Account
	ledger   []domain.LedgerEntry
	logs     []domain.StateLog
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		orders:   make(map[uuid.UUID]*domain.Order, len(m.orders)),
		payments: make(map[uuid.UUID]*domain.Payment, len(m.payments)),
		refunds:  make(map[uuid.UUID]*domain.Refund, len(m.refunds)),
		accounts: make(map[uuid.UUID]*domain.Account, len(m.accounts)),
		ledger:   append([]domain.LedgerEntry(nil), m.ledger...),
		logs:     append([]domain.StateLog(nil), m.logs...),
	}
	for k, v := range m.orders {
		cp := *v
		s.orders[k] = &cp
	}
	for k, v := range m.payments {
		cp := *v
		s.payments[k] = &cp
	}
	for k, v := range m.refunds {
		cp := *v
		s.refunds[k] = &cp
	}
	for k, v := range m.accounts {
		cp := *v
		s.accounts[k] = &cp
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.orders = s.orders
	m.payments = s.payments
	m.refunds = s.refunds
	m.accounts = s.accounts
	m.ledger = s.ledger
	m.logs = s.logs
}

// RunInTx implements TxRunner.
func (m *memStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn((*memTx)(m)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// memTx is the transactional view handed to RunInTx callbacks. Its methods
// run with memStore.mu already held.
type memTx memStore

func (t *memTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	if _, ok := t.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	cp := *o
	t.orders[o.ID] = &cp
	return nil
}

func (t *memTx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	cp := *p
	t.payments[p.ID] = &cp
	return nil
}

func (t *memTx) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, ok := t.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) GetPaymentByOrderNoForUpdate(ctx context.Context, orderNo string) (*domain.Payment, error) {
	for _, p := range t.payments {
		if p.OrderNo == orderNo {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

// UpdatePayment mirrors the SQL store: an already-set trade_no is never
// overwritten (first writer wins).
func (t *memTx) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	cur, ok := t.payments[p.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	cp := *p
	if cur.TradeNo != "" {
		cp.TradeNo = cur.TradeNo
	}
	t.payments[p.ID] = &cp
	return nil
}

func (t *memTx) CreateRefund(ctx context.Context, r *domain.Refund) error {
	cp := *r
	t.refunds[r.ID] = &cp
	return nil
}

func (t *memTx) GetRefundForUpdate(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	r, ok := t.refunds[id]
	if !ok {
		return nil, domain.ErrRefundNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *memTx) UpdateRefund(ctx context.Context, r *domain.Refund) error {
	if _, ok := t.refunds[r.ID]; !ok {
		return domain.ErrRefundNotFound
	}
	cp := *r
	t.refunds[r.ID] = &cp
	return nil
}

func (t *memTx) GetAccountByUserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	a, ok := t.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) UpdateAccountBalance(ctx context.Context, a *domain.Account) error {
	if _, ok := t.accounts[a.UserID]; !ok {
		return domain.ErrAccountNotFound
	}
	cp := *a
	t.accounts[a.UserID] = &cp
	return nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	t.ledger = append(t.ledger, *e)
	return nil
}

func (t *memTx) AppendStateLog(ctx context.Context, l *domain.StateLog) error {
	t.logs = append(t.logs, *l)
	return nil
}

// Reader implementation (lock-free reads in production; briefly locked here).

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*memTx)(m).GetOrderForUpdate(ctx, id)
}

func (m *memStore) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*memTx)(m).GetPaymentForUpdate(ctx, id)
}

func (m *memStore) GetPaymentByOrderNo(ctx context.Context, orderNo string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*memTx)(m).GetPaymentByOrderNoForUpdate(ctx, orderNo)
}

func (m *memStore) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*memTx)(m).GetRefundForUpdate(ctx, id)
}

func (m *memStore) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*memTx)(m).GetAccountByUserForUpdate(ctx, userID)
}

func (m *memStore) ListStateLogs(ctx context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.StateLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StateLog
	for _, l := range m.logs {
		if l.Entity == entity && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) ListStalePayments(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.Status != domain.PaymentStatusPending && p.Status != domain.PaymentStatusProcessing {
			continue
		}
		if !p.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, *p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Unlocked accessors for assertions after the fact.

func (m *memStore) order(id uuid.UUID) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.orders[id]
	return &cp
}

func (m *memStore) payment(id uuid.UUID) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.payments[id]
	return &cp
}

func (m *memStore) refund(id uuid.UUID) *domain.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.refunds[id]
	return &cp
}

func (m *memStore) account(userID uuid.UUID) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.accounts[userID]
	return &cp
}

func (m *memStore) ledgerEntries() []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LedgerEntry(nil), m.ledger...)
}

func (m *memStore) stateLogs() []domain.StateLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StateLog(nil), m.logs...)
}

// capturePublisher records published events; Publish never fails.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// stubGateway routes calls to test-provided functions.
type stubGateway struct {
	queryFn  func(ctx context.Context, outTradeNo string) (*gateway.QueryResult, error)
	refundFn func(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error)
}

func (g *stubGateway) QueryTrade(ctx context.Context, outTradeNo string) (*gateway.QueryResult, error) {
	if g.queryFn == nil {
		return &gateway.QueryResult{Exists: false}, nil
	}
	return g.queryFn(ctx, outTradeNo)
}

func (g *stubGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	if g.refundFn == nil {
		return &gateway.RefundResult{Success: true, RefundNo: "RF-STUB"}, nil
	}
	return g.refundFn(ctx, req)
}

// stubVerifier accepts or rejects everything.
type stubVerifier struct {
	err error
}

func (v *stubVerifier) Verify(params map[string]string) error {
	return v.err
}

// Seeding helpers.

func seedOrderWithPayment(m *memStore, orderStatus domain.OrderStatus, paymentStatus domain.PaymentStatus, method domain.PaymentMethod, amount string) (*domain.Order, *domain.Payment) {
	now := time.Now()
	amt := decimal.RequireFromString(amount)

	o := &domain.Order{
		ID:            uuid.New(),
		OrderNo:       "ORD-" + uuid.NewString()[:8],
		UserID:        uuid.New(),
		TotalAmount:   amt,
		PayableAmount: amt,
		Status:        orderStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p := &domain.Payment{
		ID:        uuid.New(),
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		UserID:    o.UserID,
		Amount:    amt,
		Method:    method,
		Status:    paymentStatus,
		ExpireAt:  now.Add(30 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.PaymentID = p.ID

	m.mu.Lock()
	m.orders[o.ID] = o
	m.payments[p.ID] = p
	m.mu.Unlock()

	cpO, cpP := *o, *p
	return &cpO, &cpP
}

func seedAccount(m *memStore, userID uuid.UUID, balance string) *domain.Account {
	now := time.Now()
	a := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.RequireFromString(balance),
		Frozen:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.accounts[userID] = a
	m.mu.Unlock()
	cp := *a
	return &cp
}

func successNotification(outTradeNo, tradeNo, amount string) gateway.Notification {
	return gateway.Notification{
		OutTradeNo:  outTradeNo,
		TradeNo:     tradeNo,
		TradeStatus: gateway.TradeSuccess,
		TotalAmount: amount,
		Params: map[string]string{
			"out_trade_no": outTradeNo,
			"trade_no":     tradeNo,
			"trade_status": string(gateway.TradeSuccess),
			"total_amount": amount,
			"sign":         "stub",
		},
	}
}
