// Package testutil provides hand-rolled mocks for the persistence and
// infrastructure interfaces. Each mock delegates to optional func fields so
// tests override only what they care about; unset funcs behave as no-ops.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/google/uuid"
)

// MockChargeRepository is an in-memory charge.Repository. Charges are stored
// by external id; func fields override individual operations when set.
type MockChargeRepository struct {
	mu      sync.Mutex
	charges map[string]*charge.Charge

	CreateFunc         func(ctx context.Context, c *charge.Charge) error
	GetFunc            func(ctx context.Context, externalID string) (*charge.Charge, error)
	UpdateFunc         func(ctx context.Context, c *charge.Charge) error
	ListByStatusFunc   func(ctx context.Context, statuses []charge.Status, limit int) ([]*charge.Charge, error)
	ListStaleFunc      func(ctx context.Context, statuses []charge.Status, cutoff time.Time, limit int) ([]*charge.Charge, error)

	UpdateCalls int
}

func NewMockChargeRepository() *MockChargeRepository {
	return &MockChargeRepository{charges: make(map[string]*charge.Charge)}
}

// Seed stores a charge directly, bypassing Create.
func (m *MockChargeRepository) Seed(c *charge.Charge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[c.ExternalID] = c
}

func (m *MockChargeRepository) Create(ctx context.Context, c *charge.Charge) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[c.ExternalID] = c
	return nil
}

func (m *MockChargeRepository) GetByExternalID(ctx context.Context, externalID string) (*charge.Charge, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, externalID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[externalID]
	if !ok {
		return nil, domainErrors.ErrChargeNotFound
	}
	return c, nil
}

func (m *MockChargeRepository) GetByGatewayTransactionID(ctx context.Context, providerName, gatewayTxID string) (*charge.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.charges {
		if c.ProviderName == providerName && c.GatewayTransactionID != nil && *c.GatewayTransactionID == gatewayTxID {
			return c, nil
		}
	}
	return nil, domainErrors.ErrChargeNotFound
}

func (m *MockChargeRepository) Update(ctx context.Context, c *charge.Charge) error {
	m.mu.Lock()
	m.UpdateCalls++
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[c.ExternalID] = c
	c.Version++
	return nil
}

func (m *MockChargeRepository) AppendEvents(ctx context.Context, externalID string, events []charge.Event) error {
	return nil
}

func (m *MockChargeRepository) AddFee(ctx context.Context, externalID string, fee charge.Fee) error {
	return nil
}

func (m *MockChargeRepository) ListByStatus(ctx context.Context, statuses []charge.Status, limit int) ([]*charge.Charge, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, statuses, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*charge.Charge
	for _, c := range m.charges {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (m *MockChargeRepository) ListStaleByStatus(ctx context.Context, statuses []charge.Status, cutoff time.Time, limit int) ([]*charge.Charge, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, statuses, cutoff, limit)
	}
	all, err := m.ListByStatus(ctx, statuses, limit)
	if err != nil {
		return nil, err
	}
	var out []*charge.Charge
	for _, c := range all {
		if c.UpdatedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

// MockRefundRepository is an in-memory refund.Repository.
type MockRefundRepository struct {
	mu      sync.Mutex
	refunds map[string]*refund.Refund

	CreateFunc func(ctx context.Context, r *refund.Refund) error
	UpdateFunc func(ctx context.Context, r *refund.Refund) error
}

func NewMockRefundRepository() *MockRefundRepository {
	return &MockRefundRepository{refunds: make(map[string]*refund.Refund)}
}

func (m *MockRefundRepository) Seed(r *refund.Refund) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds[r.ExternalID] = r
}

func (m *MockRefundRepository) Create(ctx context.Context, r *refund.Refund) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds[r.ExternalID] = r
	return nil
}

func (m *MockRefundRepository) GetByExternalID(ctx context.Context, externalID string) (*refund.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[externalID]
	if !ok {
		return nil, domainErrors.ErrRefundNotFound
	}
	return r, nil
}

func (m *MockRefundRepository) ListByCharge(ctx context.Context, chargeExternalID string) ([]*refund.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*refund.Refund
	for _, r := range m.refunds {
		if r.ChargeExternalID == chargeExternalID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockRefundRepository) Update(ctx context.Context, r *refund.Refund) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds[r.ExternalID] = r
	return nil
}

// MockOutboxRepository records inserted entries for assertions.
type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// EventTypes lists the event types inserted, in order.
func (m *MockOutboxRepository) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.EventType
	}
	return out
}

// MockTxManager runs the function directly; there is no real transaction.
type MockTxManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// MockLocker hands out locks unconditionally unless AcquireFunc is set.
type MockLocker struct {
	AcquireFunc func(ctx context.Context, chargeExternalID string) (func(), error)

	mu       sync.Mutex
	Acquired []string
	Released int
}

func (m *MockLocker) AcquireChargeLock(ctx context.Context, chargeExternalID string) (func(), error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, chargeExternalID)
	}
	m.mu.Lock()
	m.Acquired = append(m.Acquired, chargeExternalID)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.Released++
		m.mu.Unlock()
	}, nil
}
