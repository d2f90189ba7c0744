package service_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/fees"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/cassiomorais/chargegate/internal/testutil"
)

// fakeProvider lets each test script the gateway's behaviour per operation.
// Unset funcs succeed with generic outcomes.
type fakeProvider struct {
	name string

	AuthoriseFunc    func(ctx context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error)
	Authorise3DSFunc func(ctx context.Context, req gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error)
	CaptureFunc      func(ctx context.Context, c *charge.Charge) (*gateway.CaptureOutcome, error)
	CancelFunc       func(ctx context.Context, c *charge.Charge) (*gateway.CancelOutcome, error)
	RefundFunc       func(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundOutcome, error)
	QueryFunc        func(ctx context.Context, c *charge.Charge) (*gateway.QueryOutcome, error)
	StatusTable      map[string]gateway.MappedStatus
}

func (p *fakeProvider) Name() string {
	if p.name == "" {
		return "fake"
	}
	return p.name
}

func (p *fakeProvider) Authorise(ctx context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error) {
	if p.AuthoriseFunc != nil {
		return p.AuthoriseFunc(ctx, req)
	}
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: "tx-fake"}, nil
}

func (p *fakeProvider) Authorise3DS(ctx context.Context, req gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error) {
	if p.Authorise3DSFunc != nil {
		return p.Authorise3DSFunc(ctx, req)
	}
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: "tx-fake"}, nil
}

func (p *fakeProvider) AuthoriseUserNotPresent(ctx context.Context, req gateway.UserNotPresentRequest) (*gateway.AuthoriseOutcome, error) {
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: "tx-fake"}, nil
}

func (p *fakeProvider) Capture(ctx context.Context, c *charge.Charge) (*gateway.CaptureOutcome, error) {
	if p.CaptureFunc != nil {
		return p.CaptureFunc(ctx, c)
	}
	return &gateway.CaptureOutcome{Status: gateway.CaptureSucceeded}, nil
}

func (p *fakeProvider) Cancel(ctx context.Context, c *charge.Charge) (*gateway.CancelOutcome, error) {
	if p.CancelFunc != nil {
		return p.CancelFunc(ctx, c)
	}
	return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
}

func (p *fakeProvider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundOutcome, error) {
	if p.RefundFunc != nil {
		return p.RefundFunc(ctx, req)
	}
	return &gateway.RefundOutcome{Status: gateway.OutcomeSucceeded, GatewayReference: "gw-ref"}, nil
}

func (p *fakeProvider) QueryPaymentStatus(ctx context.Context, c *charge.Charge) (*gateway.QueryOutcome, error) {
	if p.QueryFunc != nil {
		return p.QueryFunc(ctx, c)
	}
	return &gateway.QueryOutcome{Found: false}, nil
}

func (p *fakeProvider) MapRawStatus(raw string) (gateway.MappedStatus, bool) {
	m, ok := p.StatusTable[raw]
	return m, ok
}

// harness bundles the mocks every service test needs.
type harness struct {
	chargeRepo *testutil.MockChargeRepository
	refundRepo *testutil.MockRefundRepository
	outboxRepo *testutil.MockOutboxRepository
	txManager  *testutil.MockTxManager
	locker     *testutil.MockLocker
	provider   *fakeProvider
	registry   *gateway.Registry
}

func newHarness(provider *fakeProvider) *harness {
	if provider == nil {
		provider = &fakeProvider{}
	}
	return &harness{
		chargeRepo: testutil.NewMockChargeRepository(),
		refundRepo: testutil.NewMockRefundRepository(),
		outboxRepo: testutil.NewMockOutboxRepository(),
		txManager:  &testutil.MockTxManager{},
		locker:     &testutil.MockLocker{},
		provider:   provider,
		registry:   gateway.NewRegistry(provider),
	}
}

var testFeeCalc = fees.Calculator{TransactionRateBasisPoints: 150, RadarFee: 5, ThreeDSFee: 10}

func staticSurcharges(cfg fees.SurchargeConfig) service.SurchargeResolver {
	return func(string) fees.SurchargeConfig { return cfg }
}

func (h *harness) chargeService() *service.ChargeService {
	return service.NewChargeService(
		h.chargeRepo, h.refundRepo, h.outboxRepo, h.txManager, h.locker,
		h.registry, testFeeCalc, staticSurcharges(fees.SurchargeConfig{}), zerolog.Nop(),
	)
}

func (h *harness) chargeServiceWithSurcharges(cfg fees.SurchargeConfig) *service.ChargeService {
	return service.NewChargeService(
		h.chargeRepo, h.refundRepo, h.outboxRepo, h.txManager, h.locker,
		h.registry, testFeeCalc, staticSurcharges(cfg), zerolog.Nop(),
	)
}

func (h *harness) refundService() *service.RefundService {
	return service.NewRefundService(
		h.chargeRepo, h.refundRepo, h.outboxRepo, h.txManager, h.locker, h.registry, zerolog.Nop(),
	)
}

func (h *harness) webhookService() *service.WebhookService {
	return service.NewWebhookService(
		h.chargeRepo, h.refundRepo, h.outboxRepo, h.txManager, h.locker, h.registry, zerolog.Nop(),
	)
}

func (h *harness) expireService() *service.ExpireService {
	return service.NewExpireService(
		h.chargeRepo, h.outboxRepo, h.txManager, h.locker, h.registry, zerolog.Nop(),
	)
}

func (h *harness) reconcileService() *service.ReconcileService {
	return service.NewReconcileService(
		h.chargeRepo, h.outboxRepo, h.txManager, h.locker, h.registry, zerolog.Nop(),
	)
}

// seedCharge stores a charge in the given status against the fake provider.
func (h *harness) seedCharge(t *testing.T, externalID string, status charge.Status) *charge.Charge {
	t.Helper()
	c, err := charge.New(externalID, "acct_1", h.provider.Name(), 10000, "GBP", charge.ModeWeb)
	require.NoError(t, err)
	c.Status = status
	h.chargeRepo.Seed(c)
	return c
}
