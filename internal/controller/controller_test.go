package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/controller"
	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/fees"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/cassiomorais/chargegate/internal/testutil"
)

// stubProvider answers every gateway call with a generic success so handler
// tests exercise the HTTP layer, not the gateway round trip.
type stubProvider struct {
	name        string
	statusTable map[string]gateway.MappedStatus
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Authorise(context.Context, gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error) {
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: "tx-1"}, nil
}

func (p *stubProvider) Authorise3DS(context.Context, gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error) {
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: "tx-1"}, nil
}

func (p *stubProvider) AuthoriseUserNotPresent(context.Context, gateway.UserNotPresentRequest) (*gateway.AuthoriseOutcome, error) {
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: "tx-1"}, nil
}

func (p *stubProvider) Capture(context.Context, *charge.Charge) (*gateway.CaptureOutcome, error) {
	return &gateway.CaptureOutcome{Status: gateway.CaptureSucceeded}, nil
}

func (p *stubProvider) Cancel(context.Context, *charge.Charge) (*gateway.CancelOutcome, error) {
	return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
}

func (p *stubProvider) Refund(context.Context, gateway.RefundRequest) (*gateway.RefundOutcome, error) {
	return &gateway.RefundOutcome{Status: gateway.OutcomeSucceeded, GatewayReference: "gw-ref"}, nil
}

func (p *stubProvider) QueryPaymentStatus(context.Context, *charge.Charge) (*gateway.QueryOutcome, error) {
	return &gateway.QueryOutcome{Found: false}, nil
}

func (p *stubProvider) MapRawStatus(raw string) (gateway.MappedStatus, bool) {
	m, ok := p.statusTable[raw]
	return m, ok
}

type env struct {
	chargeRepo *testutil.MockChargeRepository
	refundRepo *testutil.MockRefundRepository
	router     *chi.Mux
}

func newEnv(t *testing.T) *env {
	t.Helper()

	statusTable := map[string]gateway.MappedStatus{
		"CAPTURED": gateway.ChargeMapping(charge.StatusCaptured),
	}
	provider := &stubProvider{name: "sandbox", statusTable: statusTable}
	worldpay := &stubProvider{name: "worldpay", statusTable: statusTable}
	chargeRepo := testutil.NewMockChargeRepository()
	refundRepo := testutil.NewMockRefundRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	txManager := &testutil.MockTxManager{}
	locker := &testutil.MockLocker{}
	registry := gateway.NewRegistry(provider, worldpay)

	feeCalc := fees.Calculator{TransactionRateBasisPoints: 150, RadarFee: 5, ThreeDSFee: 10}
	surcharges := func(string) fees.SurchargeConfig { return fees.SurchargeConfig{} }

	chargeSvc := service.NewChargeService(
		chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, feeCalc, surcharges, zerolog.Nop(),
	)
	refundSvc := service.NewRefundService(
		chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, zerolog.Nop(),
	)
	webhookSvc := service.NewWebhookService(
		chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, zerolog.Nop(),
	)

	chargeH := controller.NewChargeController(chargeSvc, refundSvc)
	webhookH := controller.NewWebhookController(webhookSvc, nil, zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/charges", chargeH.CreateCharge)
		r.Get("/charges/{externalID}", chargeH.GetCharge)
		r.Post("/charges/{externalID}/authorise", chargeH.Authorise)
		r.Post("/charges/{externalID}/authorise-3ds", chargeH.Authorise3DS)
		r.Post("/charges/{externalID}/capture", chargeH.Capture)
		r.Post("/charges/{externalID}/cancel", chargeH.Cancel)
		r.Post("/charges/{externalID}/refunds", chargeH.CreateRefund)
		r.Get("/charges/{externalID}/refunds/{refundID}", chargeH.GetRefund)
		r.Get("/charges/{externalID}/refundability", chargeH.GetRefundability)
	})
	r.Post("/webhooks/{provider}", webhookH.Receive)

	return &env{chargeRepo: chargeRepo, refundRepo: refundRepo, router: r}
}

func (e *env) seed(t *testing.T, externalID string, status charge.Status) *charge.Charge {
	t.Helper()
	c, err := charge.New(externalID, "acct_1", "sandbox", 10000, "GBP", charge.ModeWeb)
	require.NoError(t, err)
	c.Status = status
	e.chargeRepo.Seed(c)
	return c
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateCharge(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/charges",
		`{"gateway_account_id":"acct_1","provider":"sandbox","amount":10000,"currency":"GBP","description":"order 42"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"created"`)
	assert.Contains(t, rec.Body.String(), `"amount":10000`)
	assert.Contains(t, rec.Body.String(), `"external_id"`)
}

func TestCreateCharge_ValidationError(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/charges",
		`{"gateway_account_id":"acct_1","provider":"sandbox","currency":"GBP"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"validation_error"`)
}

func TestCreateCharge_UnknownProvider(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/charges",
		`{"gateway_account_id":"acct_1","provider":"nonexistent","amount":10000,"currency":"GBP"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"unknown_provider"`)
}

func TestGetCharge(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusCaptured)

	rec := e.do(http.MethodGet, "/api/v1/charges/ch_1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"external_id":"ch_1"`)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
	assert.Contains(t, rec.Body.String(), `"finished":true`)
}

func TestGetCharge_NotFound(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodGet, "/api/v1/charges/missing", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
}

func TestAuthorise(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusCreated)

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/authorise",
		`{"card_number":"4242424242424242","cardholder_name":"J Doe","cvc":"123","expiry_month":"12","expiry_year":"2030"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"AUTHORISED"`)
	assert.Contains(t, rec.Body.String(), `"gateway_transaction_id":"tx-1"`)
}

func TestAuthorise_BadCardNumber(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusCreated)

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/authorise",
		`{"card_number":"not-a-pan","cardholder_name":"J Doe","cvc":"123","expiry_month":"12","expiry_year":"2030"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"validation_error"`)
}

func TestCapture(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusAwaitingCaptureRequest)

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/capture", "")

	// Approval only; the gateway call happens in the capture sweep.
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
}

func TestCapture_NotCapturable(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusCreated)

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/capture", "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_capturable"`)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusCreated)

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/cancel", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}

func TestCreateRefund(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t, "ch_1", charge.StatusCaptured)
	c.SetGatewayTransactionID("tx-1")

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/refunds", `{"amount":3000}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":3000`)
	assert.Contains(t, rec.Body.String(), `"charge_external_id":"ch_1"`)
}

func TestCreateRefund_AmountExceeded(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t, "ch_1", charge.StatusCaptured)
	c.SetGatewayTransactionID("tx-1")

	rec := e.do(http.MethodPost, "/api/v1/charges/ch_1/refunds", `{"amount":999999}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"refund_amount_exceeded"`)
}

func TestGetRefundability(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "ch_1", charge.StatusCaptured)

	rec := e.do(http.MethodGet, "/api/v1/charges/ch_1/refundability", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount_available":10000`)
}

func TestWebhook_Applied(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t, "ch_1", charge.StatusCaptureSubmitted)
	c.SetGatewayTransactionID("tx-1")

	rec := e.do(http.MethodPost, "/webhooks/sandbox",
		`{"transaction_id":"tx-1","status":"CAPTURED","event_time":"2026-08-28T10:00:00Z"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := e.chargeRepo.GetByExternalID(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusCaptured, stored.Status)
}

func TestWebhook_UnknownChargeAcknowledged(t *testing.T) {
	e := newEnv(t)

	// Retrying cannot match the charge, so the notification is swallowed.
	rec := e.do(http.MethodPost, "/webhooks/sandbox",
		`{"transaction_id":"tx-unknown","status":"CAPTURED"}`)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_UnparseableBody(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/webhooks/sandbox", `{not json`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_WorldpayXML(t *testing.T) {
	e := newEnv(t)
	c, err := charge.New("ch_wp", "acct_1", "worldpay", 10000, "GBP", charge.ModeWeb)
	require.NoError(t, err)
	c.Status = charge.StatusCaptureSubmitted
	c.SetGatewayTransactionID("order-wp-1")
	e.chargeRepo.Seed(c)

	// Worldpay posts XML order status events rather than JSON.
	body := `<?xml version="1.0"?>
<paymentService>
  <notify>
    <orderStatusEvent orderCode="order-wp-1">
      <payment><lastEvent>CAPTURED</lastEvent></payment>
      <journal>
        <bookingDate><date year="2026" month="8" dayOfMonth="28"/></bookingDate>
      </journal>
    </orderStatusEvent>
  </notify>
</paymentService>`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/worldpay", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := e.chargeRepo.GetByExternalID(context.Background(), "ch_wp")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusCaptured, stored.Status)
	last := stored.Events[len(stored.Events)-1]
	require.NotNil(t, last.GatewayEventTime)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), *last.GatewayEventTime)
}
