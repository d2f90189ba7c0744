package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

func testCharge(t *testing.T) *charge.Charge {
	t.Helper()
	c, err := charge.New("abc123", "acct_1", ProviderName, 10000, "GBP", charge.ModeWeb)
	require.NoError(t, err)
	return c
}

func testProvider(handler http.HandlerFunc) (*Provider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := New(Config{BaseURL: srv.URL, APIKey: "sk_test_123", ConnectAccountID: "acct_connect"})
	return p, srv
}

func TestAuthorise_Success(t *testing.T) {
	var gotReq *http.Request
	var gotForm map[string][]string
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotReq = r
		gotForm = r.PostForm
		w.Write([]byte(`{"id":"ch_gw_1","status":"authorized"}`))
	})
	defer srv.Close()

	out, err := p.Authorise(context.Background(), gateway.AuthoriseRequest{
		Charge: testCharge(t),
		Card:   gateway.Card{Number: "4242424242424242", ExpiryMonth: "12", ExpiryYear: "2030", CVC: "123"},
	})
	require.NoError(t, err)

	assert.Equal(t, gateway.AuthoriseAuthorised, out.Status)
	assert.Equal(t, "ch_gw_1", out.TransactionID)

	// Wire shape: form-encoded, auth scheme, connect account, idempotency key.
	assert.Equal(t, "/v1/charges", gotReq.URL.Path)
	assert.Equal(t, "Bearer sk_test_123", gotReq.Header.Get("Authorization"))
	assert.Equal(t, "acct_connect", gotReq.Header.Get("Stripe-Account"))
	assert.Equal(t, "authoriseabc123", gotReq.Header.Get("Idempotency-Key"))
	assert.Equal(t, "10000", gotForm["amount"][0])
	assert.Equal(t, "gbp", gotForm["currency"][0])
	assert.Equal(t, "false", gotForm["capture"][0])
	assert.Equal(t, "4242424242424242", gotForm["card[number]"][0])
}

func TestAuthorise_CardDeclined(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})
	defer srv.Close()

	out, err := p.Authorise(context.Background(), gateway.AuthoriseRequest{Charge: testCharge(t)})
	require.NoError(t, err)
	// A decline is REJECTED with no gateway error attached.
	assert.Equal(t, gateway.AuthoriseRejected, out.Status)
	assert.Nil(t, out.GatewayError)
}

func TestAuthorise_InvalidRequestDeclineCode(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"expired_card","message":"expired"}}`))
	})
	defer srv.Close()

	out, err := p.Authorise(context.Background(), gateway.AuthoriseRequest{Charge: testCharge(t)})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseRejected, out.Status)
}

func TestAuthorise_GenericGatewayError(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"api_error","code":"processing_error","message":"internal"}}`))
	})
	defer srv.Close()

	out, err := p.Authorise(context.Background(), gateway.AuthoriseRequest{Charge: testCharge(t)})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseError, out.Status)
	require.NotNil(t, out.GatewayError)
	assert.Equal(t, errors.GatewayErrorGeneric, out.GatewayError.Class)
	assert.Equal(t, "processing_error", out.GatewayError.Code)
}

func TestAuthorise_Requires3DS(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ch_gw_3ds","status":"requires_action","next_action":{"redirect_url":"https://issuer.example","payload":"pareq-blob","version":"2.2.0"}}`))
	})
	defer srv.Close()

	out, err := p.Authorise(context.Background(), gateway.AuthoriseRequest{Charge: testCharge(t)})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseRequires3DS, out.Status)
	require.NotNil(t, out.ThreeDS)
	assert.Equal(t, "https://issuer.example", out.ThreeDS.IssuerURL)
	assert.Equal(t, "pareq-blob", out.ThreeDS.PARequest)
	assert.Equal(t, "2.2.0", out.ThreeDS.ProtocolVersion)
}

func TestCapture(t *testing.T) {
	var gotPath, gotKey string
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		w.Write([]byte(`{"id":"ch_gw_1","status":"succeeded","captured":true}`))
	})
	defer srv.Close()

	c := testCharge(t)
	c.SetGatewayTransactionID("ch_gw_1")

	out, err := p.Capture(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, gateway.CaptureSucceeded, out.Status)
	assert.Equal(t, "/v1/charges/ch_gw_1/capture", gotPath)
	assert.Equal(t, "captureabc123", gotKey)
}

func TestCapture_Pending(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ch_gw_1","status":"pending","captured":false}`))
	})
	defer srv.Close()

	c := testCharge(t)
	c.SetGatewayTransactionID("ch_gw_1")

	out, err := p.Capture(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, gateway.CapturePending, out.Status)
}

func TestCapture_WithoutTransactionID(t *testing.T) {
	p := New(Config{BaseURL: "http://unused.invalid"})
	_, err := p.Capture(context.Background(), testCharge(t))
	assert.Error(t, err)
}

func TestRefund(t *testing.T) {
	var gotForm map[string][]string
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte(`{"id":"re_gw_1","status":"succeeded"}`))
	})
	defer srv.Close()

	c := testCharge(t)
	c.SetGatewayTransactionID("ch_gw_1")

	out, err := p.Refund(context.Background(), gateway.RefundRequest{
		Charge: c, RefundExternalID: "ref_1", Amount: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSucceeded, out.Status)
	assert.Equal(t, "re_gw_1", out.GatewayReference)
	assert.Equal(t, "ch_gw_1", gotForm["charge"][0])
	assert.Equal(t, "3000", gotForm["amount"][0])
}

func TestQueryPaymentStatus(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ch_gw_1","status":"succeeded","captured":true}`))
	})
	defer srv.Close()

	c := testCharge(t)
	c.SetGatewayTransactionID("ch_gw_1")

	out, err := p.QueryPaymentStatus(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "succeeded", out.RawStatus)
	require.NotNil(t, out.MappedStatus)
	assert.Equal(t, charge.StatusCaptured, *out.MappedStatus)
}

func TestQueryPaymentStatus_Missing(t *testing.T) {
	p, srv := testProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such charge"}}`))
	})
	defer srv.Close()

	c := testCharge(t)
	c.SetGatewayTransactionID("ch_gw_missing")

	out, err := p.QueryPaymentStatus(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestQueryPaymentStatus_NoTransactionID(t *testing.T) {
	p := New(Config{BaseURL: "http://unused.invalid"})
	out, err := p.QueryPaymentStatus(context.Background(), testCharge(t))
	require.NoError(t, err)
	assert.False(t, out.Found)
}
