package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

func testCharge(t *testing.T) *charge.Charge {
	t.Helper()
	c, err := charge.New("ch_sandbox", "acct_1", ProviderName, 1000, "GBP", charge.ModeWeb)
	require.NoError(t, err)
	return c
}

func authoriseWith(t *testing.T, number string) *gateway.AuthoriseOutcome {
	t.Helper()
	out, err := New().Authorise(context.Background(), gateway.AuthoriseRequest{
		Charge: testCharge(t),
		Card:   gateway.Card{Number: number},
	})
	require.NoError(t, err)
	return out
}

func TestAuthorise_Success(t *testing.T) {
	out := authoriseWith(t, "4242424242424242")
	assert.Equal(t, gateway.AuthoriseAuthorised, out.Status)
	assert.NotEmpty(t, out.TransactionID)
	assert.Nil(t, out.GatewayError)
}

func TestAuthorise_TransactionIDIsDeterministic(t *testing.T) {
	first := authoriseWith(t, "4242424242424242")
	second := authoriseWith(t, "4242424242424242")
	assert.Equal(t, first.TransactionID, second.TransactionID)

	// A different card on the same charge yields a different id.
	other := authoriseWith(t, "4111111111111111")
	assert.NotEqual(t, first.TransactionID, other.TransactionID)
}

func TestAuthorise_Rejected(t *testing.T) {
	for _, number := range []string{"4000000000000069", "4000000000000002", "4000000000009995"} {
		out := authoriseWith(t, number)
		assert.Equal(t, gateway.AuthoriseRejected, out.Status, "card %s", number)
		// A decline is a normal outcome, not a gateway fault.
		assert.Nil(t, out.GatewayError)
		assert.Empty(t, out.TransactionID)
	}
}

func TestAuthorise_Error(t *testing.T) {
	out := authoriseWith(t, "4000000000000119")
	assert.Equal(t, gateway.AuthoriseError, out.Status)
	require.NotNil(t, out.GatewayError)
	assert.Equal(t, "processing_error", out.GatewayError.Code)
	assert.Empty(t, out.TransactionID)
}

func TestAuthorise_Requires3DS(t *testing.T) {
	out := authoriseWith(t, "4000000000003220")
	assert.Equal(t, gateway.AuthoriseRequires3DS, out.Status)
	require.NotNil(t, out.ThreeDS)
	assert.NotEmpty(t, out.ThreeDS.IssuerURL)
	assert.NotEmpty(t, out.TransactionID)
}

func TestAuthorise3DS(t *testing.T) {
	p := New()
	c := testCharge(t)

	out, err := p.Authorise3DS(context.Background(), gateway.Authorise3DSRequest{Charge: c, PAResponse: "pa-res"})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseAuthorised, out.Status)

	out, err = p.Authorise3DS(context.Background(), gateway.Authorise3DSRequest{Charge: c, PAResponse: ""})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseRejected, out.Status)
}

func TestAuthorise3DS_KeepsExistingTransactionID(t *testing.T) {
	p := New()
	c := testCharge(t)
	c.SetGatewayTransactionID("tx-existing")

	out, err := p.Authorise3DS(context.Background(), gateway.Authorise3DSRequest{Charge: c, PAResponse: "pa-res"})
	require.NoError(t, err)
	assert.Equal(t, "tx-existing", out.TransactionID)
}

func TestAuthoriseUserNotPresent(t *testing.T) {
	p := New()

	out, err := p.AuthoriseUserNotPresent(context.Background(), gateway.UserNotPresentRequest{
		Charge: testCharge(t), AgreementReference: "agr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseAuthorised, out.Status)

	out, err = p.AuthoriseUserNotPresent(context.Background(), gateway.UserNotPresentRequest{
		Charge: testCharge(t),
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.AuthoriseError, out.Status)
	assert.NotNil(t, out.GatewayError)
}

func TestCaptureCancelRefund(t *testing.T) {
	p := New()
	c := testCharge(t)

	capOut, err := p.Capture(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, gateway.CaptureSucceeded, capOut.Status)

	cancelOut, err := p.Cancel(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSucceeded, cancelOut.Status)

	refOut, err := p.Refund(context.Background(), gateway.RefundRequest{Charge: c, RefundExternalID: "ref-1", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSucceeded, refOut.Status)
	assert.Equal(t, "sandbox-refund-ref-1", refOut.GatewayReference)
}

func TestQueryPaymentStatus(t *testing.T) {
	p := New()
	c := testCharge(t)

	out, err := p.QueryPaymentStatus(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, out.Found)

	c.SetGatewayTransactionID("tx-1")
	out, err = p.QueryPaymentStatus(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, out.Found)
	require.NotNil(t, out.MappedStatus)
	assert.Equal(t, charge.StatusAuthSuccess, *out.MappedStatus)
}

func TestMapRawStatus(t *testing.T) {
	p := New()

	mapped, ok := p.MapRawStatus("CAPTURED")
	require.True(t, ok)
	require.NotNil(t, mapped.ChargeStatus)
	assert.Equal(t, charge.StatusCaptured, *mapped.ChargeStatus)

	_, ok = p.MapRawStatus("NOT_A_TOKEN")
	assert.False(t, ok)
}
