package charge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New("ch_new", "acct_1", "sandbox", 2500, "GBP", ModeWeb)
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, c.Status)
	assert.Equal(t, int64(1), c.Version)
	require.Len(t, c.Events, 1)
	assert.Equal(t, StatusCreated, c.Events[0].Status)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name       string
		externalID string
		amount     int64
		currency   string
	}{
		{"empty external id", "", 2500, "GBP"},
		{"zero amount", "ch_1", 0, "GBP"},
		{"negative amount", "ch_1", -100, "GBP"},
		{"bad currency", "ch_1", 2500, "POUNDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.externalID, "acct_1", "sandbox", tt.amount, tt.currency, ModeWeb)
			assert.Error(t, err)
		})
	}
}

func TestSetGatewayTransactionID_SetOnce(t *testing.T) {
	c, err := New("ch_tx", "acct_1", "sandbox", 2500, "GBP", ModeWeb)
	require.NoError(t, err)

	c.SetGatewayTransactionID("tx-1")
	require.NotNil(t, c.GatewayTransactionID)
	assert.Equal(t, "tx-1", *c.GatewayTransactionID)

	// A replayed notification with a different id must not clobber it.
	c.SetGatewayTransactionID("tx-2")
	assert.Equal(t, "tx-1", *c.GatewayTransactionID)
}

func TestWentThrough3DS(t *testing.T) {
	c, err := New("ch_3ds", "acct_1", "sandbox", 2500, "GBP", ModeWeb)
	require.NoError(t, err)
	assert.False(t, c.WentThrough3DS())

	require.NoError(t, c.Transition(StatusEnteringCardDetails))
	require.NoError(t, c.Transition(StatusAuthReady))
	require.NoError(t, c.Transition(StatusAuth3DSRequired))
	assert.True(t, c.WentThrough3DS())

	// The history keeps the answer true after the challenge completes.
	require.NoError(t, c.Transition(StatusAuth3DSReady))
	require.NoError(t, c.Transition(StatusAuthSuccess))
	assert.True(t, c.WentThrough3DS())
}

func TestCaptureTimes(t *testing.T) {
	c, err := New("ch_times", "acct_1", "sandbox", 2500, "GBP", ModeWeb)
	require.NoError(t, err)
	assert.Nil(t, c.CaptureSubmitTime())
	assert.Nil(t, c.CapturedTime())

	c.Status = StatusCaptureSubmitted
	submitted := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	c.Events = append(c.Events, Event{Status: StatusCaptureSubmitted, RecordedAt: submitted})

	captured := time.Date(2026, 3, 15, 9, 5, 0, 0, time.UTC)
	gatewayTime := time.Date(2026, 3, 15, 9, 4, 30, 0, time.UTC)
	c.Events = append(c.Events, Event{Status: StatusCaptured, RecordedAt: captured, GatewayEventTime: &gatewayTime})

	require.NotNil(t, c.CaptureSubmitTime())
	assert.Equal(t, submitted, *c.CaptureSubmitTime())

	// The gateway-reported time wins when the provider sent one.
	require.NotNil(t, c.CapturedTime())
	assert.Equal(t, gatewayTime, *c.CapturedTime())
}
