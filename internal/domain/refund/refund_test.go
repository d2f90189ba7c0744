package refund

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
)

func TestNew(t *testing.T) {
	r, err := New("ch_1", 3000)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, r.Status)
	assert.Equal(t, "ch_1", r.ChargeExternalID)
	assert.NotEmpty(t, r.ExternalID)
}

func TestNew_RejectsNonPositiveAmount(t *testing.T) {
	_, err := New("ch_1", 0)
	assert.Error(t, err)
	_, err = New("ch_1", -50)
	assert.Error(t, err)
}

func TestTransition(t *testing.T) {
	r, err := New("ch_1", 3000)
	require.NoError(t, err)

	require.NoError(t, r.Transition(StatusSubmitted))
	require.NoError(t, r.Transition(StatusRefunded))

	// Terminal: no way back.
	err = r.Transition(StatusSubmitted)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestTransition_CreatedStraightToError(t *testing.T) {
	r, err := New("ch_1", 3000)
	require.NoError(t, err)
	require.NoError(t, r.Transition(StatusError))
	assert.True(t, r.Status.IsTerminal())
}

func TestStatus_CountsAgainstRefundable(t *testing.T) {
	assert.True(t, StatusCreated.CountsAgainstRefundable())
	assert.True(t, StatusSubmitted.CountsAgainstRefundable())
	assert.True(t, StatusRefunded.CountsAgainstRefundable())
	assert.False(t, StatusError.CountsAgainstRefundable())
}

func TestAvailableToRefund(t *testing.T) {
	refunded := &Refund{Amount: 3000, Status: StatusRefunded}
	errored := &Refund{Amount: 2000, Status: StatusError}

	// The errored refund never reduced what is available.
	got := AvailableToRefund(10000, []*Refund{refunded, errored})
	assert.Equal(t, int64(7000), got)
}

func TestAvailableToRefund_InFlightRefundsCount(t *testing.T) {
	pending := &Refund{Amount: 1000, Status: StatusCreated}
	submitted := &Refund{Amount: 2000, Status: StatusSubmitted}

	got := AvailableToRefund(10000, []*Refund{pending, submitted})
	assert.Equal(t, int64(7000), got)
}

func TestAvailableToRefund_NoRefunds(t *testing.T) {
	assert.Equal(t, int64(10000), AvailableToRefund(10000, nil))
}
