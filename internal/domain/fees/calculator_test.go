package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
)

var testCalc = Calculator{
	TransactionRateBasisPoints: 150, // 1.5%
	RadarFee:                   5,
	ThreeDSFee:                 10,
}

func calcCharge(t *testing.T, amount int64) *charge.Charge {
	t.Helper()
	c, err := charge.New("ch_fees", "acct_1", "sandbox", amount, "GBP", charge.ModeWeb)
	require.NoError(t, err)
	return c
}

func TestBreakdown_Order(t *testing.T) {
	c := calcCharge(t, 10000)
	lines := testCalc.Breakdown(c)

	require.Len(t, lines, 2)
	assert.Equal(t, charge.FeeTransaction, lines[0].Type)
	assert.Equal(t, charge.FeeRadar, lines[1].Type)
	assert.Equal(t, int64(150), lines[0].Amount)
	assert.Equal(t, int64(5), lines[1].Amount)
}

func TestBreakdown_Includes3DSFeeAfterChallenge(t *testing.T) {
	c := calcCharge(t, 10000)
	require.NoError(t, c.Transition(charge.StatusEnteringCardDetails))
	require.NoError(t, c.Transition(charge.StatusAuthReady))
	require.NoError(t, c.Transition(charge.StatusAuth3DSRequired))

	lines := testCalc.Breakdown(c)
	require.Len(t, lines, 3)
	assert.Equal(t, charge.FeeThreeDS, lines[2].Type)
	assert.Equal(t, int64(10), lines[2].Amount)
}

func TestBreakdown_UsesTotalAmountWithSurcharge(t *testing.T) {
	c := calcCharge(t, 10000)
	surcharge := int64(1000)
	c.CorporateSurcharge = &surcharge

	lines := testCalc.Breakdown(c)
	// 11000 * 150bps = 165.
	assert.Equal(t, int64(165), lines[0].Amount)
}

func TestRoundHalfUpBasisPoints(t *testing.T) {
	tests := []struct {
		amount, bps, want int64
	}{
		{10000, 150, 150},  // exact
		{999, 150, 15},     // 14.985 rounds up
		{966, 150, 14},     // 14.49 rounds down
		{967, 150, 15},     // 14.505 rounds up
		{1, 50, 0},         // 0.005 rounds down at half-below
		{100, 50, 1},       // 0.5 rounds up (half-up)
		{0, 150, 0},
		{10000, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundHalfUpBasisPoints(tt.amount, tt.bps),
			"roundHalfUpBasisPoints(%d, %d)", tt.amount, tt.bps)
	}
}

func TestTotal(t *testing.T) {
	lines := []Line{
		{Type: charge.FeeTransaction, Amount: 150},
		{Type: charge.FeeRadar, Amount: 5},
		{Type: charge.FeeThreeDS, Amount: 10},
	}
	assert.Equal(t, int64(165), Total(lines))
	assert.Equal(t, int64(0), Total(nil))
}
