package fees

import (
	"github.com/cassiomorais/chargegate/internal/domain/charge"
)

// Line is one fee line item in a breakdown.
type Line struct {
	Type   charge.FeeType
	Amount int64 // minor units
}

// Calculator computes the Stripe-style fee breakdown for a charge. The
// transaction fee is a flat rate of the charge amount expressed in basis
// points and rounded half-up to the nearest minor unit; radar and 3DS fees
// are fixed minor-unit amounts. The rounding mode is half-up throughout and
// must not change without reverifying against provider statements.
type Calculator struct {
	TransactionRateBasisPoints int64
	RadarFee                   int64
	ThreeDSFee                 int64
}

// Breakdown returns the ordered fee line items for the charge: transaction
// first, radar second, three_ds last when the charge's event history shows a
// 3DS challenge.
func (c Calculator) Breakdown(ch *charge.Charge) []Line {
	lines := []Line{
		{Type: charge.FeeTransaction, Amount: roundHalfUpBasisPoints(ch.TotalAmount(), c.TransactionRateBasisPoints)},
		{Type: charge.FeeRadar, Amount: c.RadarFee},
	}
	if ch.WentThrough3DS() {
		lines = append(lines, Line{Type: charge.FeeThreeDS, Amount: c.ThreeDSFee})
	}
	return lines
}

// Total sums a breakdown.
func Total(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}
	return total
}

// roundHalfUpBasisPoints computes amount * bps / 10000 rounded half-up,
// in pure integer arithmetic. Inputs are non-negative minor units.
func roundHalfUpBasisPoints(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
