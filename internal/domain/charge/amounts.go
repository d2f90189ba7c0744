package charge

// TotalAmount is the amount the cardholder pays: base amount plus corporate
// surcharge when one applies.
func (c *Charge) TotalAmount() int64 {
	if c.CorporateSurcharge != nil {
		return c.Amount + *c.CorporateSurcharge
	}
	return c.Amount
}

// NetAmount is the amount ultimately due to the merchant. It is always
// derived, never stored: total amount less collected fees once the charge
// has externally succeeded, otherwise just the negated fees (fees are owed
// even when the payment never completes).
func (c *Charge) NetAmount() int64 {
	if c.Status.External() == ExternalSuccess {
		return c.TotalAmount() - c.FeeAmount()
	}
	return -c.FeeAmount()
}
