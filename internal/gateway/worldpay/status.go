package worldpay

import (
	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

// statusTable maps this provider's last-event tokens to canonical statuses.
// Owned by this adapter; the same token means something else on other
// gateways ("CAPTURED" here is a settlement notification, on Stripe-style
// gateways the equivalent token is "succeeded").
var statusTable = map[string]gateway.MappedStatus{
	"AUTHORISED":         gateway.ChargeMapping(charge.StatusAuthSuccess),
	"REFUSED":            gateway.ChargeMapping(charge.StatusAuthRejected),
	"CANCELLED":          gateway.ChargeMapping(charge.StatusSystemCancelled),
	"CAPTURED":           gateway.ChargeMapping(charge.StatusCaptured),
	"SETTLED":            gateway.IgnoredMapping(),
	"SETTLED_BY_MERCHANT": gateway.IgnoredMapping(),
	"SENT_FOR_AUTHORISATION": gateway.ChargeMapping(charge.StatusAuthSubmitted),
	"EXPIRED":            gateway.ChargeMapping(charge.StatusExpired),
	"REFUNDED":           gateway.RefundMapping(refund.StatusRefunded),
	"SENT_FOR_REFUND":    gateway.RefundMapping(refund.StatusSubmitted),
	"REFUND_FAILED":      gateway.RefundMapping(refund.StatusError),
}

func (p *Provider) MapRawStatus(raw string) (gateway.MappedStatus, bool) {
	m, ok := statusTable[raw]
	return m, ok
}
