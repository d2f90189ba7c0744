package stripe

import (
	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

// statusTable maps this provider's raw status tokens to canonical statuses.
// It is owned by this adapter and shared with no other provider.
var statusTable = map[string]gateway.MappedStatus{
	"succeeded":                 gateway.ChargeMapping(charge.StatusCaptured),
	"pending":                   gateway.ChargeMapping(charge.StatusAuthSubmitted),
	"requires_capture":          gateway.ChargeMapping(charge.StatusAuthSuccess),
	"failed":                    gateway.ChargeMapping(charge.StatusAuthRejected),
	"canceled":                  gateway.ChargeMapping(charge.StatusSystemCancelled),
	"charge.dispute.created":    gateway.IgnoredMapping(),
	"charge.refund.updated":     gateway.IgnoredMapping(),
	"refund.succeeded":          gateway.RefundMapping(refund.StatusRefunded),
	"refund.failed":             gateway.RefundMapping(refund.StatusError),
	"charge.refunded":           gateway.RefundMapping(refund.StatusRefunded),
}

func (p *Provider) MapRawStatus(raw string) (gateway.MappedStatus, bool) {
	m, ok := statusTable[raw]
	return m, ok
}
