package gateway

import (
	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
)

// InterpretationKind tags the result of interpreting a raw gateway status.
type InterpretationKind int

const (
	// KindIgnored means the token carries no new information for the
	// charge's current phase. Applying the same notification twice yields
	// Ignored the second time.
	KindIgnored InterpretationKind = iota
	// KindChargeStatusUpdate means the charge should transition.
	KindChargeStatusUpdate
	// KindRefundStatusUpdate means a refund should transition.
	KindRefundStatusUpdate
	// KindUnknown means the token is not in the provider's table. It must
	// never mutate state; callers log and alert for manual triage.
	KindUnknown
)

// Interpretation is the tagged result of interpreting a raw status token.
type Interpretation struct {
	Kind         InterpretationKind
	ChargeStatus charge.Status
	RefundStatus refund.Status
	RawToken     string
}

// MappedStatus is one entry in a provider's raw-status table: a raw token
// maps either to a charge status or to a refund status.
type MappedStatus struct {
	ChargeStatus *charge.Status
	RefundStatus *refund.Status
}

// StatusMapper is implemented per provider. The mapping tables are not
// shared across providers.
type StatusMapper interface {
	// MapRawStatus resolves a provider-specific status token. The second
	// return is false when the token is not in the provider's table.
	MapRawStatus(raw string) (MappedStatus, bool)
}

// Interpret resolves a raw gateway status token against the charge's current
// status. The ordering is fixed: a token mapping to a state the machine
// cannot legally reach from the current status is no new information and is
// Ignored; a legal charge transition becomes a ChargeStatusUpdate; refund
// lifecycle tokens become RefundStatusUpdate; anything unrecognised is
// Unknown. Interpret is pure: same inputs, same result.
func Interpret(mapper StatusMapper, raw string, current charge.Status) Interpretation {
	mapped, ok := mapper.MapRawStatus(raw)
	if !ok {
		return Interpretation{Kind: KindUnknown, RawToken: raw}
	}

	if mapped.ChargeStatus != nil {
		target := *mapped.ChargeStatus
		if target == current || !charge.CanTransition(current, target) {
			return Interpretation{Kind: KindIgnored, RawToken: raw}
		}
		return Interpretation{Kind: KindChargeStatusUpdate, ChargeStatus: target, RawToken: raw}
	}

	if mapped.RefundStatus != nil {
		return Interpretation{Kind: KindRefundStatusUpdate, RefundStatus: *mapped.RefundStatus, RawToken: raw}
	}

	// A table entry with neither side set marks a token the provider sends
	// but that we deliberately never act on.
	return Interpretation{Kind: KindIgnored, RawToken: raw}
}

// chargeStatusPtr and refundStatusPtr build table literals in the adapters.
func chargeStatusPtr(s charge.Status) *charge.Status { return &s }
func refundStatusPtr(s refund.Status) *refund.Status { return &s }

// ChargeMapping is a table entry resolving to a charge status.
func ChargeMapping(s charge.Status) MappedStatus {
	return MappedStatus{ChargeStatus: chargeStatusPtr(s)}
}

// RefundMapping is a table entry resolving to a refund status.
func RefundMapping(s refund.Status) MappedStatus {
	return MappedStatus{RefundStatus: refundStatusPtr(s)}
}

// IgnoredMapping is a table entry for tokens the provider sends but that we
// deliberately never act on.
func IgnoredMapping() MappedStatus { return MappedStatus{} }
