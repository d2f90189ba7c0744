// Package sandbox is a deterministic, side-effect-free gateway simulator.
// Outcomes are decided purely by the supplied card number, so it doubles as
// the canonical test double for the orchestration paths.
package sandbox

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

const ProviderName = "sandbox"

// Card number tables. Any number not listed authorises successfully.
var (
	rejectedCards = map[string]string{
		"4000000000000069": "expired_card",
		"4000000000000002": "card_declined",
		"4000000000009995": "insufficient_funds",
	}
	errorCards = map[string]string{
		"4000000000000119": "processing_error",
	}
	threeDSCards = map[string]bool{
		"4000000000003220": true,
	}
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) Authorise(_ context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error) {
	number := req.Card.Number

	if threeDSCards[number] {
		return &gateway.AuthoriseOutcome{
			Status:        gateway.AuthoriseRequires3DS,
			TransactionID: transactionID(req.Charge.ExternalID, number),
			ThreeDS: &charge.ThreeDSDetail{
				IssuerURL:       "https://sandbox.example/3ds",
				PARequest:       "sandbox-pa-request",
				MD:              "sandbox-md",
				ProtocolVersion: "2.1.0",
			},
		}, nil
	}

	if _, ok := rejectedCards[number]; ok {
		// A plain decline carries no gateway error: the card was refused,
		// which is a normal outcome, not a fault.
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseRejected}, nil
	}

	if code, ok := errorCards[number]; ok {
		return &gateway.AuthoriseOutcome{
			Status:       gateway.AuthoriseError,
			GatewayError: errors.NewGenericGatewayError(code, "sandbox simulated gateway failure"),
		}, nil
	}

	return &gateway.AuthoriseOutcome{
		Status:        gateway.AuthoriseAuthorised,
		TransactionID: transactionID(req.Charge.ExternalID, number),
	}, nil
}

func (p *Provider) Authorise3DS(_ context.Context, req gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error) {
	// The simulator treats any non-empty challenge response as success.
	if req.PAResponse == "" {
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseRejected}, nil
	}
	txID := transactionID(req.Charge.ExternalID, req.PAResponse)
	if req.Charge.GatewayTransactionID != nil {
		txID = *req.Charge.GatewayTransactionID
	}
	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: txID}, nil
}

func (p *Provider) AuthoriseUserNotPresent(_ context.Context, req gateway.UserNotPresentRequest) (*gateway.AuthoriseOutcome, error) {
	if req.AgreementReference == "" {
		return &gateway.AuthoriseOutcome{
			Status:       gateway.AuthoriseError,
			GatewayError: errors.NewGenericGatewayError("missing_agreement", "no agreement reference supplied"),
		}, nil
	}
	return &gateway.AuthoriseOutcome{
		Status:        gateway.AuthoriseAuthorised,
		TransactionID: transactionID(req.Charge.ExternalID, req.AgreementReference),
	}, nil
}

func (p *Provider) Capture(_ context.Context, _ *charge.Charge) (*gateway.CaptureOutcome, error) {
	return &gateway.CaptureOutcome{Status: gateway.CaptureSucceeded}, nil
}

func (p *Provider) Cancel(_ context.Context, _ *charge.Charge) (*gateway.CancelOutcome, error) {
	return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
}

func (p *Provider) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundOutcome, error) {
	return &gateway.RefundOutcome{
		Status:           gateway.OutcomeSucceeded,
		GatewayReference: "sandbox-refund-" + req.RefundExternalID,
	}, nil
}

func (p *Provider) QueryPaymentStatus(_ context.Context, ch *charge.Charge) (*gateway.QueryOutcome, error) {
	if ch.GatewayTransactionID == nil {
		return &gateway.QueryOutcome{Found: false}, nil
	}
	// The simulator holds no server-side state; it reports the charge as
	// authorised, which is what a lost-response reconciliation expects.
	mapped := charge.StatusAuthSuccess
	return &gateway.QueryOutcome{Found: true, MappedStatus: &mapped, RawStatus: "AUTHORISED"}, nil
}

var statusTable = map[string]gateway.MappedStatus{
	"AUTHORISED": gateway.ChargeMapping(charge.StatusAuthSuccess),
	"REJECTED":   gateway.ChargeMapping(charge.StatusAuthRejected),
	"CAPTURED":   gateway.ChargeMapping(charge.StatusCaptured),
	"CANCELLED":  gateway.ChargeMapping(charge.StatusSystemCancelled),
	"EXPIRED":    gateway.ChargeMapping(charge.StatusExpired),
	"REFUNDED":      gateway.RefundMapping(refund.StatusRefunded),
	"REFUND_FAILED": gateway.RefundMapping(refund.StatusError),
}

func (p *Provider) MapRawStatus(raw string) (gateway.MappedStatus, bool) {
	m, ok := statusTable[raw]
	return m, ok
}

// transactionID hashes its inputs into a stable id, so replaying the same
// request against the simulator always yields the same transaction id.
func transactionID(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("sandbox-%016x", h.Sum64())
}
