package gateway

import (
	"context"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/errors"
)

// AuthoriseStatus is the canonical outcome of an authorisation attempt.
type AuthoriseStatus string

const (
	AuthoriseAuthorised  AuthoriseStatus = "AUTHORISED"
	AuthoriseRejected    AuthoriseStatus = "REJECTED"
	AuthoriseRequires3DS AuthoriseStatus = "REQUIRES_3DS"
	AuthoriseError       AuthoriseStatus = "ERROR"
)

// CaptureStatus is the canonical outcome of a capture attempt.
type CaptureStatus string

const (
	CaptureSucceeded CaptureStatus = "SUCCEEDED"
	CapturePending   CaptureStatus = "PENDING"
	CaptureError     CaptureStatus = "ERROR"
)

// SimpleStatus is the canonical outcome of a cancel or refund attempt.
type SimpleStatus string

const (
	OutcomeSucceeded SimpleStatus = "SUCCEEDED"
	OutcomeError     SimpleStatus = "ERROR"
)

// Card carries the card details supplied for a web or MOTO authorisation.
type Card struct {
	Number      string
	HolderName  string
	CVC         string
	ExpiryMonth string
	ExpiryYear  string
	Brand       string
	AddressLine string
	City        string
	Postcode    string
	Country     string
}

// AuthoriseRequest is the canonical gateway-agnostic authorisation request.
type AuthoriseRequest struct {
	Charge *charge.Charge
	Card   Card
}

// Authorise3DSRequest completes a 3DS challenge started by an earlier
// authorisation. PAResponse is the issuer's challenge result, opaque here.
type Authorise3DSRequest struct {
	Charge     *charge.Charge
	PAResponse string
	MD         string
}

// UserNotPresentRequest authorises a recurring (merchant-initiated) charge
// against a stored agreement. No cardholder interaction occurs.
type UserNotPresentRequest struct {
	Charge             *charge.Charge
	AgreementReference string
}

// RefundRequest asks the gateway to return part of a captured charge.
type RefundRequest struct {
	Charge           *charge.Charge
	RefundExternalID string
	Amount           int64
}

// AuthoriseOutcome is what an adapter distils an authorisation response into.
type AuthoriseOutcome struct {
	Status        AuthoriseStatus
	TransactionID string
	GatewayError  *errors.GatewayError
	ThreeDS       *charge.ThreeDSDetail
}

// CaptureOutcome is the distilled result of a capture call.
type CaptureOutcome struct {
	Status       CaptureStatus
	GatewayError *errors.GatewayError
}

// CancelOutcome is the distilled result of a cancel call.
type CancelOutcome struct {
	Status       SimpleStatus
	GatewayError *errors.GatewayError
}

// RefundOutcome is the distilled result of a refund call.
type RefundOutcome struct {
	Status           SimpleStatus
	GatewayReference string
	GatewayError     *errors.GatewayError
}

// QueryOutcome is the distilled result of a payment status query, used by
// reconciliation to resolve charges stuck in a submitted/unknown status.
type QueryOutcome struct {
	Found        bool
	MappedStatus *charge.Status
	RawStatus    string
}

// Provider is the canonical contract each external gateway adapter
// implements. Each adapter owns its wire format, its idempotency key
// placement, its error classification table and its raw-status table; the
// rest of the system sees only these operations and outcomes.
type Provider interface {
	Name() string

	Authorise(ctx context.Context, req AuthoriseRequest) (*AuthoriseOutcome, error)
	Authorise3DS(ctx context.Context, req Authorise3DSRequest) (*AuthoriseOutcome, error)
	AuthoriseUserNotPresent(ctx context.Context, req UserNotPresentRequest) (*AuthoriseOutcome, error)
	Capture(ctx context.Context, ch *charge.Charge) (*CaptureOutcome, error)
	Cancel(ctx context.Context, ch *charge.Charge) (*CancelOutcome, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundOutcome, error)
	QueryPaymentStatus(ctx context.Context, ch *charge.Charge) (*QueryOutcome, error)

	// StatusMapper exposes the provider's raw-status table to the shared
	// interpreter. Tables are never shared across providers: the same
	// literal token can mean different things per gateway.
	StatusMapper
}

// IdempotencyKey derives the deterministic key sent with every mutating
// gateway request so that retries after a timeout cannot create duplicate
// gateway-side effects. The key is stable across retries of the same
// logical operation: operation name concatenated with the external id.
func IdempotencyKey(operation, externalID string) string {
	return operation + externalID
}
