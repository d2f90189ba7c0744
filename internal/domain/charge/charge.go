package charge

import (
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/google/uuid"
)

// AuthorisationMode says how the authorisation is initiated.
type AuthorisationMode string

const (
	ModeWeb       AuthorisationMode = "web"
	ModeMotoAPI   AuthorisationMode = "moto_api"
	ModeAgreement AuthorisationMode = "agreement"
	ModeExternal  AuthorisationMode = "external"
)

// FeeType identifies a fee line item. Order in a breakdown is always
// transaction, radar, then three_ds.
type FeeType string

const (
	FeeTransaction FeeType = "transaction"
	FeeRadar       FeeType = "radar"
	FeeThreeDS     FeeType = "three_ds"
)

// Fee is a gateway fee charged against a charge.
type Fee struct {
	ID                   uuid.UUID
	ChargeExternalID     string
	Type                 FeeType
	AmountDue            int64
	AmountCollected      int64
	GatewayTransactionID *string
	CreatedAt            time.Time
	CollectedAt          *time.Time
}

// Event is an immutable record of a status the charge passed through.
// GatewayEventTime is the provider-reported time, when the provider sent one.
type Event struct {
	ID               uuid.UUID
	Status           Status
	RecordedAt       time.Time
	GatewayEventTime *time.Time
}

// ThreeDSDetail is the opaque challenge data a provider returns when an
// authorisation requires 3DS. It is passed through to the authorise3ds call
// unmodified; the fields mean whatever the provider says they mean.
type ThreeDSDetail struct {
	IssuerURL       string
	PARequest       string
	MD              string
	WorldpayChallengeJWT       string
	WorldpayChallengeReference string
	WorldpayChallengePayload   string
	ProtocolVersion string
}

// Charge is one attempted card payment, tracked end to end. Status is never
// freely assigned: it changes only through Transition or, for reconciliation
// against gateway truth, ForceTransition.
type Charge struct {
	ExternalID           string
	GatewayAccountID     string
	ProviderName         string
	Amount               int64 // minor units
	Currency             string
	Description          string
	Reference            string
	Status               Status
	GatewayTransactionID *string
	CorporateSurcharge   *int64
	Fees                 []Fee
	Events               []Event
	ThreeDSDetail        *ThreeDSDetail
	AuthorisationMode    AuthorisationMode
	AgreementID          *string
	Email                *string
	CardBrand            *string
	// Version is the optimistic-concurrency token; incremented by the
	// repository on every persisted mutation.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a charge in CREATED with its first event recorded.
func New(externalID, gatewayAccountID, providerName string, amount int64, currency string, mode AuthorisationMode) (*Charge, error) {
	if externalID == "" {
		return nil, errors.NewValidationError("external_id", "cannot be empty")
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	now := time.Now()
	c := &Charge{
		ExternalID:        externalID,
		GatewayAccountID:  gatewayAccountID,
		ProviderName:      providerName,
		Amount:            amount,
		Currency:          currency,
		Status:            StatusCreated,
		AuthorisationMode: mode,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	c.Events = append(c.Events, Event{Status: StatusCreated, RecordedAt: now})
	return c, nil
}

// SetGatewayTransactionID records the gateway's transaction id once known.
// It is set-once: later calls with a different id are ignored so webhook
// replays cannot clobber the correlation key.
func (c *Charge) SetGatewayTransactionID(id string) {
	if c.GatewayTransactionID != nil {
		return
	}
	c.GatewayTransactionID = &id
}

// AddFee appends a fee record to the charge.
func (c *Charge) AddFee(f Fee) {
	c.Fees = append(c.Fees, f)
}

// FeeAmount is the sum of collected fee amounts across all fee records.
func (c *Charge) FeeAmount() int64 {
	var total int64
	for _, f := range c.Fees {
		total += f.AmountCollected
	}
	return total
}

// firstEventTime scans the append-only event log for the first event with
// the given status. Pure query; the log is never mutated by derivations.
func (c *Charge) firstEventTime(s Status) *time.Time {
	for _, e := range c.Events {
		if e.Status == s {
			if e.GatewayEventTime != nil {
				return e.GatewayEventTime
			}
			t := e.RecordedAt
			return &t
		}
	}
	return nil
}

// CaptureSubmitTime is when the capture request was first submitted to the
// gateway, or nil if it never was.
func (c *Charge) CaptureSubmitTime() *time.Time {
	return c.firstEventTime(StatusCaptureSubmitted)
}

// CapturedTime is when the gateway confirmed capture, or nil.
func (c *Charge) CapturedTime() *time.Time {
	return c.firstEventTime(StatusCaptured)
}

// WentThrough3DS reports whether the charge's history shows a 3DS challenge.
func (c *Charge) WentThrough3DS() bool {
	for _, e := range c.Events {
		if e.Status == StatusAuth3DSRequired {
			return true
		}
	}
	return false
}

// IsExpungeable reports whether the charge may be purged by data retention.
func (c *Charge) IsExpungeable() bool {
	return c.Status.IsExpungeable()
}
