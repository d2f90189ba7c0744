package refund

import (
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/google/uuid"
)

// Status is the lifecycle status of a refund.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusSubmitted Status = "REFUND SUBMITTED"
	StatusRefunded  Status = "REFUNDED"
	StatusError     Status = "REFUND ERROR"
)

// CountsAgainstRefundable reports whether a refund in this status reduces
// the amount still available to refund. Errored refunds do not.
func (s Status) CountsAgainstRefundable() bool {
	switch s {
	case StatusCreated, StatusSubmitted, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether the refund has finished, successfully or not.
func (s Status) IsTerminal() bool {
	return s == StatusRefunded || s == StatusError
}

// Refund is one attempt to return part of a captured charge to the payer.
type Refund struct {
	ExternalID       string
	ChargeExternalID string
	Amount           int64 // minor units
	Status           Status
	GatewayReference *string
	UserExternalID   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New creates a refund in CREATED.
func New(chargeExternalID string, amount int64) (*Refund, error) {
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	now := time.Now()
	return &Refund{
		ExternalID:       uuid.New().String(),
		ChargeExternalID: chargeExternalID,
		Amount:           amount,
		Status:           StatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

var refundTransitions = map[Status][]Status{
	StatusCreated:   {StatusSubmitted, StatusRefunded, StatusError},
	StatusSubmitted: {StatusRefunded, StatusError},
}

// Transition moves the refund to target if the edge is legal.
func (r *Refund) Transition(target Status) error {
	for _, allowed := range refundTransitions[r.Status] {
		if allowed == target {
			r.Status = target
			r.UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.NewDomainError(
		"invalid_refund_transition",
		"cannot transition refund from "+string(r.Status)+" to "+string(target),
		errors.ErrInvalidStateTransition,
	)
}

// AvailableToRefund computes the amount still refundable for a charge: the
// total charged amount less every refund that counts against it. Refunds in
// error are excluded from the deduction.
func AvailableToRefund(totalChargeAmount int64, refunds []*Refund) int64 {
	available := totalChargeAmount
	for _, r := range refunds {
		if r.Status.CountsAgainstRefundable() {
			available -= r.Amount
		}
	}
	return available
}
