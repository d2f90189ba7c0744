package refund

import "context"

// Repository defines the interface for refund persistence.
type Repository interface {
	Create(ctx context.Context, r *Refund) error
	GetByExternalID(ctx context.Context, externalID string) (*Refund, error)
	// ListByCharge returns all refunds against a charge, oldest first.
	ListByCharge(ctx context.Context, chargeExternalID string) ([]*Refund, error)
	Update(ctx context.Context, r *Refund) error
}
