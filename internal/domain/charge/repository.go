package charge

import (
	"context"
	"time"
)

// Repository defines the interface for charge persistence.
type Repository interface {
	// Create inserts a new charge with its initial event.
	Create(ctx context.Context, c *Charge) error

	// GetByExternalID retrieves a charge, with fees and events, by its
	// client-facing id.
	GetByExternalID(ctx context.Context, externalID string) (*Charge, error)

	// GetByGatewayTransactionID retrieves a charge by the gateway's
	// correlation id. Used to match webhook notifications.
	GetByGatewayTransactionID(ctx context.Context, providerName, gatewayTxID string) (*Charge, error)

	// Update persists a mutated charge. The write is guarded by the
	// charge's optimistic version: it fails with ErrOptimisticLockFailed
	// when the stored version no longer matches, and the caller must
	// reload and retry rather than merge.
	Update(ctx context.Context, c *Charge) error

	// AppendEvents persists events added since the last save.
	AppendEvents(ctx context.Context, externalID string, events []Event) error

	// AddFee persists a fee record against the charge.
	AddFee(ctx context.Context, externalID string, fee Fee) error

	// ListByStatus returns charges currently in any of the given statuses,
	// oldest first. Used by the worker sweeps.
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Charge, error)

	// ListStaleByStatus returns charges in any of the given statuses whose
	// last update is older than cutoff. Used by expiry and reconciliation.
	ListStaleByStatus(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]*Charge, error)
}
