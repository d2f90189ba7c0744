package service

import "context"

// TransactionManager runs a function inside a database transaction. The
// repositories pick the transaction up from the context.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChargeLocker serialises mutating access to a single charge across the
// synchronous path and webhook application. Release must always be called.
type ChargeLocker interface {
	AcquireChargeLock(ctx context.Context, chargeExternalID string) (release func(), err error)
}
