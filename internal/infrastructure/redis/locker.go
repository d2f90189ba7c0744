package redis

import (
	"context"
	"time"

	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChargeLocker hands out per-charge distributed locks so the synchronous
// request path and webhook application never mutate the same charge
// concurrently.
type ChargeLocker struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewChargeLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ChargeLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ChargeLocker{
		client:     client,
		ttl:        ttl,
		maxRetries: 10,
		retryDelay: 100 * time.Millisecond,
		logger:     logger,
	}
}

// AcquireChargeLock blocks until the per-charge lock is held or retries are
// exhausted. The returned release func is safe to call exactly once, in a
// defer.
func (cl *ChargeLocker) AcquireChargeLock(ctx context.Context, chargeExternalID string) (func(), error) {
	lock := NewDistributedLock(cl.client, "charge:"+chargeExternalID, cl.ttl)
	if err := lock.AcquireWithRetry(ctx, cl.maxRetries, cl.retryDelay); err != nil {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	release := func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			cl.logger.Warn().Err(err).Str("charge", chargeExternalID).Msg("failed to release charge lock")
		}
	}
	return release, nil
}
