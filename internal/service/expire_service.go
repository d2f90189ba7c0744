package service

import (
	"context"
	stderrors "errors"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/rs/zerolog"
)

// ExpireService expires charges abandoned before capture. Charges that were
// authorised have their authorisation cancelled at the gateway first so the
// hold on the cardholder's funds is released.
type ExpireService struct {
	chargeRepo charge.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	locker     ChargeLocker
	registry   *gateway.Registry
	logger     zerolog.Logger
}

func NewExpireService(
	chargeRepo charge.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	locker ChargeLocker,
	registry *gateway.Registry,
	logger zerolog.Logger,
) *ExpireService {
	return &ExpireService{
		chargeRepo: chargeRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		locker:     locker,
		registry:   registry,
		logger:     logger,
	}
}

// ExpirableStatuses are the non-terminal statuses the expiry sweep considers.
var ExpirableStatuses = []charge.Status{
	charge.StatusCreated,
	charge.StatusEnteringCardDetails,
	charge.StatusAuth3DSRequired,
	charge.StatusAuthSuccess,
	charge.StatusAwaitingCaptureRequest,
	charge.StatusAuthUserNotPresentQueued,
}

// Expire expires a single stale charge.
func (s *ExpireService) Expire(ctx context.Context, chargeExternalID string) error {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return err
	}

	// Unauthorised charges expire locally; there is nothing to release.
	if charge.CanTransition(c.Status, charge.StatusExpired) {
		if err := c.Transition(charge.StatusExpired); err != nil {
			return err
		}
		return s.persistExpired(ctx, c)
	}

	if err := c.Transition(charge.StatusExpireCancelReady); err != nil {
		return err
	}
	if err := s.chargeRepo.Update(ctx, c); err != nil {
		return err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.Cancel(ctx, c)
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Cancel: out}, nil
	})
	if err != nil {
		if stderrors.Is(err, domainErrors.ErrGatewayTimeout) {
			if terr := c.Transition(charge.StatusExpireCancelSubmitted); terr != nil {
				return terr
			}
			return s.chargeRepo.Update(ctx, c)
		}
		if terr := c.Transition(charge.StatusExpireCancelFailed); terr != nil {
			return terr
		}
		if uerr := s.chargeRepo.Update(ctx, c); uerr != nil {
			return uerr
		}
		return err
	}

	if result.Cancel.Status != gateway.OutcomeSucceeded {
		if err := c.Transition(charge.StatusExpireCancelFailed); err != nil {
			return err
		}
		s.logger.Warn().Str("charge", c.ExternalID).Msg("gateway refused expiry cancellation")
		return s.chargeRepo.Update(ctx, c)
	}

	if err := c.Transition(charge.StatusExpired); err != nil {
		return err
	}
	return s.persistExpired(ctx, c)
}

func (s *ExpireService) persistExpired(ctx context.Context, c *charge.Charge) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.chargeRepo.Update(txCtx, c); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry("charge", c.ExternalID, "charge.expired", map[string]any{
			"charge_external_id": c.ExternalID,
			"status":             string(c.Status),
			"external_status":    string(c.Status.External()),
		}))
	})
}
