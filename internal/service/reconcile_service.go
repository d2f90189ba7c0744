package service

import (
	"context"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/rs/zerolog"
)

// ReconcileService resolves charges left in a submitted/unknown status by a
// gateway timeout. It queries the gateway by the transaction id derived from
// the original idempotent request; it never blindly retries the mutating
// call.
type ReconcileService struct {
	chargeRepo charge.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	locker     ChargeLocker
	registry   *gateway.Registry
	logger     zerolog.Logger
}

func NewReconcileService(
	chargeRepo charge.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	locker ChargeLocker,
	registry *gateway.Registry,
	logger zerolog.Logger,
) *ReconcileService {
	return &ReconcileService{
		chargeRepo: chargeRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		locker:     locker,
		registry:   registry,
		logger:     logger,
	}
}

// Reconcile resolves one ambiguous charge against gateway truth. When the
// gateway's answer is reachable through the transition graph the normal
// validated path applies; when it is not, the charge is force-moved and the
// override is audited distinctly from validated transitions.
func (s *ReconcileService) Reconcile(ctx context.Context, chargeExternalID string) error {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.QueryPaymentStatus(ctx, c)
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Query: out}, nil
	})
	if err != nil {
		return err
	}
	query := result.Query

	if !query.Found {
		// The gateway never saw the request: the authorisation that timed
		// out never happened.
		if charge.CanTransition(c.Status, charge.StatusAuthErrorChargeMissing) {
			if err := c.Transition(charge.StatusAuthErrorChargeMissing); err != nil {
				return err
			}
		} else {
			s.logger.Warn().
				Str("charge", c.ExternalID).
				Str("from", string(c.Status)).
				Str("to", string(charge.StatusAuthErrorChargeMissing)).
				Bool("forced", true).
				Msg("forcing charge to gateway-confirmed state")
			c.ForceTransition(charge.StatusAuthErrorChargeMissing)
		}
		return s.persistReconciled(ctx, c, "charge.reconciled_missing")
	}

	if query.MappedStatus == nil {
		s.logger.Error().
			Str("charge", c.ExternalID).
			Str("raw_status", query.RawStatus).
			Msg("unknown gateway status during reconciliation")
		return nil
	}

	target := *query.MappedStatus
	if target == c.Status {
		return nil // already consistent
	}

	if charge.CanTransition(c.Status, target) {
		if err := c.Transition(target); err != nil {
			return err
		}
		s.logger.Info().
			Str("charge", c.ExternalID).
			Str("status", string(target)).
			Msg("charge reconciled")
	} else {
		s.logger.Warn().
			Str("charge", c.ExternalID).
			Str("from", string(c.Status)).
			Str("to", string(target)).
			Bool("forced", true).
			Msg("forcing charge to gateway-confirmed state")
		c.ForceTransition(target)
	}

	return s.persistReconciled(ctx, c, "charge.reconciled")
}

func (s *ReconcileService) persistReconciled(ctx context.Context, c *charge.Charge, eventType string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.chargeRepo.Update(txCtx, c); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry("charge", c.ExternalID, eventType, map[string]any{
			"charge_external_id": c.ExternalID,
			"status":             string(c.Status),
			"external_status":    string(c.Status.External()),
		}))
	})
}
