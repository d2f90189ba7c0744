package service

import (
	"context"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/rs/zerolog"
)

// Notification is a provider-specific webhook payload reduced to the parts
// the core acts on. Authentication happened upstream in the middleware.
type Notification struct {
	ProviderName         string
	RawStatus            string
	GatewayTransactionID string
	RefundReference      string
	GatewayEventTime     *time.Time
}

// WebhookService applies asynchronous gateway notifications through the
// shared interpreter. Applying the same notification twice is a no-op: the
// interpreter classifies the replay as Ignored because the transition has
// already happened.
type WebhookService struct {
	chargeRepo charge.Repository
	refundRepo refund.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	locker     ChargeLocker
	registry   *gateway.Registry
	logger     zerolog.Logger
}

func NewWebhookService(
	chargeRepo charge.Repository,
	refundRepo refund.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	locker ChargeLocker,
	registry *gateway.Registry,
	logger zerolog.Logger,
) *WebhookService {
	return &WebhookService{
		chargeRepo: chargeRepo,
		refundRepo: refundRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		locker:     locker,
		registry:   registry,
		logger:     logger,
	}
}

// ApplyNotification matches the notification to a charge by gateway
// transaction id and applies the interpreted result. A notification may
// arrive before the synchronous response path completes; the per-charge
// lock serialises the two.
func (s *WebhookService) ApplyNotification(ctx context.Context, n Notification) error {
	provider, _, err := s.registry.Get(n.ProviderName)
	if err != nil {
		return err
	}

	c, err := s.chargeRepo.GetByGatewayTransactionID(ctx, n.ProviderName, n.GatewayTransactionID)
	if err != nil {
		return err
	}

	release, err := s.locker.AcquireChargeLock(ctx, c.ExternalID)
	if err != nil {
		return err
	}
	defer release()

	// Reload under the lock; the synchronous path may have advanced it.
	c, err = s.chargeRepo.GetByExternalID(ctx, c.ExternalID)
	if err != nil {
		return err
	}

	interp := gateway.Interpret(provider, n.RawStatus, c.Status)
	switch interp.Kind {
	case gateway.KindIgnored:
		s.logger.Debug().
			Str("charge", c.ExternalID).
			Str("raw_status", n.RawStatus).
			Msg("notification carried no new information")
		return nil

	case gateway.KindUnknown:
		// Never mutates state. Logged loudly for manual triage.
		s.logger.Error().
			Str("charge", c.ExternalID).
			Str("provider", n.ProviderName).
			Str("raw_status", interp.RawToken).
			Msg("unknown gateway status in notification")
		return nil

	case gateway.KindChargeStatusUpdate:
		return s.applyChargeUpdate(ctx, c, interp.ChargeStatus, n)

	case gateway.KindRefundStatusUpdate:
		return s.applyRefundUpdate(ctx, c, interp.RefundStatus, n)
	}
	return nil
}

func (s *WebhookService) applyChargeUpdate(ctx context.Context, c *charge.Charge, target charge.Status, n Notification) error {
	if n.GatewayEventTime != nil {
		if err := c.TransitionWithGatewayTime(target, *n.GatewayEventTime); err != nil {
			return err
		}
	} else {
		if err := c.Transition(target); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("charge", c.ExternalID).
		Str("status", string(target)).
		Str("raw_status", n.RawStatus).
		Msg("charge updated from notification")

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.chargeRepo.Update(txCtx, c); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry("charge", c.ExternalID, "charge.notification_applied", map[string]any{
			"charge_external_id": c.ExternalID,
			"status":             string(c.Status),
			"external_status":    string(c.Status.External()),
			"raw_status":         n.RawStatus,
		}))
	})
}

func (s *WebhookService) applyRefundUpdate(ctx context.Context, c *charge.Charge, target refund.Status, n Notification) error {
	var r *refund.Refund
	if n.RefundReference != "" {
		loaded, err := s.refundRepo.GetByExternalID(ctx, n.RefundReference)
		if err == nil {
			r = loaded
		}
	}
	if r == nil {
		// Fall back to the single in-flight refund on the charge.
		refunds, err := s.refundRepo.ListByCharge(ctx, c.ExternalID)
		if err != nil {
			return err
		}
		for _, candidate := range refunds {
			if !candidate.Status.IsTerminal() {
				r = candidate
				break
			}
		}
	}
	if r == nil {
		s.logger.Error().
			Str("charge", c.ExternalID).
			Str("raw_status", n.RawStatus).
			Msg("refund notification matched no in-flight refund")
		return nil
	}

	if r.Status == target {
		return nil // replay
	}
	if err := r.Transition(target); err != nil {
		return err
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.refundRepo.Update(txCtx, r); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry("refund", r.ExternalID, "refund.notification_applied", map[string]any{
			"refund_external_id": r.ExternalID,
			"charge_external_id": c.ExternalID,
			"status":             string(r.Status),
		}))
	})
}
