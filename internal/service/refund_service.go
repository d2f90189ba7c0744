package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/rs/zerolog"
)

// RefundService drives the refund lifecycle against the gateway.
type RefundService struct {
	chargeRepo charge.Repository
	refundRepo refund.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	locker     ChargeLocker
	registry   *gateway.Registry
	logger     zerolog.Logger
}

func NewRefundService(
	chargeRepo charge.Repository,
	refundRepo refund.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	locker ChargeLocker,
	registry *gateway.Registry,
	logger zerolog.Logger,
) *RefundService {
	return &RefundService{
		chargeRepo: chargeRepo,
		refundRepo: refundRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		locker:     locker,
		registry:   registry,
		logger:     logger,
	}
}

// Refund creates a refund against a captured charge and submits it to the
// gateway. The amount is checked against what is still refundable; refunds
// already in flight count against it, errored refunds do not.
func (s *RefundService) Refund(ctx context.Context, chargeExternalID string, amount int64) (*refund.Refund, error) {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if c.Status.External() != charge.ExternalSuccess {
		return nil, domainErrors.NewDomainError("refund_not_available",
			fmt.Sprintf("cannot refund a charge in status %s", c.Status),
			domainErrors.ErrRefundNotAvailable)
	}

	existing, err := s.refundRepo.ListByCharge(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if available := refund.AvailableToRefund(c.TotalAmount(), existing); amount > available {
		return nil, domainErrors.NewDomainError("refund_amount_exceeded",
			fmt.Sprintf("requested %d but only %d is available", amount, available),
			domainErrors.ErrRefundAmountExceeded)
	}

	r, err := refund.New(chargeExternalID, amount)
	if err != nil {
		return nil, err
	}
	if err := s.refundRepo.Create(ctx, r); err != nil {
		return nil, err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.Refund(ctx, gateway.RefundRequest{
			Charge:           c,
			RefundExternalID: r.ExternalID,
			Amount:           amount,
		})
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Refund: out}, nil
	})
	if err != nil {
		if stderrors.Is(err, domainErrors.ErrGatewayTimeout) {
			// The gateway may have accepted it; the notification or a
			// manual check settles the question. Submitted keeps the
			// amount reserved either way.
			if terr := r.Transition(refund.StatusSubmitted); terr != nil {
				return nil, terr
			}
			if uerr := s.refundRepo.Update(ctx, r); uerr != nil {
				return nil, uerr
			}
			return r, nil
		}
		if terr := r.Transition(refund.StatusError); terr != nil {
			return nil, terr
		}
		if uerr := s.refundRepo.Update(ctx, r); uerr != nil {
			return nil, uerr
		}
		return nil, fmt.Errorf("refund call: %w", err)
	}

	if result.Refund.Status == gateway.OutcomeSucceeded {
		r.GatewayReference = &result.Refund.GatewayReference
		if err := r.Transition(refund.StatusSubmitted); err != nil {
			return nil, err
		}
	} else {
		if result.Refund.GatewayError != nil {
			s.logger.Error().
				Str("charge", c.ExternalID).
				Str("refund", r.ExternalID).
				Str("code", result.Refund.GatewayError.Code).
				Str("provider_message", result.Refund.GatewayError.ProviderMessage).
				Msg("gateway refund error")
		}
		if err := r.Transition(refund.StatusError); err != nil {
			return nil, err
		}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.refundRepo.Update(txCtx, r); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry("refund", r.ExternalID, "refund.submitted", map[string]any{
			"refund_external_id": r.ExternalID,
			"charge_external_id": c.ExternalID,
			"amount":             r.Amount,
			"status":             string(r.Status),
		}))
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRefund loads a refund by external id.
func (s *RefundService) GetRefund(ctx context.Context, externalID string) (*refund.Refund, error) {
	return s.refundRepo.GetByExternalID(ctx, externalID)
}
