package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/fees"
	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SurchargeResolver returns the configured corporate surcharge amounts for a
// gateway account.
type SurchargeResolver func(gatewayAccountID string) fees.SurchargeConfig

// ChargeService orchestrates the charge lifecycle: it loads the charge,
// drives the gateway provider, interprets the result, transitions the state
// machine, and records fees and ledger events. It never assigns a status
// directly.
type ChargeService struct {
	chargeRepo  charge.Repository
	refundRepo  refund.Repository
	outboxRepo  outbox.Repository
	txManager   TransactionManager
	locker      ChargeLocker
	registry    *gateway.Registry
	feeCalc     fees.Calculator
	surcharges  SurchargeResolver
	logger      zerolog.Logger
}

func NewChargeService(
	chargeRepo charge.Repository,
	refundRepo refund.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	locker ChargeLocker,
	registry *gateway.Registry,
	feeCalc fees.Calculator,
	surcharges SurchargeResolver,
	logger zerolog.Logger,
) *ChargeService {
	return &ChargeService{
		chargeRepo: chargeRepo,
		refundRepo: refundRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		locker:     locker,
		registry:   registry,
		feeCalc:    feeCalc,
		surcharges: surcharges,
		logger:     logger,
	}
}

// CreateChargeRequest holds the input for creating a charge.
type CreateChargeRequest struct {
	GatewayAccountID string
	ProviderName     string
	Amount           int64
	Currency         string
	Description      string
	Reference        string
	Mode             charge.AuthorisationMode
	AgreementID      *string
	Email            *string
}

// CreateCharge creates a charge in CREATED and queues the ledger event.
// Agreement-mode charges are queued for the user-not-present worker.
func (s *ChargeService) CreateCharge(ctx context.Context, req CreateChargeRequest) (*charge.Charge, error) {
	if _, _, err := s.registry.Get(req.ProviderName); err != nil {
		return nil, err
	}

	c, err := charge.New(uuid.New().String(), req.GatewayAccountID, req.ProviderName, req.Amount, req.Currency, req.Mode)
	if err != nil {
		return nil, err
	}
	c.Description = req.Description
	c.Reference = req.Reference
	c.AgreementID = req.AgreementID
	c.Email = req.Email

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.chargeRepo.Create(txCtx, c); err != nil {
			return err
		}
		if req.Mode == charge.ModeAgreement {
			if err := c.Transition(charge.StatusAuthUserNotPresentQueued); err != nil {
				return err
			}
			if err := s.persist(txCtx, c); err != nil {
				return err
			}
		}
		return s.outboxRepo.Insert(txCtx, s.lifecycleEntry(c, "charge.created"))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AuthoriseRequest holds the input for a cardholder-present authorisation.
type AuthoriseRequest struct {
	ChargeExternalID string
	Card             gateway.Card
	CardInfo         fees.CardInfo
}

// AuthoriseResult is what API callers see: a canonical status plus a
// provider-agnostic message on rejection or error.
type AuthoriseResult struct {
	Status  gateway.AuthoriseStatus
	Message string
	Charge  *charge.Charge
}

// Authorise runs the synchronous authorisation round trip. A gateway
// timeout leaves the charge in AUTHORISATION SUBMITTED for the reconciler;
// it is not an error status because the gateway may have processed the
// request anyway.
func (s *ChargeService) Authorise(ctx context.Context, req AuthoriseRequest) (*AuthoriseResult, error) {
	release, err := s.locker.AcquireChargeLock(ctx, req.ChargeExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, req.ChargeExternalID)
	if err != nil {
		return nil, err
	}

	if c.Status == charge.StatusCreated {
		if err := c.Transition(charge.StatusEnteringCardDetails); err != nil {
			return nil, err
		}
	}
	if err := c.Transition(charge.StatusAuthReady); err != nil {
		return nil, err
	}

	if surcharge, ok := fees.CorporateSurcharge(s.surcharges(c.GatewayAccountID), req.CardInfo); ok {
		c.CorporateSurcharge = &surcharge
	}
	brand := req.Card.Brand
	c.CardBrand = &brand

	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.Authorise(ctx, gateway.AuthoriseRequest{Charge: c, Card: req.Card})
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Authorise: out}, nil
	})
	if err != nil {
		return s.handleAuthoriseFailure(ctx, c, err)
	}

	return s.applyAuthoriseOutcome(ctx, c, result.Authorise)
}

// Authorise3DS completes a 3DS challenge started by an earlier Authorise.
// The two calls are independent; charge state is persisted between them.
func (s *ChargeService) Authorise3DS(ctx context.Context, chargeExternalID, paResponse string) (*AuthoriseResult, error) {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}

	if err := c.Transition(charge.StatusAuth3DSReady); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return nil, err
	}

	md := ""
	if c.ThreeDSDetail != nil {
		md = c.ThreeDSDetail.MD
	}
	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.Authorise3DS(ctx, gateway.Authorise3DSRequest{Charge: c, PAResponse: paResponse, MD: md})
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Authorise: out}, nil
	})
	if err != nil {
		return s.handleAuthoriseFailure(ctx, c, err)
	}

	return s.applyAuthoriseOutcome(ctx, c, result.Authorise)
}

// AuthoriseUserNotPresent authorises a queued agreement charge. Called by
// the worker, never by the API.
func (s *ChargeService) AuthoriseUserNotPresent(ctx context.Context, chargeExternalID string) (*AuthoriseResult, error) {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if c.AgreementID == nil {
		return nil, domainErrors.NewValidationError("agreement_id", "charge has no agreement")
	}

	if err := c.Transition(charge.StatusAuthReady); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.AuthoriseUserNotPresent(ctx, gateway.UserNotPresentRequest{Charge: c, AgreementReference: *c.AgreementID})
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Authorise: out}, nil
	})
	if err != nil {
		return s.handleAuthoriseFailure(ctx, c, err)
	}

	return s.applyAuthoriseOutcome(ctx, c, result.Authorise)
}

func (s *ChargeService) handleAuthoriseFailure(ctx context.Context, c *charge.Charge, err error) (*AuthoriseResult, error) {
	if stderrors.Is(err, domainErrors.ErrGatewayTimeout) {
		if terr := c.Transition(charge.StatusAuthSubmitted); terr != nil {
			return nil, terr
		}
		if perr := s.persistWithEvent(ctx, c, "charge.authorisation_submitted"); perr != nil {
			return nil, perr
		}
		s.logger.Warn().Str("charge", c.ExternalID).Msg("authorisation timed out, left for reconciliation")
		return &AuthoriseResult{Status: gateway.AuthoriseError, Message: "the payment is being processed", Charge: c}, nil
	}

	if terr := c.Transition(charge.StatusAuthUnexpectedError); terr != nil {
		return nil, terr
	}
	if perr := s.persistWithEvent(ctx, c, "charge.authorisation_error"); perr != nil {
		return nil, perr
	}
	s.logger.Error().Err(err).Str("charge", c.ExternalID).Msg("authorisation failed unexpectedly")
	return &AuthoriseResult{Status: gateway.AuthoriseError, Message: "the payment could not be processed", Charge: c}, nil
}

func (s *ChargeService) applyAuthoriseOutcome(ctx context.Context, c *charge.Charge, out *gateway.AuthoriseOutcome) (*AuthoriseResult, error) {
	switch out.Status {
	case gateway.AuthoriseAuthorised:
		c.SetGatewayTransactionID(out.TransactionID)
		if err := c.Transition(charge.StatusAuthSuccess); err != nil {
			return nil, err
		}
		if err := c.Transition(charge.StatusAwaitingCaptureRequest); err != nil {
			return nil, err
		}
		if err := s.persistWithEvent(ctx, c, "charge.authorised"); err != nil {
			return nil, err
		}
		return &AuthoriseResult{Status: gateway.AuthoriseAuthorised, Charge: c}, nil

	case gateway.AuthoriseRequires3DS:
		if out.TransactionID != "" {
			c.SetGatewayTransactionID(out.TransactionID)
		}
		c.ThreeDSDetail = out.ThreeDS
		if err := c.Transition(charge.StatusAuth3DSRequired); err != nil {
			return nil, err
		}
		if err := s.persistWithEvent(ctx, c, "charge.3ds_required"); err != nil {
			return nil, err
		}
		return &AuthoriseResult{Status: gateway.AuthoriseRequires3DS, Charge: c}, nil

	case gateway.AuthoriseRejected:
		if err := c.Transition(charge.StatusAuthRejected); err != nil {
			return nil, err
		}
		if err := s.persistWithEvent(ctx, c, "charge.rejected"); err != nil {
			return nil, err
		}
		return &AuthoriseResult{Status: gateway.AuthoriseRejected, Message: "the payment was declined", Charge: c}, nil

	default:
		if err := c.Transition(charge.StatusAuthError); err != nil {
			return nil, err
		}
		if err := s.persistWithEvent(ctx, c, "charge.authorisation_error"); err != nil {
			return nil, err
		}
		if out.GatewayError != nil {
			s.logger.Error().
				Str("charge", c.ExternalID).
				Str("class", string(out.GatewayError.Class)).
				Str("code", out.GatewayError.Code).
				Str("provider_message", out.GatewayError.ProviderMessage).
				Msg("gateway authorisation error")
		}
		return &AuthoriseResult{Status: gateway.AuthoriseError, Message: "the payment could not be processed", Charge: c}, nil
	}
}

// ApproveCapture marks a capturable charge for capture; the worker's
// capture sweep performs the gateway call.
func (s *ChargeService) ApproveCapture(ctx context.Context, chargeExternalID string) (*charge.Charge, error) {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if err := c.Transition(charge.StatusCaptureApproved); err != nil {
		if stderrors.Is(err, domainErrors.ErrInvalidStateTransition) {
			return nil, domainErrors.NewDomainError("not_capturable",
				fmt.Sprintf("charge in status %s cannot be captured", c.Status),
				domainErrors.ErrChargeNotCapturable)
		}
		return nil, err
	}
	if err := s.persistWithEvent(ctx, c, "charge.capture_approved"); err != nil {
		return nil, err
	}
	return c, nil
}

// ProcessCapture drives one capture attempt against the gateway. Timeout or
// a pending acknowledgement leaves the charge in CAPTURE SUBMITTED; the
// notification or reconciler finishes the job.
func (s *ChargeService) ProcessCapture(ctx context.Context, chargeExternalID string) error {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return err
	}

	if c.Status == charge.StatusCaptureApproved || c.Status == charge.StatusCaptureApprovedRetry {
		if err := c.Transition(charge.StatusCaptureReady); err != nil {
			return err
		}
	}
	if c.Status != charge.StatusCaptureReady {
		return nil // picked up by a competing sweep
	}
	if err := s.persist(ctx, c); err != nil {
		return err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		out, err := provider.Capture(ctx, c)
		if err != nil {
			return nil, err
		}
		return &gateway.Result{Capture: out}, nil
	})
	if err != nil {
		if stderrors.Is(err, domainErrors.ErrGatewayTimeout) {
			if terr := c.Transition(charge.StatusCaptureSubmitted); terr != nil {
				return terr
			}
			return s.persistWithEvent(ctx, c, "charge.capture_submitted")
		}
		if terr := c.Transition(charge.StatusCaptureError); terr != nil {
			return terr
		}
		if perr := s.persistWithEvent(ctx, c, "charge.capture_error"); perr != nil {
			return perr
		}
		return fmt.Errorf("capture call: %w", err)
	}

	switch result.Capture.Status {
	case gateway.CaptureSucceeded:
		if err := c.Transition(charge.StatusCaptureSubmitted); err != nil {
			return err
		}
		if err := c.Transition(charge.StatusCaptured); err != nil {
			return err
		}
		s.recordFees(c)
		return s.persistWithEvent(ctx, c, "charge.captured")

	case gateway.CapturePending:
		if err := c.Transition(charge.StatusCaptureSubmitted); err != nil {
			return err
		}
		return s.persistWithEvent(ctx, c, "charge.capture_submitted")

	default:
		if err := c.Transition(charge.StatusCaptureError); err != nil {
			return err
		}
		if result.Capture.GatewayError != nil {
			s.logger.Error().
				Str("charge", c.ExternalID).
				Str("code", result.Capture.GatewayError.Code).
				Str("provider_message", result.Capture.GatewayError.ProviderMessage).
				Msg("gateway capture error")
		}
		return s.persistWithEvent(ctx, c, "charge.capture_error")
	}
}

// recordFees computes the fee breakdown and attaches it to the charge.
// Fees are owed from capture; amounts collected equal amounts due here
// because the gateway nets them off the settlement.
func (s *ChargeService) recordFees(c *charge.Charge) {
	for _, line := range s.feeCalc.Breakdown(c) {
		c.AddFee(charge.Fee{
			ID:                   uuid.New(),
			ChargeExternalID:     c.ExternalID,
			Type:                 line.Type,
			AmountDue:            line.Amount,
			AmountCollected:      line.Amount,
			GatewayTransactionID: c.GatewayTransactionID,
			CreatedAt:            c.UpdatedAt,
		})
	}
}

// Cancel cancels a charge on behalf of the system or the user. Charges that
// never reached the gateway are cancelled locally; authorised charges go
// through the gateway cancel flow.
func (s *ChargeService) Cancel(ctx context.Context, chargeExternalID string, byUser bool) (*charge.Charge, error) {
	release, err := s.locker.AcquireChargeLock(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.chargeRepo.GetByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}

	ready, submitted, done, failed := cancelStates(byUser)

	// Charges that never reached the gateway cancel locally.
	if c.Status == charge.StatusCreated {
		if err := c.Transition(charge.StatusSystemCancelled); err != nil {
			return nil, err
		}
		if err := s.persistWithEvent(ctx, c, "charge.cancelled"); err != nil {
			return nil, err
		}
		return c, nil
	}
	if c.Status == charge.StatusEnteringCardDetails {
		if byUser {
			if err := c.Transition(charge.StatusAuthCancelled); err != nil {
				return nil, err
			}
		} else {
			if err := c.Transition(charge.StatusSystemCancelReady); err != nil {
				return nil, err
			}
			if err := c.Transition(charge.StatusSystemCancelled); err != nil {
				return nil, err
			}
		}
		if err := s.persistWithEvent(ctx, c, "charge.cancelled"); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.Transition(ready); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}

	provider, breaker, err := s.registry.Get(c.ProviderName)
	if err != nil {
		return nil, err
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
			if terr := c.Transition(submitted); terr != nil {
				return nil, terr
			}
			if perr := s.persistWithEvent(ctx, c, "charge.cancel_submitted"); perr != nil {
				return nil, perr
			}
			return c, nil
		}
		if terr := c.Transition(failed); terr != nil {
			return nil, terr
		}
		if perr := s.persistWithEvent(ctx, c, "charge.cancel_error"); perr != nil {
			return nil, perr
		}
		return nil, fmt.Errorf("cancel call: %w", err)
	}

	if result.Cancel.Status == gateway.OutcomeSucceeded {
		if err := c.Transition(done); err != nil {
			return nil, err
		}
		if err := s.persistWithEvent(ctx, c, "charge.cancelled"); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.Transition(failed); err != nil {
		return nil, err
	}
	if err := s.persistWithEvent(ctx, c, "charge.cancel_error"); err != nil {
		return nil, err
	}
	return c, nil
}

func cancelStates(byUser bool) (ready, submitted, done, failed charge.Status) {
	if byUser {
		return charge.StatusUserCancelReady, charge.StatusUserCancelSubmitted,
			charge.StatusUserCancelled, charge.StatusUserCancelError
	}
	return charge.StatusSystemCancelReady, charge.StatusSystemCancelSubmitted,
		charge.StatusSystemCancelled, charge.StatusSystemCancelError
}

// GetCharge loads a charge with its fees and events.
func (s *ChargeService) GetCharge(ctx context.Context, externalID string) (*charge.Charge, error) {
	return s.chargeRepo.GetByExternalID(ctx, externalID)
}

// RefundableAmount derives the amount still available to refund.
func (s *ChargeService) RefundableAmount(ctx context.Context, c *charge.Charge) (int64, error) {
	refunds, err := s.refundRepo.ListByCharge(ctx, c.ExternalID)
	if err != nil {
		return 0, err
	}
	return refund.AvailableToRefund(c.TotalAmount(), refunds), nil
}

// persist saves the charge and appends any new events; lost version races
// surface as ErrOptimisticLockFailed and the caller retries by reloading.
func (s *ChargeService) persist(ctx context.Context, c *charge.Charge) error {
	return s.chargeRepo.Update(ctx, c)
}

func (s *ChargeService) persistWithEvent(ctx context.Context, c *charge.Charge, eventType string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.chargeRepo.Update(txCtx, c); err != nil {
			return err
		}
		for _, f := range c.Fees {
			if err := s.chargeRepo.AddFee(txCtx, c.ExternalID, f); err != nil {
				return err
			}
		}
		return s.outboxRepo.Insert(txCtx, s.lifecycleEntry(c, eventType))
	})
}

func (s *ChargeService) lifecycleEntry(c *charge.Charge, eventType string) *outbox.Entry {
	return outbox.NewEntry("charge", c.ExternalID, eventType, map[string]any{
		"charge_external_id": c.ExternalID,
		"status":             string(c.Status),
		"external_status":    string(c.Status.External()),
		"amount":             c.Amount,
		"total_amount":       c.TotalAmount(),
		"fee_amount":         c.FeeAmount(),
		"net_amount":         c.NetAmount(),
		"provider":           c.ProviderName,
	})
}
