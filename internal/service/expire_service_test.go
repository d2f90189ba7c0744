package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/cassiomorais/chargegate/internal/service"
)

func TestExpire_UnauthorisedChargeExpiresLocally(t *testing.T) {
	called := false
	h := newHarness(&fakeProvider{
		CancelFunc: func(context.Context, *charge.Charge) (*gateway.CancelOutcome, error) {
			called = true
			return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
		},
	})
	svc := h.expireService()
	h.seedCharge(t, "ch_exp_local", charge.StatusEnteringCardDetails)

	require.NoError(t, svc.Expire(context.Background(), "ch_exp_local"))

	stored, _ := h.chargeRepo.GetByExternalID(context.Background(), "ch_exp_local")
	assert.Equal(t, charge.StatusExpired, stored.Status)
	assert.False(t, called, "nothing was authorised, nothing to release at the gateway")
	assert.Contains(t, h.outboxRepo.EventTypes(), "charge.expired")
}

func TestExpire_AuthorisedChargeReleasesGatewayHold(t *testing.T) {
	called := false
	h := newHarness(&fakeProvider{
		CancelFunc: func(context.Context, *charge.Charge) (*gateway.CancelOutcome, error) {
			called = true
			return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
		},
	})
	svc := h.expireService()
	h.seedCharge(t, "ch_exp_auth", charge.StatusAwaitingCaptureRequest)

	require.NoError(t, svc.Expire(context.Background(), "ch_exp_auth"))

	stored, _ := h.chargeRepo.GetByExternalID(context.Background(), "ch_exp_auth")
	assert.Equal(t, charge.StatusExpired, stored.Status)
	assert.True(t, called)
}

func TestExpire_GatewayRefusal(t *testing.T) {
	h := newHarness(&fakeProvider{
		CancelFunc: func(context.Context, *charge.Charge) (*gateway.CancelOutcome, error) {
			return &gateway.CancelOutcome{Status: gateway.OutcomeError}, nil
		},
	})
	svc := h.expireService()
	h.seedCharge(t, "ch_exp_fail", charge.StatusAwaitingCaptureRequest)

	require.NoError(t, svc.Expire(context.Background(), "ch_exp_fail"))

	stored, _ := h.chargeRepo.GetByExternalID(context.Background(), "ch_exp_fail")
	assert.Equal(t, charge.StatusExpireCancelFailed, stored.Status)
	assert.True(t, stored.Status.IsTerminal())
}

func TestExpire_TimeoutLeavesSubmittedForReconciler(t *testing.T) {
	h := newHarness(&fakeProvider{
		CancelFunc: func(context.Context, *charge.Charge) (*gateway.CancelOutcome, error) {
			return nil, domainErrors.ErrGatewayTimeout
		},
	})
	svc := h.expireService()
	h.seedCharge(t, "ch_exp_to", charge.StatusAwaitingCaptureRequest)

	require.NoError(t, svc.Expire(context.Background(), "ch_exp_to"))

	stored, _ := h.chargeRepo.GetByExternalID(context.Background(), "ch_exp_to")
	assert.Equal(t, charge.StatusExpireCancelSubmitted, stored.Status)
}

func TestExpirableStatuses_AllNonTerminal(t *testing.T) {
	for _, s := range service.ExpirableStatuses {
		assert.False(t, s.IsTerminal(), "expirable status %s must be non-terminal", s)
	}
}
