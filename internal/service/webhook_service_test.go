package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/cassiomorais/chargegate/internal/service"
)

func notificationProvider() *fakeProvider {
	return &fakeProvider{
		StatusTable: map[string]gateway.MappedStatus{
			"CAPTURED":      gateway.ChargeMapping(charge.StatusCaptured),
			"REFUNDED":      gateway.RefundMapping(refund.StatusRefunded),
			"REFUND_FAILED": gateway.RefundMapping(refund.StatusError),
			"SENT_FOR_AUTH": gateway.IgnoredMapping(),
		},
	}
}

func TestApplyNotification_ChargeUpdate(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()
	c := h.seedCharge(t, "ch_hook", charge.StatusCaptureSubmitted)
	c.SetGatewayTransactionID("tx-hook")

	eventTime := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	err := svc.ApplyNotification(context.Background(), service.Notification{
		ProviderName:         "fake",
		RawStatus:            "CAPTURED",
		GatewayTransactionID: "tx-hook",
		GatewayEventTime:     &eventTime,
	})
	require.NoError(t, err)

	stored, err := h.chargeRepo.GetByExternalID(context.Background(), "ch_hook")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusCaptured, stored.Status)

	last := stored.Events[len(stored.Events)-1]
	require.NotNil(t, last.GatewayEventTime)
	assert.Equal(t, eventTime, *last.GatewayEventTime)
	assert.Contains(t, h.outboxRepo.EventTypes(), "charge.notification_applied")
}

func TestApplyNotification_ReplayIsNoOp(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()
	c := h.seedCharge(t, "ch_replay", charge.StatusCaptureSubmitted)
	c.SetGatewayTransactionID("tx-replay")

	n := service.Notification{
		ProviderName:         "fake",
		RawStatus:            "CAPTURED",
		GatewayTransactionID: "tx-replay",
	}
	require.NoError(t, svc.ApplyNotification(context.Background(), n))
	updatesAfterFirst := h.chargeRepo.UpdateCalls

	// The replayed notification interprets as Ignored and writes nothing.
	require.NoError(t, svc.ApplyNotification(context.Background(), n))
	assert.Equal(t, updatesAfterFirst, h.chargeRepo.UpdateCalls)
}

func TestApplyNotification_UnknownStatusNeverMutates(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()
	c := h.seedCharge(t, "ch_unknown", charge.StatusCaptureSubmitted)
	c.SetGatewayTransactionID("tx-unknown")

	err := svc.ApplyNotification(context.Background(), service.Notification{
		ProviderName:         "fake",
		RawStatus:            "SOMETHING_NEW",
		GatewayTransactionID: "tx-unknown",
	})
	require.NoError(t, err)

	stored, _ := h.chargeRepo.GetByExternalID(context.Background(), "ch_unknown")
	assert.Equal(t, charge.StatusCaptureSubmitted, stored.Status)
	assert.Zero(t, h.chargeRepo.UpdateCalls)
}

func TestApplyNotification_IgnoredToken(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()
	c := h.seedCharge(t, "ch_ignored", charge.StatusCaptureSubmitted)
	c.SetGatewayTransactionID("tx-ignored")

	err := svc.ApplyNotification(context.Background(), service.Notification{
		ProviderName:         "fake",
		RawStatus:            "SENT_FOR_AUTH",
		GatewayTransactionID: "tx-ignored",
	})
	require.NoError(t, err)
	assert.Zero(t, h.chargeRepo.UpdateCalls)
}

func TestApplyNotification_UnknownCharge(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()

	err := svc.ApplyNotification(context.Background(), service.Notification{
		ProviderName:         "fake",
		RawStatus:            "CAPTURED",
		GatewayTransactionID: "tx-nobody",
	})
	assert.ErrorIs(t, err, domainErrors.ErrChargeNotFound)
}

func TestApplyNotification_RefundUpdateByReference(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()
	c := h.seedCharge(t, "ch_ref_hook", charge.StatusCaptured)
	c.SetGatewayTransactionID("tx-ref-hook")

	r, err := refund.New("ch_ref_hook", 3000)
	require.NoError(t, err)
	require.NoError(t, r.Transition(refund.StatusSubmitted))
	h.refundRepo.Seed(r)

	err = svc.ApplyNotification(context.Background(), service.Notification{
		ProviderName:         "fake",
		RawStatus:            "REFUNDED",
		GatewayTransactionID: "tx-ref-hook",
		RefundReference:      r.ExternalID,
	})
	require.NoError(t, err)

	stored, err := h.refundRepo.GetByExternalID(context.Background(), r.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, refund.StatusRefunded, stored.Status)
	assert.Contains(t, h.outboxRepo.EventTypes(), "refund.notification_applied")
}

func TestApplyNotification_RefundUpdateFallsBackToInFlight(t *testing.T) {
	h := newHarness(notificationProvider())
	svc := h.webhookService()
	c := h.seedCharge(t, "ch_ref_fb", charge.StatusCaptured)
	c.SetGatewayTransactionID("tx-ref-fb")

	r, err := refund.New("ch_ref_fb", 3000)
	require.NoError(t, err)
	require.NoError(t, r.Transition(refund.StatusSubmitted))
	h.refundRepo.Seed(r)

	// No reference in the notification; the single in-flight refund matches.
	err = svc.ApplyNotification(context.Background(), service.Notification{
		ProviderName:         "fake",
		RawStatus:            "REFUND_FAILED",
		GatewayTransactionID: "tx-ref-fb",
	})
	require.NoError(t, err)

	stored, err := h.refundRepo.GetByExternalID(context.Background(), r.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, refund.StatusError, stored.Status)
}
