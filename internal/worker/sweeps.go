package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/service"
)

// captureSweep drives approved captures through the gateway. Approved and
// retry charges are both eligible; ProcessCapture revalidates status under
// the charge lock, so racing sweeps are harmless.
func (j *Jobs) captureSweep(ctx context.Context) error {
	charges, err := j.ChargeRepo.ListByStatus(ctx, []charge.Status{
		charge.StatusCaptureApproved,
		charge.StatusCaptureApprovedRetry,
	}, j.BatchSize)
	if err != nil {
		return err
	}

	for _, c := range charges {
		if err := j.ChargeService.ProcessCapture(ctx, c.ExternalID); err != nil {
			j.Logger.Error().Err(err).Str("charge", c.ExternalID).Msg("capture attempt failed")
			continue
		}
		if j.Metrics != nil {
			j.Metrics.WorkerMessagesProcessed.WithLabelValues("capture_sweep", "success").Inc()
		}
	}
	return nil
}

// expirySweep cancels charges abandoned before capture.
func (j *Jobs) expirySweep(ctx context.Context) error {
	cutoff := time.Now().Add(-j.ExpiryWindow)
	charges, err := j.ChargeRepo.ListStaleByStatus(ctx, service.ExpirableStatuses, cutoff, j.BatchSize)
	if err != nil {
		return err
	}

	for _, c := range charges {
		if err := j.ExpireService.Expire(ctx, c.ExternalID); err != nil {
			j.Logger.Error().Err(err).Str("charge", c.ExternalID).Msg("expiry failed")
			continue
		}
		j.Logger.Info().Str("charge", c.ExternalID).Msg("charge expired")
		if j.Metrics != nil {
			j.Metrics.WorkerMessagesProcessed.WithLabelValues("expiry_sweep", "success").Inc()
		}
	}
	return nil
}

// userNotPresentSweep authorises queued agreement charges.
func (j *Jobs) userNotPresentSweep(ctx context.Context) error {
	charges, err := j.ChargeRepo.ListByStatus(ctx, []charge.Status{
		charge.StatusAuthUserNotPresentQueued,
	}, j.BatchSize)
	if err != nil {
		return err
	}

	for _, c := range charges {
		result, err := j.ChargeService.AuthoriseUserNotPresent(ctx, c.ExternalID)
		if err != nil {
			j.Logger.Error().Err(err).Str("charge", c.ExternalID).Msg("user-not-present authorisation failed")
			continue
		}
		j.Logger.Info().
			Str("charge", c.ExternalID).
			Str("outcome", string(result.Status)).
			Msg("user-not-present authorisation attempted")
	}
	return nil
}

// reconcileSweep resolves charges stuck in a submitted status by asking the
// gateway what actually happened.
func (j *Jobs) reconcileSweep(ctx context.Context) error {
	cutoff := time.Now().Add(-j.ReconcileAfter)
	charges, err := j.ChargeRepo.ListStaleByStatus(ctx, []charge.Status{
		charge.StatusAuthSubmitted,
		charge.StatusAuthTimeout,
		charge.StatusCaptureSubmitted,
		charge.StatusUserCancelSubmitted,
		charge.StatusSystemCancelSubmitted,
		charge.StatusExpireCancelSubmitted,
	}, cutoff, j.BatchSize)
	if err != nil {
		return err
	}

	for _, c := range charges {
		if err := j.ReconcileService.Reconcile(ctx, c.ExternalID); err != nil {
			j.Logger.Error().Err(err).Str("charge", c.ExternalID).Msg("reconciliation failed")
			continue
		}
		if j.Metrics != nil {
			j.Metrics.WorkerMessagesProcessed.WithLabelValues("reconcile", "success").Inc()
		}
	}
	return nil
}
