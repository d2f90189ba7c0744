package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/infrastructure/observability"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Jobs is the set of background loops the worker binary runs: the capture
// and expiry sweeps, the user-not-present authoriser, the reconciler, and
// the outbox publisher.
type Jobs struct {
	ChargeRepo       charge.Repository
	ChargeService    *service.ChargeService
	ExpireService    *service.ExpireService
	ReconcileService *service.ReconcileService

	SweepInterval  time.Duration
	ExpiryWindow   time.Duration
	ReconcileAfter time.Duration
	BatchSize      int

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Run starts every loop and blocks until the context is cancelled.
func (j *Jobs) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return j.loop(gCtx, "capture_sweep", j.captureSweep) })
	g.Go(func() error { return j.loop(gCtx, "expiry_sweep", j.expirySweep) })
	g.Go(func() error { return j.loop(gCtx, "user_not_present", j.userNotPresentSweep) })
	g.Go(func() error { return j.loop(gCtx, "reconcile", j.reconcileSweep) })

	return g.Wait()
}

// loop runs fn on a ticker. A failing pass is logged and retried on the next
// tick; only context cancellation stops the loop.
func (j *Jobs) loop(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ticker := time.NewTicker(j.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		start := time.Now()
		if err := fn(ctx); err != nil {
			j.Logger.Error().Err(err).Str("job", name).Msg("sweep pass failed")
			if j.Metrics != nil {
				j.Metrics.WorkerMessagesProcessed.WithLabelValues(name, "error").Inc()
			}
			continue
		}
		if j.Metrics != nil {
			j.Metrics.WorkerProcessingDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}
