package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cassiomorais/chargegate/internal/bootstrap"
	"github.com/cassiomorais/chargegate/internal/domain/fees"
	infraRedis "github.com/cassiomorais/chargegate/internal/infrastructure/redis"
	"github.com/cassiomorais/chargegate/internal/repository/postgres"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/cassiomorais/chargegate/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx, "chargegate-worker", "chargegate_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	chargeRepo := postgres.NewChargeRepository(app.Pool)
	refundRepo := postgres.NewRefundRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	registry := bootstrap.NewRegistry(&app.Config.Gateways)
	locker := infraRedis.NewChargeLocker(app.Redis, app.Config.Charge.LockTTL, app.Logger)
	producer := infraRedis.NewStreamProducer(app.Redis)

	feeCalc := fees.Calculator{
		TransactionRateBasisPoints: app.Config.Fees.TransactionRateBasisPoints,
		RadarFee:                   app.Config.Fees.RadarFee,
		ThreeDSFee:                 app.Config.Fees.ThreeDSFee,
	}
	surcharges := func(gatewayAccountID string) fees.SurchargeConfig {
		return fees.SurchargeConfig{
			CorporateCredit:        app.Config.Surcharges.CorporateCredit,
			CorporateDebit:         app.Config.Surcharges.CorporateDebit,
			CorporatePrepaidCredit: app.Config.Surcharges.CorporatePrepaidCredit,
			CorporatePrepaidDebit:  app.Config.Surcharges.CorporatePrepaidDebit,
		}
	}

	chargeService := service.NewChargeService(chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, feeCalc, surcharges, app.Logger)
	expireService := service.NewExpireService(chargeRepo, outboxRepo, txManager, locker, registry, app.Logger)
	reconcileService := service.NewReconcileService(chargeRepo, outboxRepo, txManager, locker, registry, app.Logger)

	jobs := &worker.Jobs{
		ChargeRepo:       chargeRepo,
		ChargeService:    chargeService,
		ExpireService:    expireService,
		ReconcileService: reconcileService,
		SweepInterval:    app.Config.Worker.SweepInterval,
		ExpiryWindow:     app.Config.Charge.ExpiryWindow,
		ReconcileAfter:   app.Config.Charge.ReconcileAfter,
		BatchSize:        int(app.Config.Worker.BatchSize),
		Metrics:          app.Metrics,
		Logger:           app.Logger,
	}

	publisher := worker.NewOutboxPublisher(
		txManager,
		outboxRepo,
		producer,
		app.Config.Worker.OutboxPollInterval,
		int(app.Config.Worker.BatchSize),
		app.Logger,
	)

	app.Logger.Info().
		Str("instance_id", app.Config.InstanceID).
		Dur("sweep_interval", app.Config.Worker.SweepInterval).
		Msg("Starting worker")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return jobs.Run(gCtx) })
	g.Go(func() error { return publisher.Run(gCtx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker exited with error")
		os.Exit(1)
	}
	app.Logger.Info().Msg("Worker exited")
}
