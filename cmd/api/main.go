package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/chargegate/internal/bootstrap"
	"github.com/cassiomorais/chargegate/internal/controller"
	"github.com/cassiomorais/chargegate/internal/domain/fees"
	infraRedis "github.com/cassiomorais/chargegate/internal/infrastructure/redis"
	"github.com/cassiomorais/chargegate/internal/repository/postgres"
	"github.com/cassiomorais/chargegate/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "chargegate-api", "chargegate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	chargeRepo := postgres.NewChargeRepository(app.Pool)
	refundRepo := postgres.NewRefundRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Gateway providers and shared infrastructure ---
	registry := bootstrap.NewRegistry(&app.Config.Gateways)
	locker := infraRedis.NewChargeLocker(app.Redis, app.Config.Charge.LockTTL, app.Logger)

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

	// --- Services ---
	chargeService := service.NewChargeService(chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, feeCalc, surcharges, app.Logger)
	refundService := service.NewRefundService(chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, app.Logger)
	webhookService := service.NewWebhookService(chargeRepo, refundRepo, outboxRepo, txManager, locker, registry, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		ChargeService:   chargeService,
		RefundService:   refundService,
		WebhookService:  webhookService,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		Config:          app.Config,
		Logger:          app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
