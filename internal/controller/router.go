package controller

import (
	"time"

	"github.com/cassiomorais/chargegate/internal/infrastructure/config"
	"github.com/cassiomorais/chargegate/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/chargegate/internal/middleware"
	"github.com/cassiomorais/chargegate/internal/repository/postgres"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	ChargeService   *service.ChargeService
	RefundService   *service.RefundService
	WebhookService  *service.WebhookService
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	Config          *config.Config
	Logger          zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Config.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	chargeH := NewChargeController(deps.ChargeService, deps.RefundService)
	webhookH := NewWebhookController(deps.WebhookService, deps.Metrics, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		r.With(idempotencyMW).Post("/charges", chargeH.CreateCharge)
		r.Get("/charges/{externalID}", chargeH.GetCharge)
		r.Post("/charges/{externalID}/authorise", chargeH.Authorise)
		r.Post("/charges/{externalID}/authorise-3ds", chargeH.Authorise3DS)
		r.Post("/charges/{externalID}/capture", chargeH.Capture)
		r.Post("/charges/{externalID}/cancel", chargeH.Cancel)
		r.With(idempotencyMW).Post("/charges/{externalID}/refunds", chargeH.CreateRefund)
		r.Get("/charges/{externalID}/refunds/{refundID}", chargeH.GetRefund)
		r.Get("/charges/{externalID}/refundability", chargeH.GetRefundability)
	})

	r.Route("/webhooks/{provider}", func(r chi.Router) {
		r.Use(customMW.RateLimit(600))
		r.Use(customMW.WebhookAuth(webhookAuthConfig(deps.Config), deps.Logger))
		r.Post("/", webhookH.Receive)
	})

	return r
}

func webhookAuthConfig(cfg *config.Config) customMW.WebhookAuthConfig {
	return customMW.WebhookAuthConfig{
		Tokens: map[string]string{
			"sandbox":  cfg.Gateways.Sandbox.WebhookToken,
			"stripe":   cfg.Gateways.Stripe.WebhookToken,
			"worldpay": cfg.Gateways.Worldpay.WebhookToken,
			"smartpay": cfg.Gateways.Smartpay.WebhookToken,
		},
		CIDRs: map[string][]string{
			"worldpay": cfg.Gateways.Worldpay.WebhookCIDRs,
		},
	}
}
