package bootstrap

import (
	"github.com/cassiomorais/chargegate/internal/gateway"
	"github.com/cassiomorais/chargegate/internal/gateway/sandbox"
	"github.com/cassiomorais/chargegate/internal/gateway/smartpay"
	"github.com/cassiomorais/chargegate/internal/gateway/stripe"
	"github.com/cassiomorais/chargegate/internal/gateway/worldpay"
	"github.com/cassiomorais/chargegate/internal/infrastructure/config"
)

// NewRegistry builds the provider registry from config. Only enabled
// gateways are registered; requests naming anything else fail with
// ErrProviderNotFound.
func NewRegistry(cfg *config.GatewaysConfig) *gateway.Registry {
	registry := gateway.NewRegistry()

	if cfg.Sandbox.Enabled {
		registry.Register(sandbox.New())
	}
	if cfg.Stripe.Enabled {
		registry.Register(stripe.New(stripe.Config{
			BaseURL:          cfg.Stripe.BaseURL,
			APIKey:           cfg.Stripe.APIKey,
			ConnectAccountID: cfg.Stripe.ConnectAccountID,
			Timeout:          cfg.Stripe.Timeout,
		}))
	}
	if cfg.Worldpay.Enabled {
		registry.Register(worldpay.New(worldpay.Config{
			BaseURL:      cfg.Worldpay.BaseURL,
			MerchantCode: cfg.Worldpay.MerchantCode,
			Username:     cfg.Worldpay.Username,
			Password:     cfg.Worldpay.Password,
			Timeout:      cfg.Worldpay.Timeout,
		}))
	}
	if cfg.Smartpay.Enabled {
		registry.Register(smartpay.New(smartpay.Config{
			BaseURL:         cfg.Smartpay.BaseURL,
			MerchantAccount: cfg.Smartpay.MerchantAccount,
			Username:        cfg.Smartpay.Username,
			Password:        cfg.Smartpay.Password,
			Timeout:         cfg.Smartpay.Timeout,
		}))
	}

	return registry
}
