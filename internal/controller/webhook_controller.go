package controller

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/infrastructure/observability"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxWebhookBodySize = 1 << 20

// WebhookController receives asynchronous gateway notifications. Each
// provider posts its own wire format; this controller only extracts the
// correlation id and the raw status token and hands them to the webhook
// service. Raw tokens are never interpreted here.
type WebhookController struct {
	webhookService *service.WebhookService
	metrics        *observability.Metrics
	logger         zerolog.Logger
}

func NewWebhookController(webhookService *service.WebhookService, metrics *observability.Metrics, logger zerolog.Logger) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
		metrics:        metrics,
		logger:         logger,
	}
}

// Receive handles POST /webhooks/{provider}. Gateways retry on anything but
// 2xx, so unmatchable notifications are acknowledged and logged rather than
// errored: retrying cannot fix them.
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	notification, err := parseNotification(providerName, body)
	if err != nil {
		h.logger.Warn().Err(err).Str("provider", providerName).Msg("unparseable webhook payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.webhookService.ApplyNotification(r.Context(), notification); err != nil {
		if errorsIsNotFound(err) {
			h.logger.Warn().
				Str("provider", providerName).
				Str("gateway_transaction_id", notification.GatewayTransactionID).
				Msg("webhook for unknown charge, acknowledged")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error().Err(err).Str("provider", providerName).Msg("failed to apply webhook")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.WebhooksTotal.WithLabelValues(providerName, "applied").Inc()
	}
	w.WriteHeader(http.StatusOK)
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, domainErrors.ErrChargeNotFound) ||
		errors.Is(err, domainErrors.ErrRefundNotFound) ||
		errors.Is(err, domainErrors.ErrProviderNotFound)
}

// jsonNotification is the envelope the JSON-speaking gateways post.
type jsonNotification struct {
	TransactionID   string `json:"transaction_id"`
	Status          string `json:"status"`
	RefundReference string `json:"refund_reference,omitempty"`
	EventTime       string `json:"event_time,omitempty"`
}

// worldpayNotification is the order status event element Worldpay posts.
type worldpayNotification struct {
	XMLName xml.Name `xml:"paymentService"`
	Notify  struct {
		OrderStatusEvent struct {
			OrderCode string `xml:"orderCode,attr"`
			Payment   struct {
				LastEvent string `xml:"lastEvent"`
			} `xml:"payment"`
			Journal struct {
				BookingDate struct {
					Date struct {
						Year  int `xml:"year,attr"`
						Month int `xml:"month,attr"`
						Day   int `xml:"dayOfMonth,attr"`
					} `xml:"date"`
				} `xml:"bookingDate"`
				Reference string `xml:"reference"`
			} `xml:"journal"`
		} `xml:"orderStatusEvent"`
	} `xml:"notify"`
}

func parseNotification(providerName string, body []byte) (service.Notification, error) {
	if providerName == "worldpay" {
		var wp worldpayNotification
		if err := xml.Unmarshal(body, &wp); err != nil {
			return service.Notification{}, err
		}
		ev := wp.Notify.OrderStatusEvent
		n := service.Notification{
			ProviderName:         providerName,
			RawStatus:            ev.Payment.LastEvent,
			GatewayTransactionID: ev.OrderCode,
			RefundReference:      ev.Journal.Reference,
		}
		if d := ev.Journal.BookingDate.Date; d.Year != 0 {
			t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
			n.GatewayEventTime = &t
		}
		return n, nil
	}

	var jn jsonNotification
	if err := json.Unmarshal(body, &jn); err != nil {
		return service.Notification{}, err
	}
	n := service.Notification{
		ProviderName:         providerName,
		RawStatus:            jn.Status,
		GatewayTransactionID: jn.TransactionID,
		RefundReference:      jn.RefundReference,
	}
	if jn.EventTime != "" {
		if t, err := time.Parse(time.RFC3339, jn.EventTime); err == nil {
			n.GatewayEventTime = &t
		}
	}
	return n, nil
}
