package controller

import (
	"net/http"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/fees"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/go-chi/chi/v5"
)

// ChargeController handles charge lifecycle HTTP requests.
type ChargeController struct {
	chargeService *service.ChargeService
	refundService *service.RefundService
}

// NewChargeController creates a new ChargeController.
func NewChargeController(
	chargeService *service.ChargeService,
	refundService *service.RefundService,
) *ChargeController {
	return &ChargeController{
		chargeService: chargeService,
		refundService: refundService,
	}
}

// CreateCharge handles POST /api/v1/charges
func (h *ChargeController) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	mode := charge.ModeWeb
	if req.Mode != "" {
		mode = charge.AuthorisationMode(req.Mode)
	}

	c, err := h.chargeService.CreateCharge(r.Context(), service.CreateChargeRequest{
		GatewayAccountID: req.GatewayAccountID,
		ProviderName:     req.Provider,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Description:      req.Description,
		Reference:        req.Reference,
		Mode:             mode,
		AgreementID:      req.AgreementID,
		Email:            req.Email,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromCharge(c))
}

// GetCharge handles GET /api/v1/charges/{externalID}
func (h *ChargeController) GetCharge(w http.ResponseWriter, r *http.Request) {
	c, err := h.chargeService.GetCharge(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromCharge(c))
}

// Authorise handles POST /api/v1/charges/{externalID}/authorise
func (h *ChargeController) Authorise(w http.ResponseWriter, r *http.Request) {
	var req AuthoriseChargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cardInfo := fees.CardInfo{
		Type:      fees.CardType(req.CardType),
		Corporate: req.Corporate,
	}
	if req.Prepaid != nil {
		p := fees.PrepaidStatus(*req.Prepaid)
		cardInfo.Prepaid = &p
	}

	result, err := h.chargeService.Authorise(r.Context(), service.AuthoriseRequest{
		ChargeExternalID: chi.URLParam(r, "externalID"),
		Card:             req.card(),
		CardInfo:         cardInfo,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The authorisation ran; the outcome, including a decline, is a
	// resource-level fact rather than a transport failure.
	writeJSON(w, http.StatusOK, authoriseResponse(result))
}

// Authorise3DS handles POST /api/v1/charges/{externalID}/authorise-3ds
func (h *ChargeController) Authorise3DS(w http.ResponseWriter, r *http.Request) {
	var req Authorise3DSChargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.chargeService.Authorise3DS(r.Context(), chi.URLParam(r, "externalID"), req.PAResponse)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authoriseResponse(result))
}

// Capture handles POST /api/v1/charges/{externalID}/capture
func (h *ChargeController) Capture(w http.ResponseWriter, r *http.Request) {
	c, err := h.chargeService.ApproveCapture(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		writeError(w, err)
		return
	}
	// The gateway call happens asynchronously in the capture sweep.
	writeJSON(w, http.StatusAccepted, FromCharge(c))
}

// Cancel handles POST /api/v1/charges/{externalID}/cancel
func (h *ChargeController) Cancel(w http.ResponseWriter, r *http.Request) {
	req := CancelChargeRequest{ByUser: true}
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	c, err := h.chargeService.Cancel(r.Context(), chi.URLParam(r, "externalID"), req.ByUser)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromCharge(c))
}

// CreateRefund handles POST /api/v1/charges/{externalID}/refunds
func (h *ChargeController) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req CreateRefundRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ref, err := h.refundService.Refund(r.Context(), chi.URLParam(r, "externalID"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, FromRefund(ref))
}

// GetRefund handles GET /api/v1/charges/{externalID}/refunds/{refundID}
func (h *ChargeController) GetRefund(w http.ResponseWriter, r *http.Request) {
	ref, err := h.refundService.GetRefund(r.Context(), chi.URLParam(r, "refundID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromRefund(ref))
}

// GetRefundability handles GET /api/v1/charges/{externalID}/refundability
func (h *ChargeController) GetRefundability(w http.ResponseWriter, r *http.Request) {
	c, err := h.chargeService.GetCharge(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := h.chargeService.RefundableAmount(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefundabilityResponse{
		ChargeExternalID: c.ExternalID,
		AmountAvailable:  available,
	})
}

func authoriseResponse(result *service.AuthoriseResult) *AuthoriseResponse {
	return &AuthoriseResponse{
		Status:  string(result.Status),
		Message: result.Message,
		Charge:  FromCharge(result.Charge),
	}
}
