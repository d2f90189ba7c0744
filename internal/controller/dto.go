package controller

import (
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, string enums).
// Amounts are integer minor units everywhere; no floats cross this boundary.

// CreateChargeRequest holds the input for creating a charge.
type CreateChargeRequest struct {
	GatewayAccountID string  `json:"gateway_account_id" validate:"required"`
	Provider         string  `json:"provider" validate:"required"`
	Amount           int64   `json:"amount" validate:"required,gt=0"`
	Currency         string  `json:"currency" validate:"required,len=3"`
	Description      string  `json:"description,omitempty"`
	Reference        string  `json:"reference,omitempty"`
	Mode             string  `json:"mode,omitempty" validate:"omitempty,oneof=web moto_api agreement external"`
	AgreementID      *string `json:"agreement_id,omitempty"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
}

// AuthoriseChargeRequest holds card details for a synchronous authorisation.
type AuthoriseChargeRequest struct {
	CardNumber  string `json:"card_number" validate:"required,numeric,min=12,max=19"`
	HolderName  string `json:"cardholder_name" validate:"required"`
	CVC         string `json:"cvc" validate:"required,numeric,min=3,max=4"`
	ExpiryMonth string `json:"expiry_month" validate:"required,numeric,len=2"`
	ExpiryYear  string `json:"expiry_year" validate:"required,numeric,len=4"`
	Brand       string `json:"brand,omitempty"`
	AddressLine string `json:"address_line,omitempty"`
	City        string `json:"city,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty" validate:"omitempty,len=2"`

	// Card classification drives the corporate surcharge decision.
	CardType  string  `json:"card_type,omitempty" validate:"omitempty,oneof=CREDIT DEBIT CREDIT_OR_DEBIT"`
	Corporate bool    `json:"corporate,omitempty"`
	Prepaid   *string `json:"prepaid,omitempty" validate:"omitempty,oneof=PREPAID NOT_PREPAID UNKNOWN"`
}

// Authorise3DSChargeRequest completes a 3DS challenge.
type Authorise3DSChargeRequest struct {
	PAResponse string `json:"pa_response" validate:"required"`
}

// CreateRefundRequest holds the input for refunding a captured charge.
type CreateRefundRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// CancelChargeRequest optionally marks the cancellation as user-initiated.
type CancelChargeRequest struct {
	ByUser bool `json:"by_user,omitempty"`
}

// --- Response DTOs ---

// ChargeResponse represents a charge in API responses. Status is the
// external status; the internal vocabulary never leaves the service.
type ChargeResponse struct {
	ExternalID           string        `json:"external_id"`
	GatewayAccountID     string        `json:"gateway_account_id"`
	Provider             string        `json:"provider"`
	Amount               int64         `json:"amount"`
	TotalAmount          int64         `json:"total_amount"`
	FeeAmount            int64         `json:"fee_amount,omitempty"`
	NetAmount            int64         `json:"net_amount"`
	CorporateSurcharge   *int64        `json:"corporate_surcharge,omitempty"`
	Currency             string        `json:"currency"`
	Description          string        `json:"description,omitempty"`
	Reference            string        `json:"reference,omitempty"`
	Status               string        `json:"status"`
	Finished             bool          `json:"finished"`
	GatewayTransactionID *string       `json:"gateway_transaction_id,omitempty"`
	AuthorisationMode    string        `json:"authorisation_mode"`
	Fees                 []FeeResponse `json:"fees,omitempty"`
	ThreeDS              *ThreeDSResponse `json:"three_ds,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// FeeResponse is one fee line in a charge response.
type FeeResponse struct {
	Type            string `json:"type"`
	AmountDue       int64  `json:"amount_due"`
	AmountCollected int64  `json:"amount_collected"`
}

// ThreeDSResponse carries the challenge data the caller must present to the
// cardholder's issuer.
type ThreeDSResponse struct {
	IssuerURL  string `json:"issuer_url,omitempty"`
	PARequest  string `json:"pa_request,omitempty"`
	MD         string `json:"md,omitempty"`
}

// AuthoriseResponse is the outcome of an authorisation attempt.
type AuthoriseResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Charge  *ChargeResponse `json:"charge"`
}

// RefundResponse represents a refund in API responses.
type RefundResponse struct {
	ExternalID       string    `json:"external_id"`
	ChargeExternalID string    `json:"charge_external_id"`
	Amount           int64     `json:"amount"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RefundabilityResponse reports how much of a charge can still be refunded.
type RefundabilityResponse struct {
	ChargeExternalID string `json:"charge_external_id"`
	AmountAvailable  int64  `json:"amount_available"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromCharge converts a domain charge to API response.
func FromCharge(c *charge.Charge) *ChargeResponse {
	resp := &ChargeResponse{
		ExternalID:           c.ExternalID,
		GatewayAccountID:     c.GatewayAccountID,
		Provider:             c.ProviderName,
		Amount:               c.Amount,
		TotalAmount:          c.TotalAmount(),
		FeeAmount:            c.FeeAmount(),
		NetAmount:            c.NetAmount(),
		CorporateSurcharge:   c.CorporateSurcharge,
		Currency:             c.Currency,
		Description:          c.Description,
		Reference:            c.Reference,
		Status:               string(c.Status.External()),
		Finished:             c.Status.IsTerminal(),
		GatewayTransactionID: c.GatewayTransactionID,
		AuthorisationMode:    string(c.AuthorisationMode),
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	for _, f := range c.Fees {
		resp.Fees = append(resp.Fees, FeeResponse{
			Type:            string(f.Type),
			AmountDue:       f.AmountDue,
			AmountCollected: f.AmountCollected,
		})
	}
	if c.ThreeDSDetail != nil && c.Status == charge.StatusAuth3DSRequired {
		resp.ThreeDS = &ThreeDSResponse{
			IssuerURL: c.ThreeDSDetail.IssuerURL,
			PARequest: c.ThreeDSDetail.PARequest,
			MD:        c.ThreeDSDetail.MD,
		}
	}
	return resp
}

// FromRefund converts a domain refund to API response.
func FromRefund(r *refund.Refund) *RefundResponse {
	return &RefundResponse{
		ExternalID:       r.ExternalID,
		ChargeExternalID: r.ChargeExternalID,
		Amount:           r.Amount,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r *AuthoriseChargeRequest) card() gateway.Card {
	return gateway.Card{
		Number:      r.CardNumber,
		HolderName:  r.HolderName,
		CVC:         r.CVC,
		ExpiryMonth: r.ExpiryMonth,
		ExpiryYear:  r.ExpiryYear,
		Brand:       r.Brand,
		AddressLine: r.AddressLine,
		City:        r.City,
		Postcode:    r.Postcode,
		Country:     r.Country,
	}
}
