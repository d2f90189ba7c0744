// Package stripe implements the Provider contract against a Stripe-style
// gateway: form-url-encoded POSTs, JSON responses, an Idempotency-Key header
// derived from the operation and charge external id, and a connected-account
// header per gateway account.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

const ProviderName = "stripe"

// Config holds the per-environment connection settings.
type Config struct {
	BaseURL          string
	APIKey           string
	ConnectAccountID string
	Timeout          time.Duration
}

type Provider struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Provider) Name() string { return ProviderName }

// apiError is the error envelope Stripe-style gateways return.
type apiError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type apiResponse struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	Captured bool      `json:"captured"`
	Error    *apiError `json:"error"`
	NextAction *struct {
		RedirectURL string `json:"redirect_url"`
		Payload     string `json:"payload"`
		Version     string `json:"version"`
	} `json:"next_action"`
}

// declineCodes are invalid_request_error codes that actually mean the card
// was declined. The classification table is specific to this provider.
var declineCodes = map[string]bool{
	"card_declined":        true,
	"expired_card":         true,
	"incorrect_cvc":        true,
	"incorrect_number":     true,
	"insufficient_funds":   true,
	"processing_error_card": true,
}

// classify turns a provider error body into the canonical taxonomy:
// card_error and card-decline invalid_request_errors become REJECTED-class
// card errors, everything else a generic gateway error.
func classify(e *apiError) *errors.GatewayError {
	if e == nil {
		return errors.NewGenericGatewayError("unknown", "gateway returned an error with no body")
	}
	if e.Type == "card_error" {
		return errors.NewCardError(e.Code, e.Message)
	}
	if e.Type == "invalid_request_error" && declineCodes[e.Code] {
		return errors.NewCardError(e.Code, e.Message)
	}
	return errors.NewGenericGatewayError(e.Code, e.Message)
}

func (p *Provider) Authorise(ctx context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Charge.TotalAmount(), 10))
	form.Set("currency", strings.ToLower(req.Charge.Currency))
	form.Set("capture", "false")
	form.Set("description", req.Charge.Description)
	form.Set("card[number]", req.Card.Number)
	form.Set("card[exp_month]", req.Card.ExpiryMonth)
	form.Set("card[exp_year]", req.Card.ExpiryYear)
	form.Set("card[cvc]", req.Card.CVC)
	form.Set("card[name]", req.Card.HolderName)

	resp, err := p.post(ctx, "/v1/charges", form, gateway.IdempotencyKey("authorise", req.Charge.ExternalID))
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(resp)
}

func (p *Provider) Authorise3DS(ctx context.Context, req gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error) {
	form := url.Values{}
	form.Set("pa_response", req.PAResponse)
	form.Set("md", req.MD)

	resp, err := p.post(ctx, "/v1/charges/3ds", form, gateway.IdempotencyKey("authorise3ds", req.Charge.ExternalID))
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(resp)
}

func (p *Provider) AuthoriseUserNotPresent(ctx context.Context, req gateway.UserNotPresentRequest) (*gateway.AuthoriseOutcome, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Charge.TotalAmount(), 10))
	form.Set("currency", strings.ToLower(req.Charge.Currency))
	form.Set("capture", "false")
	form.Set("customer", req.AgreementReference)
	form.Set("off_session", "true")

	resp, err := p.post(ctx, "/v1/charges", form, gateway.IdempotencyKey("authorise", req.Charge.ExternalID))
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(resp)
}

func (p *Provider) authoriseOutcome(resp *apiResponse) (*gateway.AuthoriseOutcome, error) {
	if resp.Error != nil {
		gwErr := classify(resp.Error)
		if gwErr.Class == errors.GatewayErrorCard {
			return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseRejected}, nil
		}
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseError, GatewayError: gwErr}, nil
	}

	if resp.NextAction != nil {
		return &gateway.AuthoriseOutcome{
			Status:        gateway.AuthoriseRequires3DS,
			TransactionID: resp.ID,
			ThreeDS: &charge.ThreeDSDetail{
				IssuerURL:       resp.NextAction.RedirectURL,
				PARequest:       resp.NextAction.Payload,
				ProtocolVersion: resp.NextAction.Version,
			},
		}, nil
	}

	return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: resp.ID}, nil
}

func (p *Provider) Capture(ctx context.Context, ch *charge.Charge) (*gateway.CaptureOutcome, error) {
	if ch.GatewayTransactionID == nil {
		return nil, errors.NewValidationError("gateway_transaction_id", "cannot capture without a gateway transaction id")
	}
	form := url.Values{}
	resp, err := p.post(ctx,
		fmt.Sprintf("/v1/charges/%s/capture", *ch.GatewayTransactionID),
		form, gateway.IdempotencyKey("capture", ch.ExternalID))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return &gateway.CaptureOutcome{Status: gateway.CaptureError, GatewayError: classify(resp.Error)}, nil
	}
	if !resp.Captured && resp.Status == "pending" {
		return &gateway.CaptureOutcome{Status: gateway.CapturePending}, nil
	}
	return &gateway.CaptureOutcome{Status: gateway.CaptureSucceeded}, nil
}

func (p *Provider) Cancel(ctx context.Context, ch *charge.Charge) (*gateway.CancelOutcome, error) {
	if ch.GatewayTransactionID == nil {
		return nil, errors.NewValidationError("gateway_transaction_id", "cannot cancel without a gateway transaction id")
	}
	form := url.Values{}
	resp, err := p.post(ctx,
		fmt.Sprintf("/v1/charges/%s/refund", *ch.GatewayTransactionID),
		form, gateway.IdempotencyKey("cancel", ch.ExternalID))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return &gateway.CancelOutcome{Status: gateway.OutcomeError, GatewayError: classify(resp.Error)}, nil
	}
	return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
}

func (p *Provider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundOutcome, error) {
	if req.Charge.GatewayTransactionID == nil {
		return nil, errors.NewValidationError("gateway_transaction_id", "cannot refund without a gateway transaction id")
	}
	form := url.Values{}
	form.Set("charge", *req.Charge.GatewayTransactionID)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))

	resp, err := p.post(ctx, "/v1/refunds", form, gateway.IdempotencyKey("refund", req.RefundExternalID))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return &gateway.RefundOutcome{Status: gateway.OutcomeError, GatewayError: classify(resp.Error)}, nil
	}
	return &gateway.RefundOutcome{Status: gateway.OutcomeSucceeded, GatewayReference: resp.ID}, nil
}

func (p *Provider) QueryPaymentStatus(ctx context.Context, ch *charge.Charge) (*gateway.QueryOutcome, error) {
	if ch.GatewayTransactionID == nil {
		return &gateway.QueryOutcome{Found: false}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.cfg.BaseURL+"/v1/charges/"+*ch.GatewayTransactionID, nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	p.setHeaders(httpReq, "")

	resp, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		if resp.Error.Code == "resource_missing" {
			return &gateway.QueryOutcome{Found: false}, nil
		}
		return nil, classify(resp.Error)
	}

	out := &gateway.QueryOutcome{Found: true, RawStatus: resp.Status}
	if mapped, ok := p.MapRawStatus(resp.Status); ok && mapped.ChargeStatus != nil {
		out.MappedStatus = mapped.ChargeStatus
	}
	return out, nil
}

func (p *Provider) post(ctx context.Context, path string, form url.Values, idempotencyKey string) (*apiResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	p.setHeaders(httpReq, idempotencyKey)
	return p.do(httpReq)
}

func (p *Provider) setHeaders(req *http.Request, idempotencyKey string) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.ConnectAccountID != "" {
		req.Header.Set("Stripe-Account", p.cfg.ConnectAccountID)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
}

func (p *Provider) do(req *http.Request) (*apiResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.ErrGatewayTimeout
		}
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse gateway response: %w", err)
	}
	return &parsed, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; e = unwrap(e) {
		if t, ok := e.(timeout); ok && t.Timeout() {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}
