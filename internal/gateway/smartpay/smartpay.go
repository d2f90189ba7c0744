// Package smartpay implements the Provider contract against a Smartpay-style
// gateway: SOAP envelopes over HTTPS with basic auth. Authorisation,
// modification and refund each have their own SOAP action; results arrive as
// a psp reference plus a result code in the SOAP body.
package smartpay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/charge"
	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/cassiomorais/chargegate/internal/domain/refund"
	"github.com/cassiomorais/chargegate/internal/gateway"
)

const ProviderName = "smartpay"

// Config holds the per-environment connection settings.
type Config struct {
	BaseURL         string
	MerchantAccount string
	Username        string
	Password        string
	Timeout         time.Duration
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

// --- SOAP envelopes ---

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Body    soapBody `xml:"soap:Body"`
}

type soapBody struct {
	Authorise *authoriseBody `xml:"ns1:authorise,omitempty"`
	Capture   *modifyBody    `xml:"ns1:capture,omitempty"`
	Cancel    *modifyBody    `xml:"ns1:cancel,omitempty"`
	Refund    *refundBody    `xml:"ns1:refund,omitempty"`
	NS        string         `xml:"xmlns:ns1,attr"`
}

type authoriseBody struct {
	MerchantAccount string   `xml:"paymentRequest>merchantAccount"`
	Reference       string   `xml:"paymentRequest>reference"`
	Amount          soapAmount `xml:"paymentRequest>amount"`
	CardNumber      string   `xml:"paymentRequest>card>number"`
	CardHolder      string   `xml:"paymentRequest>card>holderName"`
	CardExpiryMonth string   `xml:"paymentRequest>card>expiryMonth"`
	CardExpiryYear  string   `xml:"paymentRequest>card>expiryYear"`
	CardCVC         string   `xml:"paymentRequest>card>cvc"`
	ShopperReference string  `xml:"paymentRequest>shopperReference,omitempty"`
	RecurringContract string `xml:"paymentRequest>recurring>contract,omitempty"`
}

type modifyBody struct {
	MerchantAccount   string      `xml:"modificationRequest>merchantAccount"`
	OriginalReference string      `xml:"modificationRequest>originalReference"`
	Amount            *soapAmount `xml:"modificationRequest>modificationAmount,omitempty"`
	Reference         string      `xml:"modificationRequest>reference,omitempty"`
}

type refundBody = modifyBody

type soapAmount struct {
	Currency string `xml:"currency"`
	Value    int64  `xml:"value"`
}

// --- SOAP responses ---

type soapResponseEnvelope struct {
	XMLName xml.Name         `xml:"Envelope"`
	Body    soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	AuthoriseResponse *paymentResult      `xml:"authoriseResponse>paymentResult"`
	CaptureResponse   *modificationResult `xml:"captureResponse>captureResult"`
	CancelResponse    *modificationResult `xml:"cancelResponse>cancelResult"`
	RefundResponse    *modificationResult `xml:"refundResponse>refundResult"`
	Fault             *soapFault          `xml:"Fault"`
}

type paymentResult struct {
	PspReference  string `xml:"pspReference"`
	ResultCode    string `xml:"resultCode"`
	RefusalReason string `xml:"refusalReason"`
	IssuerURL     string `xml:"issuerUrl"`
	PARequest     string `xml:"paRequest"`
	MD            string `xml:"md"`
}

type modificationResult struct {
	PspReference string `xml:"pspReference"`
	Response     string `xml:"response"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

func (p *Provider) Authorise(ctx context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error) {
	body := soapBody{
		NS: "http://payment.services.smartpay.com",
		Authorise: &authoriseBody{
			MerchantAccount: p.cfg.MerchantAccount,
			Reference:       gateway.IdempotencyKey("authorise", req.Charge.ExternalID),
			Amount:          soapAmount{Currency: req.Charge.Currency, Value: req.Charge.TotalAmount()},
			CardNumber:      req.Card.Number,
			CardHolder:      req.Card.HolderName,
			CardExpiryMonth: req.Card.ExpiryMonth,
			CardExpiryYear:  req.Card.ExpiryYear,
			CardCVC:         req.Card.CVC,
		},
	}

	resp, err := p.send(ctx, body, "authorise")
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(resp)
}

func (p *Provider) Authorise3DS(ctx context.Context, req gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error) {
	// Smartpay-style 3DS completion reuses the authorise action with the
	// issuer response in place of card details.
	body := soapBody{
		NS: "http://payment.services.smartpay.com",
		Authorise: &authoriseBody{
			MerchantAccount: p.cfg.MerchantAccount,
			Reference:       gateway.IdempotencyKey("authorise3ds", req.Charge.ExternalID),
			Amount:          soapAmount{Currency: req.Charge.Currency, Value: req.Charge.TotalAmount()},
		},
	}

	resp, err := p.send(ctx, body, "authorise3d")
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(resp)
}

func (p *Provider) AuthoriseUserNotPresent(ctx context.Context, req gateway.UserNotPresentRequest) (*gateway.AuthoriseOutcome, error) {
	body := soapBody{
		NS: "http://payment.services.smartpay.com",
		Authorise: &authoriseBody{
			MerchantAccount:   p.cfg.MerchantAccount,
			Reference:         gateway.IdempotencyKey("authorise", req.Charge.ExternalID),
			Amount:            soapAmount{Currency: req.Charge.Currency, Value: req.Charge.TotalAmount()},
			ShopperReference:  req.AgreementReference,
			RecurringContract: "RECURRING",
		},
	}

	resp, err := p.send(ctx, body, "authorise")
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(resp)
}

func (p *Provider) authoriseOutcome(resp *soapResponseEnvelope) (*gateway.AuthoriseOutcome, error) {
	if resp.Body.Fault != nil {
		return &gateway.AuthoriseOutcome{
			Status:       gateway.AuthoriseError,
			GatewayError: errors.NewGenericGatewayError(resp.Body.Fault.FaultCode, resp.Body.Fault.FaultString),
		}, nil
	}
	result := resp.Body.AuthoriseResponse
	if result == nil {
		return nil, fmt.Errorf("gateway reply carried no payment result")
	}

	switch result.ResultCode {
	case "Authorised":
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: result.PspReference}, nil
	case "Refused":
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseRejected}, nil
	case "RedirectShopper":
		return &gateway.AuthoriseOutcome{
			Status:        gateway.AuthoriseRequires3DS,
			TransactionID: result.PspReference,
			ThreeDS: &charge.ThreeDSDetail{
				IssuerURL:       result.IssuerURL,
				PARequest:       result.PARequest,
				MD:              result.MD,
				ProtocolVersion: "1.0.2",
			},
		}, nil
	default:
		return &gateway.AuthoriseOutcome{
			Status:       gateway.AuthoriseError,
			GatewayError: errors.NewGenericGatewayError(result.ResultCode, result.RefusalReason),
		}, nil
	}
}

func (p *Provider) Capture(ctx context.Context, ch *charge.Charge) (*gateway.CaptureOutcome, error) {
	if ch.GatewayTransactionID == nil {
		return nil, errors.NewValidationError("gateway_transaction_id", "cannot capture without a gateway transaction id")
	}
	body := soapBody{
		NS: "http://payment.services.smartpay.com",
		Capture: &modifyBody{
			MerchantAccount:   p.cfg.MerchantAccount,
			OriginalReference: *ch.GatewayTransactionID,
			Amount:            &soapAmount{Currency: ch.Currency, Value: ch.TotalAmount()},
			Reference:         gateway.IdempotencyKey("capture", ch.ExternalID),
		},
	}

	resp, err := p.send(ctx, body, "capture")
	if err != nil {
		return nil, err
	}
	if resp.Body.Fault != nil {
		return &gateway.CaptureOutcome{
			Status:       gateway.CaptureError,
			GatewayError: errors.NewGenericGatewayError(resp.Body.Fault.FaultCode, resp.Body.Fault.FaultString),
		}, nil
	}
	result := resp.Body.CaptureResponse
	if result == nil || result.Response != "[capture-received]" {
		return &gateway.CaptureOutcome{
			Status:       gateway.CaptureError,
			GatewayError: errors.NewGenericGatewayError("unexpected_response", "capture was not acknowledged"),
		}, nil
	}
	// Acknowledgement only; settlement confirmation arrives by notification.
	return &gateway.CaptureOutcome{Status: gateway.CapturePending}, nil
}

func (p *Provider) Cancel(ctx context.Context, ch *charge.Charge) (*gateway.CancelOutcome, error) {
	if ch.GatewayTransactionID == nil {
		return nil, errors.NewValidationError("gateway_transaction_id", "cannot cancel without a gateway transaction id")
	}
	body := soapBody{
		NS: "http://payment.services.smartpay.com",
		Cancel: &modifyBody{
			MerchantAccount:   p.cfg.MerchantAccount,
			OriginalReference: *ch.GatewayTransactionID,
			Reference:         gateway.IdempotencyKey("cancel", ch.ExternalID),
		},
	}

	resp, err := p.send(ctx, body, "cancel")
	if err != nil {
		return nil, err
	}
	if resp.Body.Fault != nil {
		return &gateway.CancelOutcome{
			Status:       gateway.OutcomeError,
			GatewayError: errors.NewGenericGatewayError(resp.Body.Fault.FaultCode, resp.Body.Fault.FaultString),
		}, nil
	}
	result := resp.Body.CancelResponse
	if result == nil || result.Response != "[cancel-received]" {
		return &gateway.CancelOutcome{
			Status:       gateway.OutcomeError,
			GatewayError: errors.NewGenericGatewayError("unexpected_response", "cancel was not acknowledged"),
		}, nil
	}
	return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
}

func (p *Provider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundOutcome, error) {
	if req.Charge.GatewayTransactionID == nil {
		return nil, errors.NewValidationError("gateway_transaction_id", "cannot refund without a gateway transaction id")
	}
	body := soapBody{
		NS: "http://payment.services.smartpay.com",
		Refund: &refundBody{
			MerchantAccount:   p.cfg.MerchantAccount,
			OriginalReference: *req.Charge.GatewayTransactionID,
			Amount:            &soapAmount{Currency: req.Charge.Currency, Value: req.Amount},
			Reference:         gateway.IdempotencyKey("refund", req.RefundExternalID),
		},
	}

	resp, err := p.send(ctx, body, "refund")
	if err != nil {
		return nil, err
	}
	if resp.Body.Fault != nil {
		return &gateway.RefundOutcome{
			Status:       gateway.OutcomeError,
			GatewayError: errors.NewGenericGatewayError(resp.Body.Fault.FaultCode, resp.Body.Fault.FaultString),
		}, nil
	}
	result := resp.Body.RefundResponse
	if result == nil || result.Response != "[refund-received]" {
		return &gateway.RefundOutcome{
			Status:       gateway.OutcomeError,
			GatewayError: errors.NewGenericGatewayError("unexpected_response", "refund was not acknowledged"),
		}, nil
	}
	return &gateway.RefundOutcome{Status: gateway.OutcomeSucceeded, GatewayReference: result.PspReference}, nil
}

// QueryPaymentStatus is not offered by Smartpay-style gateways; ambiguity is
// resolved from notifications alone.
func (p *Provider) QueryPaymentStatus(_ context.Context, _ *charge.Charge) (*gateway.QueryOutcome, error) {
	return &gateway.QueryOutcome{Found: false}, nil
}

var statusTable = map[string]gateway.MappedStatus{
	"AUTHORISATION":      gateway.ChargeMapping(charge.StatusAuthSuccess),
	"CAPTURE":            gateway.ChargeMapping(charge.StatusCaptured),
	"CANCELLATION":       gateway.ChargeMapping(charge.StatusSystemCancelled),
	"REFUND":             gateway.RefundMapping(refund.StatusRefunded),
	"REFUND_FAILED":      gateway.RefundMapping(refund.StatusError),
	"REPORT_AVAILABLE":   gateway.IgnoredMapping(),
	"NOTIFICATION_OF_CHARGEBACK": gateway.IgnoredMapping(),
}

func (p *Provider) MapRawStatus(raw string) (gateway.MappedStatus, bool) {
	m, ok := statusTable[raw]
	return m, ok
}

func (p *Provider) send(ctx context.Context, body soapBody, action string) (*soapResponseEnvelope, error) {
	envelope := soapEnvelope{
		SoapNS: "http://schemas.xmlsoap.org/soap/envelope/",
		Body:   body,
	}
	raw, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal soap envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL,
		bytes.NewReader(append([]byte(xml.Header), raw...)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", action)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.ErrGatewayTimeout
		}
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	rawResp, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var parsed soapResponseEnvelope
	if err := xml.Unmarshal(rawResp, &parsed); err != nil {
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
