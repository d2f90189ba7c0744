// Package worldpay implements the Provider contract against a Worldpay-style
// gateway: XML order envelopes over HTTPS with basic auth. Orders are
// correlated by order code, which is the charge external id, so a retried
// submission of the same order is rejected as a duplicate rather than
// charged twice.
package worldpay

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
	"github.com/cassiomorais/chargegate/internal/gateway"
)

const ProviderName = "worldpay"

// Config holds the per-environment connection settings.
type Config struct {
	BaseURL      string
	MerchantCode string
	Username     string
	Password     string
	Timeout      time.Duration
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

// --- request envelopes ---

type paymentService struct {
	XMLName      xml.Name `xml:"paymentService"`
	Version      string   `xml:"version,attr"`
	MerchantCode string   `xml:"merchantCode,attr"`
	Submit       *submit  `xml:"submit,omitempty"`
	Modify       *modify  `xml:"modify,omitempty"`
	Inquiry      *inquiry `xml:"inquiry,omitempty"`
}

type submit struct {
	Order order `xml:"order"`
}

type order struct {
	OrderCode   string       `xml:"orderCode,attr"`
	Description string       `xml:"description"`
	Amount      amount       `xml:"amount"`
	PaymentDetails *paymentDetails `xml:"paymentDetails,omitempty"`
	PayAsOrder  *payAsOrder  `xml:"payAsOrder,omitempty"`
	Info3DSecure *info3DSecure `xml:"info3DSecure,omitempty"`
}

type amount struct {
	Value        int64  `xml:"value,attr"`
	CurrencyCode string `xml:"currencyCode,attr"`
	Exponent     int    `xml:"exponent,attr"`
}

type paymentDetails struct {
	CardSSL *cardSSL `xml:"CARD-SSL,omitempty"`
	Session *session `xml:"session,omitempty"`
}

type cardSSL struct {
	CardNumber  string `xml:"cardNumber"`
	ExpiryMonth string `xml:"expiryDate>date>month"`
	ExpiryYear  string `xml:"expiryDate>date>year"`
	CardHolder  string `xml:"cardHolderName"`
	CVC         string `xml:"cvc"`
}

type payAsOrder struct {
	OrderCode string `xml:"orderCode,attr"`
	Amount    amount `xml:"amount"`
}

type session struct {
	ID string `xml:"id,attr"`
}

type info3DSecure struct {
	PAResponse string `xml:"paResponse"`
}

type modify struct {
	OrderModification orderModification `xml:"orderModification"`
}

type orderModification struct {
	OrderCode string   `xml:"orderCode,attr"`
	Capture   *capture `xml:"capture,omitempty"`
	Cancel    *struct{} `xml:"cancel,omitempty"`
	Refund    *refundModification `xml:"refund,omitempty"`
}

type capture struct {
	Amount amount `xml:"amount"`
}

type refundModification struct {
	Reference string `xml:"reference,attr,omitempty"`
	Amount    amount `xml:"amount"`
}

type inquiry struct {
	OrderInquiry orderInquiry `xml:"orderInquiry"`
}

type orderInquiry struct {
	OrderCode string `xml:"orderCode,attr"`
}

// --- response envelope ---

type reply struct {
	XMLName       xml.Name       `xml:"paymentService"`
	Reply         replyBody      `xml:"reply"`
}

type replyBody struct {
	OrderStatus *orderStatus `xml:"orderStatus"`
	Ok          *okReply     `xml:"ok"`
	Error       *replyError  `xml:"error"`
}

type orderStatus struct {
	OrderCode string    `xml:"orderCode,attr"`
	Payment   *payment  `xml:"payment"`
	Request3DSecure *request3DSecure `xml:"requestInfo>request3DSecure"`
	Error     *replyError `xml:"error"`
}

type payment struct {
	LastEvent   string       `xml:"lastEvent"`
	ReturnCode  *returnCode  `xml:"ISO8583ReturnCode"`
}

type returnCode struct {
	Code        string `xml:"code,attr"`
	Description string `xml:"description,attr"`
}

type request3DSecure struct {
	IssuerURL string `xml:"issuerURL"`
	PARequest string `xml:"paRequest"`
	MD        string `xml:"echoData"`
}

type okReply struct {
	CaptureReceived *modificationReceived `xml:"captureReceived"`
	CancelReceived  *modificationReceived `xml:"cancelReceived"`
	RefundReceived  *modificationReceived `xml:"refundReceived"`
}

type modificationReceived struct {
	OrderCode string `xml:"orderCode,attr"`
}

type replyError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// refusedReturnCodes are ISO8583 return codes meaning the card was refused
// rather than the gateway failing. Classification is specific to this
// provider.
var refusedReturnCodes = map[string]bool{
	"5":  true, // REFUSED
	"51": true, // insufficient funds
	"54": true, // expired card
	"62": true, // restricted card
}

func classifyReturnCode(rc *returnCode) *errors.GatewayError {
	if rc == nil {
		return nil
	}
	if refusedReturnCodes[rc.Code] {
		return errors.NewCardError(rc.Code, rc.Description)
	}
	return errors.NewGenericGatewayError(rc.Code, rc.Description)
}

func (p *Provider) Authorise(ctx context.Context, req gateway.AuthoriseRequest) (*gateway.AuthoriseOutcome, error) {
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Submit: &submit{Order: order{
			OrderCode:   req.Charge.ExternalID,
			Description: req.Charge.Description,
			Amount:      amount{Value: req.Charge.TotalAmount(), CurrencyCode: req.Charge.Currency, Exponent: 2},
			PaymentDetails: &paymentDetails{CardSSL: &cardSSL{
				CardNumber:  req.Card.Number,
				ExpiryMonth: req.Card.ExpiryMonth,
				ExpiryYear:  req.Card.ExpiryYear,
				CardHolder:  req.Card.HolderName,
				CVC:         req.Card.CVC,
			}},
		}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(r, req.Charge.ExternalID)
}

func (p *Provider) Authorise3DS(ctx context.Context, req gateway.Authorise3DSRequest) (*gateway.AuthoriseOutcome, error) {
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Submit: &submit{Order: order{
			OrderCode:    req.Charge.ExternalID,
			Amount:       amount{Value: req.Charge.TotalAmount(), CurrencyCode: req.Charge.Currency, Exponent: 2},
			Info3DSecure: &info3DSecure{PAResponse: req.PAResponse},
		}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(r, req.Charge.ExternalID)
}

func (p *Provider) AuthoriseUserNotPresent(ctx context.Context, req gateway.UserNotPresentRequest) (*gateway.AuthoriseOutcome, error) {
	// Merchant-initiated charges reference the original agreement order
	// code instead of carrying card details.
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Submit: &submit{Order: order{
			OrderCode:   req.Charge.ExternalID,
			Description: req.Charge.Description,
			Amount:      amount{Value: req.Charge.TotalAmount(), CurrencyCode: req.Charge.Currency, Exponent: 2},
			PayAsOrder: &payAsOrder{
				OrderCode: req.AgreementReference,
				Amount:    amount{Value: req.Charge.TotalAmount(), CurrencyCode: req.Charge.Currency, Exponent: 2},
			},
		}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	return p.authoriseOutcome(r, req.Charge.ExternalID)
}

func (p *Provider) authoriseOutcome(r *reply, orderCode string) (*gateway.AuthoriseOutcome, error) {
	if r.Reply.Error != nil {
		return &gateway.AuthoriseOutcome{
			Status:       gateway.AuthoriseError,
			GatewayError: errors.NewGenericGatewayError(r.Reply.Error.Code, r.Reply.Error.Message),
		}, nil
	}
	os := r.Reply.OrderStatus
	if os == nil {
		return nil, fmt.Errorf("gateway reply carried no order status")
	}
	if os.Error != nil {
		return &gateway.AuthoriseOutcome{
			Status:       gateway.AuthoriseError,
			GatewayError: errors.NewGenericGatewayError(os.Error.Code, os.Error.Message),
		}, nil
	}
	if os.Request3DSecure != nil {
		return &gateway.AuthoriseOutcome{
			Status:        gateway.AuthoriseRequires3DS,
			TransactionID: orderCode,
			ThreeDS: &charge.ThreeDSDetail{
				IssuerURL:       os.Request3DSecure.IssuerURL,
				PARequest:       os.Request3DSecure.PARequest,
				MD:              os.Request3DSecure.MD,
				ProtocolVersion: "1.0.2",
			},
		}, nil
	}
	if os.Payment == nil {
		return nil, fmt.Errorf("gateway reply carried no payment block")
	}

	switch os.Payment.LastEvent {
	case "AUTHORISED":
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseAuthorised, TransactionID: orderCode}, nil
	case "REFUSED":
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseRejected}, nil
	default:
		gwErr := classifyReturnCode(os.Payment.ReturnCode)
		if gwErr == nil {
			gwErr = errors.NewGenericGatewayError("unexpected_event", "unexpected last event "+os.Payment.LastEvent)
		}
		if gwErr.Class == errors.GatewayErrorCard {
			return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseRejected}, nil
		}
		return &gateway.AuthoriseOutcome{Status: gateway.AuthoriseError, GatewayError: gwErr}, nil
	}
}

func (p *Provider) Capture(ctx context.Context, ch *charge.Charge) (*gateway.CaptureOutcome, error) {
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Modify: &modify{OrderModification: orderModification{
			OrderCode: ch.ExternalID,
			Capture:   &capture{Amount: amount{Value: ch.TotalAmount(), CurrencyCode: ch.Currency, Exponent: 2}},
		}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if r.Reply.Error != nil {
		return &gateway.CaptureOutcome{
			Status:       gateway.CaptureError,
			GatewayError: errors.NewGenericGatewayError(r.Reply.Error.Code, r.Reply.Error.Message),
		}, nil
	}
	// Worldpay-style capture is asynchronous: the gateway acknowledges the
	// request and confirms settlement by notification later.
	return &gateway.CaptureOutcome{Status: gateway.CapturePending}, nil
}

func (p *Provider) Cancel(ctx context.Context, ch *charge.Charge) (*gateway.CancelOutcome, error) {
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Modify: &modify{OrderModification: orderModification{
			OrderCode: ch.ExternalID,
			Cancel:    &struct{}{},
		}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if r.Reply.Error != nil {
		return &gateway.CancelOutcome{
			Status:       gateway.OutcomeError,
			GatewayError: errors.NewGenericGatewayError(r.Reply.Error.Code, r.Reply.Error.Message),
		}, nil
	}
	return &gateway.CancelOutcome{Status: gateway.OutcomeSucceeded}, nil
}

func (p *Provider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundOutcome, error) {
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Modify: &modify{OrderModification: orderModification{
			OrderCode: req.Charge.ExternalID,
			Refund: &refundModification{
				Reference: gateway.IdempotencyKey("refund", req.RefundExternalID),
				Amount:    amount{Value: req.Amount, CurrencyCode: req.Charge.Currency, Exponent: 2},
			},
		}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if r.Reply.Error != nil {
		return &gateway.RefundOutcome{
			Status:       gateway.OutcomeError,
			GatewayError: errors.NewGenericGatewayError(r.Reply.Error.Code, r.Reply.Error.Message),
		}, nil
	}
	return &gateway.RefundOutcome{Status: gateway.OutcomeSucceeded, GatewayReference: req.Charge.ExternalID}, nil
}

func (p *Provider) QueryPaymentStatus(ctx context.Context, ch *charge.Charge) (*gateway.QueryOutcome, error) {
	envelope := paymentService{
		Version:      "1.4",
		MerchantCode: p.cfg.MerchantCode,
		Inquiry:      &inquiry{OrderInquiry: orderInquiry{OrderCode: ch.ExternalID}},
	}

	r, err := p.send(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if r.Reply.Error != nil {
		// Error code 5 means the order was never received.
		if r.Reply.Error.Code == "5" {
			return &gateway.QueryOutcome{Found: false}, nil
		}
		return nil, errors.NewGenericGatewayError(r.Reply.Error.Code, r.Reply.Error.Message)
	}
	os := r.Reply.OrderStatus
	if os == nil || os.Payment == nil {
		return &gateway.QueryOutcome{Found: false}, nil
	}

	out := &gateway.QueryOutcome{Found: true, RawStatus: os.Payment.LastEvent}
	if mapped, ok := p.MapRawStatus(os.Payment.LastEvent); ok && mapped.ChargeStatus != nil {
		out.MappedStatus = mapped.ChargeStatus
	}
	return out, nil
}

func (p *Provider) send(ctx context.Context, envelope paymentService) (*reply, error) {
	body, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal order envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL,
		bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.ErrGatewayTimeout
		}
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var parsed reply
	if err := xml.Unmarshal(raw, &parsed); err != nil {
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
