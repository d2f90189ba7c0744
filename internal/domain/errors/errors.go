package errors

import (
	"errors"
	"fmt"
)

var (
	// Charge errors
	ErrChargeNotFound         = errors.New("charge not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrChargeNotCapturable    = errors.New("charge is not in a capturable state")
	ErrChargeExpired          = errors.New("charge has expired")
	ErrOptimisticLockFailed   = errors.New("optimistic lock conflict")

	// Refund errors
	ErrRefundNotFound         = errors.New("refund not found")
	ErrRefundNotAvailable     = errors.New("charge is not available for refund")
	ErrRefundAmountExceeded   = errors.New("refund amount exceeds amount available")
	ErrInvalidAmount          = errors.New("invalid amount")

	// Gateway errors
	ErrProviderNotFound     = errors.New("payment gateway provider not found")
	ErrProviderUnavailable  = errors.New("payment gateway provider unavailable")
	ErrGatewayTimeout       = errors.New("gateway request timeout")
	ErrUnknownGatewayStatus = errors.New("unknown gateway status")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire charge lock")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")

	// Webhook errors
	ErrWebhookUnauthorized = errors.New("webhook authentication failed")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// GatewayErrorClass partitions provider-side failures by how callers react.
type GatewayErrorClass string

const (
	// GatewayErrorCard means the provider declined the card. Terminal for
	// the attempt, but user-correctable with another card.
	GatewayErrorCard GatewayErrorClass = "card_error"
	// GatewayErrorGeneric is any other provider-side failure. Not
	// user-correctable; retried only by an operational process.
	GatewayErrorGeneric GatewayErrorClass = "gateway_error"
)

// GatewayError carries a classified provider failure. ProviderMessage is the
// raw provider text, logged internally only; callers surface UserMessage.
type GatewayError struct {
	Class           GatewayErrorClass
	Code            string
	ProviderMessage string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error (%s/%s): %s", e.Class, e.Code, e.ProviderMessage)
}

// UserMessage returns provider-agnostic text safe to show to callers.
func (e *GatewayError) UserMessage() string {
	if e.Class == GatewayErrorCard {
		return "the payment was declined"
	}
	return "the payment could not be processed"
}

// NewCardError creates a GatewayError for a provider card decline.
func NewCardError(code, providerMessage string) *GatewayError {
	return &GatewayError{Class: GatewayErrorCard, Code: code, ProviderMessage: providerMessage}
}

// NewGenericGatewayError creates a GatewayError for a non-card provider failure.
func NewGenericGatewayError(code, providerMessage string) *GatewayError {
	return &GatewayError{Class: GatewayErrorGeneric, Code: code, ProviderMessage: providerMessage}
}
