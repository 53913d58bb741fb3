// Package gateway wraps the external payment backend behind a small, stateless
// client. It is the only package aware of wire details: creating a payment
// intent and checking its status. Retry and scheduling decisions live with the
// caller, never here.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Provider identifies an external payment gateway.
type Provider string

const (
	ProviderClick Provider = "click"
	ProviderPayme Provider = "payme"
)

// Valid reports whether the provider is one of the supported gateways.
func (p Provider) Valid() bool {
	switch p {
	case ProviderClick, ProviderPayme:
		return true
	}
	return false
}

// Status is the gateway-reported state of a payment intent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the gateway will never change this status again.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCancelled
}

// ParseStatus maps a wire status string onto a Status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusPaid, StatusFailed, StatusCancelled:
		return Status(raw), nil
	}
	return "", fmt.Errorf("gateway: unknown status %q", raw)
}

// CreateRequest carries everything needed to create a payment intent.
type CreateRequest struct {
	InvoiceID string
	Provider  Provider
	ReturnURL string
	CancelURL string
}

// CreateResult is the successful outcome of CreatePayment.
type CreateResult struct {
	PaymentURL        string
	ProviderPaymentID string
}

// InitiationErrorKind distinguishes transport failures from gateway refusals.
type InitiationErrorKind int

const (
	// InitiationNetwork marks a transport-level failure; the intent may or
	// may not exist on the gateway side.
	InitiationNetwork InitiationErrorKind = iota
	// InitiationRejected means the gateway refused to create the intent.
	InitiationRejected
)

// InitiationError is returned by CreatePayment when the intent could not be
// created. Rejected errors carry the gateway's reason string.
type InitiationError struct {
	Kind   InitiationErrorKind
	Reason string
	Err    error
}

func (e *InitiationError) Error() string {
	switch e.Kind {
	case InitiationRejected:
		return fmt.Sprintf("gateway: payment initiation rejected: %s", e.Reason)
	default:
		if e.Err != nil {
			return fmt.Sprintf("gateway: payment initiation failed: %v", e.Err)
		}
		return "gateway: payment initiation failed"
	}
}

func (e *InitiationError) Unwrap() error { return e.Err }

// CheckError is returned by CheckStatus for transport failures and malformed
// responses. A legitimate pending status is never an error.
type CheckError struct {
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("gateway: status check failed: %v", e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// AsInitiationError unwraps err into an *InitiationError if possible.
func AsInitiationError(err error) (*InitiationError, bool) {
	var ie *InitiationError
	ok := errors.As(err, &ie)
	return ie, ok
}

// AsCheckError unwraps err into a *CheckError if possible.
func AsCheckError(err error) (*CheckError, bool) {
	var ce *CheckError
	ok := errors.As(err, &ce)
	return ce, ok
}

// Client is implemented by payment gateway clients. Implementations hold no
// per-payment state between calls.
type Client interface {
	// CreatePayment asks the gateway to create a payment intent for the
	// invoice. Failures are reported as *InitiationError.
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// CheckStatus returns the gateway's current view of the invoice's
	// payment. Transport failures and malformed responses are reported as
	// *CheckError; StatusPending is a normal result.
	CheckStatus(ctx context.Context, invoiceID string) (Status, error)
}
