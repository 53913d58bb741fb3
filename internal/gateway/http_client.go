package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPClient talks to the clinic payment backend, which proxies the actual
// provider protocols (Click, Payme) behind a provider-agnostic wire shape:
//
//	POST {base}/invoice/init-payment
//	GET  {base}/invoice/{invoiceId}/status
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a gateway client against the given base URL.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPClient{httpClient: client, baseURL: baseURL}
}

type initPaymentRequest struct {
	InvoiceID string `json:"invoiceId"`
	Provider  string `json:"provider"`
	ReturnURL string `json:"returnUrl"`
	CancelURL string `json:"cancelUrl"`
}

type initPaymentResponse struct {
	Success           bool   `json:"success"`
	PaymentURL        string `json:"paymentUrl"`
	ProviderPaymentID string `json:"providerPaymentId"`
	ErrorMessage      string `json:"errorMessage"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// CreatePayment implements Client.
func (c *HTTPClient) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	tracer := otel.Tracer("gateway")
	ctx, span := tracer.Start(ctx, "HTTPClient.CreatePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.invoice_id", req.InvoiceID),
		attribute.String("payment.provider", string(req.Provider)),
	)

	if req.InvoiceID == "" {
		return nil, &InitiationError{Kind: InitiationRejected, Reason: "invoiceId is required"}
	}
	if !req.Provider.Valid() {
		return nil, &InitiationError{Kind: InitiationRejected, Reason: fmt.Sprintf("unsupported provider %q", req.Provider)}
	}

	body, err := json.Marshal(initPaymentRequest{
		InvoiceID: req.InvoiceID,
		Provider:  string(req.Provider),
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoice/init-payment", bytes.NewReader(body))
	if err != nil {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, respBody)}
	}

	var parsed initPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !parsed.Success {
		reason := parsed.ErrorMessage
		if reason == "" {
			reason = "gateway declined to create payment intent"
		}
		return nil, &InitiationError{Kind: InitiationRejected, Reason: reason}
	}
	if parsed.PaymentURL == "" || parsed.ProviderPaymentID == "" {
		return nil, &InitiationError{Kind: InitiationNetwork, Err: fmt.Errorf("incomplete success response: %s", respBody)}
	}

	return &CreateResult{
		PaymentURL:        parsed.PaymentURL,
		ProviderPaymentID: parsed.ProviderPaymentID,
	}, nil
}

// CheckStatus implements Client.
func (c *HTTPClient) CheckStatus(ctx context.Context, invoiceID string) (Status, error) {
	tracer := otel.Tracer("gateway")
	ctx, span := tracer.Start(ctx, "HTTPClient.CheckStatus")
	defer span.End()
	span.SetAttributes(attribute.String("payment.invoice_id", invoiceID))

	if invoiceID == "" {
		return "", &CheckError{Err: fmt.Errorf("invoiceId is required")}
	}

	endpoint := fmt.Sprintf("%s/invoice/%s/status", c.baseURL, url.PathEscape(invoiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &CheckError{Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &CheckError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CheckError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &CheckError{Err: fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, respBody)}
	}

	var parsed statusResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &CheckError{Err: fmt.Errorf("decode response: %w", err)}
	}
	status, err := ParseStatus(parsed.Status)
	if err != nil {
		return "", &CheckError{Err: err}
	}
	return status, nil
}
