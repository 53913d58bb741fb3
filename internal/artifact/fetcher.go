// Package artifact retrieves post-payment deliverables (visit tickets and the
// like) once an invoice payment has succeeded. Fetching is idempotent on the
// backend side; rendering or printing artifacts is someone else's job.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Artifact is a single post-payment deliverable.
type Artifact struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	IssuedAt string `json:"issuedAt"`
}

// FetchError is returned when artifacts could not be retrieved. The payment
// itself stands regardless; callers surface this as a soft warning.
type FetchError struct {
	InvoiceID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("artifact: fetch for invoice %s failed: %v", e.InvoiceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError unwraps err into a *FetchError if possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	ok := errors.As(err, &fe)
	return fe, ok
}

// Fetcher retrieves artifacts for a paid invoice. Implementations must be
// safe to call repeatedly for the same invoice.
type Fetcher interface {
	Fetch(ctx context.Context, invoiceID string) ([]Artifact, error)
}

const defaultRequestTimeout = 10 * time.Second

// HTTPFetcher fetches artifacts from the clinic backend:
//
//	GET {base}/invoice/{invoiceId}/artifacts
type HTTPFetcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPFetcher creates a fetcher against the given base URL.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPFetcher{httpClient: client, baseURL: baseURL}
}

type artifactsResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, invoiceID string) ([]Artifact, error) {
	if invoiceID == "" {
		return nil, &FetchError{InvoiceID: invoiceID, Err: fmt.Errorf("invoiceId is required")}
	}

	endpoint := fmt.Sprintf("%s/invoice/%s/artifacts", f.baseURL, url.PathEscape(invoiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{InvoiceID: invoiceID, Err: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{InvoiceID: invoiceID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{InvoiceID: invoiceID, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{InvoiceID: invoiceID, Err: fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, body)}
	}

	var parsed artifactsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &FetchError{InvoiceID: invoiceID, Err: fmt.Errorf("decode response: %w", err)}
	}
	return parsed.Artifacts, nil
}
