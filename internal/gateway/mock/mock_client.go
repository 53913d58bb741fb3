// Package mock provides a scriptable gateway.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clinichq/paymentflow/internal/gateway"
)

// Client is a mock implementation of gateway.Client. Behavior is scripted via
// CreateFunc and a queue of status results; calls are counted for assertions.
type Client struct {
	mu sync.Mutex

	CreateFunc func(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error)

	// statusQueue is drained one entry per CheckStatus call; when empty, the
	// final entry (or pending) is repeated.
	statusQueue []statusResult
	lastStatus  statusResult

	createCalls int
	checkCalls  int
}

type statusResult struct {
	status gateway.Status
	err    error
}

// NewClient creates a mock client that succeeds on create and reports pending
// on every status check until scripted otherwise.
func NewClient() *Client {
	return &Client{lastStatus: statusResult{status: gateway.StatusPending}}
}

// QueueStatus appends a status to be returned by the next CheckStatus call.
func (c *Client) QueueStatus(s gateway.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusQueue = append(c.statusQueue, statusResult{status: s})
}

// QueueStatusError appends a check failure to the status queue.
func (c *Client) QueueStatusError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusQueue = append(c.statusQueue, statusResult{err: err})
}

// CreatePayment implements gateway.Client.
func (c *Client) CreatePayment(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	c.mu.Lock()
	c.createCalls++
	fn := c.CreateFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &gateway.CreateResult{
		PaymentURL:        "https://gw.example/pay/" + req.InvoiceID,
		ProviderPaymentID: uuid.NewString(),
	}, nil
}

// CheckStatus implements gateway.Client.
func (c *Client) CheckStatus(ctx context.Context, invoiceID string) (gateway.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkCalls++
	if len(c.statusQueue) > 0 {
		c.lastStatus = c.statusQueue[0]
		c.statusQueue = c.statusQueue[1:]
	}
	return c.lastStatus.status, c.lastStatus.err
}

// CreateCalls reports how many times CreatePayment was invoked.
func (c *Client) CreateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createCalls
}

// CheckCalls reports how many times CheckStatus was invoked.
func (c *Client) CheckCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkCalls
}
