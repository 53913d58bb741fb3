package session

import (
	"errors"
	"fmt"

	"github.com/clinichq/paymentflow/internal/gateway"
)

// ErrDisposed is returned by every operation on a disposed session.
var ErrDisposed = errors.New("session: disposed")

// InvalidTransitionError is returned when an operation is not permitted from
// the session's current state.
type InvalidTransitionError struct {
	Op   string
	From State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session: %s not permitted from state %s", e.Op, e.From)
}

// PollingTimeoutError means the attempt budget was exhausted without the
// gateway ever reporting a terminal status.
type PollingTimeoutError struct {
	Attempts int
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("session: polling timed out after %d attempts with no terminal status", e.Attempts)
}

// GatewayOutcomeError carries an authoritative terminal outcome reported by
// the gateway itself (failed or cancelled). It is never retried.
type GatewayOutcomeError struct {
	Status gateway.Status
}

func (e *GatewayOutcomeError) Error() string {
	return fmt.Sprintf("session: gateway reported payment %s", e.Status)
}
