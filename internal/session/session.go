// Package session implements the payment confirmation state machine. A
// Session covers one invoice-payment attempt: it creates the payment intent,
// hands the payment URL back to the caller, reconciles completion by polling
// the gateway through a single poll.Controller, and fetches post-payment
// artifacts exactly once on success.
//
// Every transition out of Polling stops the timer synchronously before any
// observer is notified, and a monotonic generation counter stamps each
// in-flight gateway call so results that arrive after the session has moved
// on are discarded instead of applied.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinichq/paymentflow/internal/artifact"
	"github.com/clinichq/paymentflow/internal/gateway"
	"github.com/clinichq/paymentflow/internal/metrics"
	"github.com/clinichq/paymentflow/internal/poll"
)

// State is the session's position in the confirmation flow. Exactly one value
// holds at any time.
type State string

const (
	StateInit             State = "init"
	StateAwaitingRedirect State = "awaiting_redirect"
	StatePolling          State = "polling"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transitions are possible without an
// explicit restart.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Defaults for the polling budget: 60 attempts at 5s is a five-minute window.
const (
	DefaultMaxAttempts  = 60
	DefaultPollInterval = 5000 * time.Millisecond
	DefaultCheckTimeout = 10 * time.Second
)

// Config describes one invoice-payment attempt.
type Config struct {
	InvoiceID string
	Amount    int64
	Currency  string
	Provider  gateway.Provider
	ReturnURL string
	CancelURL string

	MaxAttempts  int           // default DefaultMaxAttempts
	PollInterval time.Duration // default DefaultPollInterval
	CheckTimeout time.Duration // per-status-check deadline, default DefaultCheckTimeout

	// OnChange, when set, is invoked after every state transition with a
	// snapshot of the session. The timer is always stopped before a
	// terminal snapshot is delivered.
	OnChange func(Snapshot)

	Logger zerolog.Logger
}

// Snapshot is a copy of the session's externally visible state.
type Snapshot struct {
	ID                string             `json:"id"`
	InvoiceID         string             `json:"invoiceId"`
	Provider          gateway.Provider   `json:"provider"`
	Amount            int64              `json:"amount"`
	Currency          string             `json:"currency"`
	State             State              `json:"state"`
	PaymentURL        string             `json:"paymentUrl,omitempty"`
	ProviderPaymentID string             `json:"providerPaymentId,omitempty"`
	AttemptCount      int                `json:"attemptCount"`
	MaxAttempts       int                `json:"maxAttempts"`
	LastError         string             `json:"lastError,omitempty"`
	ArtifactWarning   string             `json:"artifactWarning,omitempty"`
	Artifacts         []artifact.Artifact `json:"artifacts,omitempty"`
}

// Session is the payment confirmation state machine for one invoice. All
// methods are safe for concurrent use; the session serializes transitions
// internally.
type Session struct {
	id        string
	invoiceID string
	amount    int64
	currency  string
	provider  gateway.Provider
	returnURL string
	cancelURL string

	gw      gateway.Client
	fetcher artifact.Fetcher
	poller  *poll.Controller

	maxAttempts  int
	checkTimeout time.Duration
	onChange     func(Snapshot)
	log          zerolog.Logger

	mu                sync.Mutex
	state             State
	paymentURL        string
	providerPaymentID string
	lastErr           error
	artifacts         []artifact.Artifact
	artifactWarning   string
	artifactsFetched  bool
	generation        uint64
	inFlight          bool
	disposed          bool
}

// New creates a session in StateInit. The gateway client and the artifact
// fetcher are required; config gaps are filled with defaults.
func New(gw gateway.Client, fetcher artifact.Fetcher, cfg Config) (*Session, error) {
	if gw == nil {
		return nil, fmt.Errorf("session: gateway client is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("session: artifact fetcher is required")
	}
	if cfg.InvoiceID == "" {
		return nil, fmt.Errorf("session: invoiceId is required")
	}
	if !cfg.Provider.Valid() {
		return nil, fmt.Errorf("session: unsupported provider %q", cfg.Provider)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}

	s := &Session{
		id:           uuid.NewString(),
		invoiceID:    cfg.InvoiceID,
		amount:       cfg.Amount,
		currency:     cfg.Currency,
		provider:     cfg.Provider,
		returnURL:    cfg.ReturnURL,
		cancelURL:    cfg.CancelURL,
		gw:           gw,
		fetcher:      fetcher,
		poller:       poll.NewController(cfg.PollInterval, cfg.MaxAttempts),
		maxAttempts:  cfg.MaxAttempts,
		checkTimeout: cfg.CheckTimeout,
		onChange:     cfg.OnChange,
		state:        StateInit,
	}
	s.log = cfg.Logger.With().
		Str("session_id", s.id).
		Str("invoice_id", s.invoiceID).
		Str("provider", string(s.provider)).
		Logger()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// InvoiceID returns the invoice this session pays for.
func (s *Session) InvoiceID() string { return s.invoiceID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the externally visible session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                s.id,
		InvoiceID:         s.invoiceID,
		Provider:          s.provider,
		Amount:            s.amount,
		Currency:          s.currency,
		State:             s.state,
		PaymentURL:        s.paymentURL,
		ProviderPaymentID: s.providerPaymentID,
		AttemptCount:      s.poller.AttemptsUsed(),
		MaxAttempts:       s.maxAttempts,
		ArtifactWarning:   s.artifactWarning,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if len(s.artifacts) > 0 {
		snap.Artifacts = append([]artifact.Artifact(nil), s.artifacts...)
	}
	return snap
}

// Initiate creates the payment intent and moves the session from Init to
// AwaitingRedirect. On failure the session moves to Failed and the initiation
// error is returned; a restart is required before trying again.
func (s *Session) Initiate(ctx context.Context) error {
	tracer := otel.Tracer("session")
	ctx, span := tracer.Start(ctx, "Session.Initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.invoice_id", s.invoiceID),
		attribute.String("payment.provider", string(s.provider)),
	)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StateInit {
		defer s.mu.Unlock()
		return &InvalidTransitionError{Op: "initiate", From: s.state}
	}
	gen := s.generation
	s.mu.Unlock()

	res, err := s.gw.CreatePayment(ctx, gateway.CreateRequest{
		InvoiceID: s.invoiceID,
		Provider:  s.provider,
		ReturnURL: s.returnURL,
		CancelURL: s.cancelURL,
	})

	s.mu.Lock()
	if s.disposed || gen != s.generation || s.state != StateInit {
		// The session was disposed or restarted while the call was in
		// flight; the result no longer belongs to it.
		s.mu.Unlock()
		return ErrDisposed
	}
	if err != nil {
		s.lastErr = err
		s.state = StateFailed
		reason := "initiation_network"
		if ie, ok := gateway.AsInitiationError(err); ok && ie.Kind == gateway.InitiationRejected {
			reason = "initiation_rejected"
		}
		metrics.SessionOutcomes.WithLabelValues(string(s.provider), reason).Inc()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("payment initiation failed")
		s.notify(snap)
		return err
	}
	s.paymentURL = res.PaymentURL
	s.providerPaymentID = res.ProviderPaymentID
	s.state = StateAwaitingRedirect
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().
		Str("provider_payment_id", res.ProviderPaymentID).
		Msg("payment intent created, awaiting redirect")
	s.notify(snap)
	return nil
}

// StartPolling moves the session from AwaitingRedirect to Polling and starts
// the controller's timer. The timer fires a status check per interval until a
// terminal status is observed or the attempt budget runs out.
func (s *Session) StartPolling() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StateAwaitingRedirect {
		defer s.mu.Unlock()
		return &InvalidTransitionError{Op: "startPolling", From: s.state}
	}
	s.state = StatePolling
	s.poller.Start(s.handleTick)
	metrics.ActivePolls.Inc()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Msg("polling started")
	s.notify(snap)
	return nil
}

// handleTick runs on the controller's timer goroutine. If a previous check is
// still in flight the tick is skipped outright; ticks are never queued.
func (s *Session) handleTick() {
	s.mu.Lock()
	if s.disposed || s.state != StatePolling {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		metrics.SkippedTicks.Inc()
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	gen := s.generation
	s.mu.Unlock()

	go s.runCheck(gen, false)
}

// CheckNow performs an out-of-band status check immediately, without waiting
// for the next scheduled tick and without consuming the attempt budget. The
// check runs on the caller's goroutine, so the session reflects the result by
// the time CheckNow returns. A check already in flight makes this a no-op.
func (s *Session) CheckNow() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StatePolling {
		defer s.mu.Unlock()
		return &InvalidTransitionError{Op: "checkNow", From: s.state}
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	gen := s.generation
	s.mu.Unlock()

	if !s.poller.CheckNow(func() { s.runCheck(gen, true) }) {
		s.mu.Lock()
		if gen == s.generation {
			s.inFlight = false
		}
		s.mu.Unlock()
	}
	return nil
}

// runCheck performs one gateway status check and applies its result, unless
// the session has moved past the generation the check was issued under.
func (s *Session) runCheck(gen uint64, manual bool) {
	tracer := otel.Tracer("session")
	ctx, span := tracer.Start(context.Background(), "Session.CheckStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.invoice_id", s.invoiceID),
		attribute.Bool("payment.manual_check", manual),
	)

	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	start := time.Now()
	status, err := s.gw.CheckStatus(ctx, s.invoiceID)
	metrics.CheckDuration.WithLabelValues(string(s.provider)).Observe(time.Since(start).Seconds())

	s.applyCheck(gen, manual, status, err)
}

// applyCheck folds a resolved status check into the state machine. Stale
// results (generation mismatch, disposal, or a state no longer Polling) are
// dropped without effect.
func (s *Session) applyCheck(gen uint64, manual bool, status gateway.Status, err error) {
	s.mu.Lock()
	if s.disposed || gen != s.generation || s.state != StatePolling {
		s.mu.Unlock()
		metrics.StatusChecks.WithLabelValues(string(s.provider), "stale").Inc()
		return
	}
	s.inFlight = false

	// Manual checks ride outside the attempt budget; the counter tracks
	// completed scheduled checks only.
	att := poll.Attempts{Used: s.poller.AttemptsUsed()}
	if !manual {
		att = s.poller.RecordAttempt()
	}

	if err != nil {
		// Transient check failures are tolerated as pending up to the
		// attempt budget; the user never sees them.
		metrics.StatusChecks.WithLabelValues(string(s.provider), "network_error").Inc()
		s.log.Debug().Err(err).Int("attempt", att.Used).Msg("status check failed, treating as pending")
		if att.Exhausted {
			s.failLocked(&PollingTimeoutError{Attempts: att.Used}, "timeout")
			return
		}
		s.mu.Unlock()
		return
	}

	metrics.StatusChecks.WithLabelValues(string(s.provider), string(status)).Inc()
	switch status {
	case gateway.StatusPaid:
		s.succeedLocked()
	case gateway.StatusFailed:
		s.failLocked(&GatewayOutcomeError{Status: status}, "gateway_failed")
	case gateway.StatusCancelled:
		s.failLocked(&GatewayOutcomeError{Status: status}, "gateway_cancelled")
	default: // pending
		if att.Exhausted {
			s.failLocked(&PollingTimeoutError{Attempts: att.Used}, "timeout")
			return
		}
		s.mu.Unlock()
	}
}

// succeedLocked transitions Polling -> Succeeded. Called with s.mu held;
// releases it. The timer is stopped before observers hear about the terminal
// state, and artifacts are fetched at most once per session instance.
func (s *Session) succeedLocked() {
	s.generation++
	s.poller.Stop()
	metrics.ActivePolls.Dec()
	s.state = StateSucceeded
	s.lastErr = nil
	fetch := !s.artifactsFetched
	s.artifactsFetched = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.SessionOutcomes.WithLabelValues(string(s.provider), "paid").Inc()
	s.log.Info().Int("attempts", snap.AttemptCount).Msg("payment confirmed")
	s.notify(snap)

	if fetch {
		s.fetchArtifacts()
	}
}

// failLocked transitions the session to Failed with the given reason. Called
// with s.mu held; releases it. Stops the timer when leaving Polling.
func (s *Session) failLocked(reason error, outcome string) {
	s.generation++
	if s.state == StatePolling {
		s.poller.Stop()
		metrics.ActivePolls.Dec()
	}
	s.state = StateFailed
	s.lastErr = reason
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.SessionOutcomes.WithLabelValues(string(s.provider), outcome).Inc()
	s.log.Warn().Err(reason).Msg("payment failed")
	s.notify(snap)
}

// fetchArtifacts retrieves post-payment artifacts after a success. A fetch
// failure never reverts the Succeeded state; it is recorded as a warning the
// caller may surface and retry out of band.
func (s *Session) fetchArtifacts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.checkTimeout)
	defer cancel()

	arts, err := s.fetcher.Fetch(ctx, s.invoiceID)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		metrics.ArtifactFetches.WithLabelValues("error").Inc()
		s.artifactWarning = "payment succeeded, artifacts unavailable"
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("artifact fetch failed after successful payment")
		s.notify(snap)
		return
	}
	metrics.ArtifactFetches.WithLabelValues("ok").Inc()
	s.artifacts = arts
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.log.Info().Int("artifacts", len(arts)).Msg("post-payment artifacts fetched")
	s.notify(snap)
}

// Restart resets a failed session to Init. The attempt counter, last error
// and intent identifiers are cleared; a fresh Initiate call is required
// before polling can start again. Any still-in-flight check result is
// invalidated by the generation bump.
func (s *Session) Restart() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StateFailed {
		defer s.mu.Unlock()
		return &InvalidTransitionError{Op: "restart", From: s.state}
	}
	s.generation++
	s.poller.Stop()
	s.poller.Reset()
	s.state = StateInit
	s.paymentURL = ""
	s.providerPaymentID = ""
	s.lastErr = nil
	s.artifactWarning = ""
	s.inFlight = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Msg("session restarted")
	s.notify(snap)
	return nil
}

// Dispose releases the session's timer and makes it unusable for further
// transitions. Results of in-flight calls are discarded. Safe to call from
// any state and more than once.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.generation++
	if s.state == StatePolling {
		s.poller.Stop()
		metrics.ActivePolls.Dec()
	} else {
		s.poller.Stop()
	}
	s.mu.Unlock()

	s.log.Debug().Msg("session disposed")
}

// Disposed reports whether the session has been disposed.
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *Session) notify(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
