// Package reporting aggregates finished payment sessions into a
// retrospective summary for operators.
package reporting

import (
	"sync"
	"time"

	"github.com/clinichq/paymentflow/internal/gateway"
	"github.com/clinichq/paymentflow/internal/session"
)

// LogEntry records one terminal session outcome.
type LogEntry struct {
	Timestamp    time.Time
	SessionID    string
	InvoiceID    string
	Provider     gateway.Provider
	Amount       int64
	Currency     string
	State        session.State
	AttemptCount int
	ErrorMessage string
}

// RetrospectiveReport summarizes payment confirmation activity.
type RetrospectiveReport struct {
	TotalSessions       int              `json:"totalSessions"`
	SucceededPayments   int              `json:"succeededPayments"`
	FailedPayments      int              `json:"failedPayments"`
	TotalAmountPaid     int64            `json:"totalAmountPaid"`
	AmountByCurrency    map[string]int64 `json:"amountByCurrency"`
	ProviderUsage       map[string]int   `json:"providerUsage"`
	FailureBreakdown    map[string]int   `json:"failureBreakdown"`
	AverageAttemptCount float64          `json:"averageAttemptCount"`
	DateFrom            time.Time        `json:"dateFrom"`
	DateTo              time.Time        `json:"dateTo"`
}

// ActivityLog collects terminal session snapshots. It is wired into sessions
// via their OnChange observer and only keeps entries for terminal states.
type ActivityLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewActivityLog creates an empty activity log.
func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

// Observe records the snapshot if it is terminal. Non-terminal transitions
// are ignored, so it can serve directly as a session OnChange callback.
func (l *ActivityLog) Observe(snap session.Snapshot) {
	if !snap.State.Terminal() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// A succeeded session notifies again when its artifacts arrive; keep
	// one entry per session.
	for i := range l.entries {
		if l.entries[i].SessionID == snap.ID {
			return
		}
	}
	l.entries = append(l.entries, LogEntry{
		Timestamp:    time.Now(),
		SessionID:    snap.ID,
		InvoiceID:    snap.InvoiceID,
		Provider:     snap.Provider,
		Amount:       snap.Amount,
		Currency:     snap.Currency,
		State:        snap.State,
		AttemptCount: snap.AttemptCount,
		ErrorMessage: snap.LastError,
	})
}

// Entries returns a copy of the recorded entries.
func (l *ActivityLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// GenerateRetrospective produces a report over the recorded entries.
func (l *ActivityLog) GenerateRetrospective() *RetrospectiveReport {
	entries := l.Entries()
	report := &RetrospectiveReport{
		AmountByCurrency: make(map[string]int64),
		ProviderUsage:    make(map[string]int),
		FailureBreakdown: make(map[string]int),
	}
	if len(entries) == 0 {
		return report
	}

	report.DateFrom = entries[0].Timestamp
	report.DateTo = entries[0].Timestamp
	totalAttempts := 0
	for _, e := range entries {
		report.TotalSessions++
		report.ProviderUsage[string(e.Provider)]++
		totalAttempts += e.AttemptCount
		switch e.State {
		case session.StateSucceeded:
			report.SucceededPayments++
			report.TotalAmountPaid += e.Amount
			report.AmountByCurrency[e.Currency] += e.Amount
		case session.StateFailed:
			report.FailedPayments++
			reason := e.ErrorMessage
			if reason == "" {
				reason = "unknown"
			}
			report.FailureBreakdown[reason]++
		}
		if e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
		}
		if e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}
	}
	report.AverageAttemptCount = float64(totalAttempts) / float64(len(entries))
	return report
}
