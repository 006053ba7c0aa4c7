package jobs

import (
	"context"
	"errors"
	"fmt"

	"venuebook/internal/models"
)

// Handler performs the side effect of one job type.
//
// Delivery is at-least-once: a handler may run several times for the same
// job (a transient failure after the side effect happened, a crash before
// completion was recorded, or two overlapping processor invocations).
// Implementations must be idempotent with respect to the external effect,
// e.g. by passing a stable idempotency key derived from the job or booking.
//
// Return nil on success, Moot(reason) when the work no longer applies, and
// any other error for a retryable failure.
type Handler interface {
	Handle(ctx context.Context, job *models.ScheduledJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *models.ScheduledJob) error

func (f HandlerFunc) Handle(ctx context.Context, job *models.ScheduledJob) error {
	return f(ctx, job)
}

// Handlers is the dispatch table. Every job type has a field; NewProcessor
// refuses a table with a missing entry.
type Handlers struct {
	SendConfirmation         Handler
	SyncCalendar             Handler
	CreateBalancePaymentLink Handler
	HostReportReminder       Handler
}

// For returns the handler registered for t. Unknown types return false.
func (h Handlers) For(t models.JobType) (Handler, bool) {
	var handler Handler
	switch t {
	case models.JobSendConfirmation:
		handler = h.SendConfirmation
	case models.JobSyncCalendar:
		handler = h.SyncCalendar
	case models.JobCreateBalancePaymentLink:
		handler = h.CreateBalancePaymentLink
	case models.JobHostReportReminder:
		handler = h.HostReportReminder
	default:
		return nil, false
	}
	return handler, handler != nil
}

func (h Handlers) validate() error {
	for _, t := range models.AllJobTypes {
		if _, ok := h.For(t); !ok {
			return fmt.Errorf("no handler registered for job type %q", t)
		}
	}
	return nil
}

// MootError is a benign outcome: the job's action no longer applies and the
// job is completed without retry.
type MootError struct {
	Reason string
}

func (e *MootError) Error() string {
	return "moot: " + e.Reason
}

// Moot reports that the job has nothing left to do.
func Moot(reason string) error {
	return &MootError{Reason: reason}
}

// IsMoot unwraps a MootError.
func IsMoot(err error) (*MootError, bool) {
	var m *MootError
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
