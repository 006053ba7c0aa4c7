package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/calendar"
	"venuebook/internal/jobs"
	"venuebook/internal/models"
	"venuebook/internal/notify"
	"venuebook/internal/payments"

	"github.com/rs/zerolog"
)

// PaymentLinker creates hosted payment links.
type PaymentLinker interface {
	CreatePaymentLink(ctx context.Context, req payments.LinkRequest) (*payments.Link, error)
}

// Notifier delivers customer email and operator messages.
type Notifier interface {
	SendEmail(ctx context.Context, msg notify.Message) error
	SendOps(ctx context.Context, text string) error
}

// JobHandlers implements the side effect of every job type. Each handler
// re-reads the booking, so a job that outlived its purpose completes as moot.
type JobHandlers struct {
	store    Store
	payments PaymentLinker
	notifier Notifier
	calendar calendar.Syncer
	events   EventRecorder
	loc      *time.Location
	logger   zerolog.Logger
}

func NewJobHandlers(store Store, pay PaymentLinker, notifier Notifier, cal calendar.Syncer, events EventRecorder, loc *time.Location, logger *zerolog.Logger) *JobHandlers {
	if cal == nil {
		cal = calendar.Noop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &JobHandlers{
		store:    store,
		payments: pay,
		notifier: notifier,
		calendar: cal,
		events:   events,
		loc:      loc,
		logger:   logger.With().Str("component", "job_handlers").Logger(),
	}
}

// Table returns the dispatch table for jobs.NewProcessor.
func (h *JobHandlers) Table() jobs.Handlers {
	return jobs.Handlers{
		SendConfirmation:         jobs.HandlerFunc(h.SendConfirmation),
		SyncCalendar:             jobs.HandlerFunc(h.SyncCalendar),
		CreateBalancePaymentLink: jobs.HandlerFunc(h.CreateBalancePaymentLink),
		HostReportReminder:       jobs.HandlerFunc(h.HostReportReminder),
	}
}

func (h *JobHandlers) booking(ctx context.Context, job *models.ScheduledJob) (*models.Booking, error) {
	if job.BookingID == nil {
		return nil, jobs.Moot("job has no booking")
	}
	b, err := h.store.GetBooking(ctx, *job.BookingID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, jobs.Moot("booking no longer exists")
	}
	return b, err
}

// SendConfirmation emails the booking confirmation.
func (h *JobHandlers) SendConfirmation(ctx context.Context, job *models.ScheduledJob) error {
	b, err := h.booking(ctx, job)
	if err != nil {
		return err
	}
	if b.IsCancelled() {
		return jobs.Moot("booking cancelled")
	}
	err = h.notifier.SendEmail(ctx, notify.Message{
		To:       b.CustomerEmail,
		Template: notify.TemplateBookingConfirmed,
		Data: map[string]any{
			"code":          b.Code,
			"customer_name": b.CustomerName,
			"event_date":    b.EventDate.String(),
			"window":        b.Window().String(),
			"booking_type":  string(b.Type),
		},
	})
	if errors.Is(err, notify.ErrNotConfigured) {
		return jobs.Moot("email relay not configured")
	}
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	h.sent(ctx, b, models.ChannelEmail, notify.TemplateBookingConfirmed)
	return nil
}

// SyncCalendar pushes the booking row to the external calendar.
func (h *JobHandlers) SyncCalendar(ctx context.Context, job *models.ScheduledJob) error {
	b, err := h.booking(ctx, job)
	if err != nil {
		return err
	}
	if err := h.calendar.Push(ctx, b); err != nil {
		return fmt.Errorf("sync calendar: %w", err)
	}
	return nil
}

// CreateBalancePaymentLink creates the balance payment link, stores it on
// the booking and emails it. The processor's idempotency key keeps reruns
// from creating a second link.
func (h *JobHandlers) CreateBalancePaymentLink(ctx context.Context, job *models.ScheduledJob) error {
	b, err := h.booking(ctx, job)
	if err != nil {
		return err
	}
	if b.IsCancelled() {
		return jobs.Moot("booking cancelled")
	}
	due := b.BalanceDueCents()
	if due <= 0 {
		return jobs.Moot("balance already fully paid")
	}

	url := b.BalanceLinkURL
	if url == "" {
		link, err := h.payments.CreatePaymentLink(ctx, payments.LinkRequest{
			Reference:      b.Code,
			AmountCents:    due,
			Description:    "Balance for " + b.Describe(),
			CustomerEmail:  b.CustomerEmail,
			IdempotencyKey: fmt.Sprintf("booking-%d-balance", b.ID),
		})
		if err != nil {
			return fmt.Errorf("create balance link: %w", err)
		}
		url = link.URL
		if err := h.saveBalanceLink(ctx, b.ID, url); err != nil {
			return err
		}
		h.logger.Info().Int64("booking_id", b.ID).Int64("amount_cents", due).Msg("Balance payment link created")
	}

	err = h.notifier.SendEmail(ctx, notify.Message{
		To:       b.CustomerEmail,
		Template: notify.TemplateBalanceDue,
		Data: map[string]any{
			"code":         b.Code,
			"event_date":   b.EventDate.String(),
			"amount_cents": due,
			"payment_url":  url,
		},
	})
	if errors.Is(err, notify.ErrNotConfigured) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("send balance link: %w", err)
	}
	h.sent(ctx, b, models.ChannelEmail, notify.TemplateBalanceDue)
	return nil
}

func (h *JobHandlers) saveBalanceLink(ctx context.Context, id int64, url string) error {
	for attempt := 1; ; attempt++ {
		b, err := h.store.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		b.BalanceLinkURL = url
		err = h.store.UpdateBooking(ctx, b)
		if err == nil || !errors.Is(err, models.ErrConcurrentUpdate) || attempt >= maxUpdateRetries {
			return err
		}
	}
}

// HostReportReminder asks operations for the host report.
func (h *JobHandlers) HostReportReminder(ctx context.Context, job *models.ScheduledJob) error {
	b, err := h.booking(ctx, job)
	if err != nil {
		return err
	}
	if b.IsCancelled() {
		return jobs.Moot("booking cancelled")
	}
	if b.HostReportSubmittedAt != nil {
		return jobs.Moot("host report already submitted")
	}
	text := fmt.Sprintf("Host report missing for %s (%s). Event ended %s.",
		b.Describe(), b.CustomerName, b.EventEnd(h.loc).Format("2006-01-02 15:04"))
	err = h.notifier.SendOps(ctx, text)
	if errors.Is(err, notify.ErrNotConfigured) {
		return jobs.Moot("operator channel not configured")
	}
	if err != nil {
		return fmt.Errorf("send host report reminder: %w", err)
	}
	h.sent(ctx, b, models.ChannelTelegram, "host_report_reminder")
	return nil
}

func (h *JobHandlers) sent(ctx context.Context, b *models.Booking, channel, template string) {
	if h.events == nil {
		return
	}
	h.events.Record(ctx, b.ID, models.EventNotificationSent, channel, map[string]any{
		"template": template,
	})
}
