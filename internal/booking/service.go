package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"venuebook/internal/availability"
	"venuebook/internal/interval"
	"venuebook/internal/lock"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

const maxUpdateRetries = 3

// Store persists bookings.
type Store interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	// UpdateBooking is guarded by b.Version and returns
	// models.ErrConcurrentUpdate when the row moved on.
	UpdateBooking(ctx context.Context, b *models.Booking) error
	BookingsInLifecycle(ctx context.Context, statuses ...models.LifecycleStatus) ([]models.Booking, error)
}

// Availability decides whether a window can be reserved.
type Availability interface {
	Check(ctx context.Context, c availability.Candidate) (availability.Decision, error)
}

// JobQueue is the part of the job processor the lifecycle drives.
type JobQueue interface {
	Enqueue(ctx context.Context, bookingID *int64, jobType models.JobType, runAt time.Time) (int64, error)
	EnqueueOnce(ctx context.Context, bookingID int64, jobType models.JobType, runAt time.Time) (int64, bool, error)
	Reschedule(ctx context.Context, id int64, runAt time.Time) error
	Cancel(ctx context.Context, id int64) error
	CancelForBooking(ctx context.Context, bookingID int64) (int, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.ScheduledJob, error)
}

// EventRecorder appends booking audit events.
type EventRecorder interface {
	Record(ctx context.Context, bookingID int64, eventType, channel string, metadata map[string]any)
}

// Config holds the scheduling policy.
type Config struct {
	// Location is the venue timezone that event dates and times refer to.
	Location *time.Location
	// MinAdvance is how far ahead of its start a booking must be made.
	MinAdvance time.Duration
	// MaxAdvance caps how far ahead bookings are accepted; zero disables it.
	MaxAdvance time.Duration
	// PostEventGrace is the wait after event end before post_event.
	PostEventGrace time.Duration
	// BalanceLinkLead is how long before event start the balance link job runs.
	BalanceLinkLead time.Duration
	// HostReportReminderDelay is how long after event end the reminder runs.
	HostReportReminderDelay time.Duration
	LockTTL                 time.Duration
	Now                     func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.PostEventGrace <= 0 {
		c.PostEventGrace = 24 * time.Hour
	}
	if c.BalanceLinkLead <= 0 {
		c.BalanceLinkLead = 14 * 24 * time.Hour
	}
	if c.HostReportReminderDelay <= 0 {
		c.HostReportReminderDelay = 2 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Service owns every write to a booking's scheduling and lifecycle fields.
type Service struct {
	store  Store
	avail  Availability
	jobs   JobQueue
	events EventRecorder
	locker lock.Locker
	fsm    *FSM
	cfg    Config
	logger zerolog.Logger
}

func NewService(store Store, avail Availability, jobs JobQueue, events EventRecorder, cfg Config, logger *zerolog.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		store:  store,
		avail:  avail,
		jobs:   jobs,
		events: events,
		fsm:    NewFSM(),
		cfg:    cfg,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// UseReservationLock serializes availability check and commit per event
// date. Without it two concurrent requests for the same window can both pass
// the check.
func (s *Service) UseReservationLock(l lock.Locker) {
	s.locker = l
}

// CreateRequest is the input of CreateBooking.
type CreateRequest struct {
	CustomerName  string               `json:"customer_name"`
	CustomerEmail string               `json:"customer_email"`
	CustomerPhone string               `json:"customer_phone,omitempty"`
	EventDate     interval.Date        `json:"event_date"`
	Type          models.BookingType   `json:"booking_type"`
	StartTime     *interval.TimeOfDay  `json:"start_time,omitempty"`
	EndTime       *interval.TimeOfDay  `json:"end_time,omitempty"`
	TotalCents    int64                `json:"total_cents"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
	PaidCents     int64                `json:"paid_cents,omitempty"`
	Notes         string               `json:"notes,omitempty"`
}

func (r *CreateRequest) validate() error {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	if r.CustomerName == "" {
		return models.Invalid("customer_name", "is required")
	}
	if r.CustomerEmail == "" || !strings.Contains(r.CustomerEmail, "@") {
		return models.Invalid("customer_email", "must be an email address")
	}
	if !r.Type.Valid() {
		return models.Invalid("booking_type", "must be hourly or daily")
	}
	if r.PaymentStatus == "" {
		r.PaymentStatus = models.PaymentUnpaid
	}
	if !r.PaymentStatus.Valid() {
		return models.Invalid("payment_status", "unknown value %q", r.PaymentStatus)
	}
	if r.TotalCents < 0 || r.PaidCents < 0 {
		return models.Invalid("total_cents", "amounts must not be negative")
	}
	return nil
}

// candidateFor builds and validates the requested window for bookingType.
func candidateFor(bookingType models.BookingType, date interval.Date, start, end *interval.TimeOfDay) (availability.Candidate, error) {
	if bookingType == models.BookingTypeDaily {
		if start != nil || end != nil {
			return availability.Candidate{}, models.Invalid("start_time", "daily bookings take no times")
		}
		c := availability.DailyCandidate(date)
		return c, c.Validate()
	}
	if start == nil || end == nil {
		return availability.Candidate{}, models.Invalid("start_time", "hourly bookings need start_time and end_time")
	}
	c := availability.HourlyCandidate(date, interval.Window{Start: *start, End: *end})
	return c, c.Validate()
}

// checkLeadTime rejects windows in the past or outside the advance policy.
// A whole day may still be booked on the day itself.
func (s *Service) checkLeadTime(c availability.Candidate) error {
	now := s.cfg.Now()
	start := c.Date.At(c.Window.Start, s.cfg.Location)
	past := start.Before(now)
	if c.Daily {
		start = c.Date.At(interval.StartOfDay, s.cfg.Location)
		past = c.Date.Before(interval.DateOf(now.In(s.cfg.Location)))
	}
	if past {
		return fmt.Errorf("%s: %w", c.Date, models.ErrPastDate)
	}
	if s.cfg.MinAdvance > 0 && start.Before(now.Add(s.cfg.MinAdvance)) {
		return models.Invalid("event_date", "must be at least %s in advance", s.cfg.MinAdvance)
	}
	if s.cfg.MaxAdvance > 0 && start.After(now.Add(s.cfg.MaxAdvance)) {
		return models.Invalid("event_date", "must be within %s", s.cfg.MaxAdvance)
	}
	return nil
}

// Get returns a booking.
func (s *Service) Get(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// CreateBooking accepts a new booking if its window is free. A booking
// created with a committed payment is confirmed right away.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	c, err := candidateFor(req.Type, req.EventDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := s.checkLeadTime(c); err != nil {
		return nil, err
	}

	b := &models.Booking{
		Code:            models.NewBookingCode(),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		EventDate:       req.EventDate,
		Type:            req.Type,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          models.StatusPendingReview,
		LifecycleStatus: models.LifecyclePending,
		PaymentStatus:   req.PaymentStatus,
		TotalCents:      req.TotalCents,
		PaidCents:       req.PaidCents,
		Notes:           req.Notes,
	}
	committed := req.PaymentStatus.IsCommitted()
	if committed {
		b.Status = models.StatusConfirmed
		b.LifecycleStatus = models.LifecycleConfirmed
	}

	err = s.withDateLock(ctx, req.EventDate, func() error {
		if err := s.ensureAvailable(ctx, c); err != nil {
			return err
		}
		return s.store.CreateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated(string(b.Type))
	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("code", b.Code).
		Str("slot", b.Describe()).
		Str("payment_status", string(b.PaymentStatus)).
		Msg("Booking created")
	s.events.Record(ctx, b.ID, models.EventBookingCreated, models.ChannelAPI, map[string]any{
		"event_date":   b.EventDate.String(),
		"booking_type": string(b.Type),
		"window":       b.Window().String(),
	})
	if committed {
		s.afterConfirm(ctx, b)
	} else {
		s.enqueue(ctx, b, models.JobSyncCalendar, s.cfg.Now())
	}
	return b, nil
}

// ConfirmBooking moves a pending booking with a committed payment to
// confirmed. Pending bookings never block others, so the window is checked
// again and the first booking to commit wins.
func (s *Service) ConfirmBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.PaymentStatus.IsCommitted() {
		return nil, fmt.Errorf("booking %d has payment %s: %w", id, b.PaymentStatus, models.ErrRequirementsNotMet)
	}
	if err := s.confirm(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// confirm re-checks the window and persists the confirmed phase.
func (s *Service) confirm(ctx context.Context, b *models.Booking) error {
	if err := s.fsm.Transition(b, models.LifecycleConfirmed); err != nil {
		return err
	}
	b.Status = models.StatusConfirmed

	c := availability.CandidateFor(b)
	c.ExcludeBookingID = b.ID
	err := s.withDateLock(ctx, b.EventDate, func() error {
		if err := s.ensureAvailable(ctx, c); err != nil {
			return err
		}
		return s.store.UpdateBooking(ctx, b)
	})
	if err != nil {
		return err
	}
	s.afterConfirm(ctx, b)
	return nil
}

func (s *Service) afterConfirm(ctx context.Context, b *models.Booking) {
	metrics.IncLifecycleTransition(string(models.LifecycleConfirmed))
	s.logger.Info().Int64("booking_id", b.ID).Str("code", b.Code).Msg("Booking confirmed")
	s.events.Record(ctx, b.ID, models.EventBookingConfirmed, models.ChannelAPI, map[string]any{
		"payment_status": string(b.PaymentStatus),
	})

	now := s.cfg.Now()
	if _, _, err := s.jobs.EnqueueOnce(ctx, b.ID, models.JobSendConfirmation, now); err != nil {
		s.enqueueFailed(ctx, b, models.JobSendConfirmation, err)
	}
	s.enqueue(ctx, b, models.JobSyncCalendar, now)
}

// PaymentUpdate records a payment step.
type PaymentUpdate struct {
	Status      models.PaymentStatus `json:"payment_status"`
	AmountCents int64                `json:"amount_cents,omitempty"`
}

// RecordPayment stores a payment step. The first committed payment confirms
// a pending booking; a confirmed, signed booking then becomes pre-event ready.
func (s *Service) RecordPayment(ctx context.Context, id int64, p PaymentUpdate) (*models.Booking, error) {
	if !p.Status.Valid() {
		return nil, models.Invalid("payment_status", "unknown value %q", p.Status)
	}
	if p.AmountCents < 0 {
		return nil, models.Invalid("amount_cents", "must not be negative")
	}

	b, err := s.update(ctx, id, func(b *models.Booking) error {
		if err := requireOpen(b); err != nil {
			return err
		}
		b.PaymentStatus = p.Status
		b.PaidCents += p.AmountCents
		return nil
	}, func(b *models.Booking) bool {
		// Confirmation writes the payment itself, under the reservation lock.
		return b.LifecycleStatus == models.LifecyclePending && b.PaymentStatus.IsCommitted()
	})
	if err != nil {
		return nil, err
	}

	if b.LifecycleStatus == models.LifecyclePending && b.PaymentStatus.IsCommitted() {
		if err := s.confirm(ctx, b); err != nil {
			var conflict *availability.ConflictError
			if errors.As(err, &conflict) {
				s.declinePayment(ctx, id, p, conflict)
			}
			return nil, err
		}
	}
	s.events.Record(ctx, b.ID, models.EventPaymentRecorded, models.ChannelAPI, map[string]any{
		"payment_status": string(p.Status),
		"amount_cents":   p.AmountCents,
	})
	return s.tryPreEventReady(ctx, b), nil
}

// declinePayment stores a payment whose confirmation lost the window to
// another booking. The booking is declined so it never blocks the calendar,
// and the money stays on record for a refund or a reschedule.
func (s *Service) declinePayment(ctx context.Context, id int64, p PaymentUpdate, conflict *availability.ConflictError) {
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		if err := requireOpen(b); err != nil {
			return err
		}
		b.PaymentStatus = p.Status
		b.PaidCents += p.AmountCents
		b.Status = models.StatusDeclined
		return nil
	}, nil)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to store payment of declined booking")
		return
	}
	s.logger.Warn().
		Int64("booking_id", id).
		Str("conflict_kind", string(conflict.Kind)).
		Str("payment_status", string(p.Status)).
		Msg("Payment recorded on a conflicting booking, declined")
	s.events.Record(ctx, b.ID, models.EventPaymentRecorded, models.ChannelAPI, map[string]any{
		"payment_status": string(p.Status),
		"amount_cents":   p.AmountCents,
	})
	s.events.Record(ctx, b.ID, models.EventBookingDeclined, models.ChannelSystem, map[string]any{
		"reason":        conflict.Error(),
		"conflict_kind": string(conflict.Kind),
	})
}

// RecordSignature stamps the signed agreement. Repeated calls keep the first
// timestamp.
func (s *Service) RecordSignature(ctx context.Context, id int64, signedAt time.Time) (*models.Booking, error) {
	if signedAt.IsZero() {
		signedAt = s.cfg.Now()
	}
	fresh := false
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		if err := requireOpen(b); err != nil {
			return err
		}
		fresh = b.SignedAt == nil
		if fresh {
			at := signedAt.UTC()
			b.SignedAt = &at
		}
		return nil
	}, skipUnchanged(&fresh))
	if err != nil {
		return nil, err
	}
	if fresh {
		s.events.Record(ctx, b.ID, models.EventSignatureRecorded, models.ChannelAPI, nil)
	}
	return s.tryPreEventReady(ctx, b), nil
}

// tryPreEventReady enters pre_event_ready when a confirmed booking meets the
// requirements. Failures are logged; the caller's own write already happened.
func (s *Service) tryPreEventReady(ctx context.Context, b *models.Booking) *models.Booking {
	if b.LifecycleStatus != models.LifecycleConfirmed || !meetsPreEventRequirements(b) {
		return b
	}
	ready, err := s.MarkPreEventReady(ctx, b.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("Automatic pre-event transition failed")
		return b
	}
	return ready
}

func meetsPreEventRequirements(b *models.Booking) bool {
	return b.SignedAt != nil && b.PaymentStatus.IsCommitted()
}

// requireOpen rejects mutations of cancelled or completed bookings.
func requireOpen(b *models.Booking) error {
	if b.IsCancelled() || b.Status == models.StatusCancelled {
		return fmt.Errorf("booking %d: %w", b.ID, models.ErrBookingCancelled)
	}
	if b.Status == models.StatusCompleted || b.LifecycleStatus == models.LifecycleClosedReviewComplete {
		return fmt.Errorf("booking %d: %w", b.ID, models.ErrBookingCompleted)
	}
	return nil
}

// update loads the booking, applies mutate and writes it back, retrying on
// concurrent modification. skip, when it returns true after mutate, leaves
// the write to the caller.
func (s *Service) update(ctx context.Context, id int64, mutate func(*models.Booking) error, skip func(*models.Booking) bool) (*models.Booking, error) {
	for attempt := 1; ; attempt++ {
		b, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(b); err != nil {
			return nil, err
		}
		if skip != nil && skip(b) {
			return b, nil
		}
		err = s.store.UpdateBooking(ctx, b)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) || attempt >= maxUpdateRetries {
			return nil, err
		}
		s.logger.Debug().Int64("booking_id", id).Int("attempt", attempt).Msg("Retrying booking update")
	}
}

func skipUnchanged(changed *bool) func(*models.Booking) bool {
	return func(*models.Booking) bool { return !*changed }
}

// ensureAvailable resolves c and turns a rejection into a ConflictError.
func (s *Service) ensureAvailable(ctx context.Context, c availability.Candidate) error {
	d, err := s.avail.Check(ctx, c)
	if err != nil {
		return err
	}
	if err := d.Err(); err != nil {
		if d.Conflict != nil {
			metrics.IncBookingConflict(string(d.Conflict.Kind))
		}
		return err
	}
	return nil
}

// withDateLock runs fn holding the reservation lock for date, when enabled.
func (s *Service) withDateLock(ctx context.Context, date interval.Date, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	release, err := s.locker.Acquire(ctx, lock.DateKey(date.String()), s.cfg.LockTTL)
	if err != nil {
		metrics.IncReservationLock("failed")
		return fmt.Errorf("reserve %s: %w", date, err)
	}
	metrics.IncReservationLock("acquired")
	defer release()
	return fn()
}

// enqueue schedules a job; a failure is audited, never returned.
func (s *Service) enqueue(ctx context.Context, b *models.Booking, jobType models.JobType, runAt time.Time) {
	if _, err := s.jobs.Enqueue(ctx, &b.ID, jobType, runAt); err != nil {
		s.enqueueFailed(ctx, b, jobType, err)
	}
}

func (s *Service) enqueueFailed(ctx context.Context, b *models.Booking, jobType models.JobType, err error) {
	s.logger.Error().Err(err).
		Int64("booking_id", b.ID).
		Str("job_type", string(jobType)).
		Msg("Failed to enqueue job")
	s.events.Record(ctx, b.ID, models.EventJobEnqueueFailed, models.ChannelSystem, map[string]any{
		"job_type": string(jobType),
		"error":    err.Error(),
	})
}
