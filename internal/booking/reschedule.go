package booking

import (
	"context"
	"fmt"
	"time"

	"venuebook/internal/interval"
	"venuebook/internal/models"
)

// RescheduleRequest moves a booking to a new date or window. The booking
// type never changes: daily bookings take no times, hourly bookings need both.
type RescheduleRequest struct {
	EventDate interval.Date       `json:"event_date"`
	StartTime *interval.TimeOfDay `json:"start_time,omitempty"`
	EndTime   *interval.TimeOfDay `json:"end_time,omitempty"`
}

// Reschedule checks the new window against everything except the booking
// itself, moves the booking and shifts its pending standing jobs. Jobs whose
// new fire time has already passed are replaced by fresh ones.
func (s *Service) Reschedule(ctx context.Context, id int64, req RescheduleRequest) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOpen(b); err != nil {
		return nil, err
	}
	switch b.LifecycleStatus {
	case models.LifecycleInProgress, models.LifecyclePostEvent:
		return nil, fmt.Errorf("booking %d is %s: %w", b.ID, b.LifecycleStatus, models.ErrInvalidTransition)
	}

	c, err := candidateFor(b.Type, req.EventDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := s.checkLeadTime(c); err != nil {
		return nil, err
	}
	c.ExcludeBookingID = b.ID

	oldDate, oldWindow := b.EventDate, b.Window()
	b.EventDate = req.EventDate
	b.StartTime = req.StartTime
	b.EndTime = req.EndTime

	// Pending bookings do not hold the calendar, but the new window must
	// still be free for a later confirmation to succeed.
	err = s.withDateLock(ctx, req.EventDate, func() error {
		if err := s.ensureAvailable(ctx, c); err != nil {
			return err
		}
		return s.store.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("from", oldDate.String()+" "+oldWindow.String()).
		Str("to", b.EventDate.String()+" "+b.Window().String()).
		Msg("Booking rescheduled")
	s.events.Record(ctx, b.ID, models.EventBookingRescheduled, models.ChannelAPI, map[string]any{
		"from_date":   oldDate.String(),
		"from_window": oldWindow.String(),
		"to_date":     b.EventDate.String(),
		"to_window":   b.Window().String(),
	})

	if b.LifecycleStatus == models.LifecyclePreEventReady {
		s.shiftStandingJobs(ctx, b)
	}
	s.enqueue(ctx, b, models.JobSyncCalendar, s.cfg.Now())
	return b, nil
}

// shiftStandingJobs moves pending standing jobs to the fire times derived
// from the new window. A fire time in the past means the offset already
// elapsed: the job is cancelled and re-enqueued to run now.
func (s *Service) shiftStandingJobs(ctx context.Context, b *models.Booking) {
	now := s.cfg.Now()
	pending, err := s.jobs.List(ctx, models.JobFilter{BookingID: &b.ID, Status: models.JobPending})
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to list jobs for reschedule")
		return
	}

	stale := false
	for _, j := range pending {
		target, ok := s.idealRunAt(b, j.Type)
		if !ok {
			continue
		}
		if !target.Before(now) {
			if err := s.jobs.Reschedule(ctx, j.ID, target); err != nil {
				s.logger.Error().Err(err).Int64("job_id", j.ID).Msg("Failed to shift job")
			}
			continue
		}
		if err := s.jobs.Cancel(ctx, j.ID); err != nil {
			s.logger.Error().Err(err).Int64("job_id", j.ID).Msg("Failed to cancel stale job")
			continue
		}
		stale = true
	}
	if stale {
		s.EnsureStandingJobs(ctx, b)
	}
}

// idealRunAt is the unclamped fire time of a standing job type.
func (s *Service) idealRunAt(b *models.Booking, jobType models.JobType) (time.Time, bool) {
	switch jobType {
	case models.JobCreateBalancePaymentLink:
		return b.EventStart(s.cfg.Location).Add(-s.cfg.BalanceLinkLead), true
	case models.JobHostReportReminder:
		return b.EventEnd(s.cfg.Location).Add(s.cfg.HostReportReminderDelay), true
	default:
		return time.Time{}, false
	}
}
