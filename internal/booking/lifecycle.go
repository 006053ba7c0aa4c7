package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

// MarkPreEventReady moves a confirmed booking with a signature and a
// committed payment to pre_event_ready and enqueues its standing jobs.
// Calling it again for a ready booking only re-runs the idempotent enqueue.
func (s *Service) MarkPreEventReady(ctx context.Context, id int64) (*models.Booking, error) {
	entered := false
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		entered = false
		switch b.LifecycleStatus {
		case models.LifecyclePreEventReady, models.LifecycleInProgress:
			return nil
		case models.LifecycleConfirmed:
		default:
			return s.fsm.Transition(b, models.LifecyclePreEventReady)
		}
		if !meetsPreEventRequirements(b) {
			return fmt.Errorf("booking %d needs a signature and a committed payment: %w", b.ID, models.ErrRequirementsNotMet)
		}
		entered = true
		return s.fsm.Transition(b, models.LifecyclePreEventReady)
	}, skipUnchanged(&entered))
	if err != nil {
		return nil, err
	}

	if entered {
		s.transitioned(ctx, b, models.LifecycleConfirmed, models.ChannelAPI)
	}
	s.EnsureStandingJobs(ctx, b)
	return b, nil
}

// EnsureStandingJobs enqueues the reminder and balance jobs for b unless a
// pending or completed job of the same type already exists. Failures are
// audited and logged; they never undo the lifecycle transition.
func (s *Service) EnsureStandingJobs(ctx context.Context, b *models.Booking) {
	for _, jobType := range models.StandingJobTypes {
		runAt := s.standingRunAt(b, jobType)
		id, created, err := s.jobs.EnqueueOnce(ctx, b.ID, jobType, runAt)
		if err != nil {
			s.enqueueFailed(ctx, b, jobType, err)
			continue
		}
		if created {
			s.logger.Debug().
				Int64("booking_id", b.ID).
				Int64("job_id", id).
				Str("job_type", string(jobType)).
				Time("run_at", runAt).
				Msg("Standing job scheduled")
		}
	}
}

// standingRunAt is the fire time of a standing job, never earlier than now.
func (s *Service) standingRunAt(b *models.Booking, jobType models.JobType) time.Time {
	now := s.cfg.Now()
	at, ok := s.idealRunAt(b, jobType)
	if !ok || at.Before(now) {
		return now
	}
	return at
}

// SubmitHostReport stamps the host report. Repeated calls keep the first
// timestamp.
func (s *Service) SubmitHostReport(ctx context.Context, id int64) (*models.Booking, error) {
	fresh := false
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		if err := requireOpen(b); err != nil {
			return err
		}
		fresh = b.HostReportSubmittedAt == nil
		if fresh {
			at := s.cfg.Now().UTC()
			b.HostReportSubmittedAt = &at
		}
		return nil
	}, skipUnchanged(&fresh))
	if err != nil {
		return nil, err
	}
	if fresh {
		s.logger.Info().Int64("booking_id", b.ID).Msg("Host report submitted")
		s.events.Record(ctx, b.ID, models.EventHostReportSubmitted, models.ChannelAPI, nil)
	}
	return b, nil
}

// CompleteReview closes a post_event booking and marks it completed.
func (s *Service) CompleteReview(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		if err := s.fsm.Transition(b, models.LifecycleClosedReviewComplete); err != nil {
			return err
		}
		b.Status = models.StatusCompleted
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, b, models.LifecyclePostEvent, models.ChannelAPI)
	return b, nil
}

// Cancel cancels a booking and every job still waiting for it. Cancelling a
// cancelled booking succeeds without side effects; a completed booking
// yields models.ErrBookingCompleted.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*models.Booking, error) {
	already := false
	var from models.LifecycleStatus
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		from = b.LifecycleStatus
		already = b.IsCancelled()
		if already {
			return nil
		}
		if err := s.fsm.Transition(b, models.LifecycleCancelled); err != nil {
			return err
		}
		b.Status = models.StatusCancelled
		return nil
	}, func(*models.Booking) bool { return already })
	if err != nil {
		return nil, err
	}
	if already {
		return b, nil
	}

	n, err := s.jobs.CancelForBooking(ctx, b.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to cancel booking jobs")
	}
	metrics.IncLifecycleTransition(string(models.LifecycleCancelled))
	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("from", string(from)).
		Int("jobs_cancelled", n).
		Str("reason", reason).
		Msg("Booking cancelled")
	s.events.Record(ctx, b.ID, models.EventBookingCancelled, models.ChannelAPI, map[string]any{
		"from":           string(from),
		"reason":         reason,
		"jobs_cancelled": n,
	})
	s.enqueue(ctx, b, models.JobSyncCalendar, s.cfg.Now())
	return b, nil
}

// AdvanceResult summarizes one lifecycle sweep.
type AdvanceResult struct {
	Started  int `json:"started"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
}

// AdvanceLifecycle moves bookings whose event has begun to in_progress, and
// in_progress bookings with a submitted host report to post_event once the
// grace period after the event has passed. One booking failing does not stop
// the sweep.
func (s *Service) AdvanceLifecycle(ctx context.Context) (AdvanceResult, error) {
	var res AdvanceResult
	now := s.cfg.Now()

	ready, err := s.store.BookingsInLifecycle(ctx, models.LifecyclePreEventReady)
	if err != nil {
		return res, fmt.Errorf("list pre_event_ready bookings: %w", err)
	}
	for i := range ready {
		b := &ready[i]
		if now.Before(b.EventStart(s.cfg.Location)) {
			continue
		}
		if s.advance(ctx, b.ID, models.LifecyclePreEventReady, models.LifecycleInProgress) {
			res.Started++
		} else {
			res.Failed++
		}
	}

	running, err := s.store.BookingsInLifecycle(ctx, models.LifecycleInProgress)
	if err != nil {
		return res, fmt.Errorf("list in_progress bookings: %w", err)
	}
	for i := range running {
		b := &running[i]
		if b.HostReportSubmittedAt == nil {
			continue
		}
		if now.Before(b.EventEnd(s.cfg.Location).Add(s.cfg.PostEventGrace)) {
			continue
		}
		if s.advance(ctx, b.ID, models.LifecycleInProgress, models.LifecyclePostEvent) {
			res.Finished++
		} else {
			res.Failed++
		}
	}

	if res.Started+res.Finished+res.Failed > 0 {
		s.logger.Info().
			Int("started", res.Started).
			Int("finished", res.Finished).
			Int("failed", res.Failed).
			Msg("Lifecycle sweep finished")
	}
	return res, nil
}

// advance applies one periodic transition. A booking that moved on in the
// meantime is skipped silently.
func (s *Service) advance(ctx context.Context, id int64, from, to models.LifecycleStatus) bool {
	moved := false
	b, err := s.update(ctx, id, func(b *models.Booking) error {
		moved = b.LifecycleStatus == from
		if !moved {
			return nil
		}
		return s.fsm.Transition(b, to)
	}, skipUnchanged(&moved))
	if err != nil {
		s.logger.Error().Err(err).
			Int64("booking_id", id).
			Str("to", string(to)).
			Msg("Lifecycle transition failed")
		return false
	}
	if moved {
		s.transitioned(ctx, b, from, models.ChannelSystem)
	}
	return true
}

// RepairResult summarizes a standing-job repair sweep.
type RepairResult struct {
	Checked int `json:"checked"`
}

// RepairStandingJobs re-runs the idempotent standing-job enqueue for every
// booking that should have them. A job type that already failed for a
// booking is left for the operator.
func (s *Service) RepairStandingJobs(ctx context.Context) (RepairResult, error) {
	var res RepairResult
	list, err := s.store.BookingsInLifecycle(ctx, models.LifecyclePreEventReady, models.LifecycleInProgress)
	if err != nil {
		return res, fmt.Errorf("list bookings for repair: %w", err)
	}
	for i := range list {
		b := &list[i]
		if err := ctx.Err(); err != nil {
			return res, err
		}
		failed, err := s.failedJobTypes(ctx, b.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to list booking jobs")
			continue
		}
		for _, jobType := range models.StandingJobTypes {
			if failed[jobType] {
				continue
			}
			if _, _, err := s.jobs.EnqueueOnce(ctx, b.ID, jobType, s.standingRunAt(b, jobType)); err != nil {
				s.enqueueFailed(ctx, b, jobType, err)
			}
		}
		res.Checked++
	}
	return res, nil
}

func (s *Service) failedJobTypes(ctx context.Context, bookingID int64) (map[models.JobType]bool, error) {
	jobs, err := s.jobs.List(ctx, models.JobFilter{BookingID: &bookingID, Status: models.JobFailed})
	if err != nil {
		return nil, err
	}
	out := make(map[models.JobType]bool, len(jobs))
	for _, j := range jobs {
		out[j.Type] = true
	}
	return out, nil
}

// transitioned records a completed lifecycle move.
func (s *Service) transitioned(ctx context.Context, b *models.Booking, from models.LifecycleStatus, channel string) {
	metrics.IncLifecycleTransition(string(b.LifecycleStatus))
	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("from", string(from)).
		Str("to", string(b.LifecycleStatus)).
		Msg("Lifecycle changed")
	s.events.Record(ctx, b.ID, models.EventLifecycleChanged, channel, map[string]any{
		"from": string(from),
		"to":   string(b.LifecycleStatus),
	})
	s.enqueue(ctx, b, models.JobSyncCalendar, s.cfg.Now())
}

// IsTerminalStateError reports whether err is a rejected change to a
// cancelled or completed booking, or a transition the lifecycle forbids.
func IsTerminalStateError(err error) bool {
	return errors.Is(err, models.ErrBookingCancelled) ||
		errors.Is(err, models.ErrBookingCompleted) ||
		errors.Is(err, models.ErrInvalidTransition)
}
