// Package jobs owns the scheduled job queue bookkeeping: enqueueing,
// due-job selection, bounded retries and terminal states. What a job does is
// up to its Handler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 3
	DefaultBatchSize   = 50
)

// ErrNotRequeueable is returned when a job is not in the failed state.
var ErrNotRequeueable = errors.New("only failed jobs can be requeued")

// Store persists scheduled jobs.
type Store interface {
	EnqueueJob(ctx context.Context, job *models.ScheduledJob) error
	// EnqueueJobOnce inserts job unless the booking already has a pending or
	// completed job of the same type. It reports whether a row was inserted.
	EnqueueJobOnce(ctx context.Context, job *models.ScheduledJob) (bool, error)
	GetJob(ctx context.Context, id int64) (*models.ScheduledJob, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ScheduledJob, error)
	DueJobs(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.ScheduledJob, error)
	// IncrementJobAttempts bumps attempts of a pending job below maxAttempts
	// and returns the new count, or models.ErrNotFound when the job is no
	// longer eligible.
	IncrementJobAttempts(ctx context.Context, id int64, maxAttempts int, now time.Time) (int, error)
	// FailExhaustedJobs fails pending jobs whose attempts already reached
	// maxAttempts and returns them.
	FailExhaustedJobs(ctx context.Context, maxAttempts int, message string, now time.Time) ([]models.ScheduledJob, error)
	CompleteJob(ctx context.Context, id int64, note string, now time.Time) error
	RecordJobError(ctx context.Context, id int64, message string, terminal bool, now time.Time) error
	RescheduleJob(ctx context.Context, id int64, runAt time.Time, now time.Time) error
	RequeueJob(ctx context.Context, id int64, runAt time.Time) error
	CancelJob(ctx context.Context, id int64, now time.Time) error
	CancelJobs(ctx context.Context, bookingID int64, now time.Time) (int, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// EventRecorder receives booking audit events for terminal job failures.
type EventRecorder interface {
	Record(ctx context.Context, bookingID int64, eventType, channel string, metadata map[string]any)
}

// Config tunes the processor.
type Config struct {
	MaxAttempts int
	BatchSize   int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Result summarizes one ProcessDue invocation.
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Moot jobs are included in Succeeded.
	Moot int `json:"moot"`
	// Exhausted jobs are included in Failed.
	Exhausted int `json:"exhausted"`
}

// Health is the operator-facing queue summary.
type Health struct {
	Counts  map[models.JobStatus]int `json:"counts"`
	Failed  int                      `json:"failed"`
	Pending int                      `json:"pending"`
	Healthy bool                     `json:"healthy"`
}

// Processor executes due jobs.
type Processor struct {
	store    Store
	handlers Handlers
	events   EventRecorder
	cfg      Config
	logger   zerolog.Logger
}

// NewProcessor validates the dispatch table and applies defaults.
func NewProcessor(store Store, handlers Handlers, cfg Config, logger *zerolog.Logger) (*Processor, error) {
	if err := handlers.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		store:    store,
		handlers: handlers,
		cfg:      cfg,
		logger:   logger.With().Str("component", "jobs").Logger(),
	}, nil
}

// SetEventRecorder attaches an audit sink for terminal failures.
func (p *Processor) SetEventRecorder(r EventRecorder) {
	p.events = r
}

// MaxAttempts returns the configured retry budget.
func (p *Processor) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// Enqueue schedules a job and returns its id.
func (p *Processor) Enqueue(ctx context.Context, bookingID *int64, jobType models.JobType, runAt time.Time) (int64, error) {
	job, err := p.newJob(bookingID, jobType, runAt)
	if err != nil {
		return 0, err
	}
	if err := p.store.EnqueueJob(ctx, job); err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	p.logEnqueued(job)
	return job.ID, nil
}

// EnqueueOnce schedules a booking job unless a pending or completed job of
// the same type already exists for that booking.
func (p *Processor) EnqueueOnce(ctx context.Context, bookingID int64, jobType models.JobType, runAt time.Time) (int64, bool, error) {
	job, err := p.newJob(&bookingID, jobType, runAt)
	if err != nil {
		return 0, false, err
	}
	created, err := p.store.EnqueueJobOnce(ctx, job)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue %s for booking %d: %w", jobType, bookingID, err)
	}
	if created {
		p.logEnqueued(job)
	}
	return job.ID, created, nil
}

func (p *Processor) newJob(bookingID *int64, jobType models.JobType, runAt time.Time) (*models.ScheduledJob, error) {
	if _, ok := p.handlers.For(jobType); !ok {
		return nil, models.Invalid("job_type", "unknown job type %q", jobType)
	}
	if runAt.IsZero() {
		runAt = p.cfg.Now()
	}
	return &models.ScheduledJob{
		BookingID: bookingID,
		Type:      jobType,
		RunAt:     runAt.UTC(),
		Status:    models.JobPending,
	}, nil
}

func (p *Processor) logEnqueued(job *models.ScheduledJob) {
	ev := p.logger.Debug().
		Int64("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Time("run_at", job.RunAt)
	if job.BookingID != nil {
		ev = ev.Int64("booking_id", *job.BookingID)
	}
	ev.Msg("Job enqueued")
}

// exhaustedMessage is stored on jobs whose last attempt never reported
// an outcome, for example because the process died mid-handler.
const exhaustedMessage = "attempts exhausted without an outcome"

// ProcessDue runs one batch of due jobs in run_at order. Handler failures are
// recorded on the job row and never returned; only a failure to load the
// batch is.
func (p *Processor) ProcessDue(ctx context.Context) (Result, error) {
	return p.ProcessDueLimit(ctx, p.cfg.BatchSize)
}

// ProcessDueLimit is ProcessDue with a per-call batch size. A limit of zero
// or less uses the configured batch size.
func (p *Processor) ProcessDueLimit(ctx context.Context, limit int) (Result, error) {
	var res Result
	if limit <= 0 {
		limit = p.cfg.BatchSize
	}
	now := p.cfg.Now()

	p.failExhausted(ctx, now, &res)

	due, err := p.store.DueJobs(ctx, now, p.cfg.MaxAttempts, limit)
	if err != nil {
		return res, fmt.Errorf("load due jobs: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			p.logger.Warn().Err(ctx.Err()).Int("remaining", len(due)-i).Msg("Job batch interrupted")
			break
		}
		p.processOne(ctx, &due[i], &res)
	}

	if res.Processed > 0 || res.Exhausted > 0 {
		p.logger.Info().
			Int("processed", res.Processed).
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Int("exhausted", res.Exhausted).
			Msg("Processed due jobs")
	}
	return res, nil
}

// failExhausted sweeps pending jobs that used their whole budget without a
// recorded outcome. DueJobs never selects them again, so without this they
// would stay pending forever.
func (p *Processor) failExhausted(ctx context.Context, now time.Time, res *Result) {
	stuck, err := p.store.FailExhaustedJobs(context.WithoutCancel(ctx), p.cfg.MaxAttempts, exhaustedMessage, now)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to sweep exhausted jobs")
		return
	}
	for i := range stuck {
		job := &stuck[i]
		log := p.jobLogger(job)
		log.Error().Int("attempts", job.Attempts).Msg("Job exhausted its attempts without an outcome, marked failed")
		metrics.ObserveJob(string(job.Type), "exhausted", 0)
		res.Failed++
		res.Exhausted++
		p.recordFailure(context.WithoutCancel(ctx), job, exhaustedMessage)
	}
}

func (p *Processor) processOne(ctx context.Context, job *models.ScheduledJob, res *Result) {
	// Bookkeeping writes must land even if the trigger's context ends mid-job.
	bg := context.WithoutCancel(ctx)
	log := p.jobLogger(job)

	attempts, err := p.store.IncrementJobAttempts(bg, job.ID, p.cfg.MaxAttempts, p.cfg.Now())
	if errors.Is(err, models.ErrNotFound) {
		log.Debug().Msg("Job no longer eligible, skipping")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to increment job attempts")
		return
	}
	job.Attempts = attempts
	res.Processed++

	handler, ok := p.handlers.For(job.Type)
	if !ok {
		msg := fmt.Sprintf("unknown job type %q", job.Type)
		if err := p.store.RecordJobError(bg, job.ID, msg, true, p.cfg.Now()); err != nil {
			log.Error().Err(err).Msg("Failed to mark job as failed")
		}
		log.Error().Int("attempts", attempts).Msg("Unknown job type, marked failed")
		metrics.ObserveJob(string(job.Type), "unknown_type", 0)
		res.Failed++
		res.Exhausted++
		p.recordFailure(bg, job, msg)
		return
	}

	started := time.Now()
	herr := invoke(ctx, handler, job)
	took := time.Since(started)

	if herr == nil {
		if err := p.store.CompleteJob(bg, job.ID, "", p.cfg.Now()); err != nil {
			log.Error().Err(err).Msg("Failed to mark job as completed")
		}
		log.Debug().Int("attempts", attempts).Dur("took", took).Msg("Job completed")
		metrics.ObserveJob(string(job.Type), "success", took)
		res.Succeeded++
		return
	}

	if moot, ok := IsMoot(herr); ok {
		if err := p.store.CompleteJob(bg, job.ID, moot.Reason, p.cfg.Now()); err != nil {
			log.Error().Err(err).Msg("Failed to mark job as completed")
		}
		log.Info().Str("reason", moot.Reason).Msg("Job moot, completed without action")
		metrics.ObserveJob(string(job.Type), "moot", took)
		res.Succeeded++
		res.Moot++
		return
	}

	terminal := attempts >= p.cfg.MaxAttempts
	if err := p.store.RecordJobError(bg, job.ID, herr.Error(), terminal, p.cfg.Now()); err != nil {
		log.Error().Err(err).Msg("Failed to record job error")
	}
	res.Failed++
	if terminal {
		res.Exhausted++
		log.Error().Err(herr).Int("attempts", attempts).Msg("Job failed permanently")
		metrics.ObserveJob(string(job.Type), "exhausted", took)
		p.recordFailure(bg, job, herr.Error())
		return
	}
	log.Warn().Err(herr).Int("attempts", attempts).Msg("Job failed, will retry")
	metrics.ObserveJob(string(job.Type), "error", took)
}

func invoke(ctx context.Context, h Handler, job *models.ScheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

func (p *Processor) recordFailure(ctx context.Context, job *models.ScheduledJob, msg string) {
	if p.events == nil || job.BookingID == nil {
		return
	}
	p.events.Record(ctx, *job.BookingID, models.EventJobFailed, models.ChannelJob, map[string]any{
		"job_id":   job.ID,
		"job_type": string(job.Type),
		"attempts": job.Attempts,
		"error":    msg,
	})
}

func (p *Processor) jobLogger(job *models.ScheduledJob) zerolog.Logger {
	lc := p.logger.With().
		Int64("job_id", job.ID).
		Str("job_type", string(job.Type))
	if job.BookingID != nil {
		lc = lc.Int64("booking_id", *job.BookingID)
	}
	return lc.Logger()
}

// Reschedule moves a pending job to runAt.
func (p *Processor) Reschedule(ctx context.Context, id int64, runAt time.Time) error {
	return p.store.RescheduleJob(ctx, id, runAt.UTC(), p.cfg.Now())
}

// Requeue resets a failed job to pending with a fresh retry budget.
func (p *Processor) Requeue(ctx context.Context, id int64) error {
	job, err := p.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobFailed {
		return fmt.Errorf("job %d is %s: %w", id, job.Status, ErrNotRequeueable)
	}
	if err := p.store.RequeueJob(ctx, id, p.cfg.Now().UTC()); err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	log := p.jobLogger(job)
	log.Info().Msg("Job requeued")
	return nil
}

// Cancel supersedes a single pending job.
func (p *Processor) Cancel(ctx context.Context, id int64) error {
	return p.store.CancelJob(ctx, id, p.cfg.Now())
}

// CancelForBooking cancels every pending or failed job of a booking.
func (p *Processor) CancelForBooking(ctx context.Context, bookingID int64) (int, error) {
	n, err := p.store.CancelJobs(ctx, bookingID, p.cfg.Now())
	if err != nil {
		return 0, fmt.Errorf("cancel jobs for booking %d: %w", bookingID, err)
	}
	if n > 0 {
		p.logger.Info().Int64("booking_id", bookingID).Int("cancelled", n).Msg("Jobs cancelled")
	}
	return n, nil
}

// List returns jobs matching filter.
func (p *Processor) List(ctx context.Context, filter models.JobFilter) ([]models.ScheduledJob, error) {
	return p.store.ListJobs(ctx, filter)
}

// Health counts jobs per status and publishes the gauges.
func (p *Processor) Health(ctx context.Context) (Health, error) {
	counts, err := p.store.CountJobsByStatus(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("count jobs: %w", err)
	}
	for _, st := range []models.JobStatus{models.JobPending, models.JobCompleted, models.JobFailed, models.JobCancelled} {
		metrics.SetJobsByStatus(string(st), counts[st])
	}
	return Health{
		Counts:  counts,
		Failed:  counts[models.JobFailed],
		Pending: counts[models.JobPending],
		Healthy: counts[models.JobFailed] == 0,
	}, nil
}
