// Package trigger runs the periodic job processing and lifecycle sweeps
// in-process for deployments without an external scheduler.
package trigger

import (
	"context"
	"sync"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/jobs"

	"github.com/rs/zerolog"
)

// JobRunner processes due jobs. A limit of zero or less means the
// processor's configured batch size.
type JobRunner interface {
	ProcessDueLimit(ctx context.Context, limit int) (jobs.Result, error)
	Health(ctx context.Context) (jobs.Health, error)
}

// LifecycleRunner advances bookings and repairs their standing jobs.
type LifecycleRunner interface {
	AdvanceLifecycle(ctx context.Context) (booking.AdvanceResult, error)
	RepairStandingJobs(ctx context.Context) (booking.RepairResult, error)
}

// Config holds the cadences.
type Config struct {
	// ProcessInterval is how often due jobs are processed.
	ProcessInterval time.Duration
	// LifecycleInterval is how often the lifecycle and repair sweeps run.
	LifecycleInterval time.Duration
}

// DefaultConfig returns the default cadences.
func DefaultConfig() Config {
	return Config{
		ProcessInterval:   5 * time.Minute,
		LifecycleInterval: time.Hour,
	}
}

// LifecycleRun is the outcome of one lifecycle pass.
type LifecycleRun struct {
	Advance booking.AdvanceResult `json:"advance"`
	Repair  booking.RepairResult  `json:"repair"`
}

// Trigger fires the job processor and the lifecycle sweeps on tickers.
// Runs of the same kind never overlap within one process.
type Trigger struct {
	config    Config
	jobs      JobRunner
	lifecycle LifecycleRunner
	logger    zerolog.Logger

	jobsMu      sync.Mutex
	lifecycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func New(config Config, jobRunner JobRunner, lifecycle LifecycleRunner, logger *zerolog.Logger) *Trigger {
	def := DefaultConfig()
	if config.ProcessInterval <= 0 {
		config.ProcessInterval = def.ProcessInterval
	}
	if config.LifecycleInterval <= 0 {
		config.LifecycleInterval = def.LifecycleInterval
	}
	return &Trigger{
		config:    config,
		jobs:      jobRunner,
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "trigger").Logger(),
	}
}

// Start runs both loops until ctx is done or Stop is called. It blocks.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	t.mu.Unlock()

	t.logger.Info().
		Dur("process_interval", t.config.ProcessInterval).
		Dur("lifecycle_interval", t.config.LifecycleInterval).
		Msg("Trigger started")

	jobsTicker := time.NewTicker(t.config.ProcessInterval)
	defer jobsTicker.Stop()
	lifecycleTicker := time.NewTicker(t.config.LifecycleInterval)
	defer lifecycleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Trigger stopped by context")
			t.markStopped(stopCh)
			return
		case <-stopCh:
			t.logger.Info().Msg("Trigger stopped")
			t.markStopped(stopCh)
			return
		case <-jobsTicker.C:
			if _, err := t.RunJobs(ctx, 0); err != nil {
				t.logger.Error().Err(err).Msg("Job processing failed")
			}
		case <-lifecycleTicker.C:
			if _, err := t.RunLifecycle(ctx); err != nil {
				t.logger.Error().Err(err).Msg("Lifecycle sweep failed")
			}
		}
	}
}

// Stop ends a running Start. The trigger can be started again afterwards.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.running = false
		close(t.stopCh)
	}
}

// markStopped clears the running flag unless a newer Start already owns it.
func (t *Trigger) markStopped(stopCh chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh == stopCh {
		t.running = false
	}
}

// IsRunning reports whether Start is looping.
func (t *Trigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// RunJobs processes one batch of at most limit due jobs and refreshes the
// queue gauges. A limit of zero or less uses the processor's batch size.
func (t *Trigger) RunJobs(ctx context.Context, limit int) (jobs.Result, error) {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()

	res, err := t.jobs.ProcessDueLimit(ctx, limit)
	if err != nil {
		return res, err
	}
	if _, err := t.jobs.Health(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to refresh job health")
	}
	return res, nil
}

// RunLifecycle advances bookings, then repairs missing standing jobs. The
// repair still runs when the advance sweep fails.
func (t *Trigger) RunLifecycle(ctx context.Context) (LifecycleRun, error) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	var run LifecycleRun
	var firstErr error
	adv, err := t.lifecycle.AdvanceLifecycle(ctx)
	run.Advance = adv
	if err != nil {
		firstErr = err
	}
	rep, err := t.lifecycle.RepairStandingJobs(ctx)
	run.Repair = rep
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return run, firstErr
}
