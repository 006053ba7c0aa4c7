package availability

import (
	"context"
	"fmt"
	"strings"

	"venuebook/internal/interval"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

// MaxCalendarDays bounds a single calendar query.
const MaxCalendarDays = 92

// Store is the read/write surface the service needs.
type Store interface {
	CommittedBookingsBetween(ctx context.Context, from, to interval.Date) ([]models.Booking, error)
	BlocksBetween(ctx context.Context, from, to interval.Date) ([]models.AvailabilityBlock, error)
	BlackoutsBetween(ctx context.Context, from, to interval.Date) ([]models.BlackoutDate, error)

	CreateBlock(ctx context.Context, block *models.AvailabilityBlock) error
	DeleteBlock(ctx context.Context, id int64) error
	CreateBlackout(ctx context.Context, blackout *models.BlackoutDate) error
	DeleteBlackout(ctx context.Context, id int64) error
}

// Service resolves candidates against the current store contents.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// DayAvailability is one row of the calendar view.
type DayAvailability struct {
	Date    interval.Date  `json:"date"`
	Verdict Verdict        `json:"verdict"`
	Reason  string         `json:"reason,omitempty"`
	Detail  *ConflictError `json:"-"`
}

func NewService(store Store, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

// Snapshot loads the conflict set covering [from, to].
func (s *Service) Snapshot(ctx context.Context, from, to interval.Date) (Snapshot, error) {
	bookings, err := s.store.CommittedBookingsBetween(ctx, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load bookings: %w", err)
	}
	blocks, err := s.store.BlocksBetween(ctx, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load blocks: %w", err)
	}
	blackouts, err := s.store.BlackoutsBetween(ctx, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load blackouts: %w", err)
	}
	return Snapshot{Bookings: bookings, Blocks: blocks, Blackouts: blackouts}, nil
}

// Check resolves a single candidate.
func (s *Service) Check(ctx context.Context, c Candidate) (Decision, error) {
	if err := c.Validate(); err != nil {
		return Decision{}, err
	}
	snap, err := s.Snapshot(ctx, c.Date, c.Date)
	if err != nil {
		return Decision{}, err
	}
	d := Resolve(c, snap)
	metrics.IncAvailabilityCheck(string(d.Verdict))

	s.logger.Debug().
		Str("date", c.Date.String()).
		Bool("daily", c.Daily).
		Str("window", c.Window.String()).
		Str("verdict", string(d.Verdict)).
		Msg("Availability checked")
	return d, nil
}

// Calendar returns the whole-day verdict for every date in [from, to].
func (s *Service) Calendar(ctx context.Context, from, to interval.Date) ([]DayAvailability, error) {
	if to.Before(from) {
		return nil, models.Invalid("to", "must not be before from")
	}
	if from.AddDays(MaxCalendarDays).Before(to) {
		return nil, models.Invalid("to", "range exceeds %d days", MaxCalendarDays)
	}

	snap, err := s.Snapshot(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var days []DayAvailability
	for d := from; !d.After(to); d = d.AddDays(1) {
		dec := Resolve(DailyCandidate(d), snap)
		row := DayAvailability{Date: d, Verdict: dec.Verdict, Detail: dec.Conflict}
		if dec.Conflict != nil {
			row.Reason = string(dec.Conflict.Kind)
		}
		days = append(days, row)
	}
	return days, nil
}

// CreateBlock validates and stores a manual hold.
func (s *Service) CreateBlock(ctx context.Context, block *models.AvailabilityBlock) error {
	if err := validateBlock(block); err != nil {
		return err
	}
	if err := s.store.CreateBlock(ctx, block); err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	s.logger.Info().
		Int64("block_id", block.ID).
		Str("source", string(block.Source)).
		Str("type", string(block.BlockType)).
		Str("start", block.StartDate.String()).
		Str("end", block.EndDate.String()).
		Msg("Availability block created")
	return nil
}

// DeleteBlock frees the held capacity immediately.
func (s *Service) DeleteBlock(ctx context.Context, id int64) error {
	if err := s.store.DeleteBlock(ctx, id); err != nil {
		return fmt.Errorf("delete block %d: %w", id, err)
	}
	s.logger.Info().Int64("block_id", id).Msg("Availability block deleted")
	return nil
}

// CreateBlackout stores a closed date range.
func (s *Service) CreateBlackout(ctx context.Context, blackout *models.BlackoutDate) error {
	if blackout.StartDate.IsZero() || blackout.EndDate.IsZero() {
		return models.Invalid("start_date", "start and end dates are required")
	}
	if blackout.EndDate.Before(blackout.StartDate) {
		return models.Invalid("end_date", "must not be before start_date")
	}
	blackout.Reason = strings.TrimSpace(blackout.Reason)
	if err := s.store.CreateBlackout(ctx, blackout); err != nil {
		return fmt.Errorf("create blackout: %w", err)
	}
	s.logger.Info().
		Int64("blackout_id", blackout.ID).
		Str("start", blackout.StartDate.String()).
		Str("end", blackout.EndDate.String()).
		Msg("Blackout created")
	return nil
}

func (s *Service) DeleteBlackout(ctx context.Context, id int64) error {
	if err := s.store.DeleteBlackout(ctx, id); err != nil {
		return fmt.Errorf("delete blackout %d: %w", id, err)
	}
	s.logger.Info().Int64("blackout_id", id).Msg("Blackout deleted")
	return nil
}

func validateBlock(b *models.AvailabilityBlock) error {
	if b.Source == "" {
		b.Source = models.BlockSourceInternalAdmin
	}
	if !b.Source.Valid() {
		return models.Invalid("source", "unknown source %q", b.Source)
	}
	if !b.BlockType.Valid() {
		return models.Invalid("block_type", "must be daily or hourly")
	}
	if b.StartDate.IsZero() {
		return models.Invalid("start_date", "is required")
	}
	if b.EndDate.IsZero() {
		b.EndDate = b.StartDate
	}
	if b.EndDate.Before(b.StartDate) {
		return models.Invalid("end_date", "must not be before start_date")
	}

	if b.BlockType == models.BookingTypeDaily {
		b.StartTime, b.EndTime = nil, nil
		return nil
	}
	if !b.EndDate.Equal(b.StartDate) {
		return models.Invalid("end_date", "hourly blocks cover a single date")
	}
	if b.StartTime == nil || b.EndTime == nil {
		return models.Invalid("start_time", "hourly blocks need start_time and end_time")
	}
	w := interval.Window{Start: *b.StartTime, End: *b.EndTime}
	if err := w.Validate(); err != nil {
		return models.Invalid("end_time", "%v", err)
	}
	return nil
}
