package events

import (
	"context"
	"time"

	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

// Store persists audit events.
type Store interface {
	InsertEvent(ctx context.Context, e *models.BookingEvent) error
}

// Recorder writes booking events to the store and fans them out on the bus.
// Audit is write-only observability: failures are logged, never returned.
type Recorder struct {
	store  Store
	bus    *EventBus
	logger zerolog.Logger
	now    func() time.Time
}

func NewRecorder(store Store, bus *EventBus, logger *zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "events").Logger(),
		now:    time.Now,
	}
}

// Record appends an event for bookingID.
func (r *Recorder) Record(ctx context.Context, bookingID int64, eventType, channel string, metadata map[string]any) {
	e := models.BookingEvent{
		BookingID: bookingID,
		Type:      eventType,
		Channel:   channel,
		Metadata:  metadata,
		CreatedAt: r.now().UTC(),
	}

	// The caller's request may be finishing; the audit row should still land.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.InsertEvent(ctx, &e); err != nil {
		r.logger.Error().Err(err).
			Int64("booking_id", bookingID).
			Str("event_type", eventType).
			Msg("Failed to record booking event")
	}

	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(e); err != nil {
		r.logger.Warn().Err(err).
			Int64("booking_id", bookingID).
			Str("event_type", eventType).
			Msg("Event subscriber failed")
	}
}
