package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	events []models.BookingEvent
	err    error
}

func (m *memStore) InsertEvent(_ context.Context, e *models.BookingEvent) error {
	if m.err != nil {
		return m.err
	}
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

func TestEventBusPublish(t *testing.T) {
	bus := NewEventBus()
	var typed, all []string

	bus.Subscribe(models.EventBookingCancelled, func(e models.BookingEvent) error {
		typed = append(typed, e.Type)
		return nil
	})
	bus.Subscribe(AllEvents, func(e models.BookingEvent) error {
		all = append(all, e.Type)
		assert.False(t, e.CreatedAt.IsZero())
		if e.Type == models.EventBookingCreated {
			return errors.New("broker down")
		}
		return nil
	})

	err := bus.Publish(models.BookingEvent{Type: models.EventBookingCreated})
	assert.EqualError(t, err, "broker down")
	require.NoError(t, bus.Publish(models.BookingEvent{Type: models.EventBookingCancelled}))

	assert.Equal(t, []string{models.EventBookingCancelled}, typed)
	assert.Equal(t, []string{models.EventBookingCreated, models.EventBookingCancelled}, all)
}

func TestRecorderPersistsAndPublishes(t *testing.T) {
	store := &memStore{}
	bus := NewEventBus()
	var published []models.BookingEvent
	bus.Subscribe(AllEvents, func(e models.BookingEvent) error {
		published = append(published, e)
		return nil
	})

	logger := zerolog.New(io.Discard)
	rec := NewRecorder(store, bus, &logger)
	fixed := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, 7, models.EventPaymentRecorded, models.ChannelAPI, map[string]any{"amount_cents": 5000})

	require.Len(t, store.events, 1)
	assert.Equal(t, int64(7), store.events[0].BookingID)
	assert.Equal(t, fixed, store.events[0].CreatedAt)
	require.Len(t, published, 1)
	assert.Equal(t, int64(1), published[0].ID)
	assert.Equal(t, "booking.payment_recorded", RoutingKey(published[0]))
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	logger := zerolog.New(io.Discard)
	rec := NewRecorder(store, nil, &logger)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), 1, models.EventBookingCreated, models.ChannelSystem, nil)
	})
	assert.Empty(t, store.events)
}
