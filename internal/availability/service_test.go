package availability

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"venuebook/internal/interval"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CommittedBookingsBetween(ctx context.Context, from, to interval.Date) ([]models.Booking, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockStore) BlocksBetween(ctx context.Context, from, to interval.Date) ([]models.AvailabilityBlock, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]models.AvailabilityBlock), args.Error(1)
}

func (m *MockStore) BlackoutsBetween(ctx context.Context, from, to interval.Date) ([]models.BlackoutDate, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]models.BlackoutDate), args.Error(1)
}

func (m *MockStore) CreateBlock(ctx context.Context, block *models.AvailabilityBlock) error {
	return m.Called(ctx, block).Error(0)
}

func (m *MockStore) DeleteBlock(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) CreateBlackout(ctx context.Context, blackout *models.BlackoutDate) error {
	return m.Called(ctx, blackout).Error(0)
}

func (m *MockStore) DeleteBlackout(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func newTestService(store Store) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, &logger)
}

func TestService_Check(t *testing.T) {
	store := new(MockStore)
	store.On("CommittedBookingsBetween", mock.Anything, june1, june1).
		Return([]models.Booking{hourlyBooking(1, june1, 9, 13, models.PaymentDepositPaid)}, nil)
	store.On("BlocksBetween", mock.Anything, june1, june1).Return([]models.AvailabilityBlock{}, nil)
	store.On("BlackoutsBetween", mock.Anything, june1, june1).Return([]models.BlackoutDate{}, nil)

	svc := newTestService(store)

	d, err := svc.Check(context.Background(), HourlyCandidate(june1, window(12, 0, 16, 0)))
	require.NoError(t, err)
	assert.Equal(t, Blocked, d.Verdict)

	d, err = svc.Check(context.Background(), HourlyCandidate(june1, window(13, 0, 17, 0)))
	require.NoError(t, err)
	assert.Equal(t, Available, d.Verdict)

	store.AssertExpectations(t)
}

func TestService_CheckRejectsInvalidWindowBeforeStore(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store)

	_, err := svc.Check(context.Background(), HourlyCandidate(june1, window(16, 0, 12, 0)))
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
	store.AssertNotCalled(t, "CommittedBookingsBetween", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CheckStoreError(t *testing.T) {
	store := new(MockStore)
	store.On("CommittedBookingsBetween", mock.Anything, june1, june1).Return([]models.Booking(nil), errors.New("disk"))

	_, err := newTestService(store).Check(context.Background(), DailyCandidate(june1))
	assert.ErrorContains(t, err, "disk")
}

func TestService_Calendar(t *testing.T) {
	from := interval.NewDate(2025, time.June, 1)
	to := interval.NewDate(2025, time.June, 4)

	store := new(MockStore)
	store.On("CommittedBookingsBetween", mock.Anything, from, to).Return([]models.Booking{
		hourlyBooking(1, from, 9, 13, models.PaymentDepositPaid),
		dailyBooking(2, from.AddDays(1)),
	}, nil)
	store.On("BlocksBetween", mock.Anything, from, to).Return([]models.AvailabilityBlock{}, nil)
	store.On("BlackoutsBetween", mock.Anything, from, to).Return([]models.BlackoutDate{
		{ID: 1, StartDate: to, EndDate: to},
	}, nil)

	days, err := newTestService(store).Calendar(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, days, 4)

	assert.Equal(t, Partial, days[0].Verdict)
	assert.Equal(t, Blocked, days[1].Verdict)
	assert.Equal(t, string(ConflictDailyBooking), days[1].Reason)
	assert.Equal(t, Available, days[2].Verdict)
	assert.Equal(t, Blocked, days[3].Verdict)
	assert.Equal(t, string(ConflictBlackout), days[3].Reason)
}

func TestService_CalendarRange(t *testing.T) {
	svc := newTestService(new(MockStore))

	_, err := svc.Calendar(context.Background(), june1, june1.AddDays(-1))
	assert.Error(t, err)

	_, err = svc.Calendar(context.Background(), june1, june1.AddDays(MaxCalendarDays+1))
	assert.Error(t, err)
}

func TestService_CreateBlock(t *testing.T) {
	tests := []struct {
		name    string
		block   models.AvailabilityBlock
		wantErr bool
	}{
		{
			name:  "daily range",
			block: models.AvailabilityBlock{BlockType: models.BookingTypeDaily, StartDate: june1, EndDate: june1.AddDays(2)},
		},
		{
			name: "hourly single date",
			block: models.AvailabilityBlock{
				BlockType: models.BookingTypeHourly, StartDate: june1,
				StartTime: tod(9, 0), EndTime: tod(10, 0),
			},
		},
		{
			name:    "end before start",
			block:   models.AvailabilityBlock{BlockType: models.BookingTypeDaily, StartDate: june1, EndDate: june1.AddDays(-1)},
			wantErr: true,
		},
		{
			name: "hourly across dates",
			block: models.AvailabilityBlock{
				BlockType: models.BookingTypeHourly, StartDate: june1, EndDate: june1.AddDays(1),
				StartTime: tod(9, 0), EndTime: tod(10, 0),
			},
			wantErr: true,
		},
		{
			name:    "hourly without times",
			block:   models.AvailabilityBlock{BlockType: models.BookingTypeHourly, StartDate: june1},
			wantErr: true,
		},
		{
			name:    "unknown type",
			block:   models.AvailabilityBlock{BlockType: "weekly", StartDate: june1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			store.On("CreateBlock", mock.Anything, mock.Anything).Return(nil).Maybe()
			block := tt.block

			err := newTestService(store).CreateBlock(context.Background(), &block)
			if tt.wantErr {
				var ve *models.ValidationError
				assert.ErrorAs(t, err, &ve)
				store.AssertNotCalled(t, "CreateBlock", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.BlockSourceInternalAdmin, block.Source)
			assert.False(t, block.EndDate.IsZero())
			store.AssertCalled(t, "CreateBlock", mock.Anything, &block)
		})
	}
}

func TestService_CreateBlackout(t *testing.T) {
	store := new(MockStore)
	store.On("CreateBlackout", mock.Anything, mock.Anything).Return(nil)
	svc := newTestService(store)

	err := svc.CreateBlackout(context.Background(), &models.BlackoutDate{StartDate: june1, EndDate: june1.AddDays(-3)})
	assert.Error(t, err)

	require.NoError(t, svc.CreateBlackout(context.Background(), &models.BlackoutDate{StartDate: june1, EndDate: june1, Reason: "  maintenance "}))
	store.AssertNumberOfCalls(t, "CreateBlackout", 1)
}
