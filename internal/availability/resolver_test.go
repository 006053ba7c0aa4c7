package availability

import (
	"testing"
	"time"

	"venuebook/internal/interval"
	"venuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	june1 = interval.NewDate(2025, time.June, 1)
	july4 = interval.NewDate(2025, time.July, 4)
)

func tod(h, m int) *interval.TimeOfDay {
	t := interval.Clock(h, m)
	return &t
}

func window(sh, sm, eh, em int) interval.Window {
	return interval.Window{Start: interval.Clock(sh, sm), End: interval.Clock(eh, em)}
}

func hourlyBooking(id int64, date interval.Date, sh, eh int, payment models.PaymentStatus) models.Booking {
	return models.Booking{
		ID:              id,
		EventDate:       date,
		Type:            models.BookingTypeHourly,
		StartTime:       tod(sh, 0),
		EndTime:         tod(eh, 0),
		Status:          models.StatusConfirmed,
		LifecycleStatus: models.LifecycleConfirmed,
		PaymentStatus:   payment,
	}
}

func dailyBooking(id int64, date interval.Date) models.Booking {
	return models.Booking{
		ID:              id,
		EventDate:       date,
		Type:            models.BookingTypeDaily,
		Status:          models.StatusConfirmed,
		LifecycleStatus: models.LifecycleConfirmed,
		PaymentStatus:   models.PaymentPaidInFull,
	}
}

func TestResolve_Scenarios(t *testing.T) {
	morning := Snapshot{Bookings: []models.Booking{hourlyBooking(1, june1, 9, 13, models.PaymentDepositPaid)}}

	t.Run("overlapping hourly window is blocked", func(t *testing.T) {
		d := Resolve(HourlyCandidate(june1, window(12, 0, 16, 0)), morning)
		assert.Equal(t, Blocked, d.Verdict)
		require.NotNil(t, d.Conflict)
		assert.Equal(t, ConflictHourlyBooking, d.Conflict.Kind)
		assert.Equal(t, int64(1), d.Conflict.BookingID)
		assert.Contains(t, d.Conflict.Error(), "overlaps an existing booking")
	})

	t.Run("touching boundary is available", func(t *testing.T) {
		d := Resolve(HourlyCandidate(june1, window(13, 0, 17, 0)), morning)
		assert.Equal(t, Available, d.Verdict)
		assert.Nil(t, d.Conflict)
		assert.NoError(t, d.Err())
	})

	t.Run("daily block closes hourly windows", func(t *testing.T) {
		snap := Snapshot{Blocks: []models.AvailabilityBlock{{
			ID: 7, Source: models.BlockSourceInternalAdmin, BlockType: models.BookingTypeDaily,
			StartDate: july4, EndDate: july4,
		}}}
		d := Resolve(HourlyCandidate(july4, window(10, 0, 11, 0)), snap)
		assert.Equal(t, Blocked, d.Verdict)
		assert.Equal(t, ConflictDailyBlock, d.Conflict.Kind)
		assert.Equal(t, int64(7), d.Conflict.BlockID)
	})
}

func TestResolve_DailySubsumption(t *testing.T) {
	snaps := map[string]Snapshot{
		"daily booking": {Bookings: []models.Booking{dailyBooking(3, july4)}},
		"daily block": {Blocks: []models.AvailabilityBlock{{
			ID: 1, BlockType: models.BookingTypeDaily,
			StartDate: july4.AddDays(-2), EndDate: july4.AddDays(1),
		}}},
	}

	for name, snap := range snaps {
		t.Run(name, func(t *testing.T) {
			for start := 0; start < 24; start++ {
				for end := start + 1; end <= 24; end++ {
					c := HourlyCandidate(july4, window(start, 0, end, 0))
					assert.False(t, IsAvailable(c, snap), "window %02d-%02d", start, end)
				}
			}
			assert.False(t, IsAvailable(DailyCandidate(july4), snap))
			assert.True(t, IsAvailable(DailyCandidate(july4.AddDays(5)), snap))
		})
	}
}

func TestResolve_DailyCandidateWithHourlyActivity(t *testing.T) {
	snap := Snapshot{Bookings: []models.Booking{hourlyBooking(4, june1, 15, 16, models.PaymentPaidInFull)}}

	d := Resolve(DailyCandidate(june1), snap)
	assert.Equal(t, Partial, d.Verdict)
	require.NotNil(t, d.Conflict)
	assert.Equal(t, ConflictHourlyBooking, d.Conflict.Kind)
	assert.Error(t, d.Err())
	assert.False(t, IsAvailable(DailyCandidate(june1), snap))

	hold := Snapshot{Blocks: []models.AvailabilityBlock{{
		ID: 2, BlockType: models.BookingTypeHourly, StartDate: june1, EndDate: june1,
		StartTime: tod(8, 0), EndTime: tod(9, 0),
	}}}
	d = Resolve(DailyCandidate(june1), hold)
	assert.Equal(t, Partial, d.Verdict)
	assert.Equal(t, ConflictHourlyBlock, d.Conflict.Kind)
}

func TestResolve_Blackout(t *testing.T) {
	snap := Snapshot{Blackouts: []models.BlackoutDate{{
		ID: 9, StartDate: interval.NewDate(2025, time.December, 24), EndDate: interval.NewDate(2025, time.December, 26),
	}}}

	for _, c := range []Candidate{
		DailyCandidate(interval.NewDate(2025, time.December, 24)),
		HourlyCandidate(interval.NewDate(2025, time.December, 26), window(10, 0, 11, 0)),
	} {
		d := Resolve(c, snap)
		assert.Equal(t, Blocked, d.Verdict)
		assert.Equal(t, ConflictBlackout, d.Conflict.Kind)
		assert.Equal(t, int64(9), d.Conflict.BlackoutID)
	}
	assert.True(t, IsAvailable(DailyCandidate(interval.NewDate(2025, time.December, 27)), snap))
}

func TestResolve_BlackoutWinsOverBookings(t *testing.T) {
	snap := Snapshot{
		Bookings:  []models.Booking{dailyBooking(1, june1)},
		Blackouts: []models.BlackoutDate{{ID: 2, StartDate: june1, EndDate: june1}},
	}
	d := Resolve(HourlyCandidate(june1, window(9, 0, 10, 0)), snap)
	assert.Equal(t, ConflictBlackout, d.Conflict.Kind)
}

func TestResolve_OnlyCommittedBookingsBlock(t *testing.T) {
	for _, p := range []models.PaymentStatus{models.PaymentUnpaid, models.PaymentPending, models.PaymentInvoiced, models.PaymentRefunded} {
		snap := Snapshot{Bookings: []models.Booking{hourlyBooking(1, june1, 9, 13, p)}}
		assert.True(t, IsAvailable(HourlyCandidate(june1, window(10, 0, 11, 0)), snap), "payment %s", p)
	}

	cancelled := hourlyBooking(1, june1, 9, 13, models.PaymentPaidInFull)
	cancelled.LifecycleStatus = models.LifecycleCancelled
	cancelled.Status = models.StatusCancelled
	assert.True(t, IsAvailable(HourlyCandidate(june1, window(10, 0, 11, 0)), Snapshot{Bookings: []models.Booking{cancelled}}))
}

func TestResolve_ExcludeOwnBooking(t *testing.T) {
	own := int64(5)
	snap := Snapshot{
		Bookings: []models.Booking{hourlyBooking(own, june1, 9, 13, models.PaymentDepositPaid)},
		Blocks: []models.AvailabilityBlock{{
			ID: 1, Source: models.BlockSourceSystem, BookingID: &own, BlockType: models.BookingTypeHourly,
			StartDate: june1, EndDate: june1, StartTime: tod(9, 0), EndTime: tod(13, 0),
		}},
	}

	c := HourlyCandidate(june1, window(10, 0, 14, 0))
	assert.False(t, IsAvailable(c, snap))

	c.ExcludeBookingID = own
	assert.True(t, IsAvailable(c, snap))
}

func TestResolve_OtherDatesIgnored(t *testing.T) {
	snap := Snapshot{Bookings: []models.Booking{
		dailyBooking(1, june1.AddDays(-1)),
		hourlyBooking(2, june1.AddDays(1), 9, 17, models.PaymentPaidInFull),
	}}
	assert.True(t, IsAvailable(DailyCandidate(june1), snap))
}

func TestCandidate_Validate(t *testing.T) {
	assert.NoError(t, DailyCandidate(june1).Validate())
	assert.NoError(t, HourlyCandidate(june1, window(9, 0, 10, 0)).Validate())

	var ve *models.ValidationError
	assert.ErrorAs(t, HourlyCandidate(june1, window(10, 0, 9, 0)).Validate(), &ve)
	assert.ErrorAs(t, Candidate{}.Validate(), &ve)
}

func TestCandidateFor(t *testing.T) {
	b := hourlyBooking(1, june1, 9, 13, models.PaymentPaidInFull)
	c := CandidateFor(&b)
	assert.False(t, c.Daily)
	assert.Equal(t, window(9, 0, 13, 0), c.Window)

	d := dailyBooking(2, july4)
	assert.True(t, CandidateFor(&d).Daily)
}
