// Package availability decides whether a date/time window may be reserved.
//
// Resolve is pure: it takes a snapshot of committed bookings, manual blocks
// and blackout ranges and returns a tri-state verdict. Service wraps it with
// the store reads and the administrative holds.
package availability

import (
	"fmt"

	"venuebook/internal/interval"
	"venuebook/internal/models"
)

// Verdict is the tri-state availability answer.
type Verdict string

const (
	Available Verdict = "available"
	Partial   Verdict = "partial"
	Blocked   Verdict = "blocked"
)

// ConflictKind names what kind of hold caused a rejection.
type ConflictKind string

const (
	ConflictBlackout      ConflictKind = "blackout"
	ConflictDailyBooking  ConflictKind = "daily_booking"
	ConflictDailyBlock    ConflictKind = "daily_block"
	ConflictHourlyBooking ConflictKind = "hourly_booking"
	ConflictHourlyBlock   ConflictKind = "hourly_block"
)

// ConflictError explains which existing hold makes a window unavailable.
type ConflictError struct {
	Kind       ConflictKind    `json:"kind"`
	Date       interval.Date   `json:"date"`
	Window     interval.Window `json:"window"`
	BookingID  int64           `json:"booking_id,omitempty"`
	BlockID    int64           `json:"block_id,omitempty"`
	BlackoutID int64           `json:"blackout_id,omitempty"`
	Message    string          `json:"message"`
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Candidate is a requested reservation window.
type Candidate struct {
	Date   interval.Date
	Daily  bool
	Window interval.Window // ignored for daily candidates
	// ExcludeBookingID removes a booking (and system holds pointing at it)
	// from the conflict set, used when rescheduling.
	ExcludeBookingID int64
}

// DailyCandidate requests the whole of date.
func DailyCandidate(date interval.Date) Candidate {
	return Candidate{Date: date, Daily: true, Window: interval.FullDay}
}

// HourlyCandidate requests window on date.
func HourlyCandidate(date interval.Date, window interval.Window) Candidate {
	return Candidate{Date: date, Window: window}
}

// CandidateFor builds the candidate that b itself occupies.
func CandidateFor(b *models.Booking) Candidate {
	if b.IsDaily() {
		return DailyCandidate(b.EventDate)
	}
	return HourlyCandidate(b.EventDate, b.Window())
}

// Validate checks the window shape.
func (c Candidate) Validate() error {
	if c.Date.IsZero() {
		return models.Invalid("event_date", "is required")
	}
	if c.Daily {
		return nil
	}
	if err := c.Window.Validate(); err != nil {
		return models.Invalid("window", "%v", err)
	}
	return nil
}

// Snapshot is the conflict set a candidate is resolved against.
type Snapshot struct {
	Bookings  []models.Booking
	Blocks    []models.AvailabilityBlock
	Blackouts []models.BlackoutDate
}

// Decision is the result of Resolve. Conflict is set whenever the candidate
// would be rejected (Blocked, or Partial for a daily candidate).
type Decision struct {
	Verdict  Verdict        `json:"verdict"`
	Conflict *ConflictError `json:"conflict,omitempty"`
}

// Err returns the conflict as an error, or nil if the candidate is accepted.
func (d Decision) Err() error {
	if d.Verdict == Available {
		return nil
	}
	return d.Conflict
}

// Resolve runs the ordered checks: blackout, then whole-day holds, then
// hourly overlaps. Only committed bookings count.
func Resolve(c Candidate, s Snapshot) Decision {
	window := c.Window
	if c.Daily {
		window = interval.FullDay
	}

	for i := range s.Blackouts {
		bo := &s.Blackouts[i]
		if bo.Covers(c.Date) {
			return blocked(&ConflictError{
				Kind:       ConflictBlackout,
				Date:       c.Date,
				Window:     interval.FullDay,
				BlackoutID: bo.ID,
				Message:    fmt.Sprintf("%s is a blackout date (%s to %s)", c.Date, bo.StartDate, bo.EndDate),
			})
		}
	}

	bookings := relevantBookings(c, s.Bookings)
	blocks := relevantBlocks(c, s.Blocks)

	for _, b := range bookings {
		if b.IsDaily() {
			return blocked(&ConflictError{
				Kind:      ConflictDailyBooking,
				Date:      c.Date,
				Window:    interval.FullDay,
				BookingID: b.ID,
				Message:   fmt.Sprintf("%s is already booked for the full day", c.Date),
			})
		}
	}
	for _, bl := range blocks {
		if bl.BlockType == models.BookingTypeDaily {
			return blocked(&ConflictError{
				Kind:    ConflictDailyBlock,
				Date:    c.Date,
				Window:  interval.FullDay,
				BlockID: bl.ID,
				Message: fmt.Sprintf("%s is held for the full day", c.Date),
			})
		}
	}

	// Only hourly activity remains on this date.
	for _, b := range bookings {
		other := b.Window()
		if !window.Overlaps(other) {
			continue
		}
		conflict := &ConflictError{
			Kind:      ConflictHourlyBooking,
			Date:      c.Date,
			Window:    other,
			BookingID: b.ID,
			Message:   fmt.Sprintf("this time overlaps an existing booking on %s from %s", c.Date, other),
		}
		if c.Daily {
			conflict.Message = fmt.Sprintf("%s already has a booking from %s; a full-day reservation needs the whole day free", c.Date, other)
			return Decision{Verdict: Partial, Conflict: conflict}
		}
		return blocked(conflict)
	}
	for _, bl := range blocks {
		other := bl.Window()
		if !window.Overlaps(other) {
			continue
		}
		conflict := &ConflictError{
			Kind:    ConflictHourlyBlock,
			Date:    c.Date,
			Window:  other,
			BlockID: bl.ID,
			Message: fmt.Sprintf("this time overlaps a hold on %s from %s", c.Date, other),
		}
		if c.Daily {
			conflict.Message = fmt.Sprintf("%s has a hold from %s; a full-day reservation needs the whole day free", c.Date, other)
			return Decision{Verdict: Partial, Conflict: conflict}
		}
		return blocked(conflict)
	}

	return Decision{Verdict: Available}
}

// IsAvailable is the accept/reject form of Resolve.
func IsAvailable(c Candidate, s Snapshot) bool {
	return Resolve(c, s).Verdict == Available
}

func blocked(c *ConflictError) Decision {
	return Decision{Verdict: Blocked, Conflict: c}
}

func relevantBookings(c Candidate, all []models.Booking) []*models.Booking {
	var out []*models.Booking
	for i := range all {
		b := &all[i]
		if c.ExcludeBookingID != 0 && b.ID == c.ExcludeBookingID {
			continue
		}
		if !b.IsCommitted() || !interval.SameDay(b.EventDate, c.Date) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func relevantBlocks(c Candidate, all []models.AvailabilityBlock) []*models.AvailabilityBlock {
	var out []*models.AvailabilityBlock
	for i := range all {
		bl := &all[i]
		if c.ExcludeBookingID != 0 && bl.BookingID != nil && *bl.BookingID == c.ExcludeBookingID {
			continue
		}
		if !bl.Covers(c.Date) {
			continue
		}
		out = append(out, bl)
	}
	return out
}
