package models

import (
	"time"

	"venuebook/internal/interval"
)

// BlockSource identifies who created a manual hold.
type BlockSource string

const (
	BlockSourceInternalAdmin BlockSource = "internal_admin"
	BlockSourceBlackout      BlockSource = "blackout"
	BlockSourceSystem        BlockSource = "system"
)

func (s BlockSource) Valid() bool {
	switch s {
	case BlockSourceInternalAdmin, BlockSourceBlackout, BlockSourceSystem:
		return true
	default:
		return false
	}
}

// BlockType uses the same granularity as bookings.
type BlockType = BookingType

// AvailabilityBlock is a manual hold not backed by a paid booking.
type AvailabilityBlock struct {
	ID        int64               `json:"id"`
	Source    BlockSource         `json:"source"`
	BookingID *int64              `json:"booking_id,omitempty"`
	BlockType BlockType           `json:"block_type"`
	StartDate interval.Date       `json:"start_date"`
	EndDate   interval.Date       `json:"end_date"`
	StartTime *interval.TimeOfDay `json:"start_time,omitempty"`
	EndTime   *interval.TimeOfDay `json:"end_time,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Covers reports whether the block touches date at all.
func (b *AvailabilityBlock) Covers(date interval.Date) bool {
	return interval.WithinDateRange(date, b.StartDate, b.EndDate)
}

// Window returns the held window on any covered date.
func (b *AvailabilityBlock) Window() interval.Window {
	if b.BlockType == BookingTypeDaily || b.StartTime == nil || b.EndTime == nil {
		return interval.FullDay
	}
	return interval.Window{Start: *b.StartTime, End: *b.EndTime}
}

// BlackoutDate is a hard-closed date range.
type BlackoutDate struct {
	ID        int64         `json:"id"`
	StartDate interval.Date `json:"start_date"`
	EndDate   interval.Date `json:"end_date"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func (b *BlackoutDate) Covers(date interval.Date) bool {
	return interval.WithinDateRange(date, b.StartDate, b.EndDate)
}
