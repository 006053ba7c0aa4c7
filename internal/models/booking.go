package models

import (
	"fmt"
	"strings"
	"time"

	"venuebook/internal/interval"

	"github.com/google/uuid"
)

// BookingType distinguishes whole-day reservations from hourly windows.
type BookingType string

const (
	BookingTypeHourly BookingType = "hourly"
	BookingTypeDaily  BookingType = "daily"
)

func (t BookingType) Valid() bool {
	return t == BookingTypeHourly || t == BookingTypeDaily
}

// BookingStatus is the administrative status of a booking.
type BookingStatus string

const (
	StatusPendingReview BookingStatus = "pending_review"
	StatusConfirmed     BookingStatus = "confirmed"
	StatusCancelled     BookingStatus = "cancelled"
	StatusCompleted     BookingStatus = "completed"
	StatusDeclined      BookingStatus = "declined"
)

// LifecycleStatus is the operational phase of a booking.
type LifecycleStatus string

const (
	LifecyclePending              LifecycleStatus = "pending"
	LifecycleConfirmed            LifecycleStatus = "confirmed"
	LifecyclePreEventReady        LifecycleStatus = "pre_event_ready"
	LifecycleInProgress           LifecycleStatus = "in_progress"
	LifecyclePostEvent            LifecycleStatus = "post_event"
	LifecycleClosedReviewComplete LifecycleStatus = "closed_review_complete"
	LifecycleCancelled            LifecycleStatus = "cancelled"
)

// PaymentStatus tracks deposit and balance payments.
type PaymentStatus string

const (
	PaymentUnpaid          PaymentStatus = "unpaid"
	PaymentPending         PaymentStatus = "pending_payment"
	PaymentDepositPaid     PaymentStatus = "deposit_paid"
	PaymentPaidInFull      PaymentStatus = "paid_in_full"
	PaymentInvoiced        PaymentStatus = "invoiced"
	PaymentInvoiceAccepted PaymentStatus = "invoice_accepted"
	PaymentRefunded        PaymentStatus = "refunded"
)

// IsCommitted reports whether the payment state represents an accepted
// reservation that holds the calendar.
func (p PaymentStatus) IsCommitted() bool {
	switch p {
	case PaymentDepositPaid, PaymentPaidInFull, PaymentInvoiceAccepted:
		return true
	default:
		return false
	}
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPending, PaymentDepositPaid, PaymentPaidInFull,
		PaymentInvoiced, PaymentInvoiceAccepted, PaymentRefunded:
		return true
	default:
		return false
	}
}

// Booking represents a single reservation of the venue.
type Booking struct {
	ID                    int64               `json:"id"`
	Code                  string              `json:"code"`
	CustomerName          string              `json:"customer_name"`
	CustomerEmail         string              `json:"customer_email"`
	CustomerPhone         string              `json:"customer_phone,omitempty"`
	EventDate             interval.Date       `json:"event_date"`
	Type                  BookingType         `json:"booking_type"`
	StartTime             *interval.TimeOfDay `json:"start_time,omitempty"` // hourly only
	EndTime               *interval.TimeOfDay `json:"end_time,omitempty"`   // hourly only
	Status                BookingStatus       `json:"status"`
	LifecycleStatus       LifecycleStatus     `json:"lifecycle_status"`
	PaymentStatus         PaymentStatus       `json:"payment_status"`
	TotalCents            int64               `json:"total_cents"`
	PaidCents             int64               `json:"paid_cents"`
	SignedAt              *time.Time          `json:"signed_at,omitempty"`
	HostReportSubmittedAt *time.Time          `json:"host_report_submitted_at,omitempty"`
	BalanceLinkURL        string              `json:"balance_link_url,omitempty"`
	Notes                 string              `json:"notes,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
	Version               int64               `json:"version"`
}

// NewBookingCode returns a human-readable reservation code.
func NewBookingCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "VB-" + strings.ToUpper(id[:8])
}

// Window returns the occupied time window on EventDate.
func (b *Booking) Window() interval.Window {
	if b.Type == BookingTypeDaily || b.StartTime == nil || b.EndTime == nil {
		return interval.FullDay
	}
	return interval.Window{Start: *b.StartTime, End: *b.EndTime}
}

// IsDaily reports whether the booking holds the whole day.
func (b *Booking) IsDaily() bool {
	return b.Type == BookingTypeDaily
}

// IsCommitted reports whether the booking holds the calendar.
func (b *Booking) IsCommitted() bool {
	return b.LifecycleStatus != LifecycleCancelled &&
		b.Status != StatusCancelled &&
		b.Status != StatusDeclined &&
		b.PaymentStatus.IsCommitted()
}

// IsCancelled reports whether the booking reached the cancelled phase.
func (b *Booking) IsCancelled() bool {
	return b.LifecycleStatus == LifecycleCancelled
}

// EventStart is the instant the event begins in loc.
func (b *Booking) EventStart(loc *time.Location) time.Time {
	return b.EventDate.At(b.Window().Start, loc)
}

// EventEnd is event_date 23:59:59 for daily bookings, else event_date at end_time.
func (b *Booking) EventEnd(loc *time.Location) time.Time {
	if b.IsDaily() || b.EndTime == nil {
		return b.EventDate.At(interval.LastSecond, loc)
	}
	return b.EventDate.At(*b.EndTime, loc)
}

// BalanceDueCents is the outstanding amount.
func (b *Booking) BalanceDueCents() int64 {
	if due := b.TotalCents - b.PaidCents; due > 0 {
		return due
	}
	return 0
}

// Describe formats the booking slot for messages and logs.
func (b *Booking) Describe() string {
	if b.IsDaily() {
		return fmt.Sprintf("%s %s (full day)", b.Code, b.EventDate)
	}
	return fmt.Sprintf("%s %s %s", b.Code, b.EventDate, b.Window())
}
