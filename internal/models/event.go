package models

import "time"

// Booking event types.
const (
	EventBookingCreated      = "booking_created"
	EventBookingConfirmed    = "booking_confirmed"
	EventPaymentRecorded     = "payment_recorded"
	EventSignatureRecorded   = "signature_recorded"
	EventLifecycleChanged    = "lifecycle_changed"
	EventBookingRescheduled  = "booking_rescheduled"
	EventBookingCancelled    = "booking_cancelled"
	EventBookingDeclined     = "booking_declined"
	EventHostReportSubmitted = "host_report_submitted"
	EventJobEnqueueFailed    = "job_enqueue_failed"
	EventJobFailed           = "job_failed"
	EventNotificationSent    = "notification_sent"
)

// Event channels.
const (
	ChannelSystem   = "system"
	ChannelAPI      = "api"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelJob      = "job"
)

// BookingEvent is an append-only audit record.
type BookingEvent struct {
	ID        int64          `json:"id"`
	BookingID int64          `json:"booking_id"`
	Type      string         `json:"event_type"`
	Channel   string         `json:"channel"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
