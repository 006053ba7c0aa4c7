package models

import "time"

// JobType names a scheduled job handler.
type JobType string

const (
	JobSendConfirmation         JobType = "send_confirmation"
	JobSyncCalendar             JobType = "sync_calendar"
	JobCreateBalancePaymentLink JobType = "create_balance_payment_link"
	JobHostReportReminder       JobType = "host_report_reminder"
)

// AllJobTypes lists every job type the processor can dispatch.
var AllJobTypes = []JobType{
	JobSendConfirmation,
	JobSyncCalendar,
	JobCreateBalancePaymentLink,
	JobHostReportReminder,
}

// StandingJobTypes are enqueued once a booking becomes pre_event_ready.
var StandingJobTypes = []JobType{
	JobHostReportReminder,
	JobCreateBalancePaymentLink,
}

// JobStatus is the state of a scheduled job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ScheduledJob is a unit of deferred, retryable work.
type ScheduledJob struct {
	ID          int64      `json:"id"`
	BookingID   *int64     `json:"booking_id,omitempty"`
	Type        JobType    `json:"job_type"`
	RunAt       time.Time  `json:"run_at"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobFilter narrows job listings. Zero fields are ignored.
type JobFilter struct {
	BookingID *int64
	Status    JobStatus
	Type      JobType
	Limit     int
}
