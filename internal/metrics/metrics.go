package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "venuebook"

var (
	once sync.Once

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Count of availability checks by verdict.",
		},
		[]string{"verdict"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by booking type.",
		},
		[]string{"type"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of rejected booking requests by conflict kind.",
		},
		[]string{"kind"},
	)

	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Count of lifecycle transitions by target phase.",
		},
		[]string{"to"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Count of scheduled job attempts by type and outcome.",
		},
		[]string{"job_type", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job handler latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	jobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Number of scheduled jobs by status.",
		},
		[]string{"status"},
	)

	reservationLocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_lock_total",
			Help:      "Reservation lock acquisitions by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by channel and result.",
		},
		[]string{"channel", "result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			availabilityChecks,
			bookingCreated,
			bookingConflicts,
			lifecycleTransitions,
			jobsProcessed,
			jobDuration,
			jobsByStatus,
			reservationLocks,
			notifications,
			httpRequests,
		)
	})
}

func IncAvailabilityCheck(verdict string) {
	availabilityChecks.WithLabelValues(verdict).Inc()
}

func IncBookingCreated(bookingType string) {
	bookingCreated.WithLabelValues(bookingType).Inc()
}

func IncBookingConflict(kind string) {
	bookingConflicts.WithLabelValues(kind).Inc()
}

func IncLifecycleTransition(to string) {
	lifecycleTransitions.WithLabelValues(to).Inc()
}

// ObserveJob records one handler execution.
func ObserveJob(jobType, outcome string, took time.Duration) {
	jobsProcessed.WithLabelValues(jobType, outcome).Inc()
	jobDuration.WithLabelValues(jobType).Observe(took.Seconds())
}

func SetJobsByStatus(status string, n int) {
	jobsByStatus.WithLabelValues(status).Set(float64(n))
}

func IncReservationLock(result string) {
	reservationLocks.WithLabelValues(result).Inc()
}

func IncNotification(channel, result string) {
	notifications.WithLabelValues(channel, result).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
