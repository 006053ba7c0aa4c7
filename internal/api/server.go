// Package api exposes the booking engine over HTTP JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"venuebook/internal/availability"
	"venuebook/internal/booking"
	"venuebook/internal/interval"
	"venuebook/internal/jobs"
	"venuebook/internal/lock"
	"venuebook/internal/models"
	"venuebook/internal/trigger"

	"github.com/rs/zerolog"
)

// BookingService is the booking lifecycle surface.
type BookingService interface {
	Get(ctx context.Context, id int64) (*models.Booking, error)
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64) (*models.Booking, error)
	RecordPayment(ctx context.Context, id int64, p booking.PaymentUpdate) (*models.Booking, error)
	RecordSignature(ctx context.Context, id int64, signedAt time.Time) (*models.Booking, error)
	MarkPreEventReady(ctx context.Context, id int64) (*models.Booking, error)
	SubmitHostReport(ctx context.Context, id int64) (*models.Booking, error)
	CompleteReview(ctx context.Context, id int64) (*models.Booking, error)
	Reschedule(ctx context.Context, id int64, req booking.RescheduleRequest) (*models.Booking, error)
	Cancel(ctx context.Context, id int64, reason string) (*models.Booking, error)
}

// AvailabilityService answers availability questions and manages holds.
type AvailabilityService interface {
	Check(ctx context.Context, c availability.Candidate) (availability.Decision, error)
	Calendar(ctx context.Context, from, to interval.Date) ([]availability.DayAvailability, error)
	CreateBlock(ctx context.Context, block *models.AvailabilityBlock) error
	DeleteBlock(ctx context.Context, id int64) error
	CreateBlackout(ctx context.Context, blackout *models.BlackoutDate) error
	DeleteBlackout(ctx context.Context, id int64) error
}

// JobAdmin is the operator view of the job queue.
type JobAdmin interface {
	List(ctx context.Context, filter models.JobFilter) ([]models.ScheduledJob, error)
	Requeue(ctx context.Context, id int64) error
	Health(ctx context.Context) (jobs.Health, error)
}

// Runner runs the periodic work on demand, for external schedulers.
type Runner interface {
	RunJobs(ctx context.Context, limit int) (jobs.Result, error)
	RunLifecycle(ctx context.Context) (trigger.LifecycleRun, error)
}

// EventLister reads a booking's audit trail.
type EventLister interface {
	ListEvents(ctx context.Context, bookingID int64) ([]models.BookingEvent, error)
}

// Deps groups the collaborators of the HTTP server.
type Deps struct {
	Bookings     BookingService
	Availability AvailabilityService
	Jobs         JobAdmin
	Runner       Runner
	Events       EventLister
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	deps   Deps
	apiKey string
	logger zerolog.Logger
	server *http.Server
}

// NewHTTPServer builds the server. An empty apiKey disables authentication.
func NewHTTPServer(port int, apiKey string, deps Deps, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		deps:   deps,
		apiKey: apiKey,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("POST /api/blocks", s.handleCreateBlock)
	mux.HandleFunc("DELETE /api/blocks/{id}", s.handleDeleteBlock)
	mux.HandleFunc("POST /api/blackouts", s.handleCreateBlackout)
	mux.HandleFunc("DELETE /api/blackouts/{id}", s.handleDeleteBlackout)

	mux.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("GET /api/bookings/{id}/events", s.handleBookingEvents)
	mux.HandleFunc("POST /api/bookings/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/bookings/{id}/payments", s.handlePayment)
	mux.HandleFunc("POST /api/bookings/{id}/signature", s.handleSignature)
	mux.HandleFunc("POST /api/bookings/{id}/pre-event-ready", s.handlePreEventReady)
	mux.HandleFunc("POST /api/bookings/{id}/host-report", s.handleHostReport)
	mux.HandleFunc("POST /api/bookings/{id}/review", s.handleReview)
	mux.HandleFunc("POST /api/bookings/{id}/reschedule", s.handleReschedule)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.handleCancel)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/health", s.handleJobHealth)
	mux.HandleFunc("POST /api/jobs/{id}/requeue", s.handleRequeueJob)
	mux.HandleFunc("POST /api/trigger/jobs", s.handleTriggerJobs)
	mux.HandleFunc("POST /api/trigger/lifecycle", s.handleTriggerLifecycle)

	return s.withAuth(mux)
}

func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorBody struct {
	Error    string                      `json:"error"`
	Field    string                      `json:"field,omitempty"`
	Conflict *availability.ConflictError `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps domain errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	var conflict *availability.ConflictError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: conflict.Message, Conflict: conflict})
	case errors.Is(err, models.ErrPastDate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "booking was modified concurrently, retry")
	case booking.IsTerminalStateError(err),
		errors.Is(err, models.ErrRequirementsNotMet),
		errors.Is(err, jobs.ErrNotRequeueable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		writeError(w, http.StatusServiceUnavailable, "date is busy, retry shortly")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return models.Invalid("", "invalid JSON body: %v", err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return models.Invalid("", "invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.Invalid("id", "must be a positive integer")
	}
	return id, nil
}
