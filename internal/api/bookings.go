package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

type signatureRequest struct {
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req booking.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.deps.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")
	s.withBooking(w, r, s.deps.Bookings.Get)
}

func (s *HTTPServer) handleBookingEvents(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_events")

	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := s.deps.Bookings.Get(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	events, err := s.deps.Events.ListEvents(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm_booking")
	s.withBooking(w, r, s.deps.Bookings.ConfirmBooking)
}

func (s *HTTPServer) handlePayment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("record_payment")

	var req booking.PaymentUpdate
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.withBooking(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.deps.Bookings.RecordPayment(ctx, id, req)
	})
}

func (s *HTTPServer) handleSignature(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("record_signature")

	var req signatureRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var signedAt time.Time
	if req.SignedAt != nil {
		signedAt = *req.SignedAt
	}
	s.withBooking(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.deps.Bookings.RecordSignature(ctx, id, signedAt)
	})
}

func (s *HTTPServer) handlePreEventReady(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pre_event_ready")
	s.withBooking(w, r, s.deps.Bookings.MarkPreEventReady)
}

func (s *HTTPServer) handleHostReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("host_report")
	s.withBooking(w, r, s.deps.Bookings.SubmitHostReport)
}

func (s *HTTPServer) handleReview(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("complete_review")
	s.withBooking(w, r, s.deps.Bookings.CompleteReview)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reschedule_booking")

	var req booking.RescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req.EventDate.IsZero() {
		s.writeServiceError(w, r, models.Invalid("event_date", "is required"))
		return
	}
	s.withBooking(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.deps.Bookings.Reschedule(ctx, id, req)
	})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")

	var req cancelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	s.withBooking(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.deps.Bookings.Cancel(ctx, id, reason)
	})
}

// withBooking runs op against the booking named in the path and writes the
// resulting booking.
func (s *HTTPServer) withBooking(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*models.Booking, error)) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := op(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
