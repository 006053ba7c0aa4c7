package api

import (
	"net/http"

	"venuebook/internal/availability"
	"venuebook/internal/interval"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

type availabilityResponse struct {
	Date      interval.Date               `json:"date"`
	Available bool                        `json:"available"`
	Verdict   availability.Verdict        `json:"verdict"`
	Conflict  *availability.ConflictError `json:"conflict,omitempty"`
}

// handleAvailability answers whether a whole day, or a window when start and
// end are given, can be booked.
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	q := r.URL.Query()
	date, err := interval.ParseDate(q.Get("date"))
	if err != nil {
		s.writeServiceError(w, r, models.Invalid("date", "expected YYYY-MM-DD"))
		return
	}

	c := availability.DailyCandidate(date)
	if q.Get("start") != "" || q.Get("end") != "" {
		window, err := interval.ParseWindow(q.Get("start"), q.Get("end"))
		if err != nil {
			s.writeServiceError(w, r, models.Invalid("window", "%v", err))
			return
		}
		c = availability.HourlyCandidate(date, window)
	}
	if err := c.Validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	decision, err := s.deps.Availability.Check(r.Context(), c)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		Date:      date,
		Available: decision.Verdict == availability.Available,
		Verdict:   decision.Verdict,
		Conflict:  decision.Conflict,
	})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")

	q := r.URL.Query()
	from, err := interval.ParseDate(q.Get("from"))
	if err != nil {
		s.writeServiceError(w, r, models.Invalid("from", "expected YYYY-MM-DD"))
		return
	}
	to, err := interval.ParseDate(q.Get("to"))
	if err != nil {
		s.writeServiceError(w, r, models.Invalid("to", "expected YYYY-MM-DD"))
		return
	}

	days, err := s.deps.Availability.Calendar(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_block")

	var block models.AvailabilityBlock
	if err := decodeJSON(r, &block); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	block.ID = 0
	if err := s.deps.Availability.CreateBlock(r.Context(), &block); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_block")

	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.deps.Availability.DeleteBlock(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCreateBlackout(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_blackout")

	var blackout models.BlackoutDate
	if err := decodeJSON(r, &blackout); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blackout.ID = 0
	if err := s.deps.Availability.CreateBlackout(r.Context(), &blackout); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, blackout)
}

func (s *HTTPServer) handleDeleteBlackout(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_blackout")

	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.deps.Availability.DeleteBlackout(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
