package api

import (
	"net/http"
	"strconv"

	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

const maxJobListLimit = 500

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_jobs")

	filter, err := parseJobFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.deps.Jobs.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func parseJobFilter(r *http.Request) (models.JobFilter, error) {
	q := r.URL.Query()
	filter := models.JobFilter{
		Status: models.JobStatus(q.Get("status")),
		Type:   models.JobType(q.Get("type")),
		Limit:  100,
	}
	switch filter.Status {
	case "", models.JobPending, models.JobCompleted, models.JobFailed, models.JobCancelled:
	default:
		return filter, models.Invalid("status", "unknown job status %q", filter.Status)
	}
	if v := q.Get("booking_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return filter, models.Invalid("booking_id", "must be a positive integer")
		}
		filter.BookingID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJobListLimit {
			return filter, models.Invalid("limit", "must be between 1 and %d", maxJobListLimit)
		}
		filter.Limit = n
	}
	return filter, nil
}

func (s *HTTPServer) handleJobHealth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("job_health")

	health, err := s.deps.Jobs.Health(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *HTTPServer) handleRequeueJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("requeue_job")

	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.deps.Jobs.Requeue(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.JobPending})
}

// handleTriggerJobs runs one processing pass, for deployments that schedule
// the engine from outside. ?limit caps the batch.
func (s *HTTPServer) handleTriggerJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("trigger_jobs")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJobListLimit {
			s.writeServiceError(w, r, models.Invalid("limit", "must be between 1 and %d", maxJobListLimit))
			return
		}
		limit = n
	}

	res, err := s.deps.Runner.RunJobs(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleTriggerLifecycle(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("trigger_lifecycle")

	res, err := s.deps.Runner.RunLifecycle(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
