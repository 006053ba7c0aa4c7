package jobs

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same eligibility rules as the
// sqlite implementation.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*models.ScheduledJob
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[int64]*models.ScheduledJob)}
}

func (m *memStore) EnqueueJob(_ context.Context, job *models.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) EnqueueJobOnce(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	m.mu.Lock()
	for _, j := range m.jobs {
		if j.BookingID != nil && job.BookingID != nil && *j.BookingID == *job.BookingID &&
			j.Type == job.Type && (j.Status == models.JobPending || j.Status == models.JobCompleted) {
			m.mu.Unlock()
			return false, nil
		}
	}
	m.mu.Unlock()
	return true, m.EnqueueJob(ctx, job)
}

func (m *memStore) GetJob(_ context.Context, id int64) (*models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, f models.JobFilter) ([]models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledJob
	for _, j := range m.jobs {
		if f.BookingID != nil && (j.BookingID == nil || *j.BookingID != *f.BookingID) {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memStore) DueJobs(_ context.Context, now time.Time, maxAttempts, limit int) ([]models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledJob
	for _, j := range m.jobs {
		if j.Status == models.JobPending && !j.RunAt.After(now) && j.Attempts < maxAttempts {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].RunAt.Equal(out[b].RunAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].RunAt.Before(out[b].RunAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) IncrementJobAttempts(_ context.Context, id int64, maxAttempts int, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobPending || j.Attempts >= maxAttempts {
		return 0, models.ErrNotFound
	}
	j.Attempts++
	return j.Attempts, nil
}

func (m *memStore) FailExhaustedJobs(_ context.Context, maxAttempts int, message string, _ time.Time) ([]models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledJob
	for _, j := range m.jobs {
		if j.Status == models.JobPending && j.Attempts >= maxAttempts {
			j.Status = models.JobFailed
			j.LastError = message
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memStore) CompleteJob(_ context.Context, id int64, note string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = models.JobCompleted
	j.LastError = note
	j.CompletedAt = &now
	return nil
}

func (m *memStore) RecordJobError(_ context.Context, id int64, msg string, terminal bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.LastError = msg
	if terminal {
		j.Status = models.JobFailed
	}
	return nil
}

func (m *memStore) RescheduleJob(_ context.Context, id int64, runAt, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobPending {
		return models.ErrNotFound
	}
	j.RunAt = runAt
	return nil
}

func (m *memStore) RequeueJob(_ context.Context, id int64, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = models.JobPending
	j.Attempts = 0
	j.LastError = ""
	j.RunAt = runAt
	return nil
}

func (m *memStore) CancelJob(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobPending {
		return models.ErrNotFound
	}
	j.Status = models.JobCancelled
	return nil
}

func (m *memStore) CancelJobs(_ context.Context, bookingID int64, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.BookingID != nil && *j.BookingID == bookingID &&
			(j.Status == models.JobPending || j.Status == models.JobFailed) {
			j.Status = models.JobCancelled
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountJobsByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.JobStatus]int)
	for _, j := range m.jobs {
		out[j.Status]++
	}
	return out, nil
}

// insertRaw bypasses the dispatch-table check.
func (m *memStore) insertRaw(job models.ScheduledJob) int64 {
	_ = m.EnqueueJob(context.Background(), &job)
	return job.ID
}

type recordedEvent struct {
	bookingID int64
	eventType string
	metadata  map[string]any
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) Record(_ context.Context, bookingID int64, eventType, _ string, metadata map[string]any) {
	f.events = append(f.events, recordedEvent{bookingID: bookingID, eventType: eventType, metadata: metadata})
}

var t0 = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func okHandler() Handler {
	return HandlerFunc(func(context.Context, *models.ScheduledJob) error { return nil })
}

func allOK() Handlers {
	return Handlers{
		SendConfirmation:         okHandler(),
		SyncCalendar:             okHandler(),
		CreateBalancePaymentLink: okHandler(),
		HostReportReminder:       okHandler(),
	}
}

func newTestProcessor(t *testing.T, store Store, handlers Handlers, now *time.Time) *Processor {
	t.Helper()
	logger := zerolog.New(io.Discard)
	p, err := NewProcessor(store, handlers, Config{Now: func() time.Time { return *now }}, &logger)
	require.NoError(t, err)
	return p
}

func bookingID(id int64) *int64 { return &id }

func TestNewProcessor_RequiresEveryHandler(t *testing.T) {
	logger := zerolog.New(io.Discard)
	h := allOK()
	h.HostReportReminder = nil

	_, err := NewProcessor(newMemStore(), h, Config{}, &logger)
	assert.ErrorContains(t, err, string(models.JobHostReportReminder))
}

func TestProcessDue_RetryBound(t *testing.T) {
	store := newMemStore()
	now := t0
	h := allOK()
	calls := 0
	h.CreateBalancePaymentLink = HandlerFunc(func(context.Context, *models.ScheduledJob) error {
		calls++
		return errors.New("payment processor unavailable")
	})
	p := newTestProcessor(t, store, h, &now)

	id, err := p.Enqueue(context.Background(), bookingID(1), models.JobCreateBalancePaymentLink, t0)
	require.NoError(t, err)

	for pass := 1; pass <= 3; pass++ {
		res, err := p.ProcessDue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed)
		assert.Equal(t, 1, res.Failed)

		job, _ := store.GetJob(context.Background(), id)
		assert.Equal(t, pass, job.Attempts)
		if pass < 3 {
			assert.Equal(t, models.JobPending, job.Status)
		}
		now = now.Add(5 * time.Minute)
	}

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, "payment processor unavailable", job.LastError)

	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 3, calls)
}

func TestProcessDue_Success(t *testing.T) {
	store := newMemStore()
	now := t0
	p := newTestProcessor(t, store, allOK(), &now)

	id, err := p.Enqueue(context.Background(), bookingID(1), models.JobSendConfirmation, t0.Add(-time.Minute))
	require.NoError(t, err)

	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Succeeded: 1}, res)

	job, _ := store.GetJob(context.Background(), id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, t0, *job.CompletedAt)
}

func TestProcessDue_MootCompletesWithReason(t *testing.T) {
	store := newMemStore()
	now := t0
	h := allOK()
	h.CreateBalancePaymentLink = HandlerFunc(func(context.Context, *models.ScheduledJob) error {
		return Moot("balance already fully paid")
	})
	p := newTestProcessor(t, store, h, &now)

	id, _ := p.Enqueue(context.Background(), bookingID(1), models.JobCreateBalancePaymentLink, t0)
	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Moot)
	assert.Equal(t, 0, res.Failed)

	job, _ := store.GetJob(context.Background(), id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "balance already fully paid", job.LastError)
}

func TestProcessDue_UnknownTypeFailsImmediately(t *testing.T) {
	store := newMemStore()
	now := t0
	recorder := &fakeRecorder{}
	p := newTestProcessor(t, store, allOK(), &now)
	p.SetEventRecorder(recorder)

	id := store.insertRaw(models.ScheduledJob{BookingID: bookingID(9), Type: "send_fax", RunAt: t0, Status: models.JobPending})

	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Exhausted)

	job, _ := store.GetJob(context.Background(), id)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "unknown job type")

	require.Len(t, recorder.events, 1)
	assert.Equal(t, models.EventJobFailed, recorder.events[0].eventType)
	assert.Equal(t, int64(9), recorder.events[0].bookingID)
}

func TestProcessDue_FailureDoesNotAbortBatch(t *testing.T) {
	store := newMemStore()
	now := t0
	var order []models.JobType
	h := Handlers{
		SendConfirmation: HandlerFunc(func(_ context.Context, j *models.ScheduledJob) error {
			order = append(order, j.Type)
			panic("template missing")
		}),
		SyncCalendar: HandlerFunc(func(_ context.Context, j *models.ScheduledJob) error {
			order = append(order, j.Type)
			return errors.New("sheets quota")
		}),
		CreateBalancePaymentLink: HandlerFunc(func(_ context.Context, j *models.ScheduledJob) error {
			order = append(order, j.Type)
			return nil
		}),
		HostReportReminder: okHandler(),
	}
	p := newTestProcessor(t, store, h, &now)

	_, _ = p.Enqueue(context.Background(), bookingID(1), models.JobCreateBalancePaymentLink, t0.Add(-time.Minute))
	_, _ = p.Enqueue(context.Background(), bookingID(1), models.JobSendConfirmation, t0.Add(-3*time.Minute))
	_, _ = p.Enqueue(context.Background(), bookingID(1), models.JobSyncCalendar, t0.Add(-2*time.Minute))

	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, []models.JobType{models.JobSendConfirmation, models.JobSyncCalendar, models.JobCreateBalancePaymentLink}, order)

	failed, _ := store.ListJobs(context.Background(), models.JobFilter{Type: models.JobSendConfirmation})
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].LastError, "handler panic")
	assert.Equal(t, models.JobPending, failed[0].Status)
}

func TestProcessDue_SkipsFutureJobsAndRespectsBatchSize(t *testing.T) {
	store := newMemStore()
	now := t0
	logger := zerolog.New(io.Discard)
	p, err := NewProcessor(store, allOK(), Config{BatchSize: 2, Now: func() time.Time { return now }}, &logger)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = p.Enqueue(context.Background(), nil, models.JobSyncCalendar, t0.Add(-time.Duration(i)*time.Minute))
	}
	future, _ := p.Enqueue(context.Background(), nil, models.JobSyncCalendar, t0.Add(time.Hour))

	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	res, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	job, _ := store.GetJob(context.Background(), future)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
}

func TestProcessDue_AttemptsIncrementedBeforeHandler(t *testing.T) {
	store := newMemStore()
	now := t0
	h := allOK()
	var seen int
	h.HostReportReminder = HandlerFunc(func(ctx context.Context, j *models.ScheduledJob) error {
		stored, _ := store.GetJob(ctx, j.ID)
		seen = stored.Attempts
		return nil
	})
	p := newTestProcessor(t, store, h, &now)
	_, _ = p.Enqueue(context.Background(), bookingID(1), models.JobHostReportReminder, t0)

	_, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestProcessDue_FailsJobsExhaustedByCrash(t *testing.T) {
	store := newMemStore()
	now := t0
	calls := 0
	h := allOK()
	h.SendConfirmation = HandlerFunc(func(context.Context, *models.ScheduledJob) error {
		calls++
		return nil
	})
	recorder := &fakeRecorder{}
	p := newTestProcessor(t, store, h, &now)
	p.SetEventRecorder(recorder)

	// Last attempt was counted but the process died before recording an outcome.
	id := store.insertRaw(models.ScheduledJob{
		BookingID: bookingID(4), Type: models.JobSendConfirmation, RunAt: t0, Status: models.JobPending, Attempts: 3,
	})

	res, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Exhausted)
	assert.Zero(t, calls)

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, exhaustedMessage, job.LastError)

	health, err := p.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, health.Failed)
	assert.Zero(t, health.Pending)
	assert.False(t, health.Healthy)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, models.EventJobFailed, recorder.events[0].eventType)
	assert.Equal(t, int64(4), recorder.events[0].bookingID)

	require.NoError(t, p.Requeue(context.Background(), id))
	res, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, calls)
}

func TestProcessDueLimit(t *testing.T) {
	store := newMemStore()
	now := t0
	p := newTestProcessor(t, store, allOK(), &now)

	for i := 0; i < 5; i++ {
		_, err := p.Enqueue(context.Background(), nil, models.JobSyncCalendar, t0.Add(-time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	res, err := p.ProcessDueLimit(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	health, err := p.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, health.Pending)

	res, err = p.ProcessDueLimit(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed, "non-positive limit falls back to the configured batch size")
}

func TestEnqueueOnce(t *testing.T) {
	store := newMemStore()
	now := t0
	p := newTestProcessor(t, store, allOK(), &now)

	_, created, err := p.EnqueueOnce(context.Background(), 1, models.JobHostReportReminder, t0)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = p.EnqueueOnce(context.Background(), 1, models.JobHostReportReminder, t0)
	require.NoError(t, err)
	assert.False(t, created)

	_, created, err = p.EnqueueOnce(context.Background(), 2, models.JobHostReportReminder, t0)
	require.NoError(t, err)
	assert.True(t, created)

	_, _, err = p.EnqueueOnce(context.Background(), 1, "send_fax", t0)
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRequeue(t *testing.T) {
	store := newMemStore()
	now := t0
	h := allOK()
	fail := true
	h.SyncCalendar = HandlerFunc(func(context.Context, *models.ScheduledJob) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})
	p := newTestProcessor(t, store, h, &now)
	id, _ := p.Enqueue(context.Background(), nil, models.JobSyncCalendar, t0)

	assert.ErrorIs(t, p.Requeue(context.Background(), id), ErrNotRequeueable)

	for i := 0; i < 3; i++ {
		_, _ = p.ProcessDue(context.Background())
	}
	health, err := p.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, health.Failed)
	assert.False(t, health.Healthy)

	fail = false
	require.NoError(t, p.Requeue(context.Background(), id))
	res, _ := p.ProcessDue(context.Background())
	assert.Equal(t, 1, res.Succeeded)

	job, _ := store.GetJob(context.Background(), id)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 1, job.Attempts)

	health, _ = p.Health(context.Background())
	assert.True(t, health.Healthy)
}

func TestCancelForBooking(t *testing.T) {
	store := newMemStore()
	now := t0
	p := newTestProcessor(t, store, allOK(), &now)

	done, _ := p.Enqueue(context.Background(), bookingID(1), models.JobSendConfirmation, t0)
	_, _ = p.ProcessDue(context.Background())
	_, _ = p.Enqueue(context.Background(), bookingID(1), models.JobHostReportReminder, t0.Add(time.Hour))
	_, _ = p.Enqueue(context.Background(), bookingID(2), models.JobHostReportReminder, t0.Add(time.Hour))

	n, err := p.CancelForBooking(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, _ := store.GetJob(context.Background(), done)
	assert.Equal(t, models.JobCompleted, job.Status)

	other, _ := p.List(context.Background(), models.JobFilter{BookingID: bookingID(2)})
	require.Len(t, other, 1)
	assert.Equal(t, models.JobPending, other[0].Status)
}

func TestIsMoot(t *testing.T) {
	m, ok := IsMoot(errors.Join(errors.New("wrapped"), Moot("nothing to do")))
	require.True(t, ok)
	assert.Equal(t, "nothing to do", m.Reason)

	_, ok = IsMoot(errors.New("plain"))
	assert.False(t, ok)
}
