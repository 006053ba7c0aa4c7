package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"venuebook/internal/interval"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func testBooking() *models.Booking {
	start, end := interval.Clock(9, 0), interval.Clock(13, 0)
	return &models.Booking{
		ID:              123,
		Code:            "VB-0000ABCD",
		CustomerName:    "Test User",
		EventDate:       interval.MustParseDate("2026-12-25"),
		Type:            models.BookingTypeHourly,
		StartTime:       &start,
		EndTime:         &end,
		Status:          models.StatusConfirmed,
		LifecycleStatus: models.LifecycleConfirmed,
		PaymentStatus:   models.PaymentDepositPaid,
		UpdatedAt:       time.Date(2026, 12, 21, 11, 0, 0, 0, time.UTC),
	}
}

func TestBookingRowValues(t *testing.T) {
	b := testBooking()
	expected := []interface{}{
		"VB-0000ABCD", "2026-12-25", "hourly", "09:00-13:00", "Test User",
		"confirmed", "confirmed", "deposit_paid", "2026-12-21 11:00:00",
	}
	assert.Equal(t, expected, bookingRowValues(b))
	assert.Len(t, header, len(expected))

	b.Type = models.BookingTypeDaily
	assert.Equal(t, "full day", bookingRowValues(b)[3])
}

func TestCacheOperations(t *testing.T) {
	s := &SheetsSync{rowCache: make(map[int64]int)}

	s.setCachedRow(100, 5)
	row, ok := s.getCachedRow(100)
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	s.deleteCacheRow(100)
	_, ok = s.getCachedRow(100)
	assert.False(t, ok)

	s.setCachedRow(200, 10)
	s.ClearCache()
	_, ok = s.getCachedRow(200)
	assert.False(t, ok)
}

func TestRowFromRange(t *testing.T) {
	assert.Equal(t, 5, rowFromRange("Bookings!A5:I5"))
	assert.Equal(t, 12, rowFromRange("'My Sheet'!A12"))
	assert.Equal(t, 0, rowFromRange("garbage"))
}

// fakeSheets serves the subset of the Sheets v4 values API used by SheetsSync.
type fakeSheets struct {
	mu    sync.Mutex
	codes [][]interface{}
	calls []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.codes})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		f.codes = append(f.codes, []interface{}{vr.Values[0][0]})
		n := len(f.codes)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Bookings!A" + strconv.Itoa(n) + ":I" + strconv.Itoa(n)},
		})
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		_ = json.NewEncoder(w).Encode(map[string]any{})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestSheetsSyncPush(t *testing.T) {
	fake := &fakeSheets{codes: [][]interface{}{{"Code"}}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	svc, err := sheets.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	s := newSheetsSync(svc, "sheet-id", "Bookings", &logger)
	b := testBooking()

	require.NoError(t, s.Push(ctx, b))
	row, ok := s.getCachedRow(b.ID)
	require.True(t, ok)
	assert.Equal(t, 2, row)

	require.NoError(t, s.Push(ctx, b))
	assert.Equal(t, []string{"get", "append", "update"}, fake.calls)
}
