package interval

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Window
		want bool
	}{
		{"touching boundary", Window{Clock(9, 0), Clock(13, 0)}, Window{Clock(13, 0), Clock(17, 0)}, false},
		{"partial overlap", Window{Clock(9, 0), Clock(13, 0)}, Window{Clock(12, 0), Clock(16, 0)}, true},
		{"contained", Window{Clock(9, 0), Clock(17, 0)}, Window{Clock(10, 0), Clock(11, 0)}, true},
		{"identical", Window{Clock(9, 0), Clock(10, 0)}, Window{Clock(9, 0), Clock(10, 0)}, true},
		{"disjoint", Window{Clock(8, 0), Clock(9, 0)}, Window{Clock(10, 0), Clock(11, 0)}, false},
		{"full day vs one hour", FullDay, Window{Clock(23, 0), EndOfDay}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.a.Overlaps(tt.b), tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestOverlapsSymmetryGrid(t *testing.T) {
	points := []TimeOfDay{Clock(0, 0), Clock(6, 0), Clock(9, 0), Clock(12, 30), Clock(13, 0), Clock(18, 0), EndOfDay}
	for _, as := range points {
		for _, ae := range points {
			for _, bs := range points {
				for _, be := range points {
					if as >= ae || bs >= be {
						continue
					}
					assert.Equal(t, Overlaps(as, ae, bs, be), Overlaps(bs, be, as, ae))
				}
			}
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("13:05")
	require.NoError(t, err)
	assert.Equal(t, Clock(13, 5), got)
	assert.Equal(t, "13:05", got.String())

	got, err = ParseTimeOfDay("23:59:59")
	require.NoError(t, err)
	assert.Equal(t, LastSecond, got)
	assert.Equal(t, "23:59:59", got.String())

	got, err = ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, got)

	for _, bad := range []string{"", "9:00", "25:00", "12:60", "24:01", "noon", "12"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("09:00", "13:00")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, w.Duration())

	_, err = ParseWindow("13:00", "13:00")
	assert.Error(t, err)

	_, err = ParseWindow("14:00", "13:00")
	assert.Error(t, err)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2025, time.June, 1), d)
	assert.Equal(t, "2025-06-01", d.String())

	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.After(d.AddDays(-1)))
	assert.Equal(t, NewDate(2025, time.March, 1), NewDate(2025, time.February, 29))

	_, err = ParseDate("01.06.2025")
	assert.Error(t, err)
}

func TestDateAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	d := NewDate(2025, time.July, 4)
	at := d.At(Clock(10, 30), loc)
	assert.Equal(t, 10, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, loc, at.Location())

	end := d.At(LastSecond, time.UTC)
	assert.Equal(t, time.Date(2025, time.July, 4, 23, 59, 59, 0, time.UTC), end)
}

func TestSameDayAndRange(t *testing.T) {
	a := NewDate(2025, time.July, 4)
	assert.True(t, SameDay(a, NewDate(2025, time.July, 4)))
	assert.False(t, SameDay(a, NewDate(2025, time.July, 5)))

	start := NewDate(2025, time.July, 1)
	end := NewDate(2025, time.July, 4)
	assert.True(t, WithinDateRange(start, start, end))
	assert.True(t, WithinDateRange(end, start, end))
	assert.True(t, WithinDateRange(NewDate(2025, time.July, 2), start, end))
	assert.False(t, WithinDateRange(NewDate(2025, time.June, 30), start, end))
	assert.False(t, WithinDateRange(NewDate(2025, time.July, 5), start, end))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2025-07-04"))
	assert.Equal(t, NewDate(2025, time.July, 4), d)

	require.NoError(t, d.Scan([]byte("2025-07-05T00:00:00Z")))
	assert.Equal(t, NewDate(2025, time.July, 5), d)

	require.NoError(t, d.Scan(time.Date(2025, time.July, 6, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, NewDate(2025, time.July, 6), d)

	assert.Error(t, d.Scan(42))
}

func TestTextEncoding(t *testing.T) {
	var w struct {
		Date  Date      `json:"date"`
		Start TimeOfDay `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-06-01","start":"09:30"}`), &w))
	assert.Equal(t, NewDate(2025, time.June, 1), w.Date)
	assert.Equal(t, Clock(9, 30), w.Start)

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-06-01","start":"09:30"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"date":"June 1"}`), &w))
}
