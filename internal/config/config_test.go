package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VB_PAYMENTS_KEY", "sk_test_123")
	path := writeFile(t, dir, "config.yaml", `
venue:
  name: Harbor Hall
  timezone: Europe/Berlin
database:
  path: `+filepath.Join(dir, "data", "vb.db")+`
payments:
  base_url: https://payments.example.com
  api_key: ${VB_PAYMENTS_KEY}
jobs:
  process_interval_minutes: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Harbor Hall", cfg.Venue.Name)
	assert.Equal(t, "sk_test_123", cfg.Payments.APIKey)
	assert.Equal(t, "USD", cfg.Payments.Currency)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, 50, cfg.Jobs.BatchSize)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Minute, cfg.ProcessInterval())
	assert.Equal(t, time.Hour, cfg.LifecycleInterval())
	assert.Equal(t, 14*24*time.Hour, cfg.BalanceLinkLead())
	assert.Equal(t, 2*time.Hour, cfg.HostReportReminderDelay())
	assert.DirExists(t, filepath.Join(dir, "data"))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBlackoutRanges(t *testing.T) {
	tests := []struct {
		name    string
		entries []BlackoutConfig
		wantErr bool
		wantLen int
	}{
		{"single day defaults end", []BlackoutConfig{{Start: "2026-01-01"}}, false, 1},
		{"range", []BlackoutConfig{{Start: "2026-12-24", End: "2026-12-26"}}, false, 1},
		{"missing start", []BlackoutConfig{{End: "2026-12-26"}}, true, 0},
		{"bad date", []BlackoutConfig{{Start: "24.12.2026"}}, true, 0},
		{"end before start", []BlackoutConfig{{Start: "2026-12-26", End: "2026-12-24"}}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &BlackoutsConfig{Blackouts: tt.entries}
			got, err := cfg.Ranges()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
			assert.False(t, got[0].End.Before(got[0].Start))
		})
	}
}

func TestWatchBlackoutsReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blackouts.yaml", "blackouts:\n  - start: \"2026-01-01\"\n    reason: New Year\n")

	var (
		mu   sync.Mutex
		seen []int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchBlackouts(ctx, path, 10*time.Millisecond, func(cfg *BlackoutsConfig) {
		mu.Lock()
		seen = append(seen, len(cfg.Blackouts))
		mu.Unlock()
	})
	require.NoError(t, err)

	writeFile(t, dir, "blackouts.yaml", "blackouts:\n  - start: \"2026-01-01\"\n  - start: \"2026-12-25\"\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[1] == 2
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, seen[0])
	mu.Unlock()
}

func TestWatchBlackoutsIgnoresUnchangedRanges(t *testing.T) {
	dir := t.TempDir()
	body := "blackouts:\n  - start: \"2026-01-01\"\n    reason: New Year\n  - start: \"2026-12-24\"\n    end: \"2026-12-26\"\n"
	path := writeFile(t, dir, "blackouts.yaml", body)

	var (
		mu    sync.Mutex
		calls int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchBlackouts(ctx, path, 10*time.Millisecond, func(*BlackoutsConfig) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
	bump := func(offset time.Duration) {
		at := time.Now().Add(offset)
		require.NoError(t, os.Chtimes(path, at, at))
	}

	// Same ranges in a different order.
	writeFile(t, dir, "blackouts.yaml", "blackouts:\n  - start: \"2026-12-24\"\n    end: \"2026-12-26\"\n  - start: \"2026-01-01\"\n    reason: New Year\n")
	bump(time.Minute)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, count())

	// An invalid edit keeps the last good set.
	writeFile(t, dir, "blackouts.yaml", "blackouts:\n  - end: \"2026-01-01\"\n")
	bump(2 * time.Minute)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, count())

	writeFile(t, dir, "blackouts.yaml", "blackouts:\n  - start: \"2026-01-01\"\n    reason: New Year\n")
	bump(3 * time.Minute)
	assert.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchBlackoutsRejectsInvalidInitialFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "blackouts.yaml", "blackouts:\n  - end: \"2026-01-01\"\n")
	err := WatchBlackouts(context.Background(), path, time.Second, nil)
	assert.Error(t, err)
}
