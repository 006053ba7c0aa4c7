package config

import (
	"cmp"
	"context"
	"os"
	"slices"
	"time"
)

// WatchBlackouts loads the blackout file, hands it to onUpdate, then polls
// the file and calls onUpdate again whenever the set of blackout ranges
// changes. Edits that only reorder entries or touch the file are ignored,
// as are reloads that fail validation; the last good set stays in effect.
func WatchBlackouts(ctx context.Context, path string, interval time.Duration, onUpdate func(*BlackoutsConfig)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadBlackoutsConfig(path)
	if err != nil {
		return err
	}
	applied := blackoutSet(cfg)
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil || info.ModTime().Equal(lastMod) {
					continue
				}
				cfg, err := LoadBlackoutsConfig(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				next := blackoutSet(cfg)
				if slices.Equal(next, applied) {
					continue
				}
				applied = next
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}

// blackoutSet returns the parsed ranges in a canonical order. cfg must
// already be validated.
func blackoutSet(cfg *BlackoutsConfig) []BlackoutRange {
	ranges, _ := cfg.Ranges()
	slices.SortFunc(ranges, func(a, b BlackoutRange) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := a.End.Compare(b.End); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	return ranges
}
