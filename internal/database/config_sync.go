package database

import (
	"context"
	"fmt"
	"time"

	"venuebook/internal/config"
)

const configBlackoutSource = "config"

// SyncBlackoutsFromConfig makes the config-sourced blackout rows match cfg.
// Rows created through the API are left alone.
func (db *DB) SyncBlackoutsFromConfig(ctx context.Context, cfg *config.BlackoutsConfig) error {
	if cfg == nil {
		return fmt.Errorf("blackouts config is nil")
	}
	ranges, err := cfg.Ranges()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blackout_dates WHERE source = ?`, configBlackoutSource); err != nil {
		return fmt.Errorf("clear config blackouts: %w", err)
	}

	now := time.Now().UTC()
	for _, r := range ranges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO blackout_dates (start_date, end_date, reason, source, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.Start, r.End, nullString(r.Reason), configBlackoutSource, now,
		)
		if err != nil {
			return fmt.Errorf("sync blackout %s..%s: %w", r.Start, r.End, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if db.logger != nil {
		db.logger.Info().Int("count", len(ranges)).Msg("Blackout dates synced from config")
	}
	return nil
}
