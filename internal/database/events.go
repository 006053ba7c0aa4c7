package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"venuebook/internal/models"
)

// InsertEvent appends a booking audit record.
func (db *DB) InsertEvent(ctx context.Context, e *models.BookingEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var meta sql.NullString
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		meta = sql.NullString{String: string(raw), Valid: true}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO booking_events (booking_id, event_type, channel, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.BookingID, e.Type, e.Channel, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListEvents returns a booking's audit trail, oldest first.
func (db *DB) ListEvents(ctx context.Context, bookingID int64) ([]models.BookingEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, event_type, channel, metadata, created_at
		FROM booking_events WHERE booking_id = ?
		ORDER BY created_at, id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.BookingEvent
	for rows.Next() {
		var (
			e    models.BookingEvent
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Type, &e.Channel, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("event %d metadata: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
