package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"venuebook/internal/interval"
	"venuebook/internal/models"
)

// CreateBlock inserts a manual hold.
func (db *DB) CreateBlock(ctx context.Context, b *models.AvailabilityBlock) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	var bookingID sql.NullInt64
	if b.BookingID != nil {
		bookingID = sql.NullInt64{Int64: *b.BookingID, Valid: true}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO availability_blocks (source, booking_id, block_type, start_date, end_date, start_time, end_time, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(b.Source), bookingID, string(b.BlockType), b.StartDate, b.EndDate,
		nullTimeOfDay(b.StartTime), nullTimeOfDay(b.EndTime), nullString(b.Reason), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

// DeleteBlock removes a hold; missing ids yield models.ErrNotFound.
func (db *DB) DeleteBlock(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, "availability_blocks", id)
}

// BlocksBetween returns holds whose date range intersects [from, to].
func (db *DB) BlocksBetween(ctx context.Context, from, to interval.Date) ([]models.AvailabilityBlock, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, source, booking_id, block_type, start_date, end_date, start_time, end_time, reason, created_at
		FROM availability_blocks
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY start_date, id`,
		to, from,
	)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []models.AvailabilityBlock
	for rows.Next() {
		var (
			b                          models.AvailabilityBlock
			source, blockType          string
			bookingID                  sql.NullInt64
			startTime, endTime, reason sql.NullString
		)
		if err := rows.Scan(&b.ID, &source, &bookingID, &blockType, &b.StartDate, &b.EndDate,
			&startTime, &endTime, &reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Source = models.BlockSource(source)
		b.BlockType = models.BlockType(blockType)
		b.Reason = reason.String
		if bookingID.Valid {
			id := bookingID.Int64
			b.BookingID = &id
		}
		if b.StartTime, err = parseTimeOfDay(startTime); err != nil {
			return nil, fmt.Errorf("block %d start_time: %w", b.ID, err)
		}
		if b.EndTime, err = parseTimeOfDay(endTime); err != nil {
			return nil, fmt.Errorf("block %d end_time: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateBlackout inserts a closed date range.
func (db *DB) CreateBlackout(ctx context.Context, b *models.BlackoutDate) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO blackout_dates (start_date, end_date, reason, created_at) VALUES (?, ?, ?, ?)`,
		b.StartDate, b.EndDate, nullString(b.Reason), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert blackout: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

func (db *DB) DeleteBlackout(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, "blackout_dates", id)
}

// BlackoutsBetween returns blackout ranges intersecting [from, to].
func (db *DB) BlackoutsBetween(ctx context.Context, from, to interval.Date) ([]models.BlackoutDate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, start_date, end_date, reason, created_at
		FROM blackout_dates
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY start_date, id`,
		to, from,
	)
	if err != nil {
		return nil, fmt.Errorf("query blackouts: %w", err)
	}
	defer rows.Close()

	var out []models.BlackoutDate
	for rows.Next() {
		var (
			b      models.BlackoutDate
			reason sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.StartDate, &b.EndDate, &reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Reason = reason.String
		out = append(out, b)
	}
	return out, rows.Err()
}

func (db *DB) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, models.ErrNotFound)
	}
	return nil
}
