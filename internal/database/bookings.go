package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"venuebook/internal/interval"
	"venuebook/internal/models"
)

const bookingColumns = `id, code, customer_name, customer_email, customer_phone, event_date, booking_type,
	start_time, end_time, status, lifecycle_status, payment_status, total_cents, paid_cents,
	signed_at, host_report_submitted_at, balance_link_url, notes, created_at, updated_at, version`

// BookingFilter narrows ListBookings. Zero fields are ignored.
type BookingFilter struct {
	Lifecycle []models.LifecycleStatus
	From      interval.Date
	To        interval.Date
	Limit     int
}

// CreateBooking inserts b and fills its id, timestamps and version.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	b.Version = 1

	res, err := db.ExecContext(ctx, `
		INSERT INTO bookings (code, customer_name, customer_email, customer_phone, event_date, booking_type,
			start_time, end_time, status, lifecycle_status, payment_status, total_cents, paid_cents,
			signed_at, host_report_submitted_at, balance_link_url, notes, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Code, b.CustomerName, b.CustomerEmail, nullString(b.CustomerPhone), b.EventDate, string(b.Type),
		nullTimeOfDay(b.StartTime), nullTimeOfDay(b.EndTime), string(b.Status), string(b.LifecycleStatus),
		string(b.PaymentStatus), b.TotalCents, b.PaidCents, nullTime(b.SignedAt), nullTime(b.HostReportSubmittedAt),
		nullString(b.BalanceLinkURL), nullString(b.Notes), b.CreatedAt, b.UpdatedAt, b.Version,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

// GetBooking returns the booking or models.ErrNotFound.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, models.ErrNotFound)
	}
	return b, err
}

// GetBookingByCode looks a booking up by its reservation code.
func (db *DB) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE code = ?`, code)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", code, models.ErrNotFound)
	}
	return b, err
}

// UpdateBooking writes every mutable field guarded by the version column.
// On success b.Version is incremented; a stale version yields
// models.ErrConcurrentUpdate.
func (db *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET
			customer_name = ?, customer_email = ?, customer_phone = ?, event_date = ?, booking_type = ?,
			start_time = ?, end_time = ?, status = ?, lifecycle_status = ?, payment_status = ?,
			total_cents = ?, paid_cents = ?, signed_at = ?, host_report_submitted_at = ?,
			balance_link_url = ?, notes = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		b.CustomerName, b.CustomerEmail, nullString(b.CustomerPhone), b.EventDate, string(b.Type),
		nullTimeOfDay(b.StartTime), nullTimeOfDay(b.EndTime), string(b.Status), string(b.LifecycleStatus),
		string(b.PaymentStatus), b.TotalCents, b.PaidCents, nullTime(b.SignedAt), nullTime(b.HostReportSubmittedAt),
		nullString(b.BalanceLinkURL), nullString(b.Notes), now, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.GetBooking(ctx, b.ID); err != nil {
			return err
		}
		return fmt.Errorf("booking %d: %w", b.ID, models.ErrConcurrentUpdate)
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

// ListBookings returns bookings ordered by event date.
func (db *DB) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Lifecycle) > 0 {
		marks := make([]string, len(f.Lifecycle))
		for i, st := range f.Lifecycle {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "lifecycle_status IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.From.IsZero() {
		where = append(where, "event_date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "event_date <= ?")
		args = append(args, f.To)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_date, start_time, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return db.queryBookings(ctx, query, args...)
}

// CommittedBookingsBetween returns bookings that hold the calendar on any
// date in [from, to].
func (db *DB) CommittedBookingsBetween(ctx context.Context, from, to interval.Date) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE event_date >= ? AND event_date <= ?
		  AND lifecycle_status != 'cancelled'
		  AND status NOT IN ('cancelled', 'declined')
		  AND payment_status IN ('deposit_paid', 'paid_in_full', 'invoice_accepted')
		ORDER BY event_date, start_time`,
		from, to,
	)
}

// BookingsInLifecycle returns every booking in one of the given phases.
func (db *DB) BookingsInLifecycle(ctx context.Context, statuses ...models.LifecycleStatus) ([]models.Booking, error) {
	return db.ListBookings(ctx, BookingFilter{Lifecycle: statuses})
}

// DeleteBooking physically removes a booking with its jobs and events. Used
// by cleanup paths only; cancellation is a status change.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM scheduled_jobs WHERE booking_id = ?`,
		`DELETE FROM booking_events WHERE booking_id = ?`,
		`DELETE FROM bookings WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete booking %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                     models.Booking
		phone, startTime, endTime, link, note sql.NullString
		signedAt, reportAt                    sql.NullTime
		bookingType, status, lifecycle, pay   string
	)
	err := row.Scan(
		&b.ID, &b.Code, &b.CustomerName, &b.CustomerEmail, &phone, &b.EventDate, &bookingType,
		&startTime, &endTime, &status, &lifecycle, &pay, &b.TotalCents, &b.PaidCents,
		&signedAt, &reportAt, &link, &note, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.CustomerPhone = phone.String
	b.Type = models.BookingType(bookingType)
	b.Status = models.BookingStatus(status)
	b.LifecycleStatus = models.LifecycleStatus(lifecycle)
	b.PaymentStatus = models.PaymentStatus(pay)
	b.BalanceLinkURL = link.String
	b.Notes = note.String
	b.SignedAt = timePtr(signedAt)
	b.HostReportSubmittedAt = timePtr(reportAt)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()

	if b.StartTime, err = parseTimeOfDay(startTime); err != nil {
		return nil, fmt.Errorf("booking %d start_time: %w", b.ID, err)
	}
	if b.EndTime, err = parseTimeOfDay(endTime); err != nil {
		return nil, fmt.Errorf("booking %d end_time: %w", b.ID, err)
	}
	return &b, nil
}

func nullTimeOfDay(t *interval.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func parseTimeOfDay(ns sql.NullString) (*interval.TimeOfDay, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := interval.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
