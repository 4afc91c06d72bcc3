package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/lib/pq"
)

const bookingColumns = `id, booking_code, service_id, staff_id, date, start_time, end_time,
	buffer_before, buffer_after, party_size, status, first_name, last_name, email, phone, note,
	extra_ids, total, created_at, updated_at, version`

func (s *Store) ListBookings(ctx context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	return listBookings(ctx, s.db, staffID, date, statuses)
}

// WithinStaffDay runs fn in a transaction holding a transaction-scoped advisory
// lock on (staff, date), so commits for other staff or dates proceed in parallel.
func (s *Store) WithinStaffDay(ctx context.Context, staffID int64, date time.Time, fn func(tx domain.BookingTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, staffDayKey(staffID, date)); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isRetryable(err) {
			return domain.Wrap(domain.KindSlotUnavailable, err, "concurrent commit for the same staff-day")
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func staffDayKey(staffID int64, date time.Time) string {
	return fmt.Sprintf("%d:%s", staffID, date.Format(models.DateLayout))
}

func (s *Store) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "booking %s not found", code)
	}
	return b, err
}

func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	return b, err
}

func (s *Store) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET status = $1, updated_at = now(), version = version + 1
		WHERE id = $2 AND version = $3`, status, id, version)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check booking: %w", err)
	}
	if !exists {
		return domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	return ErrConcurrentModification
}

func (s *Store) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE date BETWEEN $1 AND $2
		ORDER BY date, start_time, id`, dateOnly(start), dateOnly(end))
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return getService(ctx, t.tx, id)
}

func (t *txStore) GetExtras(ctx context.Context, serviceID int64, ids []int64) ([]models.Extra, error) {
	return getExtras(ctx, t.tx, serviceID, ids)
}

func (t *txStore) GetStaffSchedule(ctx context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	return getStaffSchedule(ctx, t.tx, staffID, date)
}

func (t *txStore) ListBookings(ctx context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	return listBookings(ctx, t.tx, staffID, date, statuses)
}

func (t *txStore) BookingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check booking code: %w", err)
	}
	return exists, nil
}

func (t *txStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	ids := b.ExtraIDs
	if ids == nil {
		ids = []int64{}
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO bookings (booking_code, service_id, staff_id, date, start_time, end_time,
			buffer_before, buffer_after, party_size, status, first_name, last_name, email, phone,
			note, extra_ids, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at, version`,
		b.BookingCode, b.ServiceID, b.StaffID, dateOnly(b.Date), b.StartTime, b.EndTime,
		b.BufferBefore, b.BufferAfter, b.PartySize, b.Status,
		b.Customer.FirstName, b.Customer.LastName, b.Customer.Email, b.Customer.Phone, b.Customer.Note,
		pq.Array(ids), b.Total,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateBookingCode, err)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func listBookings(ctx context.Context, q querier, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE staff_id = $1 AND date = $2`
	args := []any{staffID, dateOnly(date)}
	if len(statuses) > 0 {
		query += ` AND status = ANY($3)`
		args = append(args, pq.Array(statuses))
	}
	query += ` ORDER BY start_time, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBooking(s scanner) (*models.Booking, error) {
	var b models.Booking
	err := s.Scan(&b.ID, &b.BookingCode, &b.ServiceID, &b.StaffID, &b.Date, &b.StartTime, &b.EndTime,
		&b.BufferBefore, &b.BufferAfter, &b.PartySize, &b.Status,
		&b.Customer.FirstName, &b.Customer.LastName, &b.Customer.Email, &b.Customer.Phone, &b.Customer.Note,
		(*pq.Int64Array)(&b.ExtraIDs), &b.Total, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Date = dateOnly(b.Date)
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
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
