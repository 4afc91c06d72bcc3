package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"
)

const bookingColumns = `id, booking_code, service_id, staff_id, date, start_time, end_time,
	buffer_before, buffer_after, party_size, status, first_name, last_name, email, phone, note,
	extras_json, total, created_at, updated_at, version`

func (db *DB) ListBookings(ctx context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	return listBookings(ctx, db.DB, staffID, date, statuses)
}

// WithinStaffDay runs fn inside one BEGIN IMMEDIATE transaction. SQLite allows
// a single writer, so commits for every staff-day are serialized here.
func (db *DB) WithinStaffDay(ctx context.Context, staffID int64, date time.Time, fn func(tx domain.BookingTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	db.logger.Debug().Int64("staff_id", staffID).Str("date", date.Format(models.DateLayout)).Msg("staff-day transaction committed")
	return nil
}

func (db *DB) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_code = ?`, code)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "booking %s not found", code)
	}
	return b, err
}

func (db *DB) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	return b, err
}

// UpdateBookingStatusWithVersion changes the status only if the stored version
// still matches, and bumps the version.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		status, time.Now(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}
	if !exists {
		return domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	return ErrConcurrentModification
}

// GetBookingsByDateRange returns bookings whose date falls in [start, end].
func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE date >= ? AND date <= ?
		ORDER BY date, start_time, id`,
		start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// txStore is the store view handed to WithinStaffDay callbacks.
type txStore struct {
	tx *sql.Tx
}

func (s *txStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return getService(ctx, s.tx, id)
}

func (s *txStore) GetExtras(ctx context.Context, serviceID int64, ids []int64) ([]models.Extra, error) {
	return getExtras(ctx, s.tx, serviceID, ids)
}

func (s *txStore) GetStaffSchedule(ctx context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	return getStaffSchedule(ctx, s.tx, staffID, date)
}

func (s *txStore) ListBookings(ctx context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	return listBookings(ctx, s.tx, staffID, date, statuses)
}

func (s *txStore) BookingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check booking code: %w", err)
	}
	return exists, nil
}

func (s *txStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	extras, err := json.Marshal(nonNilIDs(b.ExtraIDs))
	if err != nil {
		return fmt.Errorf("failed to encode extras: %w", err)
	}

	now := time.Now()
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO bookings (booking_code, service_id, staff_id, date, start_time, end_time,
			buffer_before, buffer_after, party_size, status, first_name, last_name, email, phone,
			note, extras_json, total, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.BookingCode, b.ServiceID, b.StaffID, b.Date.Format(models.DateLayout), b.StartTime, b.EndTime,
		b.BufferBefore, b.BufferAfter, b.PartySize, b.Status,
		b.Customer.FirstName, b.Customer.LastName, b.Customer.Email, b.Customer.Phone, b.Customer.Note,
		string(extras), b.Total, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if b.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

func listBookings(ctx context.Context, q querier, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE staff_id = ? AND date = ?`
	args := []any{staffID, date.Format(models.DateLayout)}
	if len(statuses) > 0 {
		query += ` AND status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",") + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY start_time, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBooking(s scanner) (*models.Booking, error) {
	var b models.Booking
	var day, extras string
	err := s.Scan(&b.ID, &b.BookingCode, &b.ServiceID, &b.StaffID, &day, &b.StartTime, &b.EndTime,
		&b.BufferBefore, &b.BufferAfter, &b.PartySize, &b.Status,
		&b.Customer.FirstName, &b.Customer.LastName, &b.Customer.Email, &b.Customer.Phone, &b.Customer.Note,
		&extras, &b.Total, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if b.Date, err = parseDate(day); err != nil {
		return nil, err
	}
	if extras != "" {
		if err := json.Unmarshal([]byte(extras), &b.ExtraIDs); err != nil {
			return nil, fmt.Errorf("booking %d: invalid extras json: %w", b.ID, err)
		}
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
