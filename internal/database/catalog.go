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

const serviceColumns = `id, name, description, duration, buffer_before, buffer_after,
	capacity_min, capacity_max, price, active`

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return getService(ctx, db.DB, id)
}

func (db *DB) GetExtras(ctx context.Context, serviceID int64, ids []int64) ([]models.Extra, error) {
	return getExtras(ctx, db.DB, serviceID, ids)
}

func (db *DB) GetStaffSchedule(ctx context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	return getStaffSchedule(ctx, db.DB, staffID, date)
}

// ListServices returns active services ordered by id.
func (db *DB) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

// ListStaff returns active staff; a positive serviceID keeps only those who provide it.
func (db *DB) ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error) {
	query := `SELECT id, name, email, phone, uses_custom_schedule, schedule_json, active
		FROM staff WHERE active = 1`
	var args []any
	if serviceID > 0 {
		query += ` AND id IN (SELECT staff_id FROM staff_services WHERE service_id = ?)`
		args = append(args, serviceID)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	var staff []models.StaffMember
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		staff = append(staff, *st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range staff {
		ids, err := staffServiceIDs(ctx, db.DB, staff[i].ID)
		if err != nil {
			return nil, err
		}
		staff[i].ServiceIDs = ids
	}
	return staff, nil
}

func (db *DB) ListExtras(ctx context.Context, serviceID int64) ([]models.Extra, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, name, price, duration, active
		FROM extras WHERE service_id = ? AND active = 1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extras: %w", err)
	}
	defer rows.Close()
	return scanExtras(rows)
}

func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	if err := s.Validate(); err != nil {
		return domain.Wrap(domain.KindInvalidInput, err, "invalid service")
	}
	if s.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO services (name, description, duration, buffer_before, buffer_after,
				capacity_min, capacity_max, price, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Name, s.Description, s.Duration, s.BufferBefore, s.BufferAfter,
			s.CapacityMin, s.CapacityMax, s.Price, s.Active)
		if err != nil {
			return fmt.Errorf("failed to insert service: %w", err)
		}
		s.ID, err = res.LastInsertId()
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, duration, buffer_before, buffer_after,
			capacity_min, capacity_max, price, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			duration = excluded.duration, buffer_before = excluded.buffer_before,
			buffer_after = excluded.buffer_after, capacity_min = excluded.capacity_min,
			capacity_max = excluded.capacity_max, price = excluded.price,
			active = excluded.active, updated_at = CURRENT_TIMESTAMP`,
		s.ID, s.Name, s.Description, s.Duration, s.BufferBefore, s.BufferAfter,
		s.CapacityMin, s.CapacityMax, s.Price, s.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert service %d: %w", s.ID, err)
	}
	return nil
}

func (db *DB) UpsertExtra(ctx context.Context, e *models.Extra) error {
	if e.Duration < 0 || e.Price.IsNegative() {
		return domain.Errorf(domain.KindInvalidInput, "extra %q: duration and price must not be negative", e.Name)
	}
	if e.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO extras (service_id, name, price, duration, active) VALUES (?, ?, ?, ?, ?)`,
			e.ServiceID, e.Name, e.Price, e.Duration, e.Active)
		if err != nil {
			return fmt.Errorf("failed to insert extra: %w", err)
		}
		e.ID, err = res.LastInsertId()
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO extras (id, service_id, name, price, duration, active) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			service_id = excluded.service_id, name = excluded.name, price = excluded.price,
			duration = excluded.duration, active = excluded.active`,
		e.ID, e.ServiceID, e.Name, e.Price, e.Duration, e.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert extra %d: %w", e.ID, err)
	}
	return nil
}

// UpsertStaff stores the staff row and replaces its service links.
func (db *DB) UpsertStaff(ctx context.Context, s *models.StaffMember) error {
	if err := s.Schedule.Validate(); err != nil {
		return domain.Wrap(domain.KindInvalidInput, err, "invalid staff schedule")
	}
	schedule, err := json.Marshal(s.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.ID == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO staff (name, email, phone, uses_custom_schedule, schedule_json, active)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.Name, s.Email, s.Phone, s.UsesCustomSchedule, string(schedule), s.Active)
		if err != nil {
			return fmt.Errorf("failed to insert staff: %w", err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO staff (id, name, email, phone, uses_custom_schedule, schedule_json, active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, email = excluded.email, phone = excluded.phone,
				uses_custom_schedule = excluded.uses_custom_schedule,
				schedule_json = excluded.schedule_json, active = excluded.active,
				updated_at = CURRENT_TIMESTAMP`,
			s.ID, s.Name, s.Email, s.Phone, s.UsesCustomSchedule, string(schedule), s.Active)
		if err != nil {
			return fmt.Errorf("failed to upsert staff %d: %w", s.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM staff_services WHERE staff_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to clear staff services: %w", err)
	}
	for _, serviceID := range s.ServiceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO staff_services (staff_id, service_id) VALUES (?, ?)`, s.ID, serviceID); err != nil {
			return fmt.Errorf("failed to link staff %d to service %d: %w", s.ID, serviceID, err)
		}
	}

	return tx.Commit()
}

// ReplaceAvailability swaps every block of staffID on date for blocks.
func (db *DB) ReplaceAvailability(ctx context.Context, staffID int64, date time.Time, blocks []models.AvailabilityBlock) error {
	for i := range blocks {
		if err := blocks[i].Validate(); err != nil {
			return domain.Wrap(domain.KindInvalidInput, err, "invalid availability block")
		}
	}
	day := date.Format(models.DateLayout)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability WHERE staff_id = ? AND date = ?`, staffID, day); err != nil {
		return fmt.Errorf("failed to clear availability: %w", err)
	}
	for i := range blocks {
		b := &blocks[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO availability (staff_id, date, start_time, end_time, is_available, note)
			VALUES (?, ?, ?, ?, ?, ?)`,
			staffID, day, strings.TrimSpace(b.StartTime), strings.TrimSpace(b.EndTime), b.IsAvailable, b.Note)
		if err != nil {
			return fmt.Errorf("failed to insert availability: %w", err)
		}
		b.ID, _ = res.LastInsertId()
		b.StaffID = staffID
	}

	return tx.Commit()
}

func getService(ctx context.Context, q querier, id int64) (*models.Service, error) {
	row := q.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "service %d not found", id)
	}
	return svc, err
}

// getExtras returns the active extras of serviceID among ids.
func getExtras(ctx context.Context, q querier, serviceID int64, ids []int64) ([]models.Extra, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, serviceID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := q.QueryContext(ctx, `
		SELECT id, service_id, name, price, duration, active
		FROM extras WHERE service_id = ? AND active = 1 AND id IN (`+placeholders+`)
		ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load extras: %w", err)
	}
	defer rows.Close()
	return scanExtras(rows)
}

func getStaffSchedule(ctx context.Context, q querier, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, phone, uses_custom_schedule, schedule_json, active
		FROM staff WHERE id = ?`, staffID)
	staff, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.Errorf(domain.KindNotFound, "staff %d not found", staffID)
	}
	if err != nil {
		return nil, nil, err
	}

	if staff.ServiceIDs, err = staffServiceIDs(ctx, q, staffID); err != nil {
		return nil, nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, staff_id, date, start_time, end_time, is_available, note
		FROM availability WHERE staff_id = ? AND date = ? ORDER BY start_time, id`,
		staffID, date.Format(models.DateLayout))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load availability: %w", err)
	}
	defer rows.Close()

	var blocks []models.AvailabilityBlock
	for rows.Next() {
		var b models.AvailabilityBlock
		var day string
		if err := rows.Scan(&b.ID, &b.StaffID, &day, &b.StartTime, &b.EndTime, &b.IsAvailable, &b.Note); err != nil {
			return nil, nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		if b.Date, err = parseDate(day); err != nil {
			return nil, nil, err
		}
		blocks = append(blocks, b)
	}
	return staff, blocks, rows.Err()
}

func staffServiceIDs(ctx context.Context, q querier, staffID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT service_id FROM staff_services WHERE staff_id = ? ORDER BY service_id`, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to load staff services: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(s scanner) (*models.Service, error) {
	var svc models.Service
	err := s.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Duration, &svc.BufferBefore,
		&svc.BufferAfter, &svc.CapacityMin, &svc.CapacityMax, &svc.Price, &svc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan service: %w", err)
	}
	return &svc, nil
}

// scanStaff decodes and validates the stored schedule.
func scanStaff(s scanner) (*models.StaffMember, error) {
	var st models.StaffMember
	var schedule string
	err := s.Scan(&st.ID, &st.Name, &st.Email, &st.Phone, &st.UsesCustomSchedule, &schedule, &st.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan staff: %w", err)
	}
	if schedule != "" {
		if err := json.Unmarshal([]byte(schedule), &st.Schedule); err != nil {
			return nil, fmt.Errorf("staff %d: invalid schedule json: %w", st.ID, err)
		}
	}
	if err := st.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("staff %d: %w", st.ID, err)
	}
	return &st, nil
}

func scanExtras(rows *sql.Rows) ([]models.Extra, error) {
	var extras []models.Extra
	for rows.Next() {
		var x models.Extra
		if err := rows.Scan(&x.ID, &x.ServiceID, &x.Name, &x.Price, &x.Duration, &x.Active); err != nil {
			return nil, fmt.Errorf("failed to scan extra: %w", err)
		}
		extras = append(extras, x)
	}
	return extras, rows.Err()
}
