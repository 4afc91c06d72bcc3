package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/lib/pq"
)

const serviceColumns = `id, name, description, duration, buffer_before, buffer_after,
	capacity_min, capacity_max, price, active`

const staffColumns = `id, name, email, phone, uses_custom_schedule, schedule_json, service_ids, active`

func (s *Store) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return getService(ctx, s.db, id)
}

func (s *Store) GetExtras(ctx context.Context, serviceID int64, ids []int64) ([]models.Extra, error) {
	return getExtras(ctx, s.db, serviceID, ids)
}

func (s *Store) GetStaffSchedule(ctx context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	return getStaffSchedule(ctx, s.db, staffID, date)
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

func (s *Store) ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE active`
	var args []any
	if serviceID > 0 {
		query += ` AND $1 = ANY(service_ids)`
		args = append(args, serviceID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []models.StaffMember
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *Store) ListExtras(ctx context.Context, serviceID int64) ([]models.Extra, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_id, name, price, duration, active
		FROM extras WHERE service_id = $1 AND active ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list extras: %w", err)
	}
	defer rows.Close()
	return scanExtras(rows)
}

func (s *Store) UpsertService(ctx context.Context, svc *models.Service) error {
	if err := svc.Validate(); err != nil {
		return domain.Wrap(domain.KindInvalidInput, err, "invalid service")
	}
	if svc.ID == 0 {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO services (name, description, duration, buffer_before, buffer_after,
				capacity_min, capacity_max, price, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			svc.Name, svc.Description, svc.Duration, svc.BufferBefore, svc.BufferAfter,
			svc.CapacityMin, svc.CapacityMax, svc.Price, svc.Active).Scan(&svc.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, duration, buffer_before, buffer_after,
			capacity_min, capacity_max, price, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			duration = EXCLUDED.duration, buffer_before = EXCLUDED.buffer_before,
			buffer_after = EXCLUDED.buffer_after, capacity_min = EXCLUDED.capacity_min,
			capacity_max = EXCLUDED.capacity_max, price = EXCLUDED.price,
			active = EXCLUDED.active, updated_at = now()`,
		svc.ID, svc.Name, svc.Description, svc.Duration, svc.BufferBefore, svc.BufferAfter,
		svc.CapacityMin, svc.CapacityMax, svc.Price, svc.Active)
	if err != nil {
		return fmt.Errorf("upsert service %d: %w", svc.ID, err)
	}
	return nil
}

func (s *Store) UpsertExtra(ctx context.Context, e *models.Extra) error {
	if e.Duration < 0 || e.Price.IsNegative() {
		return domain.Errorf(domain.KindInvalidInput, "extra %q: duration and price must not be negative", e.Name)
	}
	if e.ID == 0 {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO extras (service_id, name, price, duration, active)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			e.ServiceID, e.Name, e.Price, e.Duration, e.Active).Scan(&e.ID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extras (id, service_id, name, price, duration, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			service_id = EXCLUDED.service_id, name = EXCLUDED.name, price = EXCLUDED.price,
			duration = EXCLUDED.duration, active = EXCLUDED.active`,
		e.ID, e.ServiceID, e.Name, e.Price, e.Duration, e.Active)
	if err != nil {
		return fmt.Errorf("upsert extra %d: %w", e.ID, err)
	}
	return nil
}

func (s *Store) UpsertStaff(ctx context.Context, st *models.StaffMember) error {
	if err := st.Schedule.Validate(); err != nil {
		return domain.Wrap(domain.KindInvalidInput, err, "invalid staff schedule")
	}
	schedule, err := json.Marshal(st.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	ids := st.ServiceIDs
	if ids == nil {
		ids = []int64{}
	}

	if st.ID == 0 {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO staff (name, email, phone, uses_custom_schedule, schedule_json, service_ids, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			st.Name, st.Email, st.Phone, st.UsesCustomSchedule, string(schedule), pq.Array(ids), st.Active).Scan(&st.ID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, email, phone, uses_custom_schedule, schedule_json, service_ids, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			uses_custom_schedule = EXCLUDED.uses_custom_schedule,
			schedule_json = EXCLUDED.schedule_json, service_ids = EXCLUDED.service_ids,
			active = EXCLUDED.active, updated_at = now()`,
		st.ID, st.Name, st.Email, st.Phone, st.UsesCustomSchedule, string(schedule), pq.Array(ids), st.Active)
	if err != nil {
		return fmt.Errorf("upsert staff %d: %w", st.ID, err)
	}
	return nil
}

func (s *Store) ReplaceAvailability(ctx context.Context, staffID int64, date time.Time, blocks []models.AvailabilityBlock) error {
	for i := range blocks {
		if err := blocks[i].Validate(); err != nil {
			return domain.Wrap(domain.KindInvalidInput, err, "invalid availability block")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability WHERE staff_id = $1 AND date = $2`, staffID, date); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}
	for i := range blocks {
		b := &blocks[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO availability (staff_id, date, start_time, end_time, is_available, note)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			staffID, date, b.StartTime, b.EndTime, b.IsAvailable, b.Note).Scan(&b.ID)
		if err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
		b.StaffID = staffID
	}
	return tx.Commit()
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func getService(ctx context.Context, q querier, id int64) (*models.Service, error) {
	svc, err := scanService(q.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "service %d not found", id)
	}
	return svc, err
}

func getExtras(ctx context.Context, q querier, serviceID int64, ids []int64) ([]models.Extra, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, service_id, name, price, duration, active
		FROM extras WHERE service_id = $1 AND active AND id = ANY($2)
		ORDER BY id`, serviceID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load extras: %w", err)
	}
	defer rows.Close()
	return scanExtras(rows)
}

func getStaffSchedule(ctx context.Context, q querier, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	staff, err := scanStaff(q.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, staffID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.Errorf(domain.KindNotFound, "staff %d not found", staffID)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, staff_id, date, start_time, end_time, is_available, note
		FROM availability WHERE staff_id = $1 AND date = $2 ORDER BY start_time, id`, staffID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("load availability: %w", err)
	}
	defer rows.Close()

	var blocks []models.AvailabilityBlock
	for rows.Next() {
		var b models.AvailabilityBlock
		if err := rows.Scan(&b.ID, &b.StaffID, &b.Date, &b.StartTime, &b.EndTime, &b.IsAvailable, &b.Note); err != nil {
			return nil, nil, fmt.Errorf("scan availability: %w", err)
		}
		b.Date = dateOnly(b.Date)
		blocks = append(blocks, b)
	}
	return staff, blocks, rows.Err()
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
		return nil, fmt.Errorf("scan service: %w", err)
	}
	return &svc, nil
}

func scanStaff(s scanner) (*models.StaffMember, error) {
	var st models.StaffMember
	var schedule []byte
	err := s.Scan(&st.ID, &st.Name, &st.Email, &st.Phone, &st.UsesCustomSchedule, &schedule,
		(*pq.Int64Array)(&st.ServiceIDs), &st.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan staff: %w", err)
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &st.Schedule); err != nil {
			return nil, fmt.Errorf("staff %d: invalid schedule json: %w", st.ID, err)
		}
	}
	if err := st.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("staff %d: %w", st.ID, err)
	}
	return &st, nil
}

func scanExtras(rows *sql.Rows) ([]models.Extra, error) {
	var out []models.Extra
	for rows.Next() {
		var x models.Extra
		if err := rows.Scan(&x.ID, &x.ServiceID, &x.Name, &x.Price, &x.Duration, &x.Active); err != nil {
			return nil, fmt.Errorf("scan extra: %w", err)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
