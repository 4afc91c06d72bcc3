package postgres

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDay         = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
	serviceCols     = []string{"id", "name", "description", "duration", "buffer_before", "buffer_after", "capacity_min", "capacity_max", "price", "active"}
	staffCols       = []string{"id", "name", "email", "phone", "uses_custom_schedule", "schedule_json", "service_ids", "active"}
	availabilityCol = []string{"id", "staff_id", "date", "start_time", "end_time", "is_available", "note"}
	bookingCols     = []string{"id", "booking_code", "service_id", "staff_id", "date", "start_time", "end_time",
		"buffer_before", "buffer_after", "party_size", "status", "first_name", "last_name", "email", "phone", "note",
		"extra_ids", "total", "created_at", "updated_at", "version"}
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zerolog.New(io.Discard)
	return New(db, &logger), mock
}

func TestGetService(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT (.+) FROM services WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(serviceCols).AddRow(1, "Haircut", "", 30, 5, 5, 1, 1, "25.00", true))

	svc, err := store.GetService(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Haircut", svc.Name)
	assert.Equal(t, 30, svc.Duration)
	assert.True(t, svc.Price.Equal(decimal.RequireFromString("25")))

	mock.ExpectQuery(`SELECT (.+) FROM services WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(serviceCols))

	_, err = store.GetService(ctx, 2)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStaffSchedule(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT (.+) FROM staff WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(staffCols).
			AddRow(10, "Anna", "", "", false, `{"weekly":{"1":{"enabled":true}}}`, "{1,2}", true))
	mock.ExpectQuery(`FROM availability WHERE staff_id = \$1 AND date = \$2`).
		WithArgs(int64(10), testDay).
		WillReturnRows(sqlmock.NewRows(availabilityCol).
			AddRow(1, 10, testDay, "09:00", "12:00", true, "").
			AddRow(2, 10, testDay, "10:00", "10:30", false, "break"))

	staff, blocks, err := store.GetStaffSchedule(ctx, 10, testDay)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, staff.ServiceIDs)
	assert.True(t, staff.Schedule.Enabled(time.Monday))
	require.Len(t, blocks, 2)
	assert.False(t, blocks[1].IsAvailable)
	assert.Equal(t, "break", blocks[1].Note)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStaffSchedule_InvalidSchedule(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM staff WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(staffCols).
			AddRow(10, "Anna", "", "", false, `{"days_off":[{"from":"never"}]}`, "{1}", true))

	_, _, err := store.GetStaffSchedule(context.Background(), 10, testDay)
	require.Error(t, err)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookings_UsesStatusArray(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM bookings WHERE staff_id = \$1 AND date = \$2 AND status = ANY\(\$3\)`).
		WithArgs(int64(10), testDay, pq.Array(models.ActiveStatuses)).
		WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(
			7, "abcdef0123456789", 1, 10, testDay, "09:05", "09:35", 5, 5, 2, "pending",
			"Ivan", "", "ivan@example.com", "", "", "{100}", "32.50", now, now, 1))

	list, err := store.ListBookings(context.Background(), 10, testDay, models.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].PartySize)
	assert.Equal(t, []int64{100}, list[0].ExtraIDs)
	assert.True(t, list[0].Total.Equal(decimal.RequireFromString("32.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinStaffDay_Commit(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("10:2030-01-07").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM bookings WHERE booking_code = \$1\)`).
		WithArgs("abcdef0123456789").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO bookings`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "version"}).AddRow(7, now, now, 1))
	mock.ExpectCommit()

	booking := &models.Booking{
		BookingCode: "abcdef0123456789", ServiceID: 1, StaffID: 10, Date: testDay,
		StartTime: "09:05", EndTime: "09:35", PartySize: 1, Status: models.StatusPending,
		Total: decimal.RequireFromString("25"),
	}
	err := store.WithinStaffDay(ctx, 10, testDay, func(tx domain.BookingTx) error {
		exists, err := tx.BookingCodeExists(ctx, booking.BookingCode)
		if err != nil || exists {
			return errors.New("unexpected code state")
		}
		return tx.InsertBooking(ctx, booking)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), booking.ID)
	assert.Equal(t, int64(1), booking.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinStaffDay_RollbackOnError(t *testing.T) {
	store, mock := setupMockStore(t)
	errTaken := domain.Errorf(domain.KindSlotUnavailable, "taken")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.WithinStaffDay(context.Background(), 10, testDay, func(domain.BookingTx) error {
		return errTaken
	})
	assert.ErrorIs(t, err, errTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinStaffDay_SerializationFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: codeSerializationFailure})

	err := store.WithinStaffDay(context.Background(), 10, testDay, func(domain.BookingTx) error { return nil })
	assert.Equal(t, domain.KindSlotUnavailable, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBooking_DuplicateCode(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO bookings`).WillReturnError(&pq.Error{Code: codeUniqueViolation})
	mock.ExpectRollback()

	err := store.WithinStaffDay(ctx, 10, testDay, func(tx domain.BookingTx) error {
		return tx.InsertBooking(ctx, &models.Booking{BookingCode: "dup", Date: testDay})
	})
	assert.ErrorIs(t, err, ErrDuplicateBookingCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE bookings SET status = \$1`).
		WithArgs(models.StatusApproved, int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateBookingStatusWithVersion(ctx, 7, 1, models.StatusApproved))

	mock.ExpectExec(`UPDATE bookings SET status = \$1`).
		WithArgs(models.StatusCancelled, int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	err := store.UpdateBookingStatusWithVersion(ctx, 7, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	mock.ExpectExec(`UPDATE bookings SET status = \$1`).
		WithArgs(models.StatusCancelled, int64(8), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	err = store.UpdateBookingStatusWithVersion(ctx, 8, 1, models.StatusCancelled)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSetting(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs(models.SettingBusinessHours).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`{"start":"08:00","end":"18:00"}`))
	v, ok, err := store.GetSetting(ctx, models.SettingBusinessHours)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, v, "08:00")

	mock.ExpectQuery(`SELECT value FROM settings`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	_, ok, err = store.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncQueue(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO sync_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, now))
	task := &models.SyncTask{Target: "sheets", TaskType: models.SyncTaskUpsert, BookingID: 7}
	require.NoError(t, store.CreateSyncTask(ctx, task))
	assert.Equal(t, int64(3), task.ID)
	assert.Equal(t, models.SyncStatusPending, task.Status)

	mock.ExpectQuery(`FROM sync_queue`).
		WithArgs(models.SyncStatusPending, models.SyncStatusRetry, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "target", "task_type", "booking_id", "payload", "status",
			"retry_count", "last_error", "created_at", "processed_at", "next_retry_at"}).
			AddRow(3, "sheets", "upsert", 7, "", "pending", 0, nil, now, nil, nil))
	tasks, err := store.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].LastError)

	next := now.Add(time.Minute)
	mock.ExpectExec(`UPDATE sync_queue SET status = \$1, retry_count = retry_count \+ 1`).
		WithArgs(models.SyncStatusRetry, "boom", next, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateSyncTaskStatus(ctx, 3, models.SyncStatusRetry, "boom", &next))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLState(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isRetryable(&pq.Error{Code: "40P01"}))
	assert.False(t, isRetryable(errors.New("plain")))
	assert.Equal(t, "", sqlState(nil))
}
