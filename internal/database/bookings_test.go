package database

import (
	"context"
	"errors"
	"testing"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(fx catalogFixture, code, start, end, status string) *models.Booking {
	return &models.Booking{
		BookingCode:  code,
		ServiceID:    fx.service.ID,
		StaffID:      fx.staff.ID,
		Date:         testDay,
		StartTime:    start,
		EndTime:      end,
		BufferBefore: 5,
		BufferAfter:  5,
		PartySize:    1,
		Status:       status,
		Customer: models.Customer{
			FirstName: "Ivan",
			LastName:  "Petrov",
			Email:     "ivan@example.com",
			Phone:     "+79990000000",
			Note:      "window seat",
		},
		ExtraIDs: []int64{fx.extra.ID},
		Total:    decimal.RequireFromString("32.50"),
	}
}

func insertBooking(t *testing.T, db *DB, b *models.Booking) {
	t.Helper()
	err := db.WithinStaffDay(context.Background(), b.StaffID, b.Date, func(tx domain.BookingTx) error {
		return tx.InsertBooking(context.Background(), b)
	})
	require.NoError(t, err)
}

func TestInsertAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)

	b := newBooking(fx, "a1b2c3d4e5f60708", "10:00", "10:45", models.StatusPending)
	insertBooking(t, db, b)
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := db.GetBookingByCode(ctx, "a1b2c3d4e5f60708")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.True(t, got.Date.Equal(testDay))
	assert.Equal(t, "10:00", got.StartTime)
	assert.Equal(t, "10:45", got.EndTime)
	assert.Equal(t, 5, got.BufferBefore)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, b.Customer, got.Customer)
	assert.Equal(t, []int64{fx.extra.ID}, got.ExtraIDs)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("32.5")))
	assert.Equal(t, int64(1), got.Version)

	byID, err := db.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, got.BookingCode, byID.BookingCode)

	_, err = db.GetBookingByCode(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = db.GetBookingByID(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestWithinStaffDay_Rollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)

	errBoom := errors.New("boom")
	err := db.WithinStaffDay(ctx, fx.staff.ID, testDay, func(tx domain.BookingTx) error {
		if err := tx.InsertBooking(ctx, newBooking(fx, "rolledback", "10:00", "10:30", models.StatusPending)); err != nil {
			return err
		}
		exists, err := tx.BookingCodeExists(ctx, "rolledback")
		require.NoError(t, err)
		assert.True(t, exists)
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	_, err = db.GetBookingByCode(ctx, "rolledback")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestWithinStaffDay_ReadsInsideTransaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)
	insertBooking(t, db, newBooking(fx, "existing", "09:00", "09:30", models.StatusApproved))
	require.NoError(t, db.SetSetting(ctx, models.SettingBusinessHours, `{"start":"09:00","end":"17:00"}`))

	err := db.WithinStaffDay(ctx, fx.staff.ID, testDay, func(tx domain.BookingTx) error {
		svc, err := tx.GetService(ctx, fx.service.ID)
		require.NoError(t, err)
		assert.Equal(t, fx.service.Name, svc.Name)

		extras, err := tx.GetExtras(ctx, fx.service.ID, []int64{fx.extra.ID})
		require.NoError(t, err)
		assert.Len(t, extras, 1)

		staff, _, err := tx.GetStaffSchedule(ctx, fx.staff.ID, testDay)
		require.NoError(t, err)
		assert.True(t, staff.Provides(fx.service.ID))

		list, err := tx.ListBookings(ctx, fx.staff.ID, testDay, models.ActiveStatuses)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		exists, err := tx.BookingCodeExists(ctx, "existing")
		require.NoError(t, err)
		assert.True(t, exists)

		settings, ok := tx.(interface {
			GetSetting(ctx context.Context, key string) (string, bool, error)
		})
		require.True(t, ok)
		v, found, err := settings.GetSetting(ctx, models.SettingBusinessHours)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Contains(t, v, "09:00")
		return nil
	})
	require.NoError(t, err)
}

func TestInsertBooking_DuplicateCode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)
	insertBooking(t, db, newBooking(fx, "samecode", "09:00", "09:30", models.StatusPending))

	err := db.WithinStaffDay(ctx, fx.staff.ID, testDay, func(tx domain.BookingTx) error {
		return tx.InsertBooking(ctx, newBooking(fx, "samecode", "11:00", "11:30", models.StatusPending))
	})
	assert.Error(t, err)
}

func TestListBookings_StatusFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)

	insertBooking(t, db, newBooking(fx, "p1", "11:00", "11:30", models.StatusPending))
	insertBooking(t, db, newBooking(fx, "a1", "09:00", "09:30", models.StatusApproved))
	insertBooking(t, db, newBooking(fx, "c1", "10:00", "10:30", models.StatusCancelled))
	insertBooking(t, db, newBooking(fx, "c2", "12:00", "12:30", models.StatusCanceled))
	other := newBooking(fx, "d2", "09:00", "09:30", models.StatusPending)
	other.Date = testDay.AddDate(0, 0, 1)
	insertBooking(t, db, other)

	active, err := db.ListBookings(ctx, fx.staff.ID, testDay, models.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a1", active[0].BookingCode) // ordered by start time
	assert.Equal(t, "p1", active[1].BookingCode)

	all, err := db.ListBookings(ctx, fx.staff.ID, testDay, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := db.ListBookings(ctx, fx.staff.ID+1, testDay, models.ActiveStatuses)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)

	b := newBooking(fx, "versioned", "10:00", "10:30", models.StatusPending)
	insertBooking(t, db, b)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusApproved))

	got, err := db.GetBookingByCode(ctx, "versioned")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, int64(2), got.Version)

	// stale version loses
	err = db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	err = db.UpdateBookingStatusWithVersion(ctx, 999, 1, models.StatusCancelled)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetBookingsByDateRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)

	for i, code := range []string{"d0", "d1", "d2", "d3"} {
		b := newBooking(fx, code, "10:00", "10:30", models.StatusPending)
		b.Date = testDay.AddDate(0, 0, i)
		insertBooking(t, db, b)
	}

	list, err := db.GetBookingsByDateRange(ctx, testDay.AddDate(0, 0, 1), testDay.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "d1", list[0].BookingCode)
	assert.Equal(t, "d2", list[1].BookingCode)
}
