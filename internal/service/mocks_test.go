package service

import (
	"context"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetService(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *MockRepository) GetExtras(ctx context.Context, serviceID int64, ids []int64) ([]models.Extra, error) {
	args := m.Called(ctx, serviceID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Extra), args.Error(1)
}

func (m *MockRepository) GetStaffSchedule(ctx context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error) {
	args := m.Called(ctx, staffID, date)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	blocks, _ := args.Get(1).([]models.AvailabilityBlock)
	return args.Get(0).(*models.StaffMember), blocks, args.Error(2)
}

func (m *MockRepository) ListBookings(ctx context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error) {
	args := m.Called(ctx, staffID, date, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockRepository) WithinStaffDay(ctx context.Context, staffID int64, date time.Time, fn func(tx domain.BookingTx) error) error {
	return m.Called(ctx, staffID, date, fn).Error(0)
}

func (m *MockRepository) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockRepository) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error {
	return m.Called(ctx, id, version, status).Error(0)
}

func (m *MockRepository) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockRepository) ListServices(ctx context.Context) ([]models.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Service), args.Error(1)
}

func (m *MockRepository) ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StaffMember), args.Error(1)
}

func (m *MockRepository) ListExtras(ctx context.Context, serviceID int64) ([]models.Extra, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Extra), args.Error(1)
}

func (m *MockRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}
