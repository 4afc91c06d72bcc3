package domain

import (
	"context"
	"time"

	"bookpoint/internal/models"
)

// ScheduleReader is the read side the slot pipeline needs for one staff member and date.
type ScheduleReader interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetExtras(ctx context.Context, serviceID int64, ids []int64) ([]models.Extra, error)
	GetStaffSchedule(ctx context.Context, staffID int64, date time.Time) (*models.StaffMember, []models.AvailabilityBlock, error)
	ListBookings(ctx context.Context, staffID int64, date time.Time, statuses []string) ([]models.Booking, error)
}

// BookingTx is the view of the store inside one staff-day atomic unit.
type BookingTx interface {
	ScheduleReader
	BookingCodeExists(ctx context.Context, code string) (bool, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
}

// Repository is the storage collaborator of the booking core.
type Repository interface {
	ScheduleReader

	// WithinStaffDay runs fn in a transaction serialized with every other
	// commit for the same staff member and date. fn's error rolls it back.
	WithinStaffDay(ctx context.Context, staffID int64, date time.Time, fn func(tx BookingTx) error) error

	GetBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id int64, version int64, status string) error
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error)

	ListServices(ctx context.Context) ([]models.Service, error)
	ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error)
	ListExtras(ctx context.Context, serviceID int64) ([]models.Extra, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// CatalogWriter is used by the seed command.
type CatalogWriter interface {
	UpsertService(ctx context.Context, s *models.Service) error
	UpsertExtra(ctx context.Context, e *models.Extra) error
	UpsertStaff(ctx context.Context, s *models.StaffMember) error
	ReplaceAvailability(ctx context.Context, staffID int64, date time.Time, blocks []models.AvailabilityBlock) error
	SetSetting(ctx context.Context, key, value string) error
}

// SlotLocker serializes commits per key across goroutines or processes.
type SlotLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, code string, status string) error
}

type SlotService interface {
	GetTimeSlots(ctx context.Context, q SlotQuery) ([]models.TimeSlot, error)
}

type BookingService interface {
	CommitBooking(ctx context.Context, req CommitRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, code string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, code string, status string) (*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error)
}

type CatalogService interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error)
	ListExtras(ctx context.Context, serviceID int64) ([]models.Extra, error)
}

// SlotQuery selects the slot grid of one service, staff member and date.
type SlotQuery struct {
	ServiceID int64
	StaffID   int64
	Date      time.Time
	ExtraIDs  []int64
}

// CommitRequest is the input of CommitBooking. Date, StartTime and EndTime
// are wire strings (YYYY-MM-DD, HH:MM) and are validated by the committer.
type CommitRequest struct {
	ServiceID int64
	StaffID   int64
	Date      string
	StartTime string
	EndTime   string
	PartySize int
	ExtraIDs  []int64
	Customer  models.Customer
}
