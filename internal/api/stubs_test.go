package api

import (
	"context"
	"io"
	"time"

	"bookpoint/internal/config"
	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var testDay = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

type stubSlots struct {
	got   domain.SlotQuery
	slots []models.TimeSlot
	err   error
}

func (s *stubSlots) GetTimeSlots(_ context.Context, q domain.SlotQuery) ([]models.TimeSlot, error) {
	s.got = q
	return s.slots, s.err
}

type stubBookings struct {
	committed []domain.CommitRequest
	booking   *models.Booking
	err       error

	statusCode string
	status     string
}

func (s *stubBookings) CommitBooking(_ context.Context, req domain.CommitRequest) (*models.Booking, error) {
	s.committed = append(s.committed, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.booking, nil
}

func (s *stubBookings) GetBooking(_ context.Context, code string) (*models.Booking, error) {
	if s.booking == nil || s.booking.BookingCode != code {
		return nil, domain.Errorf(domain.KindNotFound, "booking %s not found", code)
	}
	return s.booking, nil
}

func (s *stubBookings) UpdateBookingStatus(_ context.Context, code, status string) (*models.Booking, error) {
	s.statusCode, s.status = code, status
	if s.err != nil {
		return nil, s.err
	}
	b := *s.booking
	b.Status = status
	return &b, nil
}

func (s *stubBookings) GetBookingsByDateRange(context.Context, time.Time, time.Time) ([]models.Booking, error) {
	return nil, nil
}

type stubCatalog struct {
	serviceID int64
	err       error
}

func (s *stubCatalog) ListServices(context.Context) ([]models.Service, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []models.Service{{ID: 1, Name: "Haircut", Duration: 30, CapacityMax: 1, Price: decimal.RequireFromString("25"), Active: true}}, nil
}

func (s *stubCatalog) ListStaff(_ context.Context, serviceID int64) ([]models.StaffMember, error) {
	s.serviceID = serviceID
	return []models.StaffMember{{ID: 10, Name: "Anna", ServiceIDs: []int64{1}, Active: true}}, nil
}

func (s *stubCatalog) ListExtras(_ context.Context, serviceID int64) ([]models.Extra, error) {
	s.serviceID = serviceID
	return []models.Extra{{ID: 100, ServiceID: serviceID, Name: "Wash", Duration: 30, Active: true}}, nil
}

func sampleBooking() *models.Booking {
	now := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:          1,
		BookingCode: "0123456789abcdef",
		ServiceID:   1,
		StaffID:     10,
		Date:        testDay,
		StartTime:   "09:05",
		EndTime:     "09:35",
		PartySize:   1,
		Status:      models.StatusPending,
		Customer:    models.Customer{FirstName: "Ivan", Email: "ivan@example.com"},
		Total:       decimal.RequireFromString("25"),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

type testDeps struct {
	slots    *stubSlots
	bookings *stubBookings
	catalog  *stubCatalog
}

func newTestDeps() (*testDeps, Services) {
	d := &testDeps{
		slots:    &stubSlots{},
		bookings: &stubBookings{booking: sampleBooking()},
		catalog:  &stubCatalog{},
	}
	return d, Services{Slots: d.slots, Bookings: d.bookings, Catalog: d.catalog}
}

func openAPIConfig() *config.APIConfig {
	return &config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
