package api

import (
	"context"
	"strings"
	"time"

	"bookpoint/internal/config"
	"bookpoint/internal/domain"
	"bookpoint/internal/models"
)

// Services are the booking operations served by both transports.
type Services struct {
	Slots    domain.SlotService
	Bookings domain.BookingService
	Catalog  domain.CatalogService

	// Limiter caps commits per client. Nil disables the cap.
	Limiter     domain.RateLimiter
	CommitLimit config.CommitRateLimit
}

// allowCommit reports whether client may commit another booking now.
func (s Services) allowCommit(ctx context.Context, client string) (bool, error) {
	if s.Limiter == nil || s.CommitLimit.Limit <= 0 {
		return true, nil
	}
	window := time.Duration(s.CommitLimit.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return s.Limiter.Allow(ctx, "commit:"+client, s.CommitLimit.Limit, window)
}

type slotQueryRequest struct {
	ServiceID int64   `json:"service_id"`
	StaffID   int64   `json:"staff_id"`
	Date      string  `json:"date"`
	Extras    []int64 `json:"extras,omitempty"`
}

func (r slotQueryRequest) toQuery() (domain.SlotQuery, error) {
	if r.ServiceID <= 0 {
		return domain.SlotQuery{}, domain.Errorf(domain.KindInvalidInput, "service_id is required")
	}
	if r.StaffID <= 0 {
		return domain.SlotQuery{}, domain.Errorf(domain.KindInvalidInput, "staff_id is required")
	}
	day := strings.TrimSpace(r.Date)
	if day == "" {
		return domain.SlotQuery{}, domain.Errorf(domain.KindInvalidInput, "date is required")
	}
	date, err := time.Parse(models.DateLayout, day)
	if err != nil {
		return domain.SlotQuery{}, domain.Errorf(domain.KindInvalidInput, "invalid date format; expected YYYY-MM-DD")
	}
	return domain.SlotQuery{ServiceID: r.ServiceID, StaffID: r.StaffID, Date: date, ExtraIDs: r.Extras}, nil
}

type timeSlotsResponse struct {
	ServiceID int64             `json:"service_id"`
	StaffID   int64             `json:"staff_id"`
	Date      string            `json:"date"`
	Slots     []models.TimeSlot `json:"slots"`
}

func newTimeSlotsResponse(q domain.SlotQuery, list []models.TimeSlot) timeSlotsResponse {
	if list == nil {
		list = []models.TimeSlot{}
	}
	return timeSlotsResponse{
		ServiceID: q.ServiceID,
		StaffID:   q.StaffID,
		Date:      q.Date.Format(models.DateLayout),
		Slots:     list,
	}
}

type commitBookingRequest struct {
	ServiceID int64           `json:"service_id"`
	StaffID   int64           `json:"staff_id"`
	Date      string          `json:"date"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
	PartySize int             `json:"party_size"`
	Extras    []int64         `json:"extras,omitempty"`
	Customer  models.Customer `json:"customer"`
}

func (r commitBookingRequest) toDomain() domain.CommitRequest {
	return domain.CommitRequest{
		ServiceID: r.ServiceID,
		StaffID:   r.StaffID,
		Date:      r.Date,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		PartySize: r.PartySize,
		ExtraIDs:  r.Extras,
		Customer:  r.Customer,
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

// bookingView is the wire shape of a booking.
type bookingView struct {
	ID          int64           `json:"id"`
	BookingCode string          `json:"booking_code"`
	ServiceID   int64           `json:"service_id"`
	StaffID     int64           `json:"staff_id"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	PartySize   int             `json:"party_size"`
	Status      string          `json:"status"`
	Customer    models.Customer `json:"customer"`
	Extras      []int64         `json:"extras"`
	Total       string          `json:"total"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func newBookingView(b *models.Booking) bookingView {
	extras := b.ExtraIDs
	if extras == nil {
		extras = []int64{}
	}
	return bookingView{
		ID:          b.ID,
		BookingCode: b.BookingCode,
		ServiceID:   b.ServiceID,
		StaffID:     b.StaffID,
		Date:        b.Date.Format(models.DateLayout),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		PartySize:   b.PartySize,
		Status:      b.Status,
		Customer:    b.Customer,
		Extras:      extras,
		Total:       b.Total.StringFixed(2),
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
