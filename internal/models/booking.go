package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID           int64           `json:"id"`
	BookingCode  string          `json:"booking_code"`
	ServiceID    int64           `json:"service_id"`
	StaffID      int64           `json:"staff_id"`
	Date         time.Time       `json:"date"`
	StartTime    string          `json:"start_time"` // HH:MM
	EndTime      string          `json:"end_time"`   // HH:MM
	BufferBefore int             `json:"buffer_before"`
	BufferAfter  int             `json:"buffer_after"`
	PartySize    int             `json:"party_size"`
	Status       string          `json:"status"` // pending, approved, cancelled
	Customer     Customer        `json:"customer"`
	ExtraIDs     []int64         `json:"extra_ids"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Version      int64           `json:"version"`
}

// Customer is the contact payload attached to a booking. The booking core
// stores it as given.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Note      string `json:"note,omitempty"`
}

// IsActive reports whether the booking still holds capacity.
func (b *Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusApproved
}

// CanTransition reports whether a booking may move from one status to another.
// Only pending bookings change state.
func CanTransition(from, to string) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusApproved || to == StatusCancelled
}
