package events

import (
	"encoding/json"
	"sync"
	"time"

	"bookpoint/internal/models"

	"github.com/shopspring/decimal"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingApproved  = "booking_approved"
	EventBookingCancelled = "booking_cancelled"
)

// BookingEventPayload describes the booking snapshot sent to event consumers.
type BookingEventPayload struct {
	BookingID   int64           `json:"booking_id"`
	BookingCode string          `json:"booking_code"`
	ServiceID   int64           `json:"service_id"`
	StaffID     int64           `json:"staff_id"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	PartySize   int             `json:"party_size"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Email       string          `json:"email,omitempty"`
}

// NewBookingEventPayload snapshots a booking for publishing.
func NewBookingEventPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		ServiceID:   b.ServiceID,
		StaffID:     b.StaffID,
		Date:        b.Date.Format(models.DateLayout),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		PartySize:   b.PartySize,
		Status:      b.Status,
		Total:       b.Total,
		Email:       b.Customer.Email,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// and the first handler error is returned after all handlers ran.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
