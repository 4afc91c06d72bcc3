package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bookpoint/internal/domain"
	"bookpoint/internal/events"
	"bookpoint/internal/models"
)

const (
	TargetSheets  = "sheets"
	TargetBroker  = "broker"
	TargetWebhook = "webhook"
)

// SheetsSink mirrors bookings into the spreadsheet.
type SheetsSink struct {
	sheets domain.SheetsWriter
}

func NewSheetsSink(sheets domain.SheetsWriter) *SheetsSink {
	return &SheetsSink{sheets: sheets}
}

func (s *SheetsSink) Name() string { return TargetSheets }

func (s *SheetsSink) Deliver(ctx context.Context, taskType string, p Payload) error {
	switch taskType {
	case models.SyncTaskUpsert:
		return s.sheets.UpsertBooking(ctx, p.Booking)
	case models.SyncTaskUpdateStatus:
		if p.Status == "" {
			return errors.New("status missing")
		}
		return s.sheets.UpdateBookingStatus(ctx, p.Booking.BookingCode, p.Status)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

// BrokerSink forwards booking events to RabbitMQ or Kafka.
type BrokerSink struct {
	publisher events.Publisher
}

func NewBrokerSink(publisher events.Publisher) *BrokerSink {
	return &BrokerSink{publisher: publisher}
}

func (s *BrokerSink) Name() string { return TargetBroker }

func (s *BrokerSink) Deliver(ctx context.Context, taskType string, p Payload) error {
	eventType, err := eventTypeFor(taskType, p.Status)
	if err != nil {
		return err
	}
	body, err := json.Marshal(snapshot(p))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.publisher.Publish(ctx, eventType, p.Booking.BookingCode, body)
}

// eventTypeFor maps an outbox task to the event name consumers see.
func eventTypeFor(taskType, status string) (string, error) {
	switch taskType {
	case models.SyncTaskUpsert:
		return events.EventBookingCreated, nil
	case models.SyncTaskUpdateStatus:
		switch status {
		case models.StatusApproved:
			return events.EventBookingApproved, nil
		case models.StatusCancelled, models.StatusCanceled:
			return events.EventBookingCancelled, nil
		}
		return "", fmt.Errorf("no event for status %q", status)
	default:
		return "", fmt.Errorf("unknown task type: %s", taskType)
	}
}

func snapshot(p Payload) events.BookingEventPayload {
	ev := events.NewBookingEventPayload(p.Booking)
	if p.Status != "" {
		ev.Status = p.Status
	}
	return ev
}
