package service

import (
	"context"

	"bookpoint/internal/domain"
	"bookpoint/internal/metrics"
	"bookpoint/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bookpoint/internal/service")

// SlotService answers slot queries. It takes no locks.
type SlotService struct {
	repo   domain.ScheduleReader
	engine *Engine
	logger *zerolog.Logger
}

func NewSlotService(repo domain.ScheduleReader, engine *Engine, logger *zerolog.Logger) *SlotService {
	return &SlotService{repo: repo, engine: engine, logger: logger}
}

// GetTimeSlots returns the full slot list or an error, never a partial list.
func (s *SlotService) GetTimeSlots(ctx context.Context, q domain.SlotQuery) ([]models.TimeSlot, error) {
	ctx, span := tracer.Start(ctx, "SlotService.GetTimeSlots")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("service.id", q.ServiceID),
		attribute.Int64("staff.id", q.StaffID),
		attribute.String("date", q.Date.Format(models.DateLayout)),
	)

	off, err := s.engine.Offering(ctx, s.repo, q.ServiceID, q.ExtraIDs)
	if err != nil {
		return nil, s.fail(span, q, err)
	}
	found, err := s.engine.Slots(ctx, s.repo, off, q.StaffID, q.Date)
	if err != nil {
		return nil, s.fail(span, q, err)
	}

	metrics.IncSlotQuery("ok")
	span.SetAttributes(attribute.Int("slots.count", len(found)))
	return toTimeSlots(found), nil
}

func (s *SlotService) fail(span trace.Span, q domain.SlotQuery, err error) error {
	kind := domain.KindOf(err)
	metrics.IncSlotQuery(string(kind))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	ev := s.logger.Warn()
	if kind == domain.KindStorage {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Int64("service_id", q.ServiceID).
		Int64("staff_id", q.StaffID).
		Str("date", q.Date.Format(models.DateLayout)).
		Msg("slot query failed")
	return err
}
