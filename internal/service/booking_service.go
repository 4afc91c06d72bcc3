package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/events"
	"bookpoint/internal/metrics"
	"bookpoint/internal/models"
	"bookpoint/internal/slots"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CodeGenerator draws one candidate booking code.
type CodeGenerator func() (string, error)

// NewBookingCode returns 16 lowercase hex characters from 8 random bytes.
func NewBookingCode() (string, error) {
	buf := make([]byte, models.BookingCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type BookingOptions struct {
	CodeAttempts  int
	LockTTL       time.Duration
	CodeGenerator CodeGenerator
}

type BookingService struct {
	repo         domain.Repository
	locker       domain.SlotLocker
	engine       *Engine
	eventBus     domain.EventPublisher
	syncWorker   domain.SyncWorker
	codeAttempts int
	lockTTL      time.Duration
	codes        CodeGenerator
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	locker domain.SlotLocker,
	engine *Engine,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = models.DefaultCodeAttempts
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = models.DefaultLockTTL * time.Second
	}
	if opts.CodeGenerator == nil {
		opts.CodeGenerator = NewBookingCode
	}
	return &BookingService{
		repo:         repo,
		locker:       locker,
		engine:       engine,
		eventBus:     eventBus,
		syncWorker:   syncWorker,
		codeAttempts: opts.CodeAttempts,
		lockTTL:      opts.LockTTL,
		codes:        opts.CodeGenerator,
		logger:       logger,
	}
}

// CommitBooking books the requested slot if it is still offered with enough
// remaining capacity once the staff-day is locked.
func (s *BookingService) CommitBooking(ctx context.Context, req domain.CommitRequest) (*models.Booking, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "BookingService.CommitBooking")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("service.id", req.ServiceID),
		attribute.Int64("staff.id", req.StaffID),
		attribute.String("date", req.Date),
		attribute.String("slot", req.StartTime+"-"+req.EndTime),
	)

	booking, err := s.commit(ctx, req)
	if err != nil {
		kind := domain.KindOf(err)
		metrics.ObserveCommit(string(kind), time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))

		ev := s.logger.Warn()
		if kind == domain.KindStorage {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Int64("service_id", req.ServiceID).
			Int64("staff_id", req.StaffID).
			Str("date", req.Date).
			Str("start", req.StartTime).
			Msg("commit booking failed")
		return nil, err
	}

	metrics.ObserveCommit("ok", time.Since(started))
	span.SetAttributes(attribute.String("booking.code", booking.BookingCode))
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("booking_code", booking.BookingCode).
		Int64("staff_id", booking.StaffID).
		Str("date", req.Date).
		Str("start", booking.StartTime).
		Int("party_size", booking.PartySize).
		Msg("booking committed")

	// Публикуем событие и ставим синхронизацию только после коммита
	s.publishEvent(ctx, events.EventBookingCreated, *booking)
	s.enqueueSync(ctx, *booking, models.SyncTaskUpsert)

	return booking, nil
}

func (s *BookingService) commit(ctx context.Context, req domain.CommitRequest) (*models.Booking, error) {
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return nil, domain.Errorf(domain.KindInvalidInput, "invalid date %q; expected YYYY-MM-DD", req.Date)
	}
	window, err := slots.ParseInterval(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if req.PartySize == 0 {
		req.PartySize = 1
	}
	if req.PartySize < 1 {
		return nil, domain.Errorf(domain.KindInvalidInput, "party_size must be at least 1")
	}
	if err := s.engine.Horizon().CheckDate(date); err != nil {
		return nil, err
	}

	off, err := s.engine.Offering(ctx, s.repo, req.ServiceID, req.ExtraIDs)
	if err != nil {
		return nil, err
	}
	if err := validateAgainst(off, window, req.PartySize); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lockKey(req.StaffID, date), s.lockTTL)
	if err != nil {
		return nil, domain.Storage(err, "acquire slot lock")
	}
	defer release()

	var booking *models.Booking
	err = s.repo.WithinStaffDay(ctx, req.StaffID, date, func(tx domain.BookingTx) error {
		// Перепроверяем расписание внутри транзакции
		current, err := s.engine.Offering(ctx, tx, req.ServiceID, req.ExtraIDs)
		if err != nil {
			return err
		}
		if err := validateAgainst(current, window, req.PartySize); err != nil {
			return err
		}
		offered, err := s.engine.Slots(ctx, tx, current, req.StaffID, date)
		if err != nil {
			return err
		}

		slot, ok := findSlot(offered, window)
		if !ok {
			return domain.Errorf(domain.KindSlotUnavailable, "slot %s is not available", window)
		}
		if slot.Remaining < req.PartySize {
			return domain.Errorf(domain.KindSlotUnavailable, "slot %s has %d seats left, %d requested", window, slot.Remaining, req.PartySize)
		}

		code, err := s.drawCode(ctx, tx)
		if err != nil {
			return err
		}

		b := &models.Booking{
			BookingCode:  code,
			ServiceID:    req.ServiceID,
			StaffID:      req.StaffID,
			Date:         date,
			StartTime:    window.Start.String(),
			EndTime:      window.End.String(),
			BufferBefore: current.Timing.BufferBefore,
			BufferAfter:  current.Timing.BufferAfter,
			PartySize:    req.PartySize,
			Status:       models.StatusPending,
			Customer:     req.Customer,
			ExtraIDs:     extraIDsOf(current.Extras),
			Total:        current.Total,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return domain.Storage(err, "insert booking")
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, domain.Storage(err, "commit booking")
	}
	return booking, nil
}

func validateAgainst(off *Offering, window slots.Interval, partySize int) error {
	svc := off.Service
	if partySize < svc.CapacityMin || partySize > svc.CapacityMax {
		return domain.Errorf(domain.KindInvalidInput, "party_size %d outside %d..%d", partySize, svc.CapacityMin, svc.CapacityMax)
	}
	if window.Duration() != off.Timing.Duration {
		return domain.Errorf(domain.KindInvalidInput, "slot length %d min does not match service duration %d min", window.Duration(), off.Timing.Duration)
	}
	return nil
}

// drawCode tries at most codeAttempts fresh codes. No backoff between draws.
func (s *BookingService) drawCode(ctx context.Context, tx domain.BookingTx) (string, error) {
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return "", domain.Storage(err, "generate booking code")
		}
		exists, err := tx.BookingCodeExists(ctx, code)
		if err != nil {
			return "", domain.Storage(err, "check booking code")
		}
		if !exists {
			return code, nil
		}
		metrics.IncCodeCollision()
		s.logger.Warn().Int("attempt", attempt).Msg("booking code collision")
	}
	return "", domain.Errorf(domain.KindCodeGenerationExhausted, "no unique booking code after %d attempts", s.codeAttempts)
}

func (s *BookingService) GetBooking(ctx context.Context, code string) (*models.Booking, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "booking code is required")
	}
	b, err := s.repo.GetBookingByCode(ctx, code)
	if err != nil {
		return nil, domain.Storage(err, "load booking")
	}
	return b, nil
}

// UpdateBookingStatus approves or cancels a pending booking.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, code string, status string) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingService.UpdateBookingStatus")
	defer span.End()

	status = strings.ToLower(strings.TrimSpace(status))
	if status == models.StatusCanceled {
		status = models.StatusCancelled
	}

	current, err := s.GetBooking(ctx, code)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(current.Status, status) {
		return nil, domain.Errorf(domain.KindInvalidInput, "cannot change booking status from %s to %s", current.Status, status)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, current.ID, current.Version, status); err != nil {
		return nil, domain.Storage(err, "update booking status")
	}

	updated, err := s.repo.GetBookingByCode(ctx, current.BookingCode)
	if err != nil {
		return nil, domain.Storage(err, "reload booking")
	}

	eventType := events.EventBookingApproved
	if status == models.StatusCancelled {
		eventType = events.EventBookingCancelled
	}
	s.publishEvent(ctx, eventType, *updated)
	s.enqueueSync(ctx, *updated, models.SyncTaskUpdateStatus)

	return updated, nil
}

func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error) {
	if end.Before(start) {
		return nil, domain.Errorf(domain.KindInvalidInput, "range end is before start")
	}
	list, err := s.repo.GetBookingsByDateRange(ctx, start, end)
	if err != nil {
		return nil, domain.Storage(err, "list bookings")
	}
	return list, nil
}

func (s *BookingService) publishEvent(ctx context.Context, eventType string, booking models.Booking) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.PublishJSON(eventType, events.NewBookingEventPayload(&booking)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
		return
	}
	metrics.IncBookingEvent(eventType)
}

func (s *BookingService) enqueueSync(ctx context.Context, booking models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}

	if err := s.syncWorker.EnqueueTask(ctx, taskType, &booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sync enqueue error")
	}
}

func lockKey(staffID int64, date time.Time) string {
	return fmt.Sprintf("slot:%d:%s", staffID, date.Format(models.DateLayout))
}

func findSlot(offered []slots.Slot, window slots.Interval) (slots.Slot, bool) {
	for _, s := range offered {
		if s.Window == window {
			return s, true
		}
	}
	return slots.Slot{}, false
}

func extraIDsOf(extras []models.Extra) []int64 {
	ids := make([]int64, 0, len(extras))
	for _, x := range extras {
		ids = append(ids, x.ID)
	}
	return ids
}
