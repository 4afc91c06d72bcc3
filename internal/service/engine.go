package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"
	"bookpoint/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BusinessHoursProvider yields the default working interval used for staff
// without explicit blocks.
type BusinessHoursProvider interface {
	BusinessHours(ctx context.Context) (slots.Interval, error)
}

type settingsReader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// SettingsBusinessHours reads business hours from the settings table and
// falls back to the configured value.
type SettingsBusinessHours struct {
	repo     settingsReader
	fallback models.BusinessHours
	logger   *zerolog.Logger
}

func NewSettingsBusinessHours(repo settingsReader, fallback models.BusinessHours, logger *zerolog.Logger) *SettingsBusinessHours {
	return &SettingsBusinessHours{repo: repo, fallback: fallback, logger: logger}
}

func (p *SettingsBusinessHours) BusinessHours(ctx context.Context) (slots.Interval, error) {
	return p.readFrom(ctx, p.repo)
}

func (p *SettingsBusinessHours) readFrom(ctx context.Context, r settingsReader) (slots.Interval, error) {
	hours := p.fallback

	raw, ok, err := r.GetSetting(ctx, models.SettingBusinessHours)
	if err != nil {
		return slots.Interval{}, domain.Storage(err, "load business hours")
	}
	if ok && raw != "" {
		var stored models.BusinessHours
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			p.logger.Warn().Err(err).Str("value", raw).Msg("invalid business_hours setting, using config")
		} else if _, err := slots.ParseInterval(stored.Start, stored.End); err != nil {
			p.logger.Warn().Err(err).Str("value", raw).Msg("invalid business_hours setting, using config")
		} else {
			hours = stored
		}
	}

	return slots.ParseInterval(hours.Start, hours.End)
}

// StaticBusinessHours always returns the same interval.
type StaticBusinessHours slots.Interval

func (h StaticBusinessHours) BusinessHours(context.Context) (slots.Interval, error) {
	return slots.Interval(h), nil
}

// Horizon limits which dates and same-day start times can be booked.
type Horizon struct {
	Location   *time.Location
	MinAdvance time.Duration
	MaxDays    int
	Now        func() time.Time
}

func (h Horizon) now() time.Time {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if h.Location != nil {
		now = now.In(h.Location)
	}
	return now
}

func (h Horizon) today() time.Time {
	y, m, d := h.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CheckDate rejects dates in the past or beyond MaxDays from today.
func (h Horizon) CheckDate(date time.Time) error {
	today := h.today()
	if date.Before(today) {
		return domain.Errorf(domain.KindInvalidInput, "date %s is in the past", date.Format(models.DateLayout))
	}
	if h.MaxDays > 0 && date.After(today.AddDate(0, 0, h.MaxDays)) {
		return domain.Errorf(domain.KindInvalidInput, "date %s is more than %d days ahead", date.Format(models.DateLayout), h.MaxDays)
	}
	return nil
}

// earliest is the first bookable minute on date.
func (h Horizon) earliest(date time.Time) slots.Clock {
	if !date.Equal(h.today()) {
		return 0
	}
	now := h.now()
	cutoff := now.Add(h.MinAdvance)
	if cutoff.YearDay() != now.YearDay() || cutoff.Year() != now.Year() {
		return slots.MinutesPerDay
	}
	return slots.Clock(cutoff.Hour()*60 + cutoff.Minute())
}

// Offering is a service with its selected extras, ready for the slot grid.
type Offering struct {
	Service *models.Service
	Extras  []models.Extra
	Timing  slots.Timing
	Total   decimal.Decimal
}

// Engine runs resolve, generate and detect against a schedule reader. It is
// shared by slot queries and by the committer's in-transaction recheck.
type Engine struct {
	hours     BusinessHoursProvider
	horizon   Horizon
	resolver  slots.Resolver
	generator slots.Generator
	detector  slots.Detector
}

func NewEngine(hours BusinessHoursProvider, horizon Horizon) *Engine {
	return &Engine{hours: hours, horizon: horizon}
}

func (e *Engine) Horizon() Horizon { return e.horizon }

// Offering loads an active service and its selected extras.
func (e *Engine) Offering(ctx context.Context, r domain.ScheduleReader, serviceID int64, extraIDs []int64) (*Offering, error) {
	if serviceID <= 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "service_id must be positive")
	}
	svc, err := r.GetService(ctx, serviceID)
	if err != nil {
		return nil, domain.Storage(err, "load service")
	}
	if !svc.Active {
		return nil, domain.Errorf(domain.KindNotFound, "service %d not found", serviceID)
	}
	// строка могла попасть в БД в обход UpsertService
	if err := svc.Validate(); err != nil {
		return nil, domain.Wrap(domain.KindInvalidInput, slots.ErrInvalidService, err.Error())
	}

	ids := uniqueIDs(extraIDs)
	var extras []models.Extra
	if len(ids) > 0 {
		extras, err = r.GetExtras(ctx, serviceID, ids)
		if err != nil {
			return nil, domain.Storage(err, "load extras")
		}
		if len(extras) != len(ids) {
			return nil, domain.Errorf(domain.KindInvalidInput, "unknown extra for service %d", serviceID)
		}
	}

	off := &Offering{
		Service: svc,
		Extras:  extras,
		Timing: slots.Timing{
			Duration:     svc.Duration,
			BufferBefore: svc.BufferBefore,
			BufferAfter:  svc.BufferAfter,
		},
		Total: svc.Price,
	}
	for _, x := range extras {
		off.Timing.Duration += x.Duration
		off.Total = off.Total.Add(x.Price)
	}
	if err := off.Timing.Validate(); err != nil {
		return nil, err
	}
	return off, nil
}

// businessHours prefers r for settings reads so a commit sees the same
// snapshot as the rest of its transaction.
func (e *Engine) businessHours(ctx context.Context, r domain.ScheduleReader) (slots.Interval, error) {
	if sp, ok := e.hours.(*SettingsBusinessHours); ok {
		if sr, ok := r.(settingsReader); ok {
			return sp.readFrom(ctx, sr)
		}
	}
	return e.hours.BusinessHours(ctx)
}

// Slots returns the bookable slots of staffID on date for the offering.
// Dates outside the horizon have no slots.
func (e *Engine) Slots(ctx context.Context, r domain.ScheduleReader, off *Offering, staffID int64, date time.Time) ([]slots.Slot, error) {
	if staffID <= 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "staff_id must be positive")
	}
	date = dateOnly(date)

	staff, blocks, err := r.GetStaffSchedule(ctx, staffID, date)
	if err != nil {
		return nil, domain.Storage(err, "load staff schedule")
	}
	if !staff.Active || !staff.Provides(off.Service.ID) {
		return nil, domain.Errorf(domain.KindNotFound, "staff %d does not offer service %d", staffID, off.Service.ID)
	}

	if e.horizon.CheckDate(date) != nil {
		return []slots.Slot{}, nil
	}

	hours, err := e.businessHours(ctx, r)
	if err != nil {
		return nil, err
	}
	schedule, err := toSchedule(staff, blocks)
	if err != nil {
		return nil, domain.Storage(err, "decode staff schedule")
	}

	available := e.resolver.Resolve(schedule, date, hours)
	grid, err := e.generator.Generate(available, off.Timing)
	if err != nil {
		return nil, err
	}

	earliest := e.horizon.earliest(date)
	if earliest > 0 {
		kept := grid[:0]
		for _, c := range grid {
			if c.Start >= earliest {
				kept = append(kept, c)
			}
		}
		grid = kept
	}
	if len(grid) == 0 {
		return []slots.Slot{}, nil
	}

	bookings, err := r.ListBookings(ctx, staffID, date, models.ActiveStatuses)
	if err != nil {
		return nil, domain.Storage(err, "list bookings")
	}
	occupied, err := occupancies(bookings)
	if err != nil {
		return nil, domain.Storage(err, "decode bookings")
	}

	return e.detector.Filter(grid, off.Timing, off.Service.CapacityMax, occupied), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toSchedule(staff *models.StaffMember, blocks []models.AvailabilityBlock) (slots.Schedule, error) {
	s := slots.Schedule{UsesCustomSchedule: staff.UsesCustomSchedule}
	for d := time.Sunday; d <= time.Saturday; d++ {
		s.Weekly[d] = staff.Schedule.Enabled(d)
	}

	for _, off := range staff.Schedule.DaysOff {
		from, to, err := off.Range()
		if err != nil {
			return slots.Schedule{}, fmt.Errorf("staff %d: %w", staff.ID, err)
		}
		d := slots.DayOff{From: from, To: to}
		if off.Partial() {
			w, err := slots.ParseInterval(off.Start, off.End)
			if err != nil {
				return slots.Schedule{}, fmt.Errorf("staff %d: %w", staff.ID, err)
			}
			d.Window = &w
		}
		s.DaysOff = append(s.DaysOff, d)
	}

	for _, b := range blocks {
		w, err := slots.ParseInterval(b.StartTime, b.EndTime)
		if err != nil {
			return slots.Schedule{}, fmt.Errorf("availability block %d: %w", b.ID, err)
		}
		s.Blocks = append(s.Blocks, slots.Block{Window: w, Available: b.IsAvailable})
	}
	return s, nil
}

func occupancies(bookings []models.Booking) ([]slots.Occupancy, error) {
	out := make([]slots.Occupancy, 0, len(bookings))
	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		w, err := slots.ParseInterval(b.StartTime, b.EndTime)
		if err != nil {
			return nil, fmt.Errorf("booking %d: %w", b.ID, err)
		}
		t := slots.Timing{Duration: w.Duration(), BufferBefore: b.BufferBefore, BufferAfter: b.BufferAfter}
		out = append(out, slots.Occupancy{Occupied: t.Occupied(w), PartySize: b.PartySize})
	}
	return out, nil
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toTimeSlots(in []slots.Slot) []models.TimeSlot {
	out := make([]models.TimeSlot, 0, len(in))
	for _, s := range in {
		out = append(out, models.TimeSlot{
			StartTime:         s.Window.Start.String(),
			EndTime:           s.Window.End.String(),
			RemainingCapacity: s.Remaining,
		})
	}
	return out
}
