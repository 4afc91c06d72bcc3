package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Service struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Duration     int             `json:"duration"` // minutes
	BufferBefore int             `json:"buffer_before"`
	BufferAfter  int             `json:"buffer_after"`
	CapacityMin  int             `json:"capacity_min"`
	CapacityMax  int             `json:"capacity_max"`
	Price        decimal.Decimal `json:"price"`
	Active       bool            `json:"active"`
}

// Validate checks the invariants the slot engine relies on.
func (s *Service) Validate() error {
	if s.Duration <= 0 {
		return fmt.Errorf("service %d: duration must be positive", s.ID)
	}
	if s.BufferBefore < 0 || s.BufferAfter < 0 {
		return fmt.Errorf("service %d: buffers must not be negative", s.ID)
	}
	if s.CapacityMin < 1 || s.CapacityMax < s.CapacityMin {
		return fmt.Errorf("service %d: capacity must satisfy 1 <= min <= max", s.ID)
	}
	if s.Price.IsNegative() {
		return fmt.Errorf("service %d: price must not be negative", s.ID)
	}
	return nil
}

type Extra struct {
	ID        int64           `json:"id"`
	ServiceID int64           `json:"service_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Duration  int             `json:"duration"` // minutes added to the service
	Active    bool            `json:"active"`
}

type StaffMember struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	Email              string        `json:"email,omitempty"`
	Phone              string        `json:"phone,omitempty"`
	UsesCustomSchedule bool          `json:"uses_custom_schedule"`
	Schedule           StaffSchedule `json:"schedule"`
	ServiceIDs         []int64       `json:"service_ids"`
	Active             bool          `json:"active"`
}

// Provides reports whether the staff member offers the service.
func (s *StaffMember) Provides(serviceID int64) bool {
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// StaffSchedule is the stored weekly pattern plus day-off exceptions of a staff member.
type StaffSchedule struct {
	Weekly  map[int]WeekdayRule `json:"weekly"` // key: 0=Sunday .. 6=Saturday
	DaysOff []DayOffException   `json:"days_off"`
}

type WeekdayRule struct {
	Enabled bool `json:"enabled"`
}

// Enabled reports whether the weekday is open in the weekly pattern.
func (s StaffSchedule) Enabled(day time.Weekday) bool {
	return s.Weekly[int(day)].Enabled
}

// Validate rejects malformed schedule data at load time.
func (s StaffSchedule) Validate() error {
	for day := range s.Weekly {
		if day < 0 || day > 6 {
			return fmt.Errorf("weekly pattern: weekday %d out of range 0-6", day)
		}
	}
	for i, off := range s.DaysOff {
		if err := off.Validate(); err != nil {
			return fmt.Errorf("days_off[%d]: %w", i, err)
		}
	}
	return nil
}

// DayOffException closes From..To (inclusive). With Start/End only that window closes.
type DayOffException struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Range returns the parsed inclusive date range.
func (d DayOffException) Range() (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, strings.TrimSpace(d.From))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", d.From)
	}
	to := from
	if strings.TrimSpace(d.To) != "" {
		to, err = time.Parse(DateLayout, strings.TrimSpace(d.To))
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", d.To)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to date is before from date")
	}
	return from, to, nil
}

// Partial reports whether only a time window is closed.
func (d DayOffException) Partial() bool {
	return d.Start != "" || d.End != ""
}

func (d DayOffException) Validate() error {
	if _, _, err := d.Range(); err != nil {
		return err
	}
	if !d.Partial() {
		return nil
	}
	start, err := minutesOf(d.Start)
	if err != nil {
		return err
	}
	end, err := minutesOf(d.End)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("day off window %s-%s is empty", d.Start, d.End)
	}
	return nil
}

type AvailabilityBlock struct {
	ID          int64     `json:"id"`
	StaffID     int64     `json:"staff_id"`
	Date        time.Time `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	Note        string    `json:"note,omitempty"`
}

func (b *AvailabilityBlock) Validate() error {
	start, err := minutesOf(b.StartTime)
	if err != nil {
		return err
	}
	end, err := minutesOf(b.EndTime)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("availability block %s-%s: start must be before end", b.StartTime, b.EndTime)
	}
	return nil
}

// minutesOf parses HH:MM, accepting 24:00 as end of day.
func minutesOf(hhmm string) (int, error) {
	v := strings.TrimSpace(hhmm)
	if v == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q; expected HH:MM", hhmm)
	}
	return t.Hour()*60 + t.Minute(), nil
}
