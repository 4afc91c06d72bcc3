package slots

import "time"

// WeeklyPattern marks which weekdays are open, indexed by time.Weekday.
type WeeklyPattern [7]bool

// Block is an explicit availability row for one date. Available=false is a closure.
type Block struct {
	Window    Interval
	Available bool
}

// DayOff closes the dates From..To (inclusive). A nil Window closes the whole day.
type DayOff struct {
	From   time.Time
	To     time.Time
	Window *Interval
}

// Covers reports whether the exception applies to date.
func (d DayOff) Covers(date time.Time) bool {
	day := dateOnly(date)
	return !day.Before(dateOnly(d.From)) && !day.After(dateOnly(d.To))
}

// Schedule is the staff-side input of the resolver for a single date.
type Schedule struct {
	UsesCustomSchedule bool
	Weekly             WeeklyPattern
	DaysOff            []DayOff
	Blocks             []Block
}

// Resolver computes the available intervals of a staff member on a date.
type Resolver struct{}

// Resolve returns disjoint, ascending intervals. Explicit blocks win over the
// weekly pattern; the pattern only applies to staff without a custom schedule.
// Day-offs covering the date are subtracted in both cases.
func (Resolver) Resolve(s Schedule, date time.Time, businessHours Interval) []Interval {
	var open, closed []Interval
	if len(s.Blocks) > 0 {
		for _, b := range s.Blocks {
			if b.Available {
				open = append(open, b.Window)
			} else {
				closed = append(closed, b.Window)
			}
		}
	} else if !s.UsesCustomSchedule && s.Weekly[date.Weekday()] {
		open = []Interval{businessHours}
	}
	if len(open) == 0 {
		return []Interval{}
	}

	for _, off := range s.DaysOff {
		if !off.Covers(date) {
			continue
		}
		if off.Window == nil {
			return []Interval{}
		}
		closed = append(closed, *off.Window)
	}
	return Merge(SubtractAll(open, closed))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
