// Package slots turns staff availability into bookable time slots.
//
// All times are minutes since midnight of a single calendar date. Ranges are
// half-open: an interval [09:00,10:00) ends exactly where [10:00,11:00) starts.
package slots

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"bookpoint/internal/domain"
)

// MinutesPerDay is the exclusive upper bound of a Clock value; 24:00 is
// accepted as an end of day.
const MinutesPerDay = 24 * 60

var (
	ErrInvalidRange   = errors.New("invalid range")
	ErrInvalidClock   = errors.New("invalid time of day")
	ErrInvalidService = errors.New("invalid service")
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses an "HH:MM" 24-hour time.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, invalidClock(s)
	}
	h, ok := digits(hh)
	if !ok {
		return 0, invalidClock(s)
	}
	m, ok := digits(mm)
	if !ok {
		return 0, invalidClock(s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, invalidClock(s)
	}
	return Clock(h*60 + m), nil
}

// digits parses an unsigned decimal; signs and spaces are rejected.
func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

func invalidClock(s string) error {
	return domain.Wrap(domain.KindInvalidInput, ErrInvalidClock, fmt.Sprintf("invalid time %q; expected HH:MM", s))
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start Clock
	End   Clock
}

// NewInterval validates start < end within a single day.
func NewInterval(start, end Clock) (Interval, error) {
	if end <= start || start < 0 || end > MinutesPerDay {
		return Interval{}, domain.Wrap(domain.KindInvalidInput, ErrInvalidRange,
			fmt.Sprintf("invalid range %s-%s", start, end))
	}
	return Interval{Start: start, End: end}, nil
}

// ParseInterval parses two "HH:MM" values into an Interval.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(s, e)
}

// MustInterval is NewInterval for constant ranges; it panics on invalid input.
func MustInterval(start, end string) Interval {
	iv, err := ParseInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func (i Interval) Contains(p Clock) bool {
	return i.Start <= p && p < i.End
}

// Covers reports whether o lies entirely inside i.
func (i Interval) Covers(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) Duration() int {
	return int(i.End - i.Start)
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// Subtract removes cut from i, returning zero, one or two pieces.
func (i Interval) Subtract(cut Interval) []Interval {
	if !i.Overlaps(cut) {
		return []Interval{i}
	}
	var out []Interval
	if cut.Start > i.Start {
		out = append(out, Interval{Start: i.Start, End: cut.Start})
	}
	if cut.End < i.End {
		out = append(out, Interval{Start: cut.End, End: i.End})
	}
	return out
}

// SubtractAll removes every cut from every base interval.
func SubtractAll(base, cuts []Interval) []Interval {
	out := append([]Interval(nil), base...)
	for _, cut := range cuts {
		next := make([]Interval, 0, len(out))
		for _, iv := range out {
			next = append(next, iv.Subtract(cut)...)
		}
		out = next
	}
	return out
}

// Merge sorts intervals and joins overlapping or touching ones.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return []Interval{}
	}
	sorted := append([]Interval(nil), in...)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start == sorted[b].Start {
			return sorted[a].End < sorted[b].End
		}
		return sorted[a].Start < sorted[b].Start
	})

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
