package slots

import (
	"fmt"

	"bookpoint/internal/domain"
)

// Timing is the part of a service that shapes the slot grid.
type Timing struct {
	Duration     int
	BufferBefore int
	BufferAfter  int
}

// Step is the grid pitch: visible duration plus both buffers.
func (t Timing) Step() int {
	return t.Duration + t.BufferBefore + t.BufferAfter
}

// Validate rejects a timing that cannot produce a grid.
func (t Timing) Validate() error {
	if t.Duration <= 0 || t.BufferBefore < 0 || t.BufferAfter < 0 {
		return domain.Wrap(domain.KindInvalidInput, ErrInvalidService,
			fmt.Sprintf("invalid service timing: duration=%d buffer_before=%d buffer_after=%d",
				t.Duration, t.BufferBefore, t.BufferAfter))
	}
	return nil
}

// Occupied widens a visible slot by its buffers, clamped to the day.
func (t Timing) Occupied(slot Interval) Interval {
	start := slot.Start - Clock(t.BufferBefore)
	if start < 0 {
		start = 0
	}
	end := slot.End + Clock(t.BufferAfter)
	if end > MinutesPerDay {
		end = MinutesPerDay
	}
	return Interval{Start: start, End: end}
}

// Generator lays a fixed-step grid over each available interval.
type Generator struct{}

// Generate returns the customer-visible slots in ascending order. A slot is
// emitted only when its whole step, buffers included, fits in one interval.
func (Generator) Generate(available []Interval, t Timing) ([]Interval, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	step := Clock(t.Step())

	out := make([]Interval, 0)
	for _, iv := range available {
		for c := iv.Start; c+step <= iv.End; c += step {
			start := c + Clock(t.BufferBefore)
			out = append(out, Interval{Start: start, End: start + Clock(t.Duration)})
		}
	}
	return out, nil
}
