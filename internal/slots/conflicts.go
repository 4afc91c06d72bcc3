package slots

// Occupancy is an existing booking as seen by the detector: its occupied
// interval (buffers included) and how many seats it takes.
type Occupancy struct {
	Occupied  Interval
	PartySize int
}

// Slot is a candidate that survived the capacity check.
type Slot struct {
	Window    Interval
	Remaining int
}

// Detector drops candidates whose occupied interval is already at capacity.
type Detector struct{}

// Filter keeps candidates with at least one seat left. Usage of a candidate is
// the summed party size of every booking whose occupied interval overlaps the
// candidate's occupied interval.
func (Detector) Filter(candidates []Interval, t Timing, capacityMax int, existing []Occupancy) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		remaining := capacityMax - Usage(t.Occupied(c), existing)
		if remaining >= 1 {
			out = append(out, Slot{Window: c, Remaining: remaining})
		}
	}
	return out
}

// Usage sums party sizes of bookings overlapping occupied.
func Usage(occupied Interval, existing []Occupancy) int {
	used := 0
	for _, o := range existing {
		if o.Occupied.Overlaps(occupied) {
			size := o.PartySize
			if size < 1 {
				size = 1
			}
			used += size
		}
	}
	return used
}
