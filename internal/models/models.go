package models

// TimeSlot is a bookable slot as returned to clients. It is computed per
// request and never stored.
type TimeSlot struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

// BusinessHours is the value stored under SettingBusinessHours.
type BusinessHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
