package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusApproved))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.False(t, CanTransition(StatusApproved, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
	assert.False(t, CanTransition(StatusApproved, StatusCancelled))
	assert.False(t, CanTransition(StatusPending, StatusPending))
}

func TestBookingIsActive(t *testing.T) {
	assert.True(t, (&Booking{Status: StatusPending}).IsActive())
	assert.True(t, (&Booking{Status: StatusApproved}).IsActive())
	assert.False(t, (&Booking{Status: StatusCancelled}).IsActive())
	assert.False(t, (&Booking{Status: StatusCanceled}).IsActive())
}

func TestServiceValidate(t *testing.T) {
	valid := Service{ID: 1, Duration: 30, CapacityMin: 1, CapacityMax: 1, Price: decimal.RequireFromString("10.50")}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		edit func(s *Service)
	}{
		{"ZeroDuration", func(s *Service) { s.Duration = 0 }},
		{"NegativeBuffer", func(s *Service) { s.BufferAfter = -5 }},
		{"ZeroCapacity", func(s *Service) { s.CapacityMin = 0 }},
		{"MaxBelowMin", func(s *Service) { s.CapacityMin = 3; s.CapacityMax = 2 }},
		{"NegativePrice", func(s *Service) { s.Price = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.edit(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestStaffSchedule(t *testing.T) {
	s := StaffSchedule{
		Weekly: map[int]WeekdayRule{1: {Enabled: true}, 2: {Enabled: false}},
		DaysOff: []DayOffException{
			{From: "2030-01-01", To: "2030-01-03"},
			{From: "2030-02-01", Start: "12:00", End: "13:00"},
		},
	}
	assert.NoError(t, s.Validate())
	assert.True(t, s.Enabled(time.Monday))
	assert.False(t, s.Enabled(time.Tuesday))
	assert.False(t, s.Enabled(time.Sunday))

	bad := StaffSchedule{Weekly: map[int]WeekdayRule{7: {Enabled: true}}}
	assert.Error(t, bad.Validate())

	bad = StaffSchedule{DaysOff: []DayOffException{{From: "2030-01-05", To: "2030-01-01"}}}
	assert.Error(t, bad.Validate())

	bad = StaffSchedule{DaysOff: []DayOffException{{From: "2030-01-05", Start: "13:00", End: "12:00"}}}
	assert.Error(t, bad.Validate())

	bad = StaffSchedule{DaysOff: []DayOffException{{From: "05.01.2030"}}}
	assert.Error(t, bad.Validate())
}

func TestDayOffRange(t *testing.T) {
	from, to, err := DayOffException{From: "2030-01-01"}.Range()
	assert.NoError(t, err)
	assert.Equal(t, from, to)
	assert.False(t, DayOffException{From: "2030-01-01"}.Partial())
	assert.True(t, DayOffException{From: "2030-01-01", Start: "10:00", End: "11:00"}.Partial())
}

func TestAvailabilityBlockValidate(t *testing.T) {
	assert.NoError(t, (&AvailabilityBlock{StartTime: "09:00", EndTime: "24:00"}).Validate())
	assert.Error(t, (&AvailabilityBlock{StartTime: "10:00", EndTime: "09:00"}).Validate())
	assert.Error(t, (&AvailabilityBlock{StartTime: "9am", EndTime: "10:00"}).Validate())
}

func TestStaffProvides(t *testing.T) {
	s := StaffMember{ServiceIDs: []int64{1, 3}}
	assert.True(t, s.Provides(3))
	assert.False(t, s.Provides(2))
}
