package models

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCancelled = "cancelled"
	// StatusCanceled is the alternate spelling found in imported data; it never blocks a slot.
	StatusCanceled = "canceled"
)

// ActiveStatuses are the statuses that occupy capacity.
var ActiveStatuses = []string{StatusPending, StatusApproved}

const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04"
	TimestampLayout = "2006-01-02 15:04:05"
)

const (
	// DefaultCodeAttempts bounds booking code draws per commit.
	DefaultCodeAttempts = 5

	// BookingCodeBytes is the amount of randomness in a booking code (hex encoded).
	BookingCodeBytes = 8

	DefaultBusinessStart = "09:00"
	DefaultBusinessEnd   = "17:00"

	DefaultMaxBookingDays = 365

	// DefaultLockTTL caps how long a commit may hold a staff-day lock, in seconds.
	DefaultLockTTL = 10

	// SettingBusinessHours is the settings key holding {"start":"HH:MM","end":"HH:MM"}.
	SettingBusinessHours = "business_hours"
)
