package model

import "time"

// WorkingHour is one weekday entry of an employee's recurring schedule.
// Start/End are minutes after local midnight in the business timezone.
type WorkingHour struct {
	EmployeeID  string
	Weekday     int // 0=Sunday .. 6=Saturday
	StartMinute int
	EndMinute   int
	IsOff       bool
}

// Override is a one-off exception to the weekly schedule, stored as absolute
// UTC instants since it represents a concrete calendar event.
type Override struct {
	ID          string
	EmployeeID  string
	Start       time.Time
	End         time.Time
	Unavailable bool
	Reason      string
	CreatedAt   time.Time
}

type Service struct {
	ID           string
	BusinessID   string
	Name         string
	DurationMins int
	BufferBefore int
	BufferAfter  int
	Price        string
}

type Employee struct {
	ID         string
	BusinessID string
	Name       string
	IsActive   bool
}

// Booking statuses. Only pending and confirmed occupy time on the schedule.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

type Booking struct {
	ID           string
	BusinessID   string
	EmployeeID   string
	ServiceID    string
	CustomerRef  string
	Start        time.Time
	End          time.Time
	BufferBefore int // minutes, copied from the service at commit time
	BufferAfter  int
	Status       string
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}

// Occupies reports whether the booking blocks its time interval.
func (b Booking) Occupies() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// BlockedStart/BlockedEnd give the buffer-inclusive interval the booking
// makes unavailable to other bookings.
func (b Booking) BlockedStart() time.Time {
	return b.Start.Add(-time.Duration(b.BufferBefore) * time.Minute)
}

func (b Booking) BlockedEnd() time.Time {
	return b.End.Add(time.Duration(b.BufferAfter) * time.Minute)
}

// Slot is a derived bookable interval. Never persisted.
type Slot struct {
	EmployeeID string
	Start      time.Time
	End        time.Time
}
