package core

import (
	"time"
)

// Timestamp represents a point in time with timezone awareness
type Timestamp time.Time

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t)
}

// Now returns the current timestamp
func Now() Timestamp {
	return Timestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before returns true if t is before u
func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// After returns true if t is after u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// TreatmentDate marks the intervention date splitting pre from post periods
type TreatmentDate Timestamp

// NewTreatmentDate creates a treatment date marker
func NewTreatmentDate(t time.Time) TreatmentDate { return TreatmentDate(NewTimestamp(t)) }

// Time returns the underlying time.Time
func (t TreatmentDate) Time() time.Time { return Timestamp(t).Time() }

// IsPost reports whether d falls on or after the treatment date
func (t TreatmentDate) IsPost(d time.Time) bool {
	return !d.Before(t.Time())
}
