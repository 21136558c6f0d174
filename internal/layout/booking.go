package layout

import (
	"fmt"
	"time"
)

// BookingStatus tracks a booking through its lifecycle. A booking transitions
// out of active exactly once and is never deleted from the ledger.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingExpired   BookingStatus = "expired"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Valid reports whether s is one of the known booking states.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingActive, BookingExpired, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// Terminal reports whether s ends a booking's lifecycle.
func (s BookingStatus) Terminal() bool {
	return s.Valid() && s != BookingActive
}

// Booking is the lease record a spot reservation produces. Timestamps are
// RFC 3339 strings in the engine's configured location; they are parsed lazily
// so one malformed record never takes down a sweep.
type Booking struct {
	ID          string        `json:"id"`
	SpotID      string        `json:"spotId"`
	UserID      string        `json:"userId"`
	StartTime   string        `json:"startTime"`
	EndTime     string        `json:"endTime"`
	Duration    float64       `json:"duration"`
	Cost        float64       `json:"cost"`
	Status      BookingStatus `json:"status"`
	CreatedAt   string        `json:"createdAt"`
	CompletedAt string        `json:"completedAt,omitempty"`
	Floor       int           `json:"floor"`
	Division    int           `json:"division"`
	Position    int           `json:"spotNumber"`
}

// Clone returns an independent copy of the booking.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	dup := *b
	return &dup
}

// EndsAt parses the booking's end time into the supplied location.
func (b *Booking) EndsAt(loc *time.Location) (time.Time, error) {
	return ParseTime(b.EndTime, loc)
}

// FormatTime renders t as an RFC 3339 timestamp in loc.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.RFC3339)
}

// ParseTime parses an RFC 3339 timestamp and normalises it into loc. Naive
// inputs (no offset) are rejected rather than guessed at.
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("layout: parse timestamp %q: %w", raw, err)
	}
	return t.In(loc), nil
}
