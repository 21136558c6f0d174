package core

import (
	"time"

	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
)

// CreateBookingCommand carries the caller-supplied fields of a new booking.
// Times are interpreted in the service's location.
type CreateBookingCommand struct {
	SpotID string
	UserID string
	Start  time.Time
	End    time.Time
	Cost   float64
}

// ClosestSpot is an available spot paired with its weighted distance from
// the search origin.
type ClosestSpot struct {
	Spot     *layout.Spot
	Distance int
}

// Origin is the grid position a closest-spot search measures from.
type Origin struct {
	Floor    int
	Division int
	Position int
}

// DefaultOrigin is the main entrance at ground level.
var DefaultOrigin = Origin{Floor: 1, Division: 5, Position: 10}

// Weighted distance components: a floor of separation dominates a division,
// a division dominates a position.
const (
	floorWeight    = 50
	divisionWeight = 10
	positionWeight = 1
)

// Stats is a point-in-time occupancy summary.
type Stats struct {
	TotalSpots      int     `json:"totalSpots"`
	AvailableSpots  int     `json:"availableSpots"`
	OccupiedSpots   int     `json:"occupiedSpots"`
	OccupancyRate   float64 `json:"occupancyRate"`
	ActiveBookings  int     `json:"activeBookings"`
	TotalBookings   int     `json:"totalBookings"`
	RegisteredUsers int     `json:"registeredUsers"`
	LastUpdated     string  `json:"lastUpdated"`
}

// SweepResult summarises one expiry pass over the active bookings.
type SweepResult struct {
	Scanned int
	Expired int
	Skipped int
	Failed  int
}

// Metrics receives service-level counters. A nil Metrics is valid and
// records nothing.
type Metrics interface {
	BookingCreated()
	BookingReleased(status string)
	SweepCompleted(result SweepResult, elapsed time.Duration)
	SetOccupancy(total, available, occupied int)
}
