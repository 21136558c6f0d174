package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// SensorStatus reflects the last known state reported for a spot's occupancy sensor.
type SensorStatus string

// Sensor states form a closed set; anything else is rejected at the boundary.
const (
	SensorActive   SensorStatus = "active"
	SensorOccupied SensorStatus = "occupied"
	SensorFault    SensorStatus = "fault"
)

// Valid reports whether s is one of the known sensor states.
func (s SensorStatus) Valid() bool {
	switch s {
	case SensorActive, SensorOccupied, SensorFault:
		return true
	}
	return false
}

// Entrance identifies which garage entrance a spot is closest to.
type Entrance string

const (
	EntranceMain Entrance = "main"
	EntranceRear Entrance = "rear"
)

// Spot is one parking position in the grid. Spots are created once at layout
// initialisation and only mutated afterwards.
type Spot struct {
	ID                   string       `json:"id"`
	Floor                int          `json:"floor"`
	Division             int          `json:"division"`
	Position             int          `json:"spotNumber"`
	Available            bool         `json:"available"`
	BookedBy             string       `json:"bookedBy,omitempty"`
	LeaseStart           string       `json:"bookedAt,omitempty"`
	LeaseEnd             string       `json:"bookedUntil,omitempty"`
	BookingID            string       `json:"bookingId,omitempty"`
	LastSensorUpdate     string       `json:"lastSensorUpdate,omitempty"`
	SensorStatus         SensorStatus `json:"sensorStatus"`
	DistanceFromEntrance int          `json:"distanceFromEntrance"`
	PreferredEntrance    Entrance     `json:"preferredEntrance"`
}

// Clone returns an independent copy of the spot.
func (s *Spot) Clone() *Spot {
	if s == nil {
		return nil
	}
	dup := *s
	return &dup
}

// SpotID is the parsed form of the composite "<floor>-<division>-<position>"
// spot identifier.
type SpotID struct {
	Floor    int
	Division int
	Position int
}

// String renders the canonical external form, e.g. "1-05-10".
func (id SpotID) String() string {
	return fmt.Sprintf("%d-%02d-%02d", id.Floor, id.Division, id.Position)
}

// ParseSpotID parses an external spot identifier. Each component must be a
// positive integer; the zero-padded form and the bare form are both accepted.
func ParseSpotID(raw string) (SpotID, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 3 {
		return SpotID{}, fmt.Errorf("layout: malformed spot id %q", raw)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return SpotID{}, fmt.Errorf("layout: malformed spot id %q", raw)
		}
		nums[i] = n
	}
	return SpotID{Floor: nums[0], Division: nums[1], Position: nums[2]}, nil
}

// EntranceFor returns the entrance spots in the given division prefer: the
// first half of each floor's divisions faces the main entrance, the rest the
// rear one.
func EntranceFor(division, divisionsPerFloor int) Entrance {
	if division <= divisionsPerFloor/2 {
		return EntranceMain
	}
	return EntranceRear
}

// WalkDistance is the synthetic distance from the division's entrance used
// when seeding the grid.
func WalkDistance(division, position int) int {
	return (division-1)*20 + (position-1)*2
}
