// Package layout defines the persisted parking layout document: the fixed
// grid of spots plus the append-only booking ledger. The document is the
// durable form of the engine's in-memory state; "active bookings" are a
// filtered view over the ledger, never a second list.
package layout

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// DocumentVersion tags the on-disk layout schema.
const DocumentVersion = "1.0"

// GridConfig fixes the dimensions of the spot grid. The total spot count
// never changes after initialisation.
type GridConfig struct {
	Floors            int
	DivisionsPerFloor int
	SpotsPerDivision  int
}

// Validate rejects non-positive grid dimensions.
func (g GridConfig) Validate() error {
	if g.Floors <= 0 || g.DivisionsPerFloor <= 0 || g.SpotsPerDivision <= 0 {
		return fmt.Errorf("layout: grid dimensions must be positive, got %d/%d/%d",
			g.Floors, g.DivisionsPerFloor, g.SpotsPerDivision)
	}
	return nil
}

// TotalSpots returns the fixed size of the grid.
func (g GridConfig) TotalSpots() int {
	return g.Floors * g.DivisionsPerFloor * g.SpotsPerDivision
}

// Document is the versioned persisted layout: floors → divisions → spots,
// plus the booking ledger.
type Document struct {
	Version           string                                 `json:"version"`
	Created           string                                 `json:"created"`
	LastModified      string                                 `json:"lastModified"`
	TotalFloors       int                                    `json:"totalFloors"`
	DivisionsPerFloor int                                    `json:"divisionsPerFloor"`
	SpotsPerDivision  int                                    `json:"spotsPerDivision"`
	Floors            map[string]map[string]map[string]*Spot `json:"floors"`
	BookingHistory    []*Booking                             `json:"bookingHistory"`
}

// Generate builds a fresh layout document for the supplied grid. When
// occupancySeed is non-nil it marks a random subset of spots unavailable the
// way the original demo data does; production initialisation passes nil and
// starts fully available.
func Generate(grid GridConfig, now time.Time, loc *time.Location, occupancySeed *rand.Rand) (*Document, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	stamp := FormatTime(now, loc)
	doc := &Document{
		Version:           DocumentVersion,
		Created:           stamp,
		LastModified:      stamp,
		TotalFloors:       grid.Floors,
		DivisionsPerFloor: grid.DivisionsPerFloor,
		SpotsPerDivision:  grid.SpotsPerDivision,
		Floors:            make(map[string]map[string]map[string]*Spot, grid.Floors),
		BookingHistory:    []*Booking{},
	}
	for floor := 1; floor <= grid.Floors; floor++ {
		divisions := make(map[string]map[string]*Spot, grid.DivisionsPerFloor)
		doc.Floors[strconv.Itoa(floor)] = divisions
		for division := 1; division <= grid.DivisionsPerFloor; division++ {
			spots := make(map[string]*Spot, grid.SpotsPerDivision)
			divisions[strconv.Itoa(division)] = spots
			for position := 1; position <= grid.SpotsPerDivision; position++ {
				available := true
				if occupancySeed != nil {
					available = occupancySeed.Float64() > 0.3
				}
				id := SpotID{Floor: floor, Division: division, Position: position}
				spots[strconv.Itoa(position)] = &Spot{
					ID:                   id.String(),
					Floor:                floor,
					Division:             division,
					Position:             position,
					Available:            available,
					LastSensorUpdate:     stamp,
					SensorStatus:         SensorActive,
					DistanceFromEntrance: WalkDistance(division, position),
					PreferredEntrance:    EntranceFor(division, grid.DivisionsPerFloor),
				}
			}
		}
	}
	return doc, nil
}

// Grid returns the document's grid dimensions.
func (d *Document) Grid() GridConfig {
	return GridConfig{
		Floors:            d.TotalFloors,
		DivisionsPerFloor: d.DivisionsPerFloor,
		SpotsPerDivision:  d.SpotsPerDivision,
	}
}

// Validate checks the document's structural integrity: version, grid
// dimensions, and that every declared grid cell is present.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("layout: nil document")
	}
	if d.Version == "" {
		return fmt.Errorf("layout: document missing version")
	}
	if err := d.Grid().Validate(); err != nil {
		return err
	}
	for floor := 1; floor <= d.TotalFloors; floor++ {
		divisions, ok := d.Floors[strconv.Itoa(floor)]
		if !ok {
			return fmt.Errorf("layout: floor %d missing", floor)
		}
		for division := 1; division <= d.DivisionsPerFloor; division++ {
			spots, ok := divisions[strconv.Itoa(division)]
			if !ok {
				return fmt.Errorf("layout: floor %d division %d missing", floor, division)
			}
			if len(spots) != d.SpotsPerDivision {
				return fmt.Errorf("layout: floor %d division %d has %d spots, want %d",
					floor, division, len(spots), d.SpotsPerDivision)
			}
		}
	}
	return nil
}

// Spot looks up a grid cell. The second return value is false when the id
// lies outside the grid.
func (d *Document) Spot(id SpotID) (*Spot, bool) {
	divisions, ok := d.Floors[strconv.Itoa(id.Floor)]
	if !ok {
		return nil, false
	}
	spots, ok := divisions[strconv.Itoa(id.Division)]
	if !ok {
		return nil, false
	}
	spot, ok := spots[strconv.Itoa(id.Position)]
	return spot, ok
}

// EachSpot visits every spot in deterministic scan order: floor-major, then
// division, then position. The walk stops early when fn returns false.
func (d *Document) EachSpot(fn func(*Spot) bool) {
	for floor := 1; floor <= d.TotalFloors; floor++ {
		divisions := d.Floors[strconv.Itoa(floor)]
		for division := 1; division <= d.DivisionsPerFloor; division++ {
			spots := divisions[strconv.Itoa(division)]
			for position := 1; position <= d.SpotsPerDivision; position++ {
				spot, ok := spots[strconv.Itoa(position)]
				if !ok {
					continue
				}
				if !fn(spot) {
					return
				}
			}
		}
	}
}

// ActiveBookings returns the active slice of the ledger, newest last.
func (d *Document) ActiveBookings() []*Booking {
	var active []*Booking
	for _, b := range d.BookingHistory {
		if b.Status == BookingActive {
			active = append(active, b)
		}
	}
	return active
}

// FindBooking returns the ledger entry with the given id.
func (d *Document) FindBooking(id string) (*Booking, bool) {
	for _, b := range d.BookingHistory {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// Clone deep-copies the document so callers can serialise it without holding
// the store lock.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	dup := *d
	dup.Floors = make(map[string]map[string]map[string]*Spot, len(d.Floors))
	for f, divisions := range d.Floors {
		dupDivisions := make(map[string]map[string]*Spot, len(divisions))
		dup.Floors[f] = dupDivisions
		for dv, spots := range divisions {
			dupSpots := make(map[string]*Spot, len(spots))
			dupDivisions[dv] = dupSpots
			for p, spot := range spots {
				dupSpots[p] = spot.Clone()
			}
		}
	}
	dup.BookingHistory = make([]*Booking, len(d.BookingHistory))
	for i, b := range d.BookingHistory {
		dup.BookingHistory[i] = b.Clone()
	}
	return &dup
}
