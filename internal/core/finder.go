package core

import (
	"context"
	"net/http"

	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
)

// FindClosestSpot searches from the main entrance (DefaultOrigin) unless the
// Service was configured with a different origin.
func (s *Service) FindClosestSpot(ctx context.Context) (*ClosestSpot, error) {
	return s.FindClosestFrom(ctx, s.origin)
}

// FindClosestFrom scans the grid in floor-major order and returns the
// available spot with the smallest weighted distance from the origin. Ties
// keep the first spot encountered, so repeated calls against an unchanged
// grid return the same spot.
func (s *Service) FindClosestFrom(ctx context.Context, origin Origin) (*ClosestSpot, error) {
	var best *ClosestSpot
	s.spots.EachSpot(func(spot *layout.Spot) bool {
		if !spot.Available {
			return true
		}
		d := weightedDistance(origin, spot)
		if best == nil || d < best.Distance {
			best = &ClosestSpot{Spot: spot, Distance: d}
		}
		return true
	})
	if best == nil {
		s.log(ctx).Info("finder.no_spots_available")
		return nil, Failure{Code: "no_spots_available", Detail: "every spot is reserved", HTTPStatus: http.StatusNotFound}
	}
	return best, nil
}

func weightedDistance(origin Origin, spot *layout.Spot) int {
	return abs(spot.Floor-origin.Floor)*floorWeight +
		abs(spot.Division-origin.Division)*divisionWeight +
		abs(spot.Position-origin.Position)*positionWeight
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
