package core

import (
	"context"
	"math"
	"net/http"

	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
)

// Stats returns a point-in-time occupancy summary.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, available, occupied := s.spots.Counts()
	out := &Stats{
		TotalSpots:     total,
		AvailableSpots: available,
		OccupiedSpots:  occupied,
		ActiveBookings: len(s.spots.ActiveBookings()),
		TotalBookings:  s.spots.HistoryLen(),
		LastUpdated:    layout.FormatTime(s.clock.Now(), s.loc),
	}
	if total > 0 {
		out.OccupancyRate = math.Round(float64(occupied)/float64(total)*10000) / 100
	}
	if s.users != nil {
		n, err := s.users.Count(ctx)
		if err != nil {
			return nil, Failure{Code: "persistence_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
		}
		out.RegisteredUsers = n
	}
	s.recordOccupancy()
	return out, nil
}
