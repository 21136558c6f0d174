package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ishaan2-svg/parkingawssystem/internal/ids"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/spotstore"
	"github.com/ishaan2-svg/parkingawssystem/internal/userdir"
)

// CreateBooking reserves a spot, appends the booking to the ledger, and makes
// both durable. The spot reservation and the ledger append happen in one
// critical section; if the durable write (or the user-record update) fails,
// the reservation is rolled back so the in-memory and on-disk states agree.
func (s *Service) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (*layout.Booking, error) {
	logger := s.log(ctx)
	spotID, err := layout.ParseSpotID(strings.TrimSpace(cmd.SpotID))
	if err != nil {
		return nil, Failure{Code: "invalid_spot_id", Detail: err.Error(), HTTPStatus: http.StatusBadRequest}
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, Failure{Code: "missing_user", Detail: "user id required", HTTPStatus: http.StatusBadRequest}
	}
	if !cmd.End.After(cmd.Start) {
		return nil, Failure{Code: "invalid_lease_window", Detail: "end time must be after start time", HTTPStatus: http.StatusBadRequest}
	}
	if cmd.Cost < 0 {
		return nil, Failure{Code: "invalid_cost", Detail: "cost must not be negative", HTTPStatus: http.StatusBadRequest}
	}
	if s.users != nil {
		if _, err := s.users.Find(ctx, cmd.UserID); err != nil {
			if errors.Is(err, userdir.ErrNotFound) {
				return nil, Failure{Code: "user_not_found", Detail: fmt.Sprintf("user %s not registered", cmd.UserID), HTTPStatus: http.StatusNotFound}
			}
			return nil, Failure{Code: "persistence_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
		}
	}

	now := s.clock.Now()
	booking := &layout.Booking{
		ID:        ids.NewBookingID(now),
		SpotID:    spotID.String(),
		UserID:    cmd.UserID,
		StartTime: layout.FormatTime(cmd.Start, s.loc),
		EndTime:   layout.FormatTime(cmd.End, s.loc),
		Duration:  cmd.End.Sub(cmd.Start).Hours(),
		Cost:      cmd.Cost,
		Status:    layout.BookingActive,
		CreatedAt: layout.FormatTime(now, s.loc),
		Floor:     spotID.Floor,
		Division:  spotID.Division,
		Position:  spotID.Position,
	}
	logger.Debug("booking.create.begin", "booking_id", booking.ID, "spot", booking.SpotID, "user", booking.UserID)

	if _, err := s.spots.Book(booking, now); err != nil {
		switch {
		case errors.Is(err, spotstore.ErrNotFound):
			return nil, Failure{Code: "spot_not_found", Detail: fmt.Sprintf("spot %s does not exist", booking.SpotID), HTTPStatus: http.StatusNotFound}
		case errors.Is(err, spotstore.ErrConflict):
			logger.Info("booking.create.conflict", "spot", booking.SpotID, "user", booking.UserID)
			return nil, Failure{Code: "spot_unavailable", Detail: fmt.Sprintf("spot %s is already reserved", booking.SpotID), HTTPStatus: http.StatusConflict}
		default:
			return nil, Failure{Code: "invalid_spot_id", Detail: err.Error(), HTTPStatus: http.StatusBadRequest}
		}
	}

	if err := s.saveLayout(ctx); err != nil {
		s.spots.Unreserve(booking.ID, now)
		logger.Error("booking.create.save_failed", "booking_id", booking.ID, "error", err)
		return nil, Failure{Code: "persistence_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
	}

	if s.users != nil {
		if err := s.users.RecordBooking(ctx, booking.UserID, booking); err != nil {
			s.spots.Unreserve(booking.ID, now)
			if rerr := s.saveLayout(ctx); rerr != nil {
				logger.Error("booking.create.rollback_save_failed", "booking_id", booking.ID, "error", rerr)
			}
			logger.Error("booking.create.user_record_failed", "booking_id", booking.ID, "user", booking.UserID, "error", err)
			return nil, Failure{Code: "persistence_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
		}
	}

	if s.metrics != nil {
		s.metrics.BookingCreated()
	}
	s.recordOccupancy()
	logger.Info("booking.create.ok", "booking_id", booking.ID, "spot", booking.SpotID, "user", booking.UserID, "until", booking.EndTime)
	return booking.Clone(), nil
}

// ReleaseBooking moves a booking to a terminal status, frees its spot, and
// persists the layout. Releasing an already-terminal booking is a no-op
// success that returns the booking unchanged.
func (s *Service) ReleaseBooking(ctx context.Context, bookingID string, status layout.BookingStatus) (*layout.Booking, error) {
	logger := s.log(ctx)
	if !status.Terminal() {
		return nil, Failure{Code: "invalid_release_status", Detail: fmt.Sprintf("%q is not a terminal status", status), HTTPStatus: http.StatusBadRequest}
	}
	prior, err := s.spots.Booking(bookingID)
	if err != nil {
		return nil, Failure{Code: "booking_not_found", Detail: fmt.Sprintf("booking %s does not exist", bookingID), HTTPStatus: http.StatusNotFound}
	}
	if prior.Status != layout.BookingActive {
		logger.Debug("booking.release.noop", "booking_id", bookingID, "status", string(prior.Status))
		return prior, nil
	}

	now := s.clock.Now()
	booking, err := s.spots.Finish(bookingID, status, now)
	if err != nil {
		if errors.Is(err, spotstore.ErrNotFound) {
			return nil, Failure{Code: "booking_not_found", Detail: fmt.Sprintf("booking %s does not exist", bookingID), HTTPStatus: http.StatusNotFound}
		}
		return nil, Failure{Code: "release_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
	}

	// The spot is freed in memory either way; a failed save still surfaces so
	// the operator knows disk is behind.
	if err := s.saveLayout(ctx); err != nil {
		logger.Error("booking.release.save_failed", "booking_id", bookingID, "error", err)
		return nil, Failure{Code: "persistence_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
	}

	if s.users != nil {
		if err := s.users.UpdateBookingStatus(ctx, booking.UserID, booking.ID, booking.Status, booking.CompletedAt); err != nil {
			// The layout ledger is authoritative; the user-document mirror is
			// best effort and will be reconciled by a later write.
			logger.Warn("booking.release.user_mirror_failed", "booking_id", bookingID, "user", booking.UserID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.BookingReleased(string(status))
	}
	s.recordOccupancy()
	logger.Info("booking.release.ok", "booking_id", bookingID, "spot", booking.SpotID, "status", string(status))
	return booking, nil
}

// GetBooking returns the ledger entry with the given id.
func (s *Service) GetBooking(ctx context.Context, bookingID string) (*layout.Booking, error) {
	booking, err := s.spots.Booking(bookingID)
	if err != nil {
		return nil, Failure{Code: "booking_not_found", Detail: fmt.Sprintf("booking %s does not exist", bookingID), HTTPStatus: http.StatusNotFound}
	}
	return booking, nil
}

// GetSpot returns the current state of one spot.
func (s *Service) GetSpot(ctx context.Context, rawID string) (*layout.Spot, error) {
	id, err := layout.ParseSpotID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, Failure{Code: "invalid_spot_id", Detail: err.Error(), HTTPStatus: http.StatusBadRequest}
	}
	spot, err := s.spots.Get(id)
	if err != nil {
		return nil, Failure{Code: "spot_not_found", Detail: fmt.Sprintf("spot %s does not exist", id), HTTPStatus: http.StatusNotFound}
	}
	return spot, nil
}

// UserBookings returns every ledger entry for the given user, oldest first.
func (s *Service) UserBookings(ctx context.Context, userID string) ([]*layout.Booking, error) {
	if s.users != nil {
		if _, err := s.users.Find(ctx, userID); err != nil {
			if errors.Is(err, userdir.ErrNotFound) {
				return nil, Failure{Code: "user_not_found", Detail: fmt.Sprintf("user %s not registered", userID), HTTPStatus: http.StatusNotFound}
			}
			return nil, Failure{Code: "persistence_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError}
		}
	}
	return s.spots.UserBookings(userID), nil
}

// ActiveBookings returns the bookings currently holding a spot.
func (s *Service) ActiveBookings(ctx context.Context) []*layout.Booking {
	return s.spots.ActiveBookings()
}
