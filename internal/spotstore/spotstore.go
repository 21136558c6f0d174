// Package spotstore holds the in-memory parking grid and booking ledger, the
// engine's source of truth for availability. All mutations run under one
// store-wide mutex: at 1000 spots the contention is negligible and a single
// critical section makes the reserve check-and-set and the multi-entity
// updates (spot + ledger) trivially atomic for every caller, the expiry
// sweeper included.
package spotstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
)

var (
	// ErrNotFound indicates the spot or booking does not exist.
	ErrNotFound = errors.New("spotstore: not found")
	// ErrConflict indicates the spot already carries an active lease.
	ErrConflict = errors.New("spotstore: spot already reserved")
)

// Store wraps a layout document with synchronised access.
type Store struct {
	mu  sync.RWMutex
	doc *layout.Document
	loc *time.Location
}

// New validates the document and wraps it. The store owns doc afterwards;
// callers must not retain references into it.
func New(doc *layout.Document, loc *time.Location) (*Store, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{doc: doc, loc: loc}, nil
}

// Grid returns the fixed grid dimensions.
func (s *Store) Grid() layout.GridConfig {
	return s.doc.Grid()
}

// Get returns a copy of the spot's current state.
func (s *Store) Get(id layout.SpotID) (*layout.Spot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spot, ok := s.doc.Spot(id)
	if !ok {
		return nil, fmt.Errorf("%w: spot %s", ErrNotFound, id)
	}
	return spot.Clone(), nil
}

// Reserve atomically claims the spot for a lease. The availability check and
// the mutation share one critical section, so concurrent callers targeting
// the same spot cannot both succeed.
func (s *Store) Reserve(id layout.SpotID, bookingID, userID, leaseStart, leaseEnd string, now time.Time) (*layout.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(id, bookingID, userID, leaseStart, leaseEnd, now)
}

func (s *Store) reserveLocked(id layout.SpotID, bookingID, userID, leaseStart, leaseEnd string, now time.Time) (*layout.Spot, error) {
	spot, ok := s.doc.Spot(id)
	if !ok {
		return nil, fmt.Errorf("%w: spot %s", ErrNotFound, id)
	}
	if !spot.Available {
		return nil, fmt.Errorf("%w: %s", ErrConflict, id)
	}
	spot.Available = false
	spot.BookedBy = userID
	spot.LeaseStart = leaseStart
	spot.LeaseEnd = leaseEnd
	spot.BookingID = bookingID
	spot.SensorStatus = layout.SensorOccupied
	spot.LastSensorUpdate = layout.FormatTime(now, s.loc)
	return spot.Clone(), nil
}

// Release frees the spot. Releasing an already-available spot is a no-op
// success, not an error.
func (s *Store) Release(id layout.SpotID, now time.Time) (*layout.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(id, now)
}

func (s *Store) releaseLocked(id layout.SpotID, now time.Time) (*layout.Spot, error) {
	spot, ok := s.doc.Spot(id)
	if !ok {
		return nil, fmt.Errorf("%w: spot %s", ErrNotFound, id)
	}
	if spot.Available {
		return spot.Clone(), nil
	}
	spot.Available = true
	spot.BookedBy = ""
	spot.LeaseStart = ""
	spot.LeaseEnd = ""
	spot.BookingID = ""
	spot.SensorStatus = layout.SensorActive
	spot.LastSensorUpdate = layout.FormatTime(now, s.loc)
	return spot.Clone(), nil
}

// Book reserves the booking's spot and appends the booking to the ledger in
// one critical section.
func (s *Store) Book(b *layout.Booking, now time.Time) (*layout.Spot, error) {
	id, err := layout.ParseSpotID(b.SpotID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	spot, err := s.reserveLocked(id, b.ID, b.UserID, b.StartTime, b.EndTime, now)
	if err != nil {
		return nil, err
	}
	s.doc.BookingHistory = append(s.doc.BookingHistory, b.Clone())
	return spot, nil
}

// Unreserve rolls back a Book whose durable save failed: it frees the spot
// and drops the never-committed ledger entry. It is not part of the normal
// lifecycle; committed bookings leave the active state via Finish.
func (s *Store) Unreserve(bookingID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.doc.BookingHistory {
		if b.ID != bookingID {
			continue
		}
		if id, err := layout.ParseSpotID(b.SpotID); err == nil {
			_, _ = s.releaseLocked(id, now)
		}
		s.doc.BookingHistory = append(s.doc.BookingHistory[:i], s.doc.BookingHistory[i+1:]...)
		return
	}
}

// Finish moves a booking out of the active state and frees its spot. Calling
// it on an already-terminal booking is a no-op success that returns the
// booking as-is.
func (s *Store) Finish(bookingID string, status layout.BookingStatus, now time.Time) (*layout.Booking, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("spotstore: %q is not a terminal booking status", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.doc.FindBooking(bookingID)
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
	}
	if booking.Status != layout.BookingActive {
		return booking.Clone(), nil
	}
	booking.Status = status
	booking.CompletedAt = layout.FormatTime(now, s.loc)
	if id, err := layout.ParseSpotID(booking.SpotID); err == nil {
		if _, err := s.releaseLocked(id, now); err != nil {
			return nil, err
		}
	}
	return booking.Clone(), nil
}

// Booking returns a copy of the ledger entry with the given id.
func (s *Store) Booking(id string) (*layout.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	booking, ok := s.doc.FindBooking(id)
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return booking.Clone(), nil
}

// ActiveBookings returns copies of the ledger entries still active.
func (s *Store) ActiveBookings() []*layout.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := s.doc.ActiveBookings()
	out := make([]*layout.Booking, len(active))
	for i, b := range active {
		out[i] = b.Clone()
	}
	return out
}

// UserBookings returns copies of every ledger entry for the given user,
// oldest first.
func (s *Store) UserBookings(userID string) []*layout.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*layout.Booking
	for _, b := range s.doc.BookingHistory {
		if b.UserID == userID {
			out = append(out, b.Clone())
		}
	}
	return out
}

// HistoryLen returns the size of the append-only ledger.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.BookingHistory)
}

// Counts returns total, available, and occupied spot counts.
func (s *Store) Counts() (total, available, occupied int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.doc.EachSpot(func(spot *layout.Spot) bool {
		total++
		if spot.Available {
			available++
		} else {
			occupied++
		}
		return true
	})
	return total, available, occupied
}

// EachSpot visits copies of every spot in the deterministic floor-major scan
// order under a read lock.
func (s *Store) EachSpot(fn func(*layout.Spot) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.doc.EachSpot(func(spot *layout.Spot) bool {
		return fn(spot.Clone())
	})
}

// Snapshot deep-copies the document for serialisation, stamping the copy's
// lastModified with the supplied time.
func (s *Store) Snapshot(now time.Time) *layout.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dup := s.doc.Clone()
	dup.LastModified = layout.FormatTime(now, s.loc)
	return dup
}
