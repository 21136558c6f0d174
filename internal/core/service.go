// Package core implements the booking engine: lease creation with
// compensating rollback, release, closest-spot search, occupancy stats, and
// the background expiry sweeper. It is transport-agnostic; the CLI (and any
// future HTTP adapter) sits on top of Service.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/clock"
	"github.com/ishaan2-svg/parkingawssystem/internal/correlation"
	"github.com/ishaan2-svg/parkingawssystem/internal/loggingutil"
	"github.com/ishaan2-svg/parkingawssystem/internal/persist"
	"github.com/ishaan2-svg/parkingawssystem/internal/spotstore"
	"github.com/ishaan2-svg/parkingawssystem/internal/userdir"
)

// LayoutKey is the persistence key of the parking layout document.
const LayoutKey = "parking_layout.json"

// Config wires a Service together.
type Config struct {
	Spots    *spotstore.Store
	Gateway  persist.Gateway
	Users    *userdir.Directory
	Clock    clock.Clock
	Location *time.Location
	Logger   pslog.Logger
	Metrics  Metrics
	Origin   *Origin // closest-spot search origin; nil means DefaultOrigin
}

// Service aggregates the transport-agnostic booking operations.
type Service struct {
	spots   *spotstore.Store
	gateway persist.Gateway
	users   *userdir.Directory
	clock   clock.Clock
	loc     *time.Location
	logger  pslog.Logger
	metrics Metrics
	origin  Origin

	// saveMu orders snapshot-and-save pairs: without it two concurrent
	// bookings can write their snapshots out of order and the older one
	// lands on disk last.
	saveMu sync.Mutex
}

// New constructs the booking Service.
func New(cfg Config) (*Service, error) {
	if cfg.Spots == nil {
		return nil, fmt.Errorf("core: spot store required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("core: persistence gateway required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	origin := DefaultOrigin
	if cfg.Origin != nil {
		origin = *cfg.Origin
	}
	return &Service{
		spots:   cfg.Spots,
		gateway: cfg.Gateway,
		users:   cfg.Users,
		clock:   clk,
		loc:     loc,
		logger:  loggingutil.EnsureLogger(cfg.Logger),
		metrics: cfg.Metrics,
		origin:  origin,
	}, nil
}

// Location returns the location bookings are stamped in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) log(ctx context.Context) pslog.Logger {
	logger := s.logger
	if id := correlation.ID(ctx); id != "" {
		logger = logger.With("correlation_id", id)
	}
	return logger
}

// saveLayout snapshots the in-memory layout and writes it through the
// gateway. Snapshot and save happen under one lock so a snapshot taken
// earlier can never overwrite one taken later.
func (s *Service) saveLayout(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	snap := s.spots.Snapshot(s.clock.Now())
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	return s.gateway.Save(ctx, LayoutKey, data)
}

func (s *Service) recordOccupancy() {
	if s.metrics == nil {
		return
	}
	total, available, occupied := s.spots.Counts()
	s.metrics.SetOccupancy(total, available, occupied)
}
