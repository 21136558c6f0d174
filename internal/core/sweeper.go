package core

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/clock"
	"github.com/ishaan2-svg/parkingawssystem/internal/correlation"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/loggingutil"
)

// DefaultSweepInterval is how often the sweeper checks for expired leases.
const DefaultSweepInterval = 60 * time.Second

// SweepExpired runs one expiry pass: every active booking whose end time has
// passed is released with the expired status. Failures are isolated per
// booking so one bad record never blocks the rest; a booking whose end time
// cannot be parsed is skipped, logged, and retried next cycle.
func (s *Service) SweepExpired(ctx context.Context) SweepResult {
	logger := s.log(ctx)
	start := s.clock.Now()
	var res SweepResult
	active := s.spots.ActiveBookings()
	res.Scanned = len(active)
	for _, b := range active {
		end, err := b.EndsAt(s.loc)
		if err != nil {
			logger.Warn("sweep.end_time_unparseable", "booking_id", b.ID, "end_time", b.EndTime, "error", err)
			res.Skipped++
			continue
		}
		if !start.After(end) {
			continue
		}
		if _, err := s.ReleaseBooking(ctx, b.ID, layout.BookingExpired); err != nil {
			logger.Error("sweep.release_failed", "booking_id", b.ID, "error", err)
			res.Failed++
			continue
		}
		res.Expired++
	}
	elapsed := s.clock.Now().Sub(start)
	if s.metrics != nil {
		s.metrics.SweepCompleted(res, elapsed)
	}
	if res.Expired > 0 || res.Skipped > 0 || res.Failed > 0 {
		logger.Info("sweep.done", "scanned", res.Scanned, "expired", res.Expired, "skipped", res.Skipped, "failed", res.Failed)
	} else {
		logger.Debug("sweep.done", "scanned", res.Scanned)
	}
	return res
}

// SweeperConfig wires a Sweeper together.
type SweeperConfig struct {
	Service  *Service
	Interval time.Duration
	Clock    clock.Clock
	Logger   pslog.Logger
}

// Sweeper periodically expires overdue bookings in the background. Cycles
// run sequentially on one goroutine, so a slow pass delays the next instead
// of overlapping it.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	clock    clock.Clock
	logger   pslog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewSweeper constructs a stopped Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sweeper{
		svc:      cfg.Service,
		interval: interval,
		clock:    clk,
		logger:   loggingutil.EnsureLogger(cfg.Logger),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (w *Sweeper) Start() {
	w.startOnce.Do(func() {
		go w.loop()
	})
}

// Stop halts the loop and waits for any in-flight pass to finish.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

func (w *Sweeper) loop() {
	defer close(w.done)
	w.logger.Debug("sweep.loop.start", "interval", w.interval.String())
	for {
		select {
		case <-w.stop:
			w.logger.Debug("sweep.loop.stop")
			return
		case <-w.clock.After(w.interval):
			ctx := correlation.Set(context.Background(), correlation.Generate())
			w.svc.SweepExpired(ctx)
		}
	}
}
