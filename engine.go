// Package smartpark assembles the parking reservation engine: the in-memory
// spot store, the durable layout and user documents, the optional remote
// backup replication, the expiry sweeper, and Prometheus telemetry.
package smartpark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/core"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/loggingutil"
	"github.com/ishaan2-svg/parkingawssystem/internal/persist"
	"github.com/ishaan2-svg/parkingawssystem/internal/remote"
	"github.com/ishaan2-svg/parkingawssystem/internal/spotstore"
	"github.com/ishaan2-svg/parkingawssystem/internal/userdir"
)

// Engine owns every component of a running parking service.
type Engine struct {
	cfg       Config
	logger    pslog.Logger
	loc       *time.Location
	gateway   *persist.Store
	store     *spotstore.Store
	users     *userdir.Directory
	service   *core.Service
	sweeper   *core.Sweeper
	telemetry *Telemetry
	sinkName  string

	started bool
}

// NewEngine loads (or generates) the layout and user documents and wires the
// service together. The engine is passive until Start.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := loggingutil.EnsureLogger(cfg.Logger)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sink, err := remote.Open(ctx, cfg.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("smartpark: remote sink: %w", err)
	}
	if sink != nil {
		logger.Info("engine.remote.enabled", "sink", sink.Name())
	}

	gateway, err := persist.New(persist.Config{
		Dir:             cfg.DataDir,
		BackupRetention: cfg.BackupRetention,
		JanitorInterval: DefaultBackupJanitorInterval,
		Sink:            sink,
		Logger:          logger,
		Now:             cfg.Clock.Now,
	})
	if err != nil {
		return nil, err
	}

	doc, generated, err := loadOrGenerateLayout(ctx, gateway, cfg, loc)
	if err != nil {
		gateway.Close()
		return nil, err
	}
	store, err := spotstore.New(doc, loc)
	if err != nil {
		gateway.Close()
		return nil, err
	}

	users, err := userdir.New(userdir.Config{Gateway: gateway, Clock: cfg.Clock, Location: loc, Logger: logger})
	if err != nil {
		gateway.Close()
		return nil, err
	}
	if err := users.Init(ctx, cfg.SeedDemoUsers); err != nil {
		gateway.Close()
		return nil, fmt.Errorf("smartpark: init user directory: %w", err)
	}

	telemetry := newTelemetry(logger)
	service, err := core.New(core.Config{
		Spots:    store,
		Gateway:  gateway,
		Users:    users,
		Clock:    cfg.Clock,
		Location: loc,
		Logger:   logger,
		Metrics:  telemetry,
	})
	if err != nil {
		gateway.Close()
		return nil, err
	}

	sinkName := ""
	if sink != nil {
		sinkName = sink.Name()
	}
	e := &Engine{
		cfg:       cfg,
		sinkName:  sinkName,
		logger:    logger,
		loc:       loc,
		gateway:   gateway,
		store:     store,
		users:     users,
		service:   service,
		telemetry: telemetry,
	}
	if cfg.SweepInterval > 0 {
		e.sweeper = core.NewSweeper(core.SweeperConfig{
			Service:  service,
			Interval: cfg.SweepInterval,
			Clock:    cfg.Clock,
			Logger:   logger,
		})
	}
	if generated {
		// Persist the fresh layout so a crash before the first booking does
		// not regenerate a different grid.
		if err := e.saveInitialLayout(ctx); err != nil {
			gateway.Close()
			return nil, err
		}
		logger.Info("engine.layout.generated", "spots", cfg.Grid().TotalSpots())
	}
	total, available, occupied := store.Counts()
	telemetry.SetOccupancy(total, available, occupied)
	logger.Info("engine.ready", "spots", total, "available", available, "occupied", occupied, "timezone", cfg.Timezone)
	return e, nil
}

// Service exposes the booking operations.
func (e *Engine) Service() *core.Service {
	return e.service
}

// Users exposes the account directory.
func (e *Engine) Users() *userdir.Directory {
	return e.users
}

// Start launches the expiry sweeper and, when configured, the metrics
// listener.
func (e *Engine) Start() error {
	if e.started {
		return nil
	}
	if e.cfg.MetricsListen != "" {
		if err := e.telemetry.Serve(e.cfg.MetricsListen); err != nil {
			return fmt.Errorf("smartpark: metrics listener: %w", err)
		}
	}
	if e.sweeper != nil {
		e.sweeper.Start()
		e.logger.Info("engine.sweeper.started", "interval", e.cfg.SweepInterval.String())
	}
	e.started = true
	return nil
}

// Close stops background work and flushes in-flight replication. Safe to
// call more than once.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.sweeper != nil && e.started {
		e.sweeper.Stop()
		e.sweeper = nil
	}
	if err := e.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.gateway != nil {
		if err := e.gateway.Close(); err != nil {
			errs = append(errs, err)
		}
		e.gateway = nil
	}
	e.started = false
	return errors.Join(errs...)
}

// Health is a point-in-time liveness summary.
type Health struct {
	Status         string `json:"status"`
	LayoutOnDisk   bool   `json:"layoutOnDisk"`
	RemoteSink     string `json:"remoteSink,omitempty"`
	TotalSpots     int    `json:"totalSpots"`
	AvailableSpots int    `json:"availableSpots"`
	OccupiedSpots  int    `json:"occupiedSpots"`
	ActiveBookings int    `json:"activeBookings"`
	Timestamp      string `json:"timestamp"`
}

// Health reports whether the durable layout is readable and how the grid
// currently looks.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{Status: "ok", RemoteSink: e.sinkName, Timestamp: layout.FormatTime(e.cfg.Clock.Now(), e.loc)}
	h.TotalSpots, h.AvailableSpots, h.OccupiedSpots = e.store.Counts()
	h.ActiveBookings = len(e.store.ActiveBookings())
	if e.gateway == nil {
		h.Status = "closed"
		return h
	}
	if _, err := e.gateway.Load(ctx, core.LayoutKey); err != nil {
		h.Status = "degraded"
	} else {
		h.LayoutOnDisk = true
	}
	return h
}

func (e *Engine) saveInitialLayout(ctx context.Context) error {
	snap := e.store.Snapshot(e.cfg.Clock.Now())
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return e.gateway.Save(ctx, core.LayoutKey, data)
}

// loadOrGenerateLayout reads the layout document, generating a fresh grid
// when none exists yet. A corrupt document is an error, not a regeneration:
// silently replacing it would drop the booking ledger.
func loadOrGenerateLayout(ctx context.Context, gateway persist.Gateway, cfg Config, loc *time.Location) (*layout.Document, bool, error) {
	data, err := gateway.Load(ctx, core.LayoutKey)
	switch {
	case err == nil:
		var doc layout.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false, fmt.Errorf("smartpark: decode layout: %w", err)
		}
		if err := doc.Validate(); err != nil {
			return nil, false, fmt.Errorf("smartpark: layout document: %w", err)
		}
		return &doc, false, nil
	case errors.Is(err, persist.ErrNotFound):
		var seed *rand.Rand
		if cfg.SeedOccupancy {
			seed = rand.New(rand.NewSource(cfg.Clock.Now().UnixNano()))
		}
		doc, err := layout.Generate(cfg.Grid(), cfg.Clock.Now(), loc, seed)
		if err != nil {
			return nil, false, err
		}
		return doc, true, nil
	default:
		return nil, false, fmt.Errorf("smartpark: load layout: %w", err)
	}
}
