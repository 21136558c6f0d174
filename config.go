package smartpark

import (
	"fmt"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/clock"
	"github.com/ishaan2-svg/parkingawssystem/internal/core"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
)

const (
	// DefaultDataDir is where layout and user documents live when no
	// directory is configured.
	DefaultDataDir = "data"
	// DefaultTimezone stamps bookings; the original deployment runs in
	// India.
	DefaultTimezone = "Asia/Kolkata"
	// DefaultFloors is the number of parking levels in a fresh layout.
	DefaultFloors = 5
	// DefaultDivisionsPerFloor is the number of divisions per level.
	DefaultDivisionsPerFloor = 10
	// DefaultSpotsPerDivision is the number of spots per division.
	DefaultSpotsPerDivision = 20
	// DefaultSweepInterval is how often expired leases are collected.
	DefaultSweepInterval = core.DefaultSweepInterval
	// DefaultBackupRetention bounds how long layout backups are kept.
	DefaultBackupRetention = 7 * 24 * time.Hour
	// DefaultBackupJanitorInterval is how often stale backups are pruned.
	DefaultBackupJanitorInterval = time.Hour
	// DefaultMetricsListen is the Prometheus scrape endpoint. Empty
	// disables the metrics listener.
	DefaultMetricsListen = ""
)

// Config carries everything needed to assemble an Engine.
type Config struct {
	// DataDir holds the layout and user documents plus their backups.
	DataDir string
	// RemoteURL optionally replicates backups to object storage:
	// aws://bucket[/prefix]?region=..., s3://host[:port]/bucket[/prefix],
	// or azure://account/container[/prefix]. Empty disables replication.
	RemoteURL string
	// Timezone is the IANA zone bookings are stamped in.
	Timezone string

	Floors            int
	DivisionsPerFloor int
	SpotsPerDivision  int

	// SweepInterval is the expiry sweeper tick. Zero means
	// DefaultSweepInterval; negative disables the background sweeper.
	SweepInterval time.Duration
	// BackupRetention prunes layout backups older than this age.
	BackupRetention time.Duration
	// MetricsListen exposes Prometheus metrics when non-empty, e.g.
	// "127.0.0.1:9600".
	MetricsListen string

	// SeedDemoUsers registers the two demo accounts on first init.
	SeedDemoUsers bool
	// SeedOccupancy marks a random ~30% of a freshly generated grid as
	// occupied, matching the original sample data.
	SeedOccupancy bool

	Logger pslog.Logger
	Clock  clock.Clock
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Floors == 0 {
		c.Floors = DefaultFloors
	}
	if c.DivisionsPerFloor == 0 {
		c.DivisionsPerFloor = DefaultDivisionsPerFloor
	}
	if c.SpotsPerDivision == 0 {
		c.SpotsPerDivision = DefaultSpotsPerDivision
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.BackupRetention == 0 {
		c.BackupRetention = DefaultBackupRetention
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
}

// Validate rejects configurations the Engine cannot run with.
func (c Config) Validate() error {
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("smartpark: unknown timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Grid returns the configured layout dimensions.
func (c Config) Grid() layout.GridConfig {
	return layout.GridConfig{
		Floors:            c.Floors,
		DivisionsPerFloor: c.DivisionsPerFloor,
		SpotsPerDivision:  c.SpotsPerDivision,
	}
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
