package smartpark

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/core"
)

// Telemetry owns the Prometheus registry and the optional scrape listener.
// It satisfies core.Metrics.
type Telemetry struct {
	registry *prometheus.Registry
	logger   pslog.Logger

	bookingsCreated  prometheus.Counter
	bookingsReleased *prometheus.CounterVec
	sweepRuns        prometheus.Counter
	sweepExpired     prometheus.Counter
	sweepSkipped     prometheus.Counter
	sweepFailed      prometheus.Counter
	sweepDuration    prometheus.Histogram
	spotsTotal       prometheus.Gauge
	spotsAvailable   prometheus.Gauge
	spotsOccupied    prometheus.Gauge

	server *http.Server
	ln     net.Listener
}

func newTelemetry(logger pslog.Logger) *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpark_bookings_created_total",
			Help: "Bookings successfully created.",
		}),
		bookingsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpark_bookings_released_total",
			Help: "Bookings released, by terminal status.",
		}, []string{"status"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpark_sweep_runs_total",
			Help: "Expiry sweep passes completed.",
		}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpark_sweep_expired_total",
			Help: "Bookings expired by the sweeper.",
		}),
		sweepSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpark_sweep_skipped_total",
			Help: "Bookings skipped because their end time would not parse.",
		}),
		sweepFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpark_sweep_failed_total",
			Help: "Bookings the sweeper failed to release.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartpark_sweep_duration_seconds",
			Help:    "Wall time of one expiry sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
		spotsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpark_spots_total",
			Help: "Spots in the layout.",
		}),
		spotsAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpark_spots_available",
			Help: "Spots currently free.",
		}),
		spotsOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpark_spots_occupied",
			Help: "Spots currently reserved.",
		}),
	}
	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		t.bookingsCreated,
		t.bookingsReleased,
		t.sweepRuns,
		t.sweepExpired,
		t.sweepSkipped,
		t.sweepFailed,
		t.sweepDuration,
		t.spotsTotal,
		t.spotsAvailable,
		t.spotsOccupied,
	)
	return t
}

// BookingCreated implements core.Metrics.
func (t *Telemetry) BookingCreated() {
	t.bookingsCreated.Inc()
}

// BookingReleased implements core.Metrics.
func (t *Telemetry) BookingReleased(status string) {
	t.bookingsReleased.WithLabelValues(status).Inc()
}

// SweepCompleted implements core.Metrics.
func (t *Telemetry) SweepCompleted(result core.SweepResult, elapsed time.Duration) {
	t.sweepRuns.Inc()
	t.sweepExpired.Add(float64(result.Expired))
	t.sweepSkipped.Add(float64(result.Skipped))
	t.sweepFailed.Add(float64(result.Failed))
	t.sweepDuration.Observe(elapsed.Seconds())
}

// SetOccupancy implements core.Metrics.
func (t *Telemetry) SetOccupancy(total, available, occupied int) {
	t.spotsTotal.Set(float64(total))
	t.spotsAvailable.Set(float64(available))
	t.spotsOccupied.Set(float64(occupied))
}

// Serve binds the scrape endpoint and serves it in the background until
// Shutdown.
func (t *Telemetry) Serve(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	t.ln = ln
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Warn("telemetry.serve.error", "error", err)
		}
	}()
	t.logger.Info("telemetry.listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound scrape address, or "" before Serve.
func (t *Telemetry) Addr() string {
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

// Shutdown stops the scrape listener if one is running.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(ctx)
}
