// Package metrics exports lookup statistics for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tkjaer/fibinfo/internal/shared"
	"github.com/tkjaer/fibinfo/pkg/fib"
)

// Metrics observes the table and the emitted records. It implements both
// fib.Observer and output.Output.
type Metrics struct {
	registry *prometheus.Registry

	lookups          *prometheus.CounterVec
	cycles           prometheus.Counter
	depth            prometheus.Histogram
	routes           prometheus.Gauge
	runs             *prometheus.CounterVec
	chainChanges     *prometheus.CounterVec
	destinationFound *prometheus.GaugeVec
	lastRun          prometheus.Gauge
	scanAddresses    *prometheus.GaugeVec

	mu        sync.Mutex
	lastChain map[string]string // destination -> chain hash
}

func New() *Metrics {
	return newMetricsWithRegistry(prometheus.NewRegistry())
}

func newMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fibinfo_lookups_total",
				Help: "Total number of table lookups by outcome",
			},
			[]string{"outcome"},
		),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fibinfo_resolution_cycles_total",
			Help: "Total number of lookups that hit a resolution cycle",
		}),
		depth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fibinfo_resolution_depth",
			Help:    "Length of the resolution chain of successful lookups",
			Buckets: []float64{1, 2, 3, 4},
		}),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fibinfo_routes",
			Help: "Number of route entries in the table",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fibinfo_runs_total",
				Help: "Total number of diagnostic runs by mode",
			},
			[]string{"mode"},
		),
		chainChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fibinfo_chain_changes_total",
				Help: "Total number of resolution chain changes detected per destination",
			},
			[]string{"destination"},
		),
		destinationFound: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fibinfo_destination_found",
				Help: "Whether the last lookup of a destination resolved (1 = yes, 0 = no)",
			},
			[]string{"destination", "oif"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fibinfo_last_run_timestamp",
			Help: "Timestamp of the last run",
		}),
		scanAddresses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fibinfo_scan_addresses",
				Help: "Addresses per outcome in the last scan of a range",
			},
			[]string{"cidr", "outcome"},
		),
		lastChain: make(map[string]string),
	}

	reg.MustRegister(m.lookups)
	reg.MustRegister(m.cycles)
	reg.MustRegister(m.depth)
	reg.MustRegister(m.routes)
	reg.MustRegister(m.runs)
	reg.MustRegister(m.chainChanges)
	reg.MustRegister(m.destinationFound)
	reg.MustRegister(m.lastRun)
	reg.MustRegister(m.scanAddresses)

	return m
}

// ObserveLookup is called by the table for every lookup.
func (m *Metrics) ObserveLookup(r *fib.Report) {
	m.lookups.WithLabelValues(r.Outcome.String()).Inc()
	switch r.Outcome {
	case fib.OutcomeFound:
		m.depth.Observe(float64(r.Depth()))
	case fib.OutcomeError:
		m.cycles.Inc()
	}
}

// ObserveRoutes is called by the table when its size changes.
func (m *Metrics) ObserveRoutes(n int) {
	m.routes.Set(float64(n))
}

func (m *Metrics) StartRun(info shared.RunInfo) {
	m.runs.WithLabelValues(info.Mode).Inc()
	m.lastRun.Set(float64(info.Timestamp.Unix()))
	m.routes.Set(float64(info.Routes))
}

func (m *Metrics) Lookup(rec *shared.LookupRecord) {
	found := 0.0
	if rec.Outcome == fib.OutcomeFound.String() {
		found = 1.0
	}
	m.destinationFound.WithLabelValues(rec.Destination, rec.OIF).Set(found)

	// Check for chain changes
	key := rec.Destination + "%" + rec.OIF
	m.mu.Lock()
	last, exists := m.lastChain[key]
	if exists && last != rec.ChainHash {
		m.chainChanges.WithLabelValues(rec.Destination).Inc()
	}
	m.lastChain[key] = rec.ChainHash
	m.mu.Unlock()
}

func (m *Metrics) DeviceRoutes(rec *shared.DeviceRoutes) {
	for i := range rec.Lookup {
		m.Lookup(&rec.Lookup[i])
	}
}

func (m *Metrics) Device(*shared.DeviceRecord) {}

func (m *Metrics) ScanSummary(sum *shared.ScanSummary) {
	m.scanAddresses.DeletePartialMatch(prometheus.Labels{"cidr": sum.CIDR})
	for outcome, n := range sum.Outcomes {
		m.scanAddresses.WithLabelValues(sum.CIDR, outcome).Set(float64(n))
	}
}

func (m *Metrics) Close() error {
	return nil
}

// Handler serves the metrics and a health check.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
