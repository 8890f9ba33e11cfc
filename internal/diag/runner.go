// Package diag runs the diagnostic modes against a forwarding table and
// hands the results to the outputs.
package diag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/tkjaer/fibinfo/internal/config"
	"github.com/tkjaer/fibinfo/internal/metrics"
	"github.com/tkjaer/fibinfo/internal/output"
	"github.com/tkjaer/fibinfo/internal/shared"
	"github.com/tkjaer/fibinfo/pkg/device"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"github.com/tkjaer/fibinfo/pkg/ptr"
)

// Runner executes one mode, once or periodically.
type Runner struct {
	// Coordination
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once

	src        source
	om         *output.OutputManager
	metrics    *metrics.Metrics
	ptrManager *ptr.PtrManager

	mode          string
	destinations  []netip.Addr
	scanPrefix    netip.Prefix
	scanLimit     uint
	parallel      uint
	interval      time.Duration
	count         uint
	deviceDelay   time.Duration
	resolve       bool
	verify        bool
	hashAlgorithm string
	metricsListen string
}

// NewRunner creates a runner writing text or JSON reports to stdout.
func NewRunner(a config.Args) (*Runner, error) {
	return newRunner(a, os.Stdout)
}

func newRunner(a config.Args, stdout io.Writer) (*Runner, error) {
	r := &Runner{
		stop: make(chan struct{}),
		src:  source{inventory: a.Inventory},

		mode:          a.Mode,
		destinations:  a.Destinations,
		scanPrefix:    a.Scan,
		scanLimit:     a.ScanLimit,
		parallel:      max(a.Parallel, 1),
		interval:      a.Interval,
		count:         a.Count,
		deviceDelay:   a.DeviceDelay,
		resolve:       a.Resolve,
		verify:        a.Verify,
		hashAlgorithm: a.HashAlgorithm,
		metricsListen: a.MetricsListen,
	}
	if r.resolve {
		r.ptrManager = ptr.NewPtrManager(ptr.DefaultTTL)
	}
	if r.metricsListen != "" {
		r.metrics = metrics.New()
		r.src.observer = r.metrics
	}

	// Fail early on an unreadable source
	if _, _, err := r.src.load(); err != nil {
		return nil, err
	}

	om, err := r.createOutputs(a, stdout)
	if err != nil {
		return nil, err
	}
	r.om = om
	return r, nil
}

// createOutputs registers the outputs selected by the arguments
func (r *Runner) createOutputs(a config.Args, stdout io.Writer) (*output.OutputManager, error) {
	om := &output.OutputManager{}

	// JSON to stdout replaces the text report
	if a.Json {
		jsonOut, err := output.NewJSONOutput("")
		if err != nil {
			return nil, err
		}
		om.Register(jsonOut)
	} else {
		om.Register(output.NewTextOutput(stdout, a.Color()))
	}

	if a.JsonFile != "" {
		jsonOut, err := output.NewJSONOutput(a.JsonFile)
		if err != nil {
			return nil, fmt.Errorf("opening JSON file: %w", err)
		}
		om.Register(jsonOut)
	}

	if r.metrics != nil {
		om.Register(r.metrics)
	}
	return om, nil
}

// Run executes the configured mode until the run count is reached or Stop
// is called.
func (r *Runner) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if r.metrics != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metrics.Serve(ctx, r.metricsListen); err != nil {
				slog.Error("Metrics server error", "error", err)
			}
		}()
	}

	var runErr error
	for run := uint(0); ; run++ {
		if err := r.runOnce(run); err != nil {
			// A failed reload keeps a periodic run going
			slog.Error("Run failed", "run", run, "error", err)
			if r.interval == 0 {
				runErr = err
			}
		}
		if r.interval == 0 || (r.count > 0 && run+1 >= r.count) {
			break
		}
		if !r.sleep(r.interval) {
			break
		}
	}

	cancel()
	r.wg.Wait()

	if err := r.om.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Stop interrupts Run. It is safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		slog.Debug("Stopping runner")
		close(r.stop)
	})
}

func (r *Runner) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d, returning false if the runner was stopped.
func (r *Runner) sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.stopped()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.stop:
		return false
	case <-t.C:
		return true
	}
}

func (r *Runner) runOnce(run uint) error {
	if r.stopped() {
		return nil
	}
	tbl, reg, err := r.src.load()
	if err != nil {
		return err
	}

	r.om.StartRun(shared.RunInfo{
		Run:           run,
		Mode:          r.mode,
		Source:        r.src.name(),
		Routes:        tbl.Len(),
		Devices:       reg.Len(),
		HashAlgorithm: r.hashAlgorithm,
		Timestamp:     time.Now(),
	})

	switch r.mode {
	case config.ModeDevices:
		r.runDevices(run, reg)
	case config.ModeRoutes:
		r.runRoutes(run, tbl, reg)
	case config.ModeScan:
		r.om.ScanSummary(r.scan(run, tbl, r.scanPrefix))
	default:
		r.runTable(run, tbl, reg)
	}
	return nil
}

// runDevices dumps every device's attributes.
func (r *Runner) runDevices(run uint, reg *device.Registry) {
	for i, d := range reg.List() {
		if i > 0 && !r.sleep(r.deviceDelay) {
			return
		}
		r.om.Device(deviceRecord(run, d))
	}
}

// runRoutes looks up the default route of each device, per address family.
func (r *Runner) runRoutes(run uint, tbl *fib.Table, reg *device.Registry) {
	families := []netip.Addr{netip.IPv4Unspecified(), netip.IPv6Unspecified()}
	for i, d := range reg.List() {
		if i > 0 && !r.sleep(r.deviceDelay) {
			return
		}
		dr := &shared.DeviceRoutes{Run: run, Device: d.Name}
		for _, dst := range families {
			rep := tbl.Lookup(dst, d.Index)
			if rep.Route != nil && !usesDevice(rep.Route, d.Index) {
				// The hint is only a preference; a route elsewhere is not this device's.
				rep = fib.Report{Dest: dst, OIF: d.Index, Outcome: fib.OutcomeNotFound, Err: fib.ErrNotFound}
			}
			dr.Lookup = append(dr.Lookup, *r.lookup(run, &rep, reg))
		}
		r.om.DeviceRoutes(dr)
	}
}

// runTable looks up each destination.
func (r *Runner) runTable(run uint, tbl *fib.Table, reg *device.Registry) {
	for _, dst := range r.destinations {
		if r.stopped() {
			return
		}
		rep := tbl.Lookup(dst, fib.NoDevice)
		r.om.Lookup(r.lookup(run, &rep, reg))
	}
}

// lookup builds the record for rep and adds the enrichment the arguments
// ask for.
func (r *Runner) lookup(run uint, rep *fib.Report, reg *device.Registry) *shared.LookupRecord {
	if rep.Outcome == fib.OutcomeError {
		slog.Error("Resolution cycle", "destination", rep.Dest, "prefix", rep.Prefix, "error", rep.Err)
	}
	rec := lookupRecord(run, rep, reg, r.hashAlgorithm)

	if rec.Gateway != "" {
		if r.ptrManager != nil {
			if name, ok := r.ptrManager.Lookup(rec.Gateway); ok {
				rec.GatewayPTR = name
			}
		}
		// Device indexes of an inventory mean nothing to the kernel
		if r.src.kernel() {
			if hw := gatewayMAC(rep); hw != nil {
				rec.GatewayMAC = hw.String()
			}
		}
	}
	if r.verify && !rep.Dest.IsUnspecified() {
		rec.Verify = verify(rep.Dest, rep, rec)
	}
	return rec
}

func usesDevice(e *fib.RouteEntry, id fib.DeviceID) bool {
	for _, nh := range e.NextHops {
		if nh.Device == id {
			return true
		}
	}
	return false
}
