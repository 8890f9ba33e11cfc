package diag

import (
	"fmt"
	"log/slog"

	"github.com/tkjaer/fibinfo/internal/inventory"
	"github.com/tkjaer/fibinfo/pkg/device"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"github.com/tkjaer/fibinfo/pkg/route"
)

// Swapped in tests.
var (
	loadDevices   = device.Load
	loadRoutes    = route.Load
	loadInventory = inventory.Load
)

// source builds the table a run looks up. Kernel sources are re-read on
// every run; an inventory is read once.
type source struct {
	inventory string
	observer  fib.Observer

	tbl *fib.Table
	reg *device.Registry
}

func (s *source) name() string {
	if s.inventory != "" {
		return s.inventory
	}
	return "kernel"
}

func (s *source) kernel() bool {
	return s.inventory == ""
}

func (s *source) newTable(reg *device.Registry) *fib.Table {
	opts := []fib.Option{fib.WithRegistry(reg)}
	if s.observer != nil {
		opts = append(opts, fib.WithObserver(s.observer))
	}
	return fib.New(opts...)
}

// load returns the table and registry for the next run.
func (s *source) load() (*fib.Table, *device.Registry, error) {
	if !s.kernel() {
		if s.tbl == nil {
			if err := s.loadInventory(); err != nil {
				return nil, nil, err
			}
		}
		return s.tbl, s.reg, nil
	}

	devs, err := loadDevices()
	if err != nil {
		return nil, nil, fmt.Errorf("reading devices: %w", err)
	}
	reg, err := device.NewRegistry(devs...)
	if err != nil {
		return nil, nil, fmt.Errorf("reading devices: %w", err)
	}
	tbl := s.newTable(reg)
	loaded, skipped, err := loadRoutes(tbl)
	if err != nil {
		return nil, nil, fmt.Errorf("reading routes: %w", err)
	}
	slog.Debug("Loaded kernel tables", "routes", loaded, "skipped", skipped, "devices", reg.Len())
	s.tbl, s.reg = tbl, reg
	return tbl, reg, nil
}

func (s *source) loadInventory() error {
	inv, err := loadInventory(s.inventory)
	if err != nil {
		return err
	}
	reg, err := inv.Registry()
	if err != nil {
		return fmt.Errorf("%s: %w", s.inventory, err)
	}
	tbl := s.newTable(reg)
	n, err := inv.Populate(tbl, reg)
	if err != nil {
		return fmt.Errorf("%s: %w", s.inventory, err)
	}
	slog.Debug("Loaded inventory", "file", s.inventory, "routes", n, "devices", reg.Len())
	s.tbl, s.reg = tbl, reg
	return nil
}
