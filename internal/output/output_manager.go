package output

import "github.com/tkjaer/fibinfo/internal/shared"

// Output interface for different output types
type Output interface {
	StartRun(info shared.RunInfo)
	Lookup(rec *shared.LookupRecord)
	DeviceRoutes(rec *shared.DeviceRoutes)
	Device(rec *shared.DeviceRecord)
	ScanSummary(sum *shared.ScanSummary)
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

// Len returns the number of registered outputs.
func (om *OutputManager) Len() int {
	return len(om.outputs)
}

func (om *OutputManager) StartRun(info shared.RunInfo) {
	for _, o := range om.outputs {
		o.StartRun(info)
	}
}

func (om *OutputManager) Lookup(rec *shared.LookupRecord) {
	for _, o := range om.outputs {
		o.Lookup(rec)
	}
}

func (om *OutputManager) DeviceRoutes(rec *shared.DeviceRoutes) {
	for _, o := range om.outputs {
		o.DeviceRoutes(rec)
	}
}

func (om *OutputManager) Device(rec *shared.DeviceRecord) {
	for _, o := range om.outputs {
		o.Device(rec)
	}
}

func (om *OutputManager) ScanSummary(sum *shared.ScanSummary) {
	for _, o := range om.outputs {
		o.ScanSummary(sum)
	}
}

// Close closes every output and returns the first error.
func (om *OutputManager) Close() error {
	var first error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
