// Package device keeps the set of network devices the forwarding table
// refers to by index.
package device

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tkjaer/fibinfo/pkg/fib"
	"github.com/tkjaer/fibinfo/pkg/iface"
)

var (
	ErrInvalidDevice = errors.New("invalid device")
	ErrUnsupported   = errors.New("device enumeration not supported on this platform")
)

// Device describes one network device.
type Device struct {
	Index        fib.DeviceID
	Name         string
	MTU          int
	HardwareAddr net.HardwareAddr
	PermAddr     net.HardwareAddr
	Broadcast    net.HardwareAddr
	Flags        net.Flags
	RawFlags     uint32
	LinkType     uint16
	HeaderLen    int
	Features     Features
	Addrs        []netip.Prefix
}

// Kind classifies the device's framing.
func (d *Device) Kind() iface.Kind {
	return iface.Classify(d.LinkType, d.Flags, d.HardwareAddr)
}

// AddrLen is the length of the device's hardware address.
func (d *Device) AddrLen() int {
	return len(d.HardwareAddr)
}

// Up reports whether the device is administratively up.
func (d *Device) Up() bool {
	return d.Flags&net.FlagUp != 0
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (index %d)", d.Name, d.Index)
}

// Registry is a concurrency-safe set of devices keyed by index. It
// implements fib.DeviceRegistry.
type Registry struct {
	mu      sync.RWMutex
	byIndex map[fib.DeviceID]*Device
	gen     atomic.Uint64
}

// NewRegistry returns a registry holding devs.
func NewRegistry(devs ...Device) (*Registry, error) {
	r := &Registry{byIndex: make(map[fib.DeviceID]*Device)}
	for _, d := range devs {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add inserts d, replacing any device with the same index. Names must be
// unique.
func (r *Registry) Add(d Device) error {
	if d.Index <= fib.NoDevice {
		return fmt.Errorf("%w: %q has index %d", ErrInvalidDevice, d.Name, d.Index)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: index %d has no name", ErrInvalidDevice, d.Index)
	}
	if d.HeaderLen == 0 {
		d.HeaderLen = d.Kind().HeaderLen()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, o := range r.byIndex {
		if o.Name == d.Name && idx != d.Index {
			return fmt.Errorf("%w: name %q already used by index %d", ErrInvalidDevice, d.Name, idx)
		}
	}
	r.byIndex[d.Index] = &d
	r.gen.Add(1)
	return nil
}

// Remove deletes the device with the given index. Routes through it stay in
// the table but stop matching.
func (r *Registry) Remove(id fib.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byIndex[id]; !ok {
		return false
	}
	delete(r.byIndex, id)
	r.gen.Add(1)
	return true
}

// Has reports whether a device with index id is present.
func (r *Registry) Has(id fib.DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byIndex[id]
	return ok
}

// Generation changes whenever a device is added or removed.
func (r *Registry) Generation() uint64 {
	return r.gen.Load()
}

// Get returns the device with index id.
func (r *Registry) Get(id fib.DeviceID) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byIndex[id]
	return d, ok
}

// ByName returns the device called name.
func (r *Registry) ByName(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.byIndex {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Name returns the name of device id, or "none" for NoDevice and
// "if<N>" for an index that is not present.
func (r *Registry) Name(id fib.DeviceID) string {
	if id == fib.NoDevice {
		return "none"
	}
	if d, ok := r.Get(id); ok {
		return d.Name
	}
	return fmt.Sprintf("if%d", id)
}

// List returns all devices ordered by index.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.byIndex))
	for _, d := range r.byIndex {
		out = append(out, d)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Device) int { return int(a.Index) - int(b.Index) })
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIndex)
}

// Load enumerates the host's devices.
func Load() ([]Device, error) {
	return load()
}
