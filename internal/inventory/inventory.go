// Package inventory loads devices and routes from a YAML file, so tables
// can be analysed without access to the kernel.
package inventory

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/tkjaer/fibinfo/pkg/device"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"github.com/tkjaer/fibinfo/pkg/iface"
	"gopkg.in/yaml.v3"
)

// Inventory is the file's top level.
type Inventory struct {
	Devices []Device `yaml:"devices"`
	Routes  []Route  `yaml:"routes"`
}

type Device struct {
	Name         string   `yaml:"name"`
	Index        int      `yaml:"index"` // 0 assigns the next free index
	MTU          int      `yaml:"mtu"`
	Kind         string   `yaml:"kind"`
	HardwareAddr string   `yaml:"hardware_addr"`
	PermAddr     string   `yaml:"perm_addr"`
	Broadcast    string   `yaml:"broadcast"`
	Flags        []string `yaml:"flags"`
	Features     []string `yaml:"features"`
	Addrs        []string `yaml:"addrs"`
}

// Route is one route entry. Device and Gateway are shorthand for a single
// next hop.
type Route struct {
	Prefix   string    `yaml:"prefix"`
	Scope    string    `yaml:"scope"`
	Type     string    `yaml:"type"`
	Protocol string    `yaml:"protocol"`
	Priority uint32    `yaml:"priority"`
	Flags    []string  `yaml:"flags"`
	Device   string    `yaml:"device"`
	Gateway  string    `yaml:"gateway"`
	OnLink   bool      `yaml:"onlink"`
	NextHops []NextHop `yaml:"nexthops"`
}

type NextHop struct {
	Device  string `yaml:"device"`
	Gateway string `yaml:"gateway"`
	OnLink  bool   `yaml:"onlink"`
	Weight  uint32 `yaml:"weight"`
}

// Linux IFF_* values, so inventory devices report the same raw flags.
var ifFlags = map[string]struct {
	raw  uint32
	flag net.Flags
}{
	"up":           {0x1, net.FlagUp},
	"broadcast":    {0x2, net.FlagBroadcast},
	"loopback":     {0x8, net.FlagLoopback},
	"pointtopoint": {0x10, net.FlagPointToPoint},
	"running":      {0x40, net.FlagRunning},
	"multicast":    {0x1000, net.FlagMulticast},
}

// Load parses an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	return Parse(data)
}

// Parse parses inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}
	if len(inv.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	return &inv, nil
}

// Registry builds the device registry.
func (inv *Inventory) Registry() (*device.Registry, error) {
	used := make(map[int]bool)
	owner := make(map[int]string)
	for _, d := range inv.Devices {
		if d.Index == 0 {
			continue
		}
		if o, dup := owner[d.Index]; dup {
			return nil, fmt.Errorf("devices %q and %q both use index %d", o, d.Name, d.Index)
		}
		owner[d.Index] = d.Name
		used[d.Index] = true
	}

	reg, err := device.NewRegistry()
	if err != nil {
		return nil, err
	}
	next := 1
	for i, d := range inv.Devices {
		if d.Index == 0 {
			for used[next] {
				next++
			}
			d.Index = next
			used[next] = true
		}
		dev, err := d.toDevice()
		if err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i, d.Name, err)
		}
		if err := reg.Add(dev); err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
	}
	return reg, nil
}

func (d Device) toDevice() (device.Device, error) {
	dev := device.Device{
		Index: fib.DeviceID(d.Index),
		Name:  d.Name,
		MTU:   d.MTU,
	}
	var err error
	if dev.HardwareAddr, err = parseMAC(d.HardwareAddr); err != nil {
		return dev, err
	}
	if dev.PermAddr, err = parseMAC(d.PermAddr); err != nil {
		return dev, err
	}
	if dev.Broadcast, err = parseMAC(d.Broadcast); err != nil {
		return dev, err
	}
	for _, name := range d.Flags {
		f, ok := ifFlags[strings.ToLower(name)]
		if !ok {
			return dev, fmt.Errorf("unknown flag %q", name)
		}
		dev.RawFlags |= f.raw
		dev.Flags |= f.flag
	}
	if dev.Features, err = device.ParseFeatures(d.Features); err != nil {
		return dev, err
	}
	for _, a := range d.Addrs {
		p, err := netip.ParsePrefix(a)
		if err != nil {
			return dev, fmt.Errorf("invalid address %q: %w", a, err)
		}
		dev.Addrs = append(dev.Addrs, p)
	}

	kind := iface.ParseKind(d.Kind)
	if d.Kind == "" {
		kind = iface.Classify(0, dev.Flags, dev.HardwareAddr)
	} else if kind == iface.KindUnknown {
		return dev, fmt.Errorf("unknown kind %q", d.Kind)
	}
	dev.LinkType = kind.LinkType()
	if kind == iface.KindLoopback {
		dev.Features |= device.FeatureLoopback
	}
	if dev.MTU == 0 {
		dev.MTU = 1500
	}
	return dev, nil
}

func parseMAC(s string) (net.HardwareAddr, error) {
	if s == "" {
		return nil, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hardware address %q: %w", s, err)
	}
	return hw, nil
}

// Entries converts the routes, resolving device names through reg.
func (inv *Inventory) Entries(reg *device.Registry) ([]fib.RouteEntry, error) {
	out := make([]fib.RouteEntry, 0, len(inv.Routes))
	for i, r := range inv.Routes {
		e, err := r.toEntry(reg)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, r.Prefix, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Populate inserts every route into t. A route replaces an earlier one with
// the same prefix and priority.
func (inv *Inventory) Populate(t *fib.Table, reg *device.Registry) (int, error) {
	entries, err := inv.Entries(reg)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := t.Insert(e); err != nil {
			return i, fmt.Errorf("route %d (%s): %w", i, e.Prefix, err)
		}
	}
	return len(entries), nil
}

func (r Route) toEntry(reg *device.Registry) (fib.RouteEntry, error) {
	var e fib.RouteEntry
	p, err := netip.ParsePrefix(r.Prefix)
	if err != nil {
		return e, fmt.Errorf("%w: %v", fib.ErrInvalidPrefix, err)
	}
	e.Prefix = p
	e.Priority = r.Priority
	if e.Type, err = fib.ParseRouteType(r.Type); err != nil {
		return e, err
	}
	if e.Protocol, err = fib.ParseProtocol(r.Protocol); err != nil {
		return e, err
	}
	for _, name := range r.Flags {
		f, err := fib.ParseRouteFlag(name)
		if err != nil {
			return e, err
		}
		e.Flags |= f
	}

	hops := r.NextHops
	if r.Device != "" || r.Gateway != "" {
		if len(hops) > 0 {
			return e, fmt.Errorf("device/gateway and nexthops are mutually exclusive")
		}
		hops = []NextHop{{Device: r.Device, Gateway: r.Gateway, OnLink: r.OnLink}}
	}
	for j, h := range hops {
		nh, err := h.toNextHop(reg)
		if err != nil {
			return e, fmt.Errorf("next hop %d: %w", j, err)
		}
		e.NextHops = append(e.NextHops, nh)
	}

	if r.Scope == "" {
		e.Scope = defaultScope(e)
	} else if e.Scope, err = fib.ParseScope(r.Scope); err != nil {
		return e, err
	}
	return e, nil
}

func (h NextHop) toNextHop(reg *device.Registry) (*fib.NextHop, error) {
	nh := &fib.NextHop{OnLink: h.OnLink, Weight: h.Weight}
	if h.Device != "" {
		d, ok := reg.ByName(h.Device)
		if !ok {
			return nil, fmt.Errorf("unknown device %q", h.Device)
		}
		nh.Device = d.Index
	}
	if h.Gateway != "" {
		gw, err := netip.ParseAddr(h.Gateway)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fib.ErrInvalidNextHop, err)
		}
		nh.Gateway = gw.Unmap()
	} else {
		nh.OnLink = true
	}
	return nh, nil
}

// defaultScope follows ip-route(8): host for local routes, link for direct
// unicast, universe otherwise.
func defaultScope(e fib.RouteEntry) fib.Scope {
	if e.Type == fib.TypeLocal {
		return fib.ScopeHost
	}
	if e.Type == fib.TypeUnicast || e.Type == fib.TypeUnspec {
		direct := len(e.NextHops) > 0
		for _, nh := range e.NextHops {
			if !nh.Direct() {
				direct = false
			}
		}
		if direct {
			return fib.ScopeLink
		}
	}
	return fib.ScopeUniverse
}
