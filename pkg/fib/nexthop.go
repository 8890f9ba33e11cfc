package fib

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync/atomic"
)

// DeviceID is a weak reference to a network device by interface index.
// The device itself is owned by a DeviceRegistry.
type DeviceID int

// NoDevice is the zero DeviceID. As a lookup hint it means "no preference".
const NoDevice DeviceID = 0

// NextHop is one forwarding choice of a route. A next hop without a gateway
// is on-link. Once inserted into a Table a NextHop must not be modified.
type NextHop struct {
	Device  DeviceID
	Gateway netip.Addr
	OnLink  bool
	Weight  uint32

	// last resolution, keyed by table and registry generation
	cache atomic.Pointer[resolution]
}

// Direct reports whether the hop needs no gateway resolution.
func (nh *NextHop) Direct() bool {
	return nh.OnLink || !nh.Gateway.IsValid()
}

// ResolvedScope returns the scope through which this hop was last found to
// be reachable, or ScopeNowhere if it has not been resolved successfully.
func (nh *NextHop) ResolvedScope() Scope {
	r := nh.cache.Load()
	if r == nil || r.outcome != OutcomeFound {
		return ScopeNowhere
	}
	return r.scope
}

func (nh *NextHop) String() string {
	var b strings.Builder
	if nh.Gateway.IsValid() {
		fmt.Fprintf(&b, "via %s ", nh.Gateway)
	}
	fmt.Fprintf(&b, "dev %d", nh.Device)
	if nh.OnLink {
		b.WriteString(" onlink")
	}
	if nh.Weight > 1 {
		fmt.Fprintf(&b, " weight %d", nh.Weight)
	}
	return b.String()
}

func (nh *NextHop) validate() error {
	if nh == nil {
		return fmt.Errorf("%w: nil next hop", ErrInvalidNextHop)
	}
	if nh.Gateway.IsValid() && nh.Gateway.IsUnspecified() {
		return fmt.Errorf("%w: unspecified gateway %s", ErrInvalidNextHop, nh.Gateway)
	}
	if !nh.Gateway.IsValid() && !nh.OnLink {
		return fmt.Errorf("%w: neither gateway nor on-link", ErrInvalidNextHop)
	}
	if nh.OnLink && nh.Device == NoDevice {
		return fmt.Errorf("%w: on-link next hop without device", ErrInvalidNextHop)
	}
	if nh.Device < NoDevice {
		return fmt.Errorf("%w: negative device index %d", ErrInvalidNextHop, nh.Device)
	}
	return nil
}

// clone copies the hop without its resolution cache, normalising the weight.
func (nh *NextHop) clone() *NextHop {
	w := nh.Weight
	if w == 0 {
		w = 1
	}
	gw := nh.Gateway
	if gw.IsValid() {
		gw = gw.WithZone("")
	}
	return &NextHop{
		Device:  nh.Device,
		Gateway: gw,
		OnLink:  nh.OnLink,
		Weight:  w,
	}
}

// usable reports whether the hop's device is present in reg. A hop without
// a device picks one up during resolution and is always usable.
func (nh *NextHop) usable(reg DeviceRegistry) bool {
	return reg == nil || nh.Device == NoDevice || reg.Has(nh.Device)
}

// orderHops returns the usable hops of hops in preference order: the hint
// device first, then descending weight, then declared order.
func orderHops(hops []*NextHop, hint DeviceID, reg DeviceRegistry) []*NextHop {
	out := make([]*NextHop, 0, len(hops))
	for _, nh := range hops {
		if nh.usable(reg) {
			out = append(out, nh)
		}
	}
	slices.SortStableFunc(out, func(a, b *NextHop) int {
		if hint != NoDevice {
			am, bm := a.Device == hint, b.Device == hint
			if am != bm {
				if am {
					return -1
				}
				return 1
			}
		}
		return cmp.Compare(b.Weight, a.Weight)
	})
	return out
}
