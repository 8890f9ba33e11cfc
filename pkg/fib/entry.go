package fib

import (
	"cmp"
	"fmt"
	"net/netip"
	"strings"
)

// RouteEntry binds a prefix to its scope, type, origin, priority and next
// hops. Entries are owned by the Table; callers get read-only views.
type RouteEntry struct {
	Prefix   netip.Prefix
	Scope    Scope
	Type     RouteType
	Protocol Protocol
	Priority uint32 // lower is preferred
	NextHops []*NextHop
	Flags    RouteFlags

	seq uint64 // insertion order, assigned by the Table
}

// ValidatePrefix checks that p is a well-formed prefix with no host bits set.
func ValidatePrefix(p netip.Prefix) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidPrefix, p)
	}
	if p.Addr().Zone() != "" {
		return fmt.Errorf("%w: %s carries a zone", ErrInvalidPrefix, p)
	}
	if p != p.Masked() {
		return fmt.Errorf("%w: %s has host bits set (want %s)", ErrInvalidPrefix, p, p.Masked())
	}
	return nil
}

// Validate checks the entry as Insert would.
func (e *RouteEntry) Validate() error {
	if err := ValidatePrefix(e.Prefix); err != nil {
		return err
	}
	if len(e.NextHops) == 0 && !e.Type.Rejects() {
		return fmt.Errorf("%w: %s route %s has no next hops", ErrInvalidNextHop, e.Type, e.Prefix)
	}
	for i, nh := range e.NextHops {
		if err := nh.validate(); err != nil {
			return fmt.Errorf("route %s next hop %d: %w", e.Prefix, i, err)
		}
	}
	return nil
}

// Seq returns the entry's insertion sequence number. Higher is more recent.
func (e *RouteEntry) Seq() uint64 {
	return e.seq
}

func (e *RouteEntry) clone() *RouteEntry {
	c := *e
	c.NextHops = make([]*NextHop, len(e.NextHops))
	for i, nh := range e.NextHops {
		c.NextHops[i] = nh.clone()
	}
	return &c
}

// usable reports whether the entry can be selected given the live devices.
func (e *RouteEntry) usable(reg DeviceRegistry) bool {
	if e.Flags&FlagDead != 0 {
		return false
	}
	if len(e.NextHops) == 0 {
		return true
	}
	for _, nh := range e.NextHops {
		if nh.usable(reg) {
			return true
		}
	}
	return false
}

func (e *RouteEntry) hasDevice(id DeviceID) bool {
	for _, nh := range e.NextHops {
		if nh.Device == id {
			return true
		}
	}
	return false
}

func (e *RouteEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s scope %s proto %s metric %d", e.Type, e.Prefix, e.Scope, e.Protocol, e.Priority)
	for _, nh := range e.NextHops {
		b.WriteString(" nexthop ")
		b.WriteString(nh.String())
	}
	return b.String()
}

// compareEntries orders entries of one prefix: lowest priority first, then
// most recently inserted first.
func compareEntries(a, b *RouteEntry) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(b.seq, a.seq)
}
