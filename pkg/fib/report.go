package fib

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Outcome is the terminal state of a lookup.
type Outcome uint8

const (
	OutcomeNotFound    Outcome = iota // no covering route
	OutcomeFound                      // matched and resolved to a directly reachable hop
	OutcomeUnreachable                // matched, but no next hop could be resolved
	OutcomeError                      // matched, but resolution hit a cycle
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeFound:
		return "Found"
	case OutcomeUnreachable:
		return "Unreachable"
	case OutcomeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Report is the result of a single lookup. The Route and NextHop pointers
// refer to table-owned entries and must not be modified.
type Report struct {
	Dest    netip.Addr
	OIF     DeviceID
	Outcome Outcome

	// Matched route, zero when Outcome is OutcomeNotFound.
	Route    *RouteEntry
	Prefix   netip.Prefix
	Type     RouteType
	Scope    Scope
	Protocol Protocol
	Priority uint32

	NextHop  *NextHop // chosen hop of the matched route
	Device   DeviceID // egress device after resolution
	Terminal Terminal
	Chain    []Step

	// Err is set for every outcome except OutcomeFound. It wraps
	// ErrNotFound, ErrUnreachable or ErrResolutionCycle.
	Err error
}

// Found reports whether the lookup resolved.
func (r *Report) Found() bool {
	return r.Outcome == OutcomeFound
}

// Depth returns the length of the resolution chain.
func (r *Report) Depth() int {
	return len(r.Chain)
}

// Gateway returns the gateway of the chosen next hop, if any.
func (r *Report) Gateway() netip.Addr {
	if r.NextHop == nil {
		return netip.Addr{}
	}
	return r.NextHop.Gateway
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Dest, r.Outcome)
	if r.Outcome == OutcomeNotFound {
		return b.String()
	}
	fmt.Fprintf(&b, " %s %s scope %s", r.Type, r.Prefix, r.Scope)
	if r.NextHop != nil {
		fmt.Fprintf(&b, " %s", r.NextHop)
	}
	if r.Outcome == OutcomeFound {
		fmt.Fprintf(&b, " egress dev %d (%s, depth %d)", r.Device, r.Terminal, len(r.Chain))
	}
	if r.Err != nil {
		fmt.Fprintf(&b, ": %v", r.Err)
	}
	return b.String()
}

func (s *snapshot) lookup(dst netip.Addr, oif DeviceID, reg DeviceRegistry, regGen uint64) Report {
	e := s.best(dst, oif, nil, reg)
	if e == nil {
		return notFoundReport(dst, oif)
	}
	if e.Type.Rejects() || !e.Scope.Valid() {
		return rejectReport(dst, oif, e)
	}

	var failed *resolution
	var failedHop *NextHop
	for _, nh := range orderHops(e.NextHops, oif, reg) {
		r := s.resolve(e, nh, reg, regGen)
		if r.outcome == OutcomeFound {
			return newReport(dst, oif, e, nh, r)
		}
		if failed == nil || (r.outcome == OutcomeError && failed.outcome != OutcomeError) {
			failed, failedHop = r, nh
		}
	}
	if failed == nil {
		rep := matchedReport(dst, oif, e)
		rep.Outcome = OutcomeUnreachable
		rep.Err = fmt.Errorf("%w: no usable next hop for %s", ErrUnreachable, e.Prefix)
		return rep
	}
	return newReport(dst, oif, e, failedHop, failed)
}

// newReport assembles the report of a matched lookup from the resolution of
// its chosen hop. It has no side effects.
func newReport(dst netip.Addr, oif DeviceID, e *RouteEntry, nh *NextHop, r *resolution) Report {
	rep := matchedReport(dst, oif, e)
	rep.NextHop = nh
	rep.Outcome = r.outcome
	rep.Chain = slices.Clone(r.chain)
	switch r.outcome {
	case OutcomeFound:
		rep.Device = r.device
		rep.Terminal = r.terminal
	case OutcomeUnreachable:
		rep.Err = &UnreachableError{Gateway: r.gateway, Scope: r.bound}
	case OutcomeError:
		rep.Err = &CycleError{Dest: dst, Gateway: r.gateway, Chain: slices.Clone(r.chain)}
	}
	return rep
}

func notFoundReport(dst netip.Addr, oif DeviceID) Report {
	return Report{
		Dest:    dst,
		OIF:     oif,
		Outcome: OutcomeNotFound,
		Err:     fmt.Errorf("%w: %s", ErrNotFound, dst),
	}
}

func rejectReport(dst netip.Addr, oif DeviceID, e *RouteEntry) Report {
	rep := matchedReport(dst, oif, e)
	rep.Outcome = OutcomeUnreachable
	rep.Err = fmt.Errorf("%w: %s route %s scope %s", ErrUnreachable, e.Type, e.Prefix, e.Scope)
	return rep
}

func matchedReport(dst netip.Addr, oif DeviceID, e *RouteEntry) Report {
	return Report{
		Dest:     dst,
		OIF:      oif,
		Route:    e,
		Prefix:   e.Prefix,
		Type:     e.Type,
		Scope:    e.Scope,
		Protocol: e.Protocol,
		Priority: e.Priority,
	}
}
