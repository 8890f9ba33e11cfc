// Package fib implements a user-space forwarding information base: a table
// of prefix-keyed routes with scoped next hops, longest-prefix-match lookups
// and recursive next-hop resolution through strictly narrowing scopes.
//
// Lookups run against an immutable snapshot loaded with a single atomic
// read, so readers never block and never observe a half-applied write.
// Writers are serialised and publish a fresh copy-on-write snapshot.
package fib

import (
	"fmt"
	"iter"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gaissmai/bart"
)

// DeviceRegistry answers whether a device is currently present. The table
// only holds device indexes and asks the registry at lookup time.
type DeviceRegistry interface {
	Has(id DeviceID) bool
}

// generationer is implemented by registries whose contents can change, so
// cached resolutions can be invalidated.
type generationer interface {
	Generation() uint64
}

// Observer is notified of every lookup and of table size changes.
type Observer interface {
	ObserveLookup(r *Report)
	ObserveRoutes(n int)
}

// Option configures a Table.
type Option func(*Table)

// WithRegistry makes the table consult reg for device presence.
func WithRegistry(reg DeviceRegistry) Option {
	return func(t *Table) { t.registry = reg }
}

// WithObserver installs an observer.
func WithObserver(o Observer) Option {
	return func(t *Table) { t.observer = o }
}

// Priority returns a pointer to p, for Remove's optional priority.
func Priority(p uint32) *uint32 {
	return &p
}

// Table is a forwarding table. It is safe for concurrent use.
type Table struct {
	mu  sync.Mutex // serialises writers
	seq uint64     // guarded by mu

	snap     atomic.Pointer[snapshot]
	registry DeviceRegistry
	observer Observer
}

// snapshot is an immutable view of the table. Entry slices stored in the
// trie are never modified in place; writers replace them.
type snapshot struct {
	trie *bart.Table[[]*RouteEntry]
	gen  uint64
	size int
}

// New returns an empty table.
func New(opts ...Option) *Table {
	t := &Table{}
	for _, opt := range opts {
		opt(t)
	}
	t.snap.Store(&snapshot{trie: new(bart.Table[[]*RouteEntry])})
	return t
}

// Insert adds route. An existing entry with the same prefix and priority is
// replaced; entries with other priorities for the prefix are kept.
func (t *Table) Insert(route RouteEntry) error {
	return t.add(route, false)
}

// Append adds route like Insert, but keeps any entry with the same prefix
// and priority. The appended entry becomes the active one among them.
func (t *Table) Append(route RouteEntry) error {
	return t.add(route, true)
}

func (t *Table) add(route RouteEntry, keep bool) error {
	if err := route.Validate(); err != nil {
		return err
	}
	e := route.clone()
	return t.update(func(trie *bart.Table[[]*RouteEntry]) (int, error) {
		t.seq++
		e.seq = t.seq
		old, _ := trie.Get(e.Prefix)
		entries := make([]*RouteEntry, 0, len(old)+1)
		delta := 1
		for _, o := range old {
			if !keep && o.Priority == e.Priority {
				delta--
				continue
			}
			entries = append(entries, o)
		}
		entries = append(entries, e)
		slices.SortFunc(entries, compareEntries)
		trie.Insert(e.Prefix, entries)
		return delta, nil
	})
}

// Remove deletes the entry currently preferred for prefix, restricted to
// the given priority when priority is non-nil.
func (t *Table) Remove(prefix netip.Prefix, priority *uint32) error {
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}
	return t.update(func(trie *bart.Table[[]*RouteEntry]) (int, error) {
		old, _ := trie.Get(prefix)
		idx := slices.IndexFunc(old, func(e *RouteEntry) bool {
			return priority == nil || e.Priority == *priority
		})
		if idx < 0 {
			if priority != nil {
				return 0, fmt.Errorf("%w: %s metric %d", ErrNotFound, prefix, *priority)
			}
			return 0, fmt.Errorf("%w: %s", ErrNotFound, prefix)
		}
		if len(old) == 1 {
			trie.Delete(prefix)
		} else {
			trie.Insert(prefix, slices.Delete(slices.Clone(old), idx, idx+1))
		}
		return -1, nil
	})
}

// update runs fn against a private copy of the current trie and publishes
// the result. fn returns the change in entry count.
func (t *Table) update(fn func(*bart.Table[[]*RouteEntry]) (int, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.snap.Load()
	next := cur.trie.Clone()
	delta, err := fn(next)
	if err != nil {
		return err
	}
	s := &snapshot{trie: next, gen: cur.gen + 1, size: cur.size + delta}
	t.snap.Store(s)
	if t.observer != nil {
		t.observer.ObserveRoutes(s.size)
	}
	return nil
}

// Lookup resolves dst to a route and a directly reachable next hop. oif is
// a preferred output device, or NoDevice. Lookup never fails: absence of a
// route, unreachable gateways and resolution cycles are reported as
// outcomes of the returned Report.
func (t *Table) Lookup(dst netip.Addr, oif DeviceID) Report {
	s := t.snap.Load()
	// The generation is read before any presence answer, so a result cached
	// under it is never newer than the registry state it is tagged with.
	regGen := t.registryGeneration()
	var reg DeviceRegistry
	if t.registry != nil {
		reg = &presence{reg: t.registry}
	}
	r := s.lookup(dst.WithZone(""), oif, reg, regGen)
	if t.observer != nil {
		t.observer.ObserveLookup(&r)
	}
	return r
}

// Len returns the number of entries, including shadowed ones.
func (t *Table) Len() int {
	return t.snap.Load().size
}

// Generation returns a counter that increases with every write.
func (t *Table) Generation() uint64 {
	return t.snap.Load().gen
}

// Routes returns every entry of the current snapshot ordered by prefix,
// then by preference. The entries must not be modified.
func (t *Table) Routes() []*RouteEntry {
	s := t.snap.Load()
	out := make([]*RouteEntry, 0, s.size)
	for _, entries := range s.trie.All() {
		out = append(out, entries...)
	}
	slices.SortStableFunc(out, func(a, b *RouteEntry) int {
		if c := a.Prefix.Addr().Compare(b.Prefix.Addr()); c != 0 {
			return c
		}
		if a.Prefix.Bits() != b.Prefix.Bits() {
			return a.Prefix.Bits() - b.Prefix.Bits()
		}
		return compareEntries(a, b)
	})
	return out
}

// presence pins device presence for one lookup. The registry may change
// while a lookup runs; every check within the lookup sees the first answer.
type presence struct {
	reg  DeviceRegistry
	seen map[DeviceID]bool
}

func (p *presence) Has(id DeviceID) bool {
	if ok, known := p.seen[id]; known {
		return ok
	}
	if p.seen == nil {
		p.seen = make(map[DeviceID]bool, 2)
	}
	ok := p.reg.Has(id)
	p.seen[id] = ok
	return ok
}

func (t *Table) registryGeneration() uint64 {
	if g, ok := t.registry.(generationer); ok {
		return g.Generation()
	}
	return 0
}

// covering yields the stored prefixes containing dst together with their
// entries, longest prefix first.
func (s *snapshot) covering(dst netip.Addr) iter.Seq2[netip.Prefix, []*RouteEntry] {
	return func(yield func(netip.Prefix, []*RouteEntry) bool) {
		if !dst.IsValid() {
			return
		}
		pfx := netip.PrefixFrom(dst, dst.BitLen())
		for {
			lpm, entries, ok := s.trie.LookupPrefixLPM(pfx)
			if !ok || !yield(lpm, entries) || lpm.Bits() == 0 {
				return
			}
			pfx = netip.PrefixFrom(dst, lpm.Bits()-1).Masked()
		}
	}
}

// best performs the longest-prefix match for dst among entries accepted by
// accept. Ties on prefix length go to the lowest priority, then to an entry
// with a next hop on hint, then to the most recently inserted entry.
func (s *snapshot) best(dst netip.Addr, hint DeviceID, accept func(*RouteEntry) bool, reg DeviceRegistry) *RouteEntry {
	for _, entries := range s.covering(dst) {
		if e := pick(entries, hint, accept, reg); e != nil {
			return e
		}
	}
	return nil
}

// pick selects among the entries of a single prefix, which are kept sorted
// by compareEntries.
func pick(entries []*RouteEntry, hint DeviceID, accept func(*RouteEntry) bool, reg DeviceRegistry) *RouteEntry {
	var first *RouteEntry
	for _, e := range entries {
		if (accept != nil && !accept(e)) || !e.usable(reg) {
			continue
		}
		if first == nil {
			first = e
			if hint == NoDevice {
				return e
			}
		}
		if e.Priority != first.Priority {
			break
		}
		if e.hasDevice(hint) {
			return e
		}
	}
	return first
}
