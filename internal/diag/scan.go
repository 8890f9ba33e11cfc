package diag

import (
	"cmp"
	"log/slog"
	"math/bits"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/projectdiscovery/mapcidr"
	"github.com/remeh/sizedwaitgroup"
	"github.com/tkjaer/fibinfo/internal/shared"
	"github.com/tkjaer/fibinfo/pkg/fib"
)

type scanKey struct {
	prefix  netip.Prefix
	outcome fib.Outcome
}

type scanCounts struct {
	mu        sync.Mutex
	addresses uint64
	outcomes  map[fib.Outcome]uint64
	prefixes  map[scanKey]uint64
}

func (c *scanCounts) add(rep *fib.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses++
	c.outcomes[rep.Outcome]++
	c.prefixes[scanKey{rep.Prefix, rep.Outcome}]++
}

// scanRange narrows p to its first sub-prefix of at most limit addresses.
func scanRange(p netip.Prefix, limit uint) (netip.Prefix, bool) {
	hostBits := p.Addr().BitLen() - p.Bits()
	limitBits := bits.Len(limit) - 1 // floor(log2(limit))
	if hostBits <= limitBits {
		return p, false
	}
	return netip.PrefixFrom(p.Addr(), p.Addr().BitLen()-limitBits).Masked(), true
}

// scan looks up every address of p concurrently and summarises the
// outcomes per matched prefix.
func (r *Runner) scan(run uint, tbl *fib.Table, p netip.Prefix) *shared.ScanSummary {
	start := time.Now()
	network, truncated := scanRange(p, r.scanLimit)

	ipnet := &net.IPNet{IP: network.Addr().AsSlice(), Mask: net.CIDRMask(network.Bits(), network.Addr().BitLen())}
	slog.Debug("Scanning", "cidr", network, "addresses", mapcidr.AddressCountIpnet(ipnet), "truncated", truncated)

	counts := &scanCounts{
		outcomes: make(map[fib.Outcome]uint64),
		prefixes: make(map[scanKey]uint64),
	}

	ipStream, err := mapcidr.IPAddressesAsStream(network.String())
	if err != nil {
		slog.Error("Failed to expand scan range", "cidr", network, "error", err)
		return r.scanSummary(run, p, counts, truncated, start)
	}

	swg := sizedwaitgroup.New(int(r.parallel))
	stopped := false
	for ip := range ipStream {
		if r.stopped() {
			stopped = true
			break
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			continue
		}
		swg.Add()
		go func(addr netip.Addr) {
			defer swg.Done()
			rep := tbl.Lookup(addr, fib.NoDevice)
			if rep.Outcome == fib.OutcomeError {
				slog.Error("Resolution cycle", "destination", addr, "prefix", rep.Prefix, "error", rep.Err)
			}
			counts.add(&rep)
		}(addr)
	}
	if stopped {
		// Let the producer finish, it is bounded by the scan limit.
		go func() {
			for range ipStream {
			}
		}()
	}
	swg.Wait()

	return r.scanSummary(run, p, counts, truncated || stopped, start)
}

func (r *Runner) scanSummary(run uint, p netip.Prefix, c *scanCounts, truncated bool, start time.Time) *shared.ScanSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := &shared.ScanSummary{
		Run:       run,
		CIDR:      p.String(),
		Addresses: c.addresses,
		Truncated: truncated,
		Outcomes:  make(map[string]uint64, len(c.outcomes)),
		Prefixes:  make([]shared.PrefixCount, 0, len(c.prefixes)),
		Duration:  time.Since(start),
	}
	for o, n := range c.outcomes {
		sum.Outcomes[o.String()] = n
	}
	for k, n := range c.prefixes {
		pc := shared.PrefixCount{Outcome: k.outcome.String(), Count: n}
		if k.prefix.IsValid() {
			pc.Prefix = k.prefix.String()
		}
		sum.Prefixes = append(sum.Prefixes, pc)
	}
	slices.SortFunc(sum.Prefixes, func(a, b shared.PrefixCount) int {
		if n := cmp.Compare(b.Count, a.Count); n != 0 {
			return n
		}
		return cmp.Or(cmp.Compare(a.Prefix, b.Prefix), cmp.Compare(a.Outcome, b.Outcome))
	})
	return sum
}
