package diag

import (
	"net"
	"net/netip"

	"github.com/jackpal/gateway"
	"github.com/tkjaer/fibinfo/internal/shared"
	"github.com/tkjaer/fibinfo/pkg/arp"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"github.com/tkjaer/fibinfo/pkg/route"
)

// Swapped in tests.
var (
	kernelRoute    = route.Get
	defaultGateway = gateway.DiscoverGateway
	neighbour      = arp.Lookup
)

// verify compares a lookup with the kernel's answer for the same
// destination. For default-route matches the OS default gateway is
// reported too.
func verify(dst netip.Addr, rep *fib.Report, rec *shared.LookupRecord) *shared.VerifyRecord {
	v := &shared.VerifyRecord{}

	kr, err := kernelRoute(dst)
	if err != nil {
		v.Error = err.Error()
		v.Match = rep.Outcome != fib.OutcomeFound
		return v
	}
	if kr.Interface != nil {
		v.KernelDevice = kr.Interface.Name
	}
	v.KernelGateway = addrString(kr.Gateway)

	if rep.Outcome == fib.OutcomeFound && rep.Prefix.Bits() == 0 {
		if gw, err := defaultGateway(); err == nil {
			v.DefaultGateway = gw.String()
		}
	}

	v.Match = rep.Outcome == fib.OutcomeFound &&
		rec.Device == v.KernelDevice &&
		rec.Gateway == v.KernelGateway
	return v
}

// gatewayMAC returns the neighbour entry of the chosen gateway, if the
// kernel has one.
func gatewayMAC(rep *fib.Report) net.HardwareAddr {
	gw := rep.Gateway()
	if rep.Outcome != fib.OutcomeFound || !gw.IsValid() {
		return nil
	}
	hw, err := neighbour(gw, rep.Device)
	if err != nil {
		return nil
	}
	return hw
}
