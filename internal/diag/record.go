package diag

import (
	"net/netip"
	"time"

	"github.com/tkjaer/fibinfo/internal/shared"
	"github.com/tkjaer/fibinfo/pkg/device"
	"github.com/tkjaer/fibinfo/pkg/fib"
)

// lookupRecord converts a report into its output record. Enrichment
// (names, neighbour addresses, kernel verification) is added by the caller.
func lookupRecord(run uint, rep *fib.Report, reg *device.Registry, hashAlgorithm string) *shared.LookupRecord {
	rec := &shared.LookupRecord{
		Run:         run,
		Destination: rep.Dest.String(),
		Outcome:     rep.Outcome.String(),
		Timestamp:   time.Now(),
	}
	if rep.OIF != fib.NoDevice {
		rec.OIF = reg.Name(rep.OIF)
	}
	if rep.Err != nil {
		rec.Error = rep.Err.Error()
	}
	if rep.Outcome == fib.OutcomeNotFound {
		rec.Chain = []shared.StepRecord{}
		rec.ChainHash = shared.CalculateChainHash(nil, hashAlgorithm)
		return rec
	}

	rec.Prefix = rep.Prefix.String()
	rec.Type = rep.Type.String()
	rec.Scope = rep.Scope.String()
	rec.Protocol = rep.Protocol.String()
	rec.Priority = rep.Priority
	if rep.Route != nil {
		if rep.Route.Flags != 0 {
			rec.Flags = rep.Route.Flags.String()
		}
		for _, nh := range rep.Route.NextHops {
			rec.NextHops = append(rec.NextHops, shared.NextHopRecord{
				Device:        reg.Name(nh.Device),
				Gateway:       addrString(nh.Gateway),
				OnLink:        nh.Direct(),
				Weight:        nh.Weight,
				ResolvedScope: nh.ResolvedScope().String(),
			})
		}
	}
	rec.Gateway = addrString(rep.Gateway())
	if rep.Outcome == fib.OutcomeFound {
		rec.Device = reg.Name(rep.Device)
		rec.Terminal = rep.Terminal.String()
	}
	rec.Depth = rep.Depth()

	rec.Chain = make([]shared.StepRecord, 0, len(rep.Chain))
	for _, s := range rep.Chain {
		rec.Chain = append(rec.Chain, shared.StepRecord{
			Prefix:  s.Prefix.String(),
			Scope:   s.Scope.String(),
			Type:    s.Type.String(),
			Device:  reg.Name(s.Device),
			Gateway: addrString(s.Gateway),
			OnLink:  s.OnLink,
		})
	}
	rec.ChainHash = shared.CalculateChainHash(rec.Chain, hashAlgorithm)
	return rec
}

func deviceRecord(run uint, d *device.Device) *shared.DeviceRecord {
	rec := &shared.DeviceRecord{
		Run:          run,
		Index:        int(d.Index),
		Name:         d.Name,
		HardwareAddr: d.HardwareAddr.String(),
		PermAddr:     d.PermAddr.String(),
		Broadcast:    d.Broadcast.String(),
		MTU:          d.MTU,
		RawFlags:     d.RawFlags,
		Flags:        d.Flags.String(),
		Type:         d.Kind().String(),
		HeaderLen:    d.HeaderLen,
		AddrLen:      d.AddrLen(),
		Features:     []shared.FeatureRecord{},
	}
	for _, f := range d.Features.Decode() {
		rec.Features = append(rec.Features, shared.FeatureRecord{Name: f.Name, Description: f.Description})
	}
	for _, a := range d.Addrs {
		rec.Addrs = append(rec.Addrs, a.String())
	}
	return rec
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
