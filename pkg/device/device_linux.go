//go:build linux

package device

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"golang.org/x/sys/unix"
)

// fetchLinks dumps the kernel's links and addresses.
// Variable for mocking in tests.
var fetchLinks = func() ([]rtnetlink.LinkMessage, []rtnetlink.AddressMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, nil, err
	}
	defer c.Close()

	links, err := c.Link.List()
	if err != nil {
		return nil, nil, fmt.Errorf("listing links: %w", err)
	}
	addrs, err := c.Address.List()
	if err != nil {
		return nil, nil, fmt.Errorf("listing addresses: %w", err)
	}
	return links, addrs, nil
}

var iffFlags = []struct {
	raw  uint32
	flag net.Flags
}{
	{unix.IFF_UP, net.FlagUp},
	{unix.IFF_BROADCAST, net.FlagBroadcast},
	{unix.IFF_LOOPBACK, net.FlagLoopback},
	{unix.IFF_POINTOPOINT, net.FlagPointToPoint},
	{unix.IFF_MULTICAST, net.FlagMulticast},
	{unix.IFF_RUNNING, net.FlagRunning},
}

func linkFlags(raw uint32) net.Flags {
	var f net.Flags
	for _, m := range iffFlags {
		if raw&m.raw != 0 {
			f |= m.flag
		}
	}
	return f
}

// load builds devices from the kernel's link and address dumps.
func load() ([]Device, error) {
	links, addrs, err := fetchLinks()
	if err != nil {
		return nil, err
	}
	return devicesFromMessages(links, addrs), nil
}

func devicesFromMessages(links []rtnetlink.LinkMessage, addrs []rtnetlink.AddressMessage) []Device {
	byIndex := make(map[uint32][]netip.Prefix)
	for _, a := range addrs {
		if a.Attributes == nil {
			continue
		}
		ip := a.Attributes.Local
		if ip == nil {
			ip = a.Attributes.Address
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		byIndex[a.Index] = append(byIndex[a.Index], netip.PrefixFrom(addr.Unmap(), int(a.PrefixLength)))
	}

	devs := make([]Device, 0, len(links))
	for _, l := range links {
		if l.Attributes == nil {
			continue
		}
		d := Device{
			Index:        fib.DeviceID(l.Index),
			Name:         l.Attributes.Name,
			MTU:          int(l.Attributes.MTU),
			HardwareAddr: l.Attributes.Address,
			// The permanent address needs ethtool; report the current one.
			PermAddr:  l.Attributes.Address,
			Broadcast: l.Attributes.Broadcast,
			Flags:     linkFlags(l.Flags),
			RawFlags:  l.Flags,
			LinkType:  l.Type,
			Addrs:     byIndex[l.Index],
		}
		if l.Flags&unix.IFF_LOOPBACK != 0 {
			d.Features |= FeatureLoopback
		}
		d.HeaderLen = d.Kind().HeaderLen()
		devs = append(devs, d)
	}
	return devs
}
