// Package arp looks up next-hop link-layer addresses in the kernel
// neighbour table: ARP entries for IPv4, neighbour discovery for IPv6.
package arp

import (
	"errors"
	"net"
	"net/netip"

	"github.com/tkjaer/fibinfo/pkg/fib"
)

var (
	ErrNotFound    = errors.New("no neighbour entry found")
	ErrUnsupported = errors.New("neighbour table not supported on this platform")
)

// Lookup returns the hardware address the kernel has cached for ip on
// device dev. dev may be fib.NoDevice to search every device.
func Lookup(ip netip.Addr, dev fib.DeviceID) (net.HardwareAddr, error) {
	if !ip.IsValid() {
		return nil, errors.New("invalid IP address")
	}
	return lookup(ip.Unmap().WithZone(""), dev)
}
