//go:build !linux

package arp

import (
	"net"
	"net/netip"

	"github.com/tkjaer/fibinfo/pkg/fib"
)

func lookup(netip.Addr, fib.DeviceID) (net.HardwareAddr, error) {
	return nil, ErrUnsupported
}
