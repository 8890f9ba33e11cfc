//go:build !linux

package route

import (
	"net/netip"

	"github.com/tkjaer/fibinfo/pkg/fib"
)

func get(netip.Addr) (Route, error) {
	return Route{}, ErrUnsupported
}

func list([]uint32) ([]fib.RouteEntry, error) {
	return nil, ErrUnsupported
}
