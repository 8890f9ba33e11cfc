// Package iface classifies network devices by their link-layer framing.
package iface

import (
	"net"
	"strings"
)

// Link types, following the ARPHRD_* numbering reported by the kernel.
const (
	LinkEther    uint16 = 1
	LinkPPP      uint16 = 512
	LinkTunnel   uint16 = 768
	LinkTunnel6  uint16 = 769
	LinkLoopback uint16 = 772
	LinkSit      uint16 = 776
	LinkIPGRE    uint16 = 778
	LinkNone     uint16 = 0xfffe
)

// Kind is the framing class of a device.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindEthernet
	KindLoopback
	KindPointToPoint
	KindTunnel
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "Ethernet"
	case KindLoopback:
		return "Loopback"
	case KindPointToPoint:
		return "PointToPoint"
	case KindTunnel:
		return "Tunnel"
	default:
		return "Unknown"
	}
}

// ParseKind parses a kind name, ignoring case. Unknown names map to KindUnknown.
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ethernet", "ether":
		return KindEthernet
	case "loopback":
		return KindLoopback
	case "pointtopoint", "ppp":
		return KindPointToPoint
	case "tunnel":
		return KindTunnel
	}
	return KindUnknown
}

// LinkType returns the ARPHRD value usually reported for k.
func (k Kind) LinkType() uint16 {
	switch k {
	case KindEthernet:
		return LinkEther
	case KindLoopback:
		return LinkLoopback
	case KindPointToPoint:
		return LinkPPP
	case KindTunnel:
		return LinkNone
	}
	return 0
}

// HeaderLen is the link-layer header length for devices of kind k.
func (k Kind) HeaderLen() int {
	switch k {
	case KindEthernet, KindLoopback:
		return 14
	}
	return 0
}

// Classify determines a device's kind. The link type wins when it is known;
// otherwise the flags and hardware address decide.
func Classify(linkType uint16, flags net.Flags, hw net.HardwareAddr) Kind {
	switch linkType {
	case LinkEther:
		if flags&net.FlagPointToPoint != 0 {
			return KindPointToPoint
		}
		return KindEthernet
	case LinkLoopback:
		return KindLoopback
	case LinkPPP:
		return KindPointToPoint
	case LinkTunnel, LinkTunnel6, LinkSit, LinkIPGRE, LinkNone:
		return KindTunnel
	case 0:
	default:
		return KindUnknown
	}

	switch {
	case flags&net.FlagLoopback != 0:
		return KindLoopback
	case flags&net.FlagPointToPoint != 0:
		return KindPointToPoint
	case IsEthernet(flags, hw):
		return KindEthernet
	}
	return KindUnknown
}

// IsEthernet reports whether a device with these flags and hardware address
// uses Ethernet (layer 2) framing. Tunnel and VPN devices carry raw IP.
func IsEthernet(flags net.Flags, hw net.HardwareAddr) bool {
	// VPNs, PPP and the like
	if flags&net.FlagPointToPoint != 0 {
		return false
	}
	if flags&net.FlagLoopback != 0 {
		return false
	}
	// Most tunnel devices have no MAC address
	return len(hw) != 0
}
