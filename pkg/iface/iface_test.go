package iface

import (
	"net"
	"testing"
)

func TestIsEthernet(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	tests := []struct {
		name     string
		flags    net.Flags
		hw       net.HardwareAddr
		expected bool
	}{
		{"no hardware address", net.FlagUp, nil, false},
		{"point-to-point with MAC", net.FlagUp | net.FlagPointToPoint, mac, false},
		{"loopback", net.FlagUp | net.FlagLoopback, nil, false},
		{"ethernet with MAC", net.FlagUp | net.FlagBroadcast, mac, true},
		{"down ethernet with MAC", 0, mac, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEthernet(tt.flags, tt.hw); got != tt.expected {
				t.Errorf("IsEthernet() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	tests := []struct {
		name     string
		linkType uint16
		flags    net.Flags
		hw       net.HardwareAddr
		expected Kind
	}{
		{"ether", LinkEther, net.FlagUp | net.FlagBroadcast, mac, KindEthernet},
		{"ether flagged p2p", LinkEther, net.FlagPointToPoint, mac, KindPointToPoint},
		{"loopback", LinkLoopback, net.FlagLoopback, nil, KindLoopback},
		{"ppp", LinkPPP, net.FlagPointToPoint, nil, KindPointToPoint},
		{"wireguard", LinkNone, net.FlagPointToPoint, nil, KindTunnel},
		{"gre", LinkIPGRE, 0, nil, KindTunnel},
		{"infiniband", 32, net.FlagUp, mac, KindUnknown},
		{"untyped with MAC", 0, net.FlagUp, mac, KindEthernet},
		{"untyped loopback", 0, net.FlagLoopback, nil, KindLoopback},
		{"untyped tun", 0, net.FlagUp, nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.linkType, tt.flags, tt.hw); got != tt.expected {
				t.Errorf("Classify(%d, %v) = %v, want %v", tt.linkType, tt.flags, got, tt.expected)
			}
		})
	}
}

func TestKind_RoundTrip(t *testing.T) {
	for _, k := range []Kind{KindEthernet, KindLoopback, KindPointToPoint, KindTunnel} {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
		if got := Classify(k.LinkType(), 0, nil); got != k {
			t.Errorf("Classify(%v.LinkType()) = %v", k, got)
		}
	}
	if KindEthernet.HeaderLen() != 14 || KindTunnel.HeaderLen() != 0 {
		t.Error("unexpected header lengths")
	}
}
