//go:build linux

package route

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/jsimonetti/rtnetlink"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"golang.org/x/sys/unix"
)

func TestGetMostSpecificRoute_Linux(t *testing.T) {
	ipv4 := netip.MustParseAddr("192.0.2.100")
	ipv6 := netip.MustParseAddr("2001:db8::100")

	tests := []struct {
		name    string
		ip      netip.Addr
		msgs    []rtnetlink.RouteMessage
		wantErr bool
	}{
		{
			name: "IPv4 route found",
			ip:   ipv4,
			msgs: []rtnetlink.RouteMessage{
				{
					Family: unix.AF_INET,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      ipv4.AsSlice(),
						Gateway:  netip.MustParseAddr("192.0.2.1").AsSlice(),
						Src:      netip.MustParseAddr("192.0.2.10").AsSlice(),
						OutIface: 1,
					},
				},
			},
			wantErr: false,
		},
		{
			name: "IPv6 route found",
			ip:   ipv6,
			msgs: []rtnetlink.RouteMessage{
				{
					Family: unix.AF_INET6,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      ipv6.AsSlice(),
						Gateway:  netip.MustParseAddr("2001:db8::1").AsSlice(),
						Src:      netip.MustParseAddr("2001:db8::10").AsSlice(),
						OutIface: 1,
					},
				},
			},
			wantErr: false,
		},
		{
			name: "multiple routes error",
			ip:   ipv4,
			msgs: []rtnetlink.RouteMessage{
				{
					Family: unix.AF_INET,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      ipv4.AsSlice(),
						Src:      netip.MustParseAddr("192.0.2.10").AsSlice(),
						OutIface: 1,
					},
				},
				{
					Family: unix.AF_INET,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      ipv4.AsSlice(),
						Src:      netip.MustParseAddr("192.0.2.20").AsSlice(),
						OutIface: 2,
					},
				},
			},
			wantErr: true,
		},
		{
			name: "invalid destination",
			ip:   ipv4,
			msgs: []rtnetlink.RouteMessage{
				{
					Family: unix.AF_INET,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      []byte{}, // Invalid
						Src:      ipv4.AsSlice(),
						OutIface: 1,
					},
				},
			},
			wantErr: true,
		},
		{
			name:    "empty response",
			ip:      ipv4,
			msgs:    nil,
			wantErr: true,
		},
		{
			name: "invalid source",
			ip:   ipv4,
			msgs: []rtnetlink.RouteMessage{
				{
					Family: unix.AF_INET,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      ipv4.AsSlice(),
						Src:      []byte{}, // Invalid
						OutIface: 1,
					},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := getMostSpecificRoute(tt.ip, tt.msgs)

			if (err != nil) != tt.wantErr {
				t.Errorf("getMostSpecificRoute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_get_Linux(t *testing.T) {
	ipv4 := netip.MustParseAddr("192.0.2.1")

	tests := []struct {
		name    string
		ip      netip.Addr
		msgs    []rtnetlink.RouteMessage
		err     error
		wantErr bool
	}{
		{
			name: "successful fetch",
			ip:   ipv4,
			msgs: []rtnetlink.RouteMessage{
				{
					Family: unix.AF_INET,
					Attributes: rtnetlink.RouteAttributes{
						Dst:      ipv4.AsSlice(),
						Src:      netip.MustParseAddr("192.0.2.10").AsSlice(),
						OutIface: 1,
					},
				},
			},
			wantErr: false,
		},
		{
			name:    "fetch error",
			ip:      ipv4,
			err:     errors.New("dial failed"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := fetchRIBMessagesForIP
			fetchRIBMessagesForIP = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) { return tt.msgs, tt.err }
			defer func() { fetchRIBMessagesForIP = orig }()

			_, err := get(tt.ip)

			if (err != nil) != tt.wantErr {
				t.Errorf("get() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_get_Linux_RealCall(t *testing.T) {
	// Smoke test with real routing table
	ip := netip.MustParseAddr("8.8.8.8")
	route, err := get(ip)

	if err == nil {
		if route.Interface == nil {
			t.Error("get() returned route with nil interface")
		}
		if !route.Destination.IsValid() {
			t.Error("get() returned route with invalid destination")
		}
	}
}

func ip(s string) []byte {
	return netip.MustParseAddr(s).AsSlice()
}

func TestEntryFromMessage_Linux(t *testing.T) {
	tests := []struct {
		name   string
		msg    rtnetlink.RouteMessage
		ok     bool
		prefix string
		scope  fib.Scope
		typ    fib.RouteType
		hops   int
		onlink bool
	}{
		{
			name: "default route",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, Table: unix.RT_TABLE_MAIN, Protocol: unix.RTPROT_DHCP,
				Scope: unix.RT_SCOPE_UNIVERSE, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Gateway: ip("192.168.1.1"), OutIface: 2, Priority: 100},
			},
			ok: true, prefix: "0.0.0.0/0", scope: fib.ScopeUniverse, typ: fib.TypeUnicast, hops: 1,
		},
		{
			name: "connected route",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, DstLength: 24, Table: unix.RT_TABLE_MAIN, Protocol: unix.RTPROT_KERNEL,
				Scope: unix.RT_SCOPE_LINK, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("192.168.1.0"), OutIface: 2},
			},
			ok: true, prefix: "192.168.1.0/24", scope: fib.ScopeLink, typ: fib.TypeUnicast, hops: 1, onlink: true,
		},
		{
			name: "local address",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, DstLength: 32, Table: unix.RT_TABLE_LOCAL,
				Scope: unix.RT_SCOPE_HOST, Type: unix.RTN_LOCAL,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("192.168.1.10"), OutIface: 2},
			},
			ok: true, prefix: "192.168.1.10/32", scope: fib.ScopeHost, typ: fib.TypeLocal, hops: 1, onlink: true,
		},
		{
			name: "ipv6 connected route narrowed to link",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET6, DstLength: 64, Table: unix.RT_TABLE_MAIN,
				Scope: unix.RT_SCOPE_UNIVERSE, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("fe80::"), OutIface: 2, Priority: 256},
			},
			ok: true, prefix: "fe80::/64", scope: fib.ScopeLink, typ: fib.TypeUnicast, hops: 1, onlink: true,
		},
		{
			name: "blackhole",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, DstLength: 8, Table: unix.RT_TABLE_MAIN,
				Scope: unix.RT_SCOPE_UNIVERSE, Type: unix.RTN_BLACKHOLE,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("10.0.0.0")},
			},
			ok: true, prefix: "10.0.0.0/8", scope: fib.ScopeUniverse, typ: fib.TypeBlackhole,
		},
		{
			name: "multipath skips dead hop",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, DstLength: 16, Table: unix.RT_TABLE_MAIN,
				Scope: unix.RT_SCOPE_UNIVERSE, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{
					Dst: ip("172.16.0.0"),
					Multipath: []rtnetlink.NextHop{
						{Hop: rtnetlink.RTNextHop{IfIndex: 2, Hops: 1}, Gateway: ip("192.168.1.1")},
						{Hop: rtnetlink.RTNextHop{IfIndex: 3, Flags: unix.RTNH_F_DEAD}, Gateway: ip("192.168.2.1")},
						{Hop: rtnetlink.RTNextHop{IfIndex: 4, Flags: unix.RTNH_F_ONLINK}, Gateway: ip("203.0.113.1")},
					},
				},
			},
			ok: true, prefix: "172.16.0.0/16", scope: fib.ScopeUniverse, typ: fib.TypeUnicast, hops: 2,
		},
		{
			name: "cloned cache entry",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET6, DstLength: 128, Flags: unix.RTM_F_CLONED, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("2001:db8::1"), OutIface: 2},
			},
		},
		{
			name: "throw route",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, DstLength: 8, Type: unix.RTN_THROW,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("10.0.0.0")},
			},
		},
		{
			name: "bad prefix length",
			msg: rtnetlink.RouteMessage{
				Family: unix.AF_INET, DstLength: 40, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("10.0.0.0"), OutIface: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := entryFromMessage(tt.msg)
			if ok != tt.ok {
				t.Fatalf("entryFromMessage() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if e.Prefix != netip.MustParsePrefix(tt.prefix) {
				t.Errorf("Prefix = %v, want %s", e.Prefix, tt.prefix)
			}
			if e.Scope != tt.scope || e.Type != tt.typ {
				t.Errorf("Scope/Type = %v/%v, want %v/%v", e.Scope, e.Type, tt.scope, tt.typ)
			}
			if len(e.NextHops) != tt.hops {
				t.Fatalf("len(NextHops) = %d, want %d", len(e.NextHops), tt.hops)
			}
			if tt.hops > 0 && e.NextHops[0].OnLink != tt.onlink {
				t.Errorf("NextHops[0].OnLink = %v, want %v", e.NextHops[0].OnLink, tt.onlink)
			}
			if err := e.Validate(); err != nil {
				t.Errorf("converted entry does not validate: %v", err)
			}
		})
	}
}

func TestEntryFromMessage_MultipathWeights(t *testing.T) {
	e, ok := entryFromMessage(rtnetlink.RouteMessage{
		Family: unix.AF_INET, Type: unix.RTN_UNICAST,
		Attributes: rtnetlink.RouteAttributes{
			Multipath: []rtnetlink.NextHop{
				{Hop: rtnetlink.RTNextHop{IfIndex: 2, Hops: 4}, Gateway: ip("192.168.1.1")},
				{Hop: rtnetlink.RTNextHop{IfIndex: 3, Flags: unix.RTNH_F_ONLINK}, Gateway: ip("203.0.113.1")},
			},
		},
	})
	if !ok {
		t.Fatal("entryFromMessage() rejected multipath default")
	}
	if e.NextHops[0].Weight != 5 || e.NextHops[1].Weight != 1 {
		t.Errorf("weights = %d, %d, want 5, 1", e.NextHops[0].Weight, e.NextHops[1].Weight)
	}
	if !e.NextHops[1].OnLink {
		t.Error("RTNH_F_ONLINK not carried")
	}
}

func TestList_Linux(t *testing.T) {
	orig := fetchRIBDump
	defer func() { fetchRIBDump = orig }()

	fetchRIBDump = func() ([]rtnetlink.RouteMessage, error) {
		return []rtnetlink.RouteMessage{
			{
				Family: unix.AF_INET, Table: unix.RT_TABLE_MAIN, Scope: unix.RT_SCOPE_UNIVERSE, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Gateway: ip("192.168.1.1"), OutIface: 2},
			},
			{
				Family: unix.AF_INET, DstLength: 24, Table: unix.RT_TABLE_MAIN, Scope: unix.RT_SCOPE_LINK, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("192.168.1.0"), OutIface: 2},
			},
			{
				Family: unix.AF_INET, DstLength: 32, Table: unix.RT_TABLE_LOCAL, Scope: unix.RT_SCOPE_HOST, Type: unix.RTN_LOCAL,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("192.168.1.10"), OutIface: 2},
			},
			{
				// policy table, not requested
				Family: unix.AF_INET, DstLength: 8, Table: unix.RT_TABLE_COMPAT, Scope: unix.RT_SCOPE_LINK, Type: unix.RTN_UNICAST,
				Attributes: rtnetlink.RouteAttributes{Dst: ip("10.0.0.0"), OutIface: 3, Table: 1000},
			},
		}, nil
	}

	entries, err := List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}

	tbl := fib.New()
	loaded, skipped, err := Load(tbl)
	if err != nil || loaded != 3 || skipped != 0 {
		t.Fatalf("Load() = %d, %d, %v", loaded, skipped, err)
	}
	r := tbl.Lookup(netip.MustParseAddr("8.8.8.8"), fib.NoDevice)
	if !r.Found() || r.Depth() != 2 || r.Device != 2 {
		t.Errorf("Lookup(8.8.8.8) = %s", r.String())
	}

	only, err := List(1000)
	if err != nil || len(only) != 1 {
		t.Errorf("List(1000) = %d entries, %v", len(only), err)
	}
}

func TestList_LinuxError(t *testing.T) {
	orig := fetchRIBDump
	defer func() { fetchRIBDump = orig }()

	fetchRIBDump = func() ([]rtnetlink.RouteMessage, error) { return nil, errors.New("permission denied") }
	if _, err := List(); err == nil {
		t.Error("List() expected error")
	}
}
