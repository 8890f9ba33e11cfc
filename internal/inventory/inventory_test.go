package inventory

import (
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/tkjaer/fibinfo/pkg/device"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"github.com/tkjaer/fibinfo/pkg/iface"
)

func loadLab(t *testing.T) (*Inventory, *device.Registry, *fib.Table) {
	t.Helper()
	inv, err := Load("testdata/lab.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	reg, err := inv.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	tbl := fib.New(fib.WithRegistry(reg))
	n, err := inv.Populate(tbl, reg)
	if err != nil {
		t.Fatalf("Populate() error = %v", err)
	}
	if n != len(inv.Routes) {
		t.Errorf("Populate() = %d, want %d", n, len(inv.Routes))
	}
	return inv, reg, tbl
}

func TestLoad_Devices(t *testing.T) {
	_, reg, _ := loadLab(t)

	if reg.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", reg.Len())
	}

	lo, ok := reg.ByName("lo")
	if !ok {
		t.Fatal("lo missing")
	}
	if lo.Kind() != iface.KindLoopback {
		t.Errorf("lo kind = %v, want Loopback", lo.Kind())
	}
	if lo.Features&device.FeatureLoopback == 0 {
		t.Error("lo should carry the loopback feature")
	}
	if lo.RawFlags != 0x49 {
		t.Errorf("lo raw flags = %#x, want 0x49", lo.RawFlags)
	}

	eth0, _ := reg.ByName("eth0")
	if eth0.Kind() != iface.KindEthernet {
		t.Errorf("eth0 kind = %v, want Ethernet", eth0.Kind())
	}
	if eth0.MTU != 1500 {
		t.Errorf("eth0 MTU = %d, want default 1500", eth0.MTU)
	}
	if eth0.HeaderLen != 14 {
		t.Errorf("eth0 header len = %d, want 14", eth0.HeaderLen)
	}
	if got := eth0.Features.String(); got != "SG,IP_CSUM,TSO,GSO,GRO" {
		t.Errorf("eth0 features = %q", got)
	}
	if !eth0.Up() || eth0.Flags&net.FlagMulticast == 0 {
		t.Errorf("eth0 flags = %v", eth0.Flags)
	}

	// Index assigned after the explicit ones
	wg0, ok := reg.ByName("wg0")
	if !ok || wg0.Index != 3 {
		t.Errorf("wg0 = %+v, want index 3", wg0)
	}
}

func TestLoad_Lookups(t *testing.T) {
	_, reg, tbl := loadLab(t)
	eth0, _ := reg.ByName("eth0")

	tests := []struct {
		dst     string
		outcome fib.Outcome
		prefix  string
		device  fib.DeviceID
	}{
		{"8.8.8.8", fib.OutcomeFound, "0.0.0.0/0", eth0.Index},
		{"10.0.0.9", fib.OutcomeFound, "10.0.0.0/24", eth0.Index},
		{"10.0.0.5", fib.OutcomeFound, "10.0.0.5/32", eth0.Index},
		{"127.0.0.1", fib.OutcomeFound, "127.0.0.0/8", 1},
		{"192.0.2.1", fib.OutcomeUnreachable, "192.0.2.0/24", fib.NoDevice},
		{"198.51.100.7", fib.OutcomeUnreachable, "198.51.100.0/24", fib.NoDevice},
		{"2001:db8::9", fib.OutcomeNotFound, "", fib.NoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.dst, func(t *testing.T) {
			r := tbl.Lookup(netip.MustParseAddr(tt.dst), fib.NoDevice)
			if r.Outcome != tt.outcome {
				t.Fatalf("Outcome = %v, want %v (%v)", r.Outcome, tt.outcome, r.Err)
			}
			if tt.prefix != "" && r.Prefix != netip.MustParsePrefix(tt.prefix) {
				t.Errorf("Prefix = %v, want %v", r.Prefix, tt.prefix)
			}
			if tt.outcome == fib.OutcomeFound && r.Device != tt.device {
				t.Errorf("Device = %v, want %v", r.Device, tt.device)
			}
		})
	}
}

func TestEntries_Defaults(t *testing.T) {
	inv, reg, _ := loadLab(t)
	entries, err := inv.Entries(reg)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	byPrefix := make(map[string]fib.RouteEntry)
	for _, e := range entries {
		byPrefix[e.Prefix.String()] = e
	}

	tests := []struct {
		prefix string
		scope  fib.Scope
		typ    fib.RouteType
		proto  fib.Protocol
	}{
		{"0.0.0.0/0", fib.ScopeUniverse, fib.TypeUnicast, fib.ProtoDHCP},
		{"10.0.0.0/24", fib.ScopeLink, fib.TypeUnicast, fib.ProtoKernel},
		{"10.0.0.5/32", fib.ScopeHost, fib.TypeLocal, fib.ProtoKernel},
		{"172.16.0.0/12", fib.ScopeUniverse, fib.TypeUnicast, fib.ProtoStatic},
		{"192.0.2.0/24", fib.ScopeUniverse, fib.TypeBlackhole, fib.ProtoStatic},
	}
	for _, tt := range tests {
		e, ok := byPrefix[tt.prefix]
		if !ok {
			t.Errorf("%s missing", tt.prefix)
			continue
		}
		if e.Scope != tt.scope || e.Type != tt.typ || e.Protocol != tt.proto {
			t.Errorf("%s = scope %v type %v proto %v, want %v %v %v",
				tt.prefix, e.Scope, e.Type, e.Protocol, tt.scope, tt.typ, tt.proto)
		}
	}

	multi := byPrefix["172.16.0.0/12"]
	if len(multi.NextHops) != 2 || multi.NextHops[0].Weight != 2 || !multi.NextHops[1].OnLink {
		t.Errorf("multipath hops = %v", multi.NextHops)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no devices",
			yaml:    "routes: []\n",
			wantErr: "at least one device is required",
		},
		{
			name:    "unknown field",
			yaml:    "devices:\n  - name: eth0\n    colour: blue\n",
			wantErr: "parsing inventory YAML",
		},
		{
			name:    "malformed",
			yaml:    "devices: [",
			wantErr: "parsing inventory YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad mac", "devices:\n  - {name: eth0, hardware_addr: zz}\n", "invalid hardware address"},
		{"bad flag", "devices:\n  - {name: eth0, flags: [promisc]}\n", `unknown flag "promisc"`},
		{"bad feature", "devices:\n  - {name: eth0, features: [WARP]}\n", "WARP"},
		{"bad kind", "devices:\n  - {name: eth0, kind: token-ring}\n", `unknown kind "token-ring"`},
		{"bad addr", "devices:\n  - {name: eth0, addrs: [10.0.0.1]}\n", "invalid address"},
		{"duplicate name", "devices:\n  - {name: eth0}\n  - {name: eth0}\n", "already used"},
		{"no name", "devices:\n  - {index: 4}\n", "has no name"},
		{
			"duplicate index",
			"devices:\n  - {name: eth0, index: 2}\n  - {name: eth1, index: 2}\n",
			`devices "eth0" and "eth1" both use index 2`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			_, err = inv.Registry()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Registry() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestPopulate_Errors(t *testing.T) {
	const devices = "devices:\n  - {name: eth0, index: 2}\n"
	tests := []struct {
		name    string
		routes  string
		wantErr error
		wantMsg string
	}{
		{"bad prefix", "  - {prefix: 10.0.0.0/33, device: eth0}\n", fib.ErrInvalidPrefix, ""},
		{"host bits", "  - {prefix: 10.0.0.1/24, device: eth0}\n", fib.ErrInvalidPrefix, ""},
		{"bad gateway", "  - {prefix: 10.0.0.0/24, gateway: nope}\n", fib.ErrInvalidNextHop, ""},
		{"no next hop", "  - {prefix: 10.0.0.0/24}\n", fib.ErrInvalidNextHop, ""},
		{"unknown device", "  - {prefix: 10.0.0.0/24, device: eth9}\n", nil, `unknown device "eth9"`},
		{"bad scope", "  - {prefix: 10.0.0.0/24, device: eth0, scope: planet}\n", nil, "planet"},
		{"bad type", "  - {prefix: 10.0.0.0/24, device: eth0, type: teleport}\n", nil, "teleport"},
		{"bad protocol", "  - {prefix: 10.0.0.0/24, device: eth0, protocol: pigeon}\n", nil, "pigeon"},
		{"bad flag", "  - {prefix: 10.0.0.0/24, device: eth0, flags: [sticky]}\n", nil, "sticky"},
		{
			"shorthand and nexthops",
			"  - {prefix: 10.0.0.0/24, device: eth0, nexthops: [{device: eth0}]}\n",
			nil, "mutually exclusive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := Parse([]byte(devices + "routes:\n" + tt.routes))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			reg, err := inv.Registry()
			if err != nil {
				t.Fatalf("Registry() error = %v", err)
			}
			tbl := fib.New(fib.WithRegistry(reg))
			_, err = inv.Populate(tbl, reg)
			if err == nil {
				t.Fatal("Populate() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Populate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Populate() error = %v, want %q", err, tt.wantMsg)
			}
			if tbl.Len() != 0 {
				t.Errorf("table has %d routes after failed populate", tbl.Len())
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("testdata/missing.yaml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
