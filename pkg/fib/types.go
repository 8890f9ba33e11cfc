package fib

import (
	"fmt"
	"strconv"
	"strings"
)

// RouteType classifies what happens to traffic matching a route.
// Values follow the kernel's RTN_* numbering.
type RouteType uint8

const (
	TypeUnspec RouteType = iota
	TypeUnicast
	TypeLocal
	TypeBroadcast
	TypeAnycast
	TypeMulticast
	TypeBlackhole
	TypeUnreachable
	TypeProhibit
)

var routeTypeNames = map[RouteType]string{
	TypeUnspec:      "unspec",
	TypeUnicast:     "unicast",
	TypeLocal:       "local",
	TypeBroadcast:   "broadcast",
	TypeAnycast:     "anycast",
	TypeMulticast:   "multicast",
	TypeBlackhole:   "blackhole",
	TypeUnreachable: "unreachable",
	TypeProhibit:    "prohibit",
}

func (t RouteType) String() string {
	if name, ok := routeTypeNames[t]; ok {
		return name
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Rejects reports whether traffic matching a route of this type is dropped.
func (t RouteType) Rejects() bool {
	return t == TypeBlackhole || t == TypeUnreachable || t == TypeProhibit
}

// Delivers reports whether a route of this type terminates on this host.
func (t RouteType) Delivers() bool {
	return t == TypeLocal || t == TypeBroadcast || t == TypeAnycast || t == TypeMulticast
}

// ParseRouteType parses a route type name. An empty name means unicast.
func ParseRouteType(name string) (RouteType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return TypeUnicast, nil
	}
	for t, n := range routeTypeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeUnspec, fmt.Errorf("unknown route type %q", name)
}

// Protocol is the opaque origin tag of a route. It is carried and printed
// but never interpreted. Values follow the kernel's RTPROT_* numbering.
type Protocol uint8

const (
	ProtoUnspec   Protocol = 0
	ProtoRedirect Protocol = 1
	ProtoKernel   Protocol = 2
	ProtoBoot     Protocol = 3
	ProtoStatic   Protocol = 4
	ProtoDHCP     Protocol = 16
	ProtoMrouted  Protocol = 17
	ProtoBabel    Protocol = 42
	ProtoBGP      Protocol = 186
	ProtoISIS     Protocol = 187
	ProtoOSPF     Protocol = 188
	ProtoRIP      Protocol = 189
	ProtoEIGRP    Protocol = 192
)

var protocolNames = map[Protocol]string{
	ProtoUnspec:   "Not specified",
	ProtoRedirect: "Redirect",
	ProtoKernel:   "Kernel",
	ProtoBoot:     "Boot",
	ProtoStatic:   "Static",
	ProtoDHCP:     "DHCP",
	ProtoMrouted:  "MROUTED",
	ProtoBabel:    "BABEL",
	ProtoBGP:      "BGP",
	ProtoISIS:     "ISIS",
	ProtoOSPF:     "OSPF",
	ProtoRIP:      "RIP",
	ProtoEIGRP:    "EIGRP",
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return "Unknown"
}

// ParseProtocol accepts a protocol name (case-insensitive) or its number.
// An empty string means ProtoUnspec.
func ParseProtocol(s string) (Protocol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProtoUnspec, nil
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return Protocol(n), nil
	}
	if strings.EqualFold(s, "unspec") {
		return ProtoUnspec, nil
	}
	for p, name := range protocolNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return ProtoUnspec, fmt.Errorf("unknown protocol %q", s)
}

// RouteFlags carries per-route flag bits. The low byte mirrors RTNH_F_*,
// the upper bits mirror RTM_F_*.
type RouteFlags uint32

const (
	FlagDead       RouteFlags = 0x1
	FlagPervasive  RouteFlags = 0x2
	FlagOnLink     RouteFlags = 0x4
	FlagOffload    RouteFlags = 0x8
	FlagLinkDown   RouteFlags = 0x10
	FlagUnresolved RouteFlags = 0x20
	FlagTrap       RouteFlags = 0x40
	FlagNotify     RouteFlags = 0x100
	FlagCloned     RouteFlags = 0x200
	FlagEqualize   RouteFlags = 0x400
	FlagPrefix     RouteFlags = 0x800
)

var routeFlagNames = []struct {
	flag RouteFlags
	name string
}{
	{FlagDead, "dead"},
	{FlagPervasive, "pervasive"},
	{FlagOnLink, "onlink"},
	{FlagOffload, "offload"},
	{FlagLinkDown, "linkdown"},
	{FlagUnresolved, "unresolved"},
	{FlagTrap, "trap"},
	{FlagNotify, "notify"},
	{FlagCloned, "cloned"},
	{FlagEqualize, "equalize"},
	{FlagPrefix, "prefix"},
}

// String renders the set flags as "a|b", with unknown bits in hex.
func (f RouteFlags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	rest := f
	for _, n := range routeFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseRouteFlag parses a single flag name.
func ParseRouteFlag(name string) (RouteFlags, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range routeFlagNames {
		if n.name == name {
			return n.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown route flag %q", name)
}
