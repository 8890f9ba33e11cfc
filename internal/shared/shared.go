package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
	"time"
)

// RunInfo describes one diagnostic run.
type RunInfo struct {
	Run           uint      `json:"run"`            // Which iteration (0, 1, 2, ...)
	Mode          string    `json:"mode"`           // routes, devices, table or scan
	Source        string    `json:"source"`         // kernel or inventory file
	Routes        int       `json:"routes"`         // Entries in the table
	Devices       int       `json:"devices"`        // Devices in the registry
	HashAlgorithm string    `json:"hash_algorithm"` // crc32 or sha256
	Timestamp     time.Time `json:"timestamp"`
}

// StepRecord is one route traversed while resolving a next hop
type StepRecord struct {
	Prefix  string `json:"prefix"`
	Scope   string `json:"scope"`
	Type    string `json:"type"`
	Device  string `json:"device"`
	Gateway string `json:"gateway,omitempty"`
	OnLink  bool   `json:"onlink"`
}

// Key identifies the step for chain fingerprints
func (s StepRecord) Key() string {
	return fmt.Sprintf("%s>%s@%s", s.Prefix, s.Gateway, s.Device)
}

// NextHopRecord is one next hop of a matched route
type NextHopRecord struct {
	Device        string `json:"device"`
	Gateway       string `json:"gateway,omitempty"`
	OnLink        bool   `json:"onlink"`
	Weight        uint32 `json:"weight"`
	ResolvedScope string `json:"resolved_scope"`
}

// VerifyRecord compares a lookup with the kernel's own answer
type VerifyRecord struct {
	KernelDevice   string `json:"kernel_device,omitempty"`
	KernelGateway  string `json:"kernel_gateway,omitempty"`
	DefaultGateway string `json:"default_gateway,omitempty"` // OS default gateway, for default-route matches
	Match          bool   `json:"match"`
	Error          string `json:"error,omitempty"`
}

// LookupRecord is the result of one lookup
type LookupRecord struct {
	Run         uint            `json:"run"`
	Destination string          `json:"destination"`
	OIF         string          `json:"oif,omitempty"` // Output device hint
	Outcome     string          `json:"outcome"`
	Prefix      string          `json:"prefix,omitempty"`
	Type        string          `json:"type,omitempty"`
	Scope       string          `json:"scope,omitempty"`
	Protocol    string          `json:"protocol,omitempty"`
	Priority    uint32          `json:"priority"`
	Flags       string          `json:"flags,omitempty"`
	NextHops    []NextHopRecord `json:"next_hops,omitempty"` // All hops of the matched route
	Gateway     string          `json:"gateway,omitempty"`   // Gateway of the chosen hop
	GatewayPTR  string          `json:"gateway_ptr,omitempty"`
	GatewayMAC  string          `json:"gateway_mac,omitempty"`
	Device      string          `json:"device,omitempty"` // Egress device after resolution
	Terminal    string          `json:"terminal,omitempty"`
	Depth       int             `json:"depth"`
	Chain       []StepRecord    `json:"chain"`
	ChainHash   string          `json:"chain_hash"`
	Error       string          `json:"error,omitempty"`
	Verify      *VerifyRecord   `json:"verify,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// FeatureRecord is one decoded device capability
type FeatureRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DeviceRecord holds the attributes of one device
type DeviceRecord struct {
	Run          uint            `json:"run"`
	Index        int             `json:"index"`
	Name         string          `json:"name"`
	HardwareAddr string          `json:"hardware_addr,omitempty"`
	PermAddr     string          `json:"perm_addr,omitempty"`
	Broadcast    string          `json:"broadcast,omitempty"`
	MTU          int             `json:"mtu"`
	RawFlags     uint32          `json:"raw_flags"`
	Flags        string          `json:"flags"`
	Type         string          `json:"type"`
	HeaderLen    int             `json:"header_len"`
	AddrLen      int             `json:"addr_len"`
	Features     []FeatureRecord `json:"features"`
	Addrs        []string        `json:"addrs,omitempty"`
}

// DeviceRoutes is the default route seen from one device
type DeviceRoutes struct {
	Run    uint           `json:"run"`
	Device string         `json:"device"`
	Lookup []LookupRecord `json:"lookups"` // One per address family
}

// PrefixCount counts scan outcomes for one matched prefix
type PrefixCount struct {
	Prefix  string `json:"prefix"` // Empty for NotFound
	Outcome string `json:"outcome"`
	Count   uint64 `json:"count"`
}

// ScanSummary summarises a scan of an address range
type ScanSummary struct {
	Run       uint              `json:"run"`
	CIDR      string            `json:"cidr"`
	Addresses uint64            `json:"addresses"`
	Truncated bool              `json:"truncated"` // Scan stopped at the address limit
	Outcomes  map[string]uint64 `json:"outcomes"`
	Prefixes  []PrefixCount     `json:"prefixes"`
	Duration  time.Duration     `json:"duration"`
}

// calculateChainHash computes a hash of a resolution chain using the specified algorithm
// It takes a slice of step keys and returns a hash string
func calculateChainHash(keys []string, algorithm string) string {
	if len(keys) == 0 {
		switch algorithm {
		case "sha256":
			return "0000000000000000000000000000000000000000000000000000000000000000"
		default:
			return "00000000"
		}
	}

	var b strings.Builder
	for _, k := range keys {
		if k != "" {
			b.WriteString(k)
			b.WriteString("|")
		}
	}
	chain := b.String()

	switch algorithm {
	case "sha256":
		hash := sha256.Sum256([]byte(chain))
		return hex.EncodeToString(hash[:])
	default:
		// Default to CRC32
		return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(chain)))
	}
}

// CalculateChainHash fingerprints a resolution chain, so lookups taking the
// same path through the table can be grouped.
func CalculateChainHash(steps []StepRecord, algorithm string) string {
	keys := make([]string, 0, len(steps))
	for _, s := range steps {
		keys = append(keys, s.Key())
	}
	return calculateChainHash(keys, algorithm)
}
