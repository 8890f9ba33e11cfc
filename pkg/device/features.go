package device

import (
	"fmt"
	"strings"
)

// Features is a device offload capability bitmask.
type Features uint64

const (
	FeatureSG Features = 1 << iota
	FeatureIPCsum
	FeatureIPv6Csum
	FeatureRxCsum
	FeatureTSO
	FeatureGSO
	FeatureVLANCTagTx
	FeatureVLANCTagRx
	FeatureHighDMA
	FeatureLoopback
	FeatureGRO
	FeatureLRO
	FeatureNTuple
	FeatureRxHash
)

// FeatureInfo names one capability bit.
type FeatureInfo struct {
	Bit         Features
	Name        string
	Description string
}

var featureTable = []FeatureInfo{
	{FeatureSG, "SG", "Scatter/Gather I/O is supported"},
	{FeatureIPCsum, "IP_CSUM", "IPv4 checksum offload"},
	{FeatureIPv6Csum, "IPV6_CSUM", "IPv6 checksum offload"},
	{FeatureRxCsum, "RXCSUM", "RX checksumming offload"},
	{FeatureTSO, "TSO", "TCP Segmentation Offload"},
	{FeatureGSO, "GSO", "Generic Segmentation Offload"},
	{FeatureVLANCTagTx, "HW_VLAN_CTAG_TX", "Hardware VLAN tag insertion"},
	{FeatureVLANCTagRx, "HW_VLAN_CTAG_RX", "Hardware VLAN tag extraction"},
	{FeatureHighDMA, "HIGHDMA", "High DMA memory support"},
	{FeatureLoopback, "LOOPBACK", "Loopback enabled"},
	{FeatureGRO, "GRO", "Generic Receive Offload"},
	{FeatureLRO, "LRO", "Large Receive Offload"},
	{FeatureNTuple, "NTUPLE", "N-tuple filtering support"},
	{FeatureRxHash, "RXHASH", "RX hashing offload"},
}

// Decode lists the known capabilities set in f, in table order.
func (f Features) Decode() []FeatureInfo {
	var out []FeatureInfo
	for _, fi := range featureTable {
		if f&fi.Bit != 0 {
			out = append(out, fi)
		}
	}
	return out
}

// Names returns the names of the set capabilities.
func (f Features) Names() []string {
	infos := f.Decode()
	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name
	}
	return names
}

func (f Features) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// ParseFeatures builds a bitmask from capability names. The NETIF_F_ prefix
// is optional and case is ignored.
func ParseFeatures(names []string) (Features, error) {
	var f Features
	for _, n := range names {
		key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(n)), "NETIF_F_")
		found := false
		for _, fi := range featureTable {
			if fi.Name == key {
				f |= fi.Bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown device feature %q", n)
		}
	}
	return f, nil
}
