package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/fibinfo/internal/version"
	"golang.org/x/term"
)

// Run modes
const (
	ModeRoutes  = "routes"
	ModeDevices = "devices"
	ModeTable   = "table"
	ModeScan    = "scan"
)

var modes = []string{ModeRoutes, ModeDevices, ModeTable, ModeScan}

// DefaultDestinations are looked up in table mode when none are given.
var DefaultDestinations = []string{"8.8.8.8", "1.1.1.1", "127.0.0.1", "192.168.1.1", "192.168.0.1"}

// isTerminal is swapped in tests.
var isTerminal = func(fd int) bool {
	return term.IsTerminal(fd)
}

type Args struct {
	Mode      string
	Inventory string // YAML inventory file, empty means read the kernel

	// Lookups
	Destinations []netip.Addr
	Scan         netip.Prefix
	ScanLimit    uint
	Parallel     uint

	// Timing
	Interval    time.Duration // 0 runs once
	Count       uint          // runs when repeating, 0 = until stopped
	DeviceDelay time.Duration

	// Enrichment
	Resolve bool // PTR names for gateways
	Verify  bool // cross-check against the kernel

	// Output
	Json     bool   // output json to stdout
	JsonFile string // output json to file while printing text
	NoColor  bool

	// Chain hashing
	HashAlgorithm string // hash algorithm: crc32, sha256

	MetricsListen string // Prometheus listen address, empty disables

	// Logging
	Log      string // log file path, empty means no logging
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool
	var dests []string
	var scan string

	// Set custom usage message
	flag.Usage = func() {
		println("fibinfo - forwarding table diagnostics")
		println()
		println("Looks up destinations in a copy of the forwarding table, resolving")
		println("gateways recursively through routes of narrower scope.")
		println()
		println("Usage:")
		println("  fibinfo [OPTIONS] [DESTINATION...]")
		println()
		println("Examples:")
		println("  fibinfo                              # Look up the default probe addresses")
		println("  fibinfo -m routes                    # Default route of every device")
		println("  fibinfo -m devices                   # Dump device attributes and features")
		println("  fibinfo -m scan -s 10.0.0.0/16       # Summarise lookups for a range")
		println("  fibinfo -f lab.yaml 10.1.2.3         # Use an inventory file instead of the kernel")
		println("  fibinfo -J -i 30s --verify           # JSON every 30s, checked against the kernel")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Documentation: https://github.com/tkjaer/fibinfo")
		println("Report issues: https://github.com/tkjaer/fibinfo/issues")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.StringVarP(&args.Mode, "mode", "m", ModeTable, "Run mode: routes, devices, table or scan")
	flag.StringVarP(&args.Inventory, "inventory", "f", "", "YAML inventory of devices and routes (default: read the kernel)")
	flag.StringSliceVarP(&dests, "dest", "d", nil, "Destination to look up (repeatable)")
	flag.StringVarP(&scan, "scan", "s", "", "Address range to scan in scan mode (CIDR)")
	flag.UintVar(&args.ScanLimit, "scan-limit", 65536, "Maximum addresses looked up in one scan")
	flag.UintVarP(&args.Parallel, "parallel", "P", 8, "Concurrent lookups in scan mode")
	flag.DurationVarP(&args.Interval, "interval", "i", 0, "Repeat the run at this interval (0 = run once)")
	flag.UintVarP(&args.Count, "count", "c", 0, "Number of runs when repeating (0 = until stopped)")
	flag.DurationVar(&args.DeviceDelay, "device-delay", time.Millisecond, "Pause between devices")
	flag.BoolVarP(&args.Resolve, "resolve", "r", false, "Resolve gateway addresses to hostnames")
	flag.BoolVar(&args.Verify, "verify", false, "Compare every lookup with the kernel's own answer")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON output to file (keeps text output)")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON output to stdout (disables text output)")
	flag.BoolVar(&args.NoColor, "no-color", false, "Disable coloured text output")
	flag.StringVar(&args.HashAlgorithm, "hash-algorithm", "crc32", "Chain hash algorithm: crc32 or sha256")
	flag.StringVar(&args.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9108)")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = stderr only)")
	flag.StringVar(&args.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	dests = append(dests, flag.Args()...)

	switch {
	case !slices.Contains(modes, args.Mode):
		return args, fmt.Errorf("mode must be one of routes, devices, table or scan, got %q", args.Mode)
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	case args.HashAlgorithm != "crc32" && args.HashAlgorithm != "sha256":
		return args, errors.New("hash algorithm must be either 'crc32' or 'sha256'")
	case args.Mode == ModeScan && scan == "":
		return args, errors.New("scan mode requires --scan")
	case args.Mode != ModeScan && scan != "":
		return args, errors.New("--scan is only used in scan mode")
	case args.Parallel == 0:
		return args, errors.New("parallel lookups must be at least 1")
	case args.ScanLimit == 0:
		return args, errors.New("scan limit must be at least 1")
	case args.Interval < 0 || args.DeviceDelay < 0:
		return args, errors.New("durations must not be negative")
	case args.Count > 0 && args.Interval == 0:
		return args, errors.New("--count requires --interval")
	}

	for _, d := range dests {
		addr, err := netip.ParseAddr(d)
		if err != nil {
			return args, fmt.Errorf("invalid destination %q: %w", d, err)
		}
		args.Destinations = append(args.Destinations, addr.Unmap())
	}
	if len(args.Destinations) == 0 && args.Mode == ModeTable {
		for _, d := range DefaultDestinations {
			args.Destinations = append(args.Destinations, netip.MustParseAddr(d))
		}
	}

	if scan != "" {
		p, err := netip.ParsePrefix(scan)
		if err != nil {
			return args, fmt.Errorf("invalid scan range %q: %w", scan, err)
		}
		args.Scan = p.Masked()
	}

	return args, nil
}

// Color reports whether text output should be styled.
func (a Args) Color() bool {
	return !a.NoColor && os.Getenv("NO_COLOR") == "" && isTerminal(int(os.Stdout.Fd()))
}

// Source names where the table comes from.
func (a Args) Source() string {
	if a.Inventory != "" {
		return a.Inventory
	}
	return "kernel"
}
