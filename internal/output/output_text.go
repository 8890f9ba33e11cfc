package output

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/tkjaer/fibinfo/internal/shared"
)

const separator = "-----------------------------"

type textStyles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
	prefix  lipgloss.Style
	good    lipgloss.Style
	warning lipgloss.Style
	bad     lipgloss.Style
	dim     lipgloss.Style
}

func newTextStyles(r *lipgloss.Renderer, color bool) textStyles {
	if !color {
		plain := r.NewStyle()
		return textStyles{plain, plain, plain, plain, plain, plain, plain, plain}
	}
	return textStyles{
		title: r.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FBBF24")),
		label:   r.NewStyle().Foreground(lipgloss.Color("#E5E7EB")),
		prefix:  r.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
		good:    r.NewStyle().Foreground(lipgloss.Color("#34D399")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
		bad:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F87171")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#626262")),
	}
}

// TextOutput renders human-readable reports
type TextOutput struct {
	mu sync.Mutex
	w  io.Writer
	st textStyles
}

// NewTextOutput writes to w. Colour is used only when color is set and w
// is a terminal that supports it.
func NewTextOutput(w io.Writer, color bool) *TextOutput {
	return &TextOutput{
		w:  w,
		st: newTextStyles(lipgloss.NewRenderer(w), color),
	}
}

func (t *TextOutput) printf(format string, a ...any) {
	fmt.Fprintf(t.w, format, a...)
}

func (t *TextOutput) outcome(o string) string {
	switch o {
	case "Found":
		return t.st.good.Render(o)
	case "Unreachable", "NotFound":
		return t.st.warning.Render(o)
	default:
		return t.st.bad.Render(o)
	}
}

func (t *TextOutput) StartRun(info shared.RunInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printf("%s\n", t.st.title.Render(fmt.Sprintf("fibinfo %s run %d", info.Mode, info.Run)))
	t.printf("%s\n", t.st.dim.Render(fmt.Sprintf("source %s: %d routes, %d devices", info.Source, info.Routes, info.Devices)))
}

func (t *TextOutput) Lookup(rec *shared.LookupRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printf("Looking up route for %s\n", rec.Destination)
	t.lookupBody(rec, "  ")
	t.printf("%s\n", separator)
}

func (t *TextOutput) lookupBody(rec *shared.LookupRecord, indent string) {
	if rec.Outcome == "NotFound" {
		t.printf("%sNo route found (%s)\n", indent, t.outcome(rec.Outcome))
		return
	}
	t.printf("%sOutcome: %s\n", indent, t.outcome(rec.Outcome))
	t.printf("%s%s\n", indent, t.st.header.Render("FIB Info:"))
	t.printf("%s  Protocol: %s\n", indent, rec.Protocol)
	t.printf("%s  Scope: %s\n", indent, rec.Scope)
	t.printf("%s  Type: %s\n", indent, rec.Type)
	t.printf("%s  Priority: %d\n", indent, rec.Priority)
	if rec.Flags != "" && rec.Flags != "0" {
		t.printf("%s  Flags: %s\n", indent, rec.Flags)
	}
	t.printf("%s  Next hops (%d):\n", indent, len(rec.NextHops))
	for i, nh := range rec.NextHops {
		gw := nh.Gateway
		if gw == "" {
			gw = "none"
		}
		line := fmt.Sprintf("NH%d: dev=%s gw=%s weight=%d", i, nh.Device, gw, nh.Weight)
		if nh.OnLink {
			line += " onlink"
		}
		if nh.ResolvedScope != "" && nh.ResolvedScope != "Nowhere" {
			line += " resolved=" + nh.ResolvedScope
		}
		t.printf("%s    %s\n", indent, line)
	}

	t.printf("%s%s\n", indent, t.st.header.Render("Route Info:"))
	t.printf("%s  Prefix: %s\n", indent, t.st.prefix.Render(rec.Prefix))
	if rec.Outcome == "Found" {
		t.printf("%s  Egress: %s (%s, depth %d)\n", indent, rec.Device, rec.Terminal, rec.Depth)
	}
	if rec.Gateway != "" {
		gw := rec.Gateway
		if rec.GatewayPTR != "" {
			gw += " (" + rec.GatewayPTR + ")"
		}
		if rec.GatewayMAC != "" {
			gw += " lladdr " + rec.GatewayMAC
		}
		t.printf("%s  Gateway: %s\n", indent, gw)
	}
	if len(rec.Chain) > 0 {
		steps := make([]string, len(rec.Chain))
		for i, s := range rec.Chain {
			steps[i] = fmt.Sprintf("%s [%s]", s.Prefix, s.Scope)
			if s.Gateway != "" && !s.OnLink {
				steps[i] += " via " + s.Gateway
			} else {
				steps[i] += " dev " + s.Device
			}
		}
		t.printf("%s  Chain: %s\n", indent, strings.Join(steps, " -> "))
		t.printf("%s  Chain hash: %s\n", indent, t.st.dim.Render(rec.ChainHash))
	}
	if rec.Error != "" {
		t.printf("%s  Error: %s\n", indent, t.st.bad.Render(rec.Error))
	}
	if v := rec.Verify; v != nil {
		state := t.st.good.Render("match")
		if !v.Match {
			state = t.st.bad.Render("mismatch")
		}
		t.printf("%s  Kernel: %s dev=%s gw=%s", indent, state, v.KernelDevice, v.KernelGateway)
		if v.DefaultGateway != "" {
			t.printf(" default-gw=%s", v.DefaultGateway)
		}
		if v.Error != "" {
			t.printf(" (%s)", v.Error)
		}
		t.printf("\n")
	}
}

func (t *TextOutput) DeviceRoutes(rec *shared.DeviceRoutes) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range rec.Lookup {
		l := &rec.Lookup[i]
		if l.Outcome == "NotFound" {
			t.printf("%s\n", t.st.warning.Render(fmt.Sprintf("No route found for device %s (%s)", rec.Device, l.Destination)))
			continue
		}
		t.printf("Found route for device %s (%s):\n", t.st.prefix.Render(rec.Device), l.Destination)
		t.lookupBody(l, "  ")
	}
	t.printf("%s\n", separator)
}

func (t *TextOutput) Device(rec *shared.DeviceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printf("Device name: %s\n", t.st.prefix.Render(rec.Name))
	t.printf("  Index: %d\n", rec.Index)
	t.printf("  Perm address: %s\n", orNone(rec.PermAddr))
	t.printf("  MTU: %d\n", rec.MTU)
	t.printf("  Flags: 0x%x (%s)\n", rec.RawFlags, rec.Flags)
	t.printf("  Type: %s\n", rec.Type)
	t.printf("  Dev address: %s\n", orNone(rec.HardwareAddr))
	t.printf("  Broadcast address: %s\n", orNone(rec.Broadcast))
	t.printf("  Hard header len: %d\n", rec.HeaderLen)
	t.printf("  Addr len: %d\n", rec.AddrLen)
	if len(rec.Addrs) > 0 {
		t.printf("  Addresses: %s\n", strings.Join(rec.Addrs, ", "))
	}
	t.printf("  %s\n", t.st.header.Render("Device features of "+rec.Name))
	if len(rec.Features) == 0 {
		t.printf("    %s\n", t.st.dim.Render("none reported"))
	}
	for _, f := range rec.Features {
		t.printf("    NETIF_F_%s: %s\n", f.Name, f.Description)
	}
	t.printf("%s\n", separator)
}

func (t *TextOutput) ScanSummary(sum *shared.ScanSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printf("%s\n", t.st.header.Render(fmt.Sprintf("Scan of %s: %d addresses in %s", sum.CIDR, sum.Addresses, sum.Duration)))
	if sum.Truncated {
		t.printf("  %s\n", t.st.warning.Render("stopped at the address limit"))
	}
	outcomes := make([]string, 0, len(sum.Outcomes))
	for o := range sum.Outcomes {
		outcomes = append(outcomes, o)
	}
	slices.Sort(outcomes)
	for _, o := range outcomes {
		t.printf("  %-12s %d\n", t.outcome(o), sum.Outcomes[o])
	}
	for _, p := range sum.Prefixes {
		t.printf("    %-20s %-12s %d\n", orNone(p.Prefix), p.Outcome, p.Count)
	}
	t.printf("%s\n", separator)
}

func (t *TextOutput) Close() error {
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
