package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/pagesim/loader"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
)

type reporter struct {
	out   io.Writer
	space vm.AddressSpace
	codec vm.ControlBitCodec
}

func newReporter(out io.Writer, space vm.AddressSpace) *reporter {
	return &reporter{
		out:   out,
		space: space,
		codec: space.ControlBitCodec(),
	}
}

func (r *reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *reporter) header(s mmu.Snapshot) {
	r.printf("Address space: %s\n", r.space)
	r.printf("Frames: %d total, %d free %s\n",
		s.FrameCount, s.FreeFrameCount, freeFrameList(s))
	r.printf("LRU order (least recent first): %s\n", lruOrder(s.Resident))
	r.printf("%s\n", strings.Repeat("=", 50))
}

func (r *reporter) lineError(err *loader.LineError) {
	r.printf("\n[error] skipping %q: %v\n", err.Text, err.Err)
}

func (r *reporter) access(
	step int,
	addr loader.AddressLine,
	info *mmu.AccessInfo,
) {
	r.printf("\n=== step %d: %s %s (dec %d) ===\n",
		step, addr.Text, addr.Format, addr.Value)

	switch info.Outcome {
	case mmu.OutcomeHit:
		r.printf("hit on page %d\n", info.VPN)
	case mmu.OutcomeFault:
		r.fault(info)
	default:
		r.printf("[error] %v\n", info.Err)
		return
	}

	r.translation(info)
	r.printf("entry:\n%s", r.controlBits(&info.Result.Raw))
	r.printf("LRU order (least recent first): %s\n", lruOrder(info.Resident))
}

func (r *reporter) fault(info *mmu.AccessInfo) {
	r.printf("page fault on page %d\n", info.Fault.VPN)
	r.printf("entry that caused the fault:\n")

	if info.Fault.Entry == nil {
		r.printf("%s", r.controlBits(nil))
	} else {
		r.printf("%s", r.controlBits(&info.Fault.Entry.Raw))
	}

	if e := info.Eviction; e != nil {
		r.printf("memory full: evicted page %d from frame %d\n",
			e.VPN, e.Frame)
	}

	r.printf("loaded page %d into frame %d\n",
		info.Fault.VPN, info.Result.Frame)
}

func (r *reporter) translation(info *mmu.AccessInfo) {
	res := info.Result

	r.printf("virtual address  : %s (dec %d, hex %#x)\n",
		res.VirtualAddressBin, res.VirtualAddress, res.VirtualAddress)
	r.printf("  page           : %s (dec %d)\n", res.VPNBin, res.VPN)
	r.printf("  offset         : %s (dec %d)\n", res.OffsetBin, res.Offset)
	r.printf("physical address : %s (dec %d, hex %#x)\n",
		res.PhysicalAddressBin, res.PhysicalAddress, res.PhysicalAddress)
	r.printf("  frame          : %s (dec %d)\n", res.FrameBin, res.Frame)
	r.printf("  offset         : %s (dec %d)\n", res.OffsetBin, res.Offset)
}

func (r *reporter) controlBits(raw *uint64) string {
	if raw == nil {
		return "  no entry for this page\n"
	}

	bits := r.codec.Decode(*raw)
	b := new(strings.Builder)

	fmt.Fprintf(b, "  raw            : %b (dec %d)\n", *raw, *raw)
	fmt.Fprintf(b, "  present        : %s\n",
		flag(bits.Present, "present", "absent"))
	fmt.Fprintf(b, "  protection     : %s\n",
		flag(bits.Protected, "read-only", "read/write"))
	fmt.Fprintf(b, "  modified       : %s\n", flag(bits.Modified, "yes", "no"))
	fmt.Fprintf(b, "  referenced     : %s\n", flag(bits.Referenced, "yes", "no"))
	fmt.Fprintf(b, "  cache          : %s\n",
		flag(bits.CacheDisabled, "disabled", "enabled"))

	return b.String()
}

func (r *reporter) stats(stats mmu.Stats) {
	r.printf("\n%s\n", strings.Repeat("=", 50))
	r.printf("accesses %d, hits %d, faults %d, evictions %d, "+
		"out of range %d, invalid %d\n",
		stats.Accesses, stats.Hits, stats.Faults, stats.Evictions,
		stats.OutOfRange, stats.Invalid)
}

func flag(set bool, yes, no string) string {
	if set {
		return "1 (" + yes + ")"
	}

	return "0 (" + no + ")"
}

func lruOrder(resident []mmu.ResidentState) string {
	pages := make([]string, 0, len(resident))
	for _, p := range resident {
		pages = append(pages, fmt.Sprintf("%d", p.VPN))
	}

	return "[" + strings.Join(pages, " ") + "]"
}

func freeFrameList(s mmu.Snapshot) string {
	frames := make([]string, 0, len(s.FreeFrames)+1)
	for _, f := range s.FreeFrames {
		frames = append(frames, fmt.Sprintf("%d", f))
	}

	if uint64(len(s.FreeFrames)) < s.FreeFrameCount {
		frames = append(frames, "...")
	}

	return "[" + strings.Join(frames, " ") + "]"
}
