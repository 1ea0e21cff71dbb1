package mmu

import (
	"io"

	"github.com/sarchlab/pagesim/mem/vm/frames"
	"github.com/sarchlab/pagesim/sim"
)

// LogHook prints one line for every access, fault and eviction.
type LogHook struct {
	sim.LogHookBase
}

// NewLogHook creates a LogHook that writes to w.
func NewLogHook(w io.Writer) *LogHook {
	return &LogHook{
		LogHookBase: sim.NewLogHookBase(w, "[mmu] "),
	}
}

// Func writes the log line.
func (h *LogHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosPageFault:
		info := ctx.Item.(*AccessInfo)
		h.Printf("%s: page fault on page %d", info.ID, info.VPN)
	case frames.HookPosPageEvicted:
		e := ctx.Item.(frames.Eviction)
		h.Printf("evicted page %d from frame %d to load page %d",
			e.VPN, e.Frame, e.ForVPN)
	case frames.HookPosPageLoaded:
		p := ctx.Item.(frames.ResidentPage)
		h.Printf("loaded page %d into frame %d", p.VPN, p.Frame)
	case HookPosAccessEnd:
		h.logAccessEnd(ctx.Item.(*AccessInfo))
	}
}

func (h *LogHook) logAccessEnd(info *AccessInfo) {
	switch info.Outcome {
	case OutcomeHit, OutcomeFault:
		h.Printf("%s: %#x -> %#x (%s, page %d, frame %d)",
			info.ID, info.VAddr, info.Result.PhysicalAddress, info.Outcome,
			info.Result.VPN, info.Result.Frame)
	default:
		h.Printf("%s: %#x failed: %v", info.ID, info.VAddr, info.Err)
	}
}
