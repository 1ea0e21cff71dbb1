// Package mmu resolves virtual addresses, loading pages on demand.
package mmu

import (
	"errors"
	"log"
	"sync"

	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/frames"
	"github.com/sarchlab/pagesim/mem/vm/translator"
	"github.com/sarchlab/pagesim/sim"
)

// A list of hook positions that the MMU triggers.
var (
	// HookPosAccessStart fires before an address is translated.
	HookPosAccessStart = &sim.HookPos{Name: "AccessStart"}

	// HookPosPageFault fires when the first translation attempt faults,
	// before the page is loaded.
	HookPosPageFault = &sim.HookPos{Name: "PageFault"}

	// HookPosAccessEnd fires when an access completes, successfully or not.
	HookPosAccessEnd = &sim.HookPos{Name: "AccessEnd"}
)

// Outcome classifies how an access ended.
type Outcome string

// The possible outcomes of an access.
const (
	OutcomeHit        Outcome = "hit"
	OutcomeFault      Outcome = "fault"
	OutcomeOutOfRange Outcome = "out_of_range"
	OutcomeInvalid    Outcome = "invalid"
)

// AccessInfo is the hook item of the access positions. Fields are filled as
// the access progresses.
type AccessInfo struct {
	ID      string
	VAddr   uint64
	VPN     uint64
	Outcome Outcome

	// Result is valid for hits and faults.
	Result translator.TranslationResult

	// Fault is the fault raised by the first attempt, if any.
	Fault *vm.PageFault

	// Eviction is set if resolving the fault evicted a page.
	Eviction *frames.Eviction

	// Resident is the LRU order when the access ended, least recently used
	// first. It is filled before HookPosAccessEnd fires.
	Resident []ResidentState

	Err error
}

// Stats counts accesses by outcome.
type Stats struct {
	Accesses   uint64 `json:"accesses"`
	Hits       uint64 `json:"hits"`
	Faults     uint64 `json:"faults"`
	Evictions  uint64 `json:"evictions"`
	OutOfRange uint64 `json:"out_of_range"`
	Invalid    uint64 `json:"invalid"`
}

// Comp is the MMU. It owns the page table and the frame manager, and is safe
// to share between goroutines; accesses are resolved one at a time. Hooks run
// while the MMU is locked and must not call back into it.
type Comp struct {
	*sim.HookableBase

	name string
	lock sync.Mutex

	space      vm.AddressSpace
	pageTable  vm.PageTable
	translator *translator.Translator
	frames     *frames.LRUFrameManager

	stats Stats
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// AddressSpace returns the geometry the MMU works with.
func (c *Comp) AddressSpace() vm.AddressSpace {
	return c.space
}

// Resolve translates vAddr. If the page is not resident, it loads the page,
// evicting the least recently used page when no frame is free, and
// translates again. Out-of-range addresses and corrupted entries are
// returned as errors and leave the state untouched.
func (c *Comp) Resolve(vAddr uint64) (translator.TranslationResult, error) {
	info, err := c.ResolveWithInfo(vAddr)
	if err != nil {
		return translator.TranslationResult{}, err
	}

	return info.Result, nil
}

// ResolveWithInfo works like Resolve, but returns the full record of the
// access. The record is captured while the MMU is locked, so concurrent
// accesses never leak into it. On failure, the record is returned together
// with the error.
func (c *Comp) ResolveWithInfo(vAddr uint64) (*AccessInfo, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	info := &AccessInfo{
		ID:    sim.GetIDGenerator().Generate(),
		VAddr: vAddr,
		VPN:   c.translator.VPN(vAddr),
	}
	c.stats.Accesses++
	c.invoke(HookPosAccessStart, info)

	result, err := c.translator.Translate(vAddr, c.pageTable)

	var fault *vm.PageFault
	switch {
	case err == nil:
		c.frames.Touch(result.VPN)
		info.Outcome = OutcomeHit
		c.stats.Hits++
	case errors.As(err, &fault):
		result = c.resolveFault(vAddr, fault, info)
	default:
		c.fail(info, err)
		return info, err
	}

	info.Result = result
	c.finish(info)

	return info, nil
}

func (c *Comp) resolveFault(
	vAddr uint64,
	fault *vm.PageFault,
	info *AccessInfo,
) translator.TranslationResult {
	info.Fault = fault
	info.Outcome = OutcomeFault
	c.stats.Faults++
	c.invoke(HookPosPageFault, info)

	c.frames.HandleFault(fault.VPN, fault.Entry)

	if eviction := c.frames.LastEviction(); eviction != nil {
		info.Eviction = eviction
		c.stats.Evictions++
	}

	result, err := c.translator.Translate(vAddr, c.pageTable)
	if err != nil {
		log.Panicf("translating %#x failed after loading page %d: %v",
			vAddr, fault.VPN, err)
	}

	return result
}

func (c *Comp) fail(info *AccessInfo, err error) {
	info.Err = err

	if errors.Is(err, vm.ErrAddressOutOfRange) {
		info.Outcome = OutcomeOutOfRange
		c.stats.OutOfRange++
	} else {
		info.Outcome = OutcomeInvalid
		c.stats.Invalid++
	}

	c.finish(info)
}

func (c *Comp) finish(info *AccessInfo) {
	info.Resident = c.residentStates()
	c.invoke(HookPosAccessEnd, info)
}

func (c *Comp) residentStates() []ResidentState {
	pages := c.frames.Resident()
	states := make([]ResidentState, 0, len(pages))

	for _, p := range pages {
		states = append(states, ResidentState{VPN: p.VPN, Frame: p.Frame})
	}

	return states
}

func (c *Comp) invoke(pos *sim.HookPos, info *AccessInfo) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   info,
	})
}

// Stats returns the access counters.
func (c *Comp) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}

// EntryState is the decoded state of one page table entry.
type EntryState struct {
	VPN           uint64 `json:"vpn"`
	Raw           uint64 `json:"raw"`
	Frame         uint64 `json:"frame"`
	Present       bool   `json:"present"`
	Protected     bool   `json:"protected"`
	Modified      bool   `json:"modified"`
	Referenced    bool   `json:"referenced"`
	CacheDisabled bool   `json:"cache_disabled"`
}

// ResidentState is a resident page in a Snapshot.
type ResidentState struct {
	VPN   uint64 `json:"vpn"`
	Frame uint64 `json:"frame"`
}

// MaxListedFreeFrames caps the free frames listed in a Snapshot.
const MaxListedFreeFrames = 64

// A Snapshot is a copy of the MMU state at a point in time.
type Snapshot struct {
	Name             string          `json:"name"`
	PageSize         uint64          `json:"page_size"`
	FrameCount       uint64          `json:"frame_count"`
	VirtualPageCount uint64          `json:"virtual_page_count"`
	Entries          []EntryState    `json:"entries"`
	Resident         []ResidentState `json:"resident"`
	FreeFrameCount   uint64          `json:"free_frame_count"`
	FreeFrames       []uint64        `json:"free_frames"`
	Stats            Stats           `json:"stats"`
}

// Snapshot copies the page table, the LRU order (least recently used first)
// and the free frames. Only the first MaxListedFreeFrames free frames are
// listed; FreeFrameCount counts all of them.
func (c *Comp) Snapshot() Snapshot {
	c.lock.Lock()
	defer c.lock.Unlock()

	codec := c.space.ControlBitCodec()
	s := Snapshot{
		Name:             c.name,
		PageSize:         c.space.PageSize(),
		FrameCount:       c.space.FrameCount(),
		VirtualPageCount: c.space.VirtualPageCount(),
		Entries:          []EntryState{},
		Resident:         c.residentStates(),
		FreeFrameCount:   c.frames.FreeFrameCount(),
		FreeFrames:       c.frames.FreeFramesUpTo(MaxListedFreeFrames),
		Stats:            c.stats,
	}

	for _, vpn := range c.pageTable.VPNs() {
		entry, _ := c.pageTable.Find(vpn)
		bits := codec.Decode(entry.Raw)
		s.Entries = append(s.Entries, EntryState{
			VPN:           vpn,
			Raw:           entry.Raw,
			Frame:         entry.Frame,
			Present:       entry.Present,
			Protected:     bits.Protected,
			Modified:      bits.Modified,
			Referenced:    bits.Referenced,
			CacheDisabled: bits.CacheDisabled,
		})
	}

	return s
}
