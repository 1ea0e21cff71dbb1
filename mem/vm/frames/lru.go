// Package frames manages the assignment of physical frames to virtual pages.
package frames

import (
	"fmt"
	"log"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/sim"
)

// A list of hook positions that the LRUFrameManager triggers.
var (
	// HookPosPageTouched fires when a resident page becomes the most recently
	// used page. The item is the VPN.
	HookPosPageTouched = &sim.HookPos{Name: "PageTouched"}

	// HookPosPageEvicted fires when a page loses its frame. The item is an
	// Eviction.
	HookPosPageEvicted = &sim.HookPos{Name: "PageEvicted"}

	// HookPosPageLoaded fires when a page is assigned a frame. The item is a
	// ResidentPage.
	HookPosPageLoaded = &sim.HookPos{Name: "PageLoaded"}
)

// ResidentPage is a virtual page that currently occupies a frame.
type ResidentPage struct {
	VPN   uint64
	Frame uint64
}

// Eviction describes a page that lost its frame so that another page can be
// loaded.
type Eviction struct {
	VPN    uint64
	Frame  uint64
	Raw    uint64
	ForVPN uint64

	// Remaining lists the pages still resident after the eviction, least
	// recently used first.
	Remaining []ResidentPage
}

// An LRUFrameManager tracks which pages are resident, which frames are free,
// and in which order the resident pages were used. When no frame is free, it
// evicts the least recently used page.
//
// Every frame is either assigned to exactly one resident page or free. Free
// frames are handed out in ascending order. They are not stored one by one:
// an evicted frame goes straight to the faulting page, so the free frames are
// always the never-used frames at or above nextFrame that were not seeded.
type LRUFrameManager struct {
	*sim.HookableBase

	codec      vm.ControlBitCodec
	frameCount uint64
	table      vm.PageTable

	// resident maps VPN to frame. Keys are ordered from the least recently
	// used to the most recently used.
	resident *simplelru.LRU

	// seeded holds the frames at or above nextFrame that were taken by the
	// initial table.
	seeded    map[uint64]bool
	nextFrame uint64
	freeCount uint64

	lastEviction *Eviction
}

// NewLRUFrameManager creates a manager that owns the frames of space and
// updates table when pages are loaded or evicted. Pages already present in
// the table are considered resident, in the order they were inserted into
// the table, so the first inserted page is the first to be evicted.
func NewLRUFrameManager(
	space vm.AddressSpace,
	table vm.PageTable,
) (*LRUFrameManager, error) {
	resident, err := simplelru.NewLRU(int(space.FrameCount()), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vm.ErrInvalidConfiguration, err)
	}

	m := &LRUFrameManager{
		HookableBase: sim.NewHookableBase(),
		codec:        space.ControlBitCodec(),
		frameCount:   space.FrameCount(),
		table:        table,
		resident:     resident,
		seeded:       make(map[uint64]bool),
		freeCount:    space.FrameCount(),
	}

	if err := m.seedFromTable(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *LRUFrameManager) seedFromTable() error {
	owner := make(map[uint64]uint64)

	for _, vpn := range m.table.InsertionOrder() {
		entry, _ := m.table.Find(vpn)
		if !entry.Present {
			continue
		}

		if entry.Frame >= m.frameCount {
			return fmt.Errorf("%w: page %d maps to frame %d, "+
				"but there are only %d frames",
				vm.ErrInvalidConfiguration, vpn, entry.Frame, m.frameCount)
		}

		if other, taken := owner[entry.Frame]; taken {
			return fmt.Errorf("%w: frame %d is assigned to pages %d and %d",
				vm.ErrInvalidConfiguration, entry.Frame, other, vpn)
		}

		owner[entry.Frame] = vpn
		m.seeded[entry.Frame] = true
		m.freeCount--
		m.resident.Add(vpn, entry.Frame)
	}

	return nil
}

// Touch marks a resident page as the most recently used page. Pages that are
// not resident are ignored.
func (m *LRUFrameManager) Touch(vpn uint64) {
	if _, ok := m.resident.Get(vpn); !ok {
		return
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    HookPosPageTouched,
		Item:   vpn,
	})
}

// HandleFault assigns a frame to vpn and marks the page present in the
// table. stale is the entry that the fault reported, if any; its control
// bits survive the reload.
func (m *LRUFrameManager) HandleFault(
	vpn uint64,
	stale *vm.PageTableEntry,
) uint64 {
	if m.resident.Contains(vpn) {
		log.Panicf("page %d faulted while resident", vpn)
	}

	m.lastEviction = nil
	frame := m.acquireFrame(vpn)

	raw := m.priorRaw(vpn, stale)
	raw, err := m.codec.SetFrame(raw, frame)
	if err != nil {
		log.Panic(err)
	}
	raw = m.codec.SetPresent(raw, true)

	m.table.Update(vpn, m.codec.Entry(raw))
	m.resident.Add(vpn, frame)

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    HookPosPageLoaded,
		Item:   ResidentPage{VPN: vpn, Frame: frame},
	})

	return frame
}

func (m *LRUFrameManager) priorRaw(vpn uint64, stale *vm.PageTableEntry) uint64 {
	if stale != nil {
		return stale.Raw
	}

	if entry, found := m.table.Find(vpn); found {
		return entry.Raw
	}

	return 0
}

func (m *LRUFrameManager) acquireFrame(forVPN uint64) uint64 {
	if m.freeCount > 0 {
		return m.takeFreeFrame()
	}

	return m.evict(forVPN)
}

func (m *LRUFrameManager) takeFreeFrame() uint64 {
	for m.seeded[m.nextFrame] {
		delete(m.seeded, m.nextFrame)
		m.nextFrame++
	}

	frame := m.nextFrame
	m.nextFrame++
	m.freeCount--

	return frame
}

func (m *LRUFrameManager) evict(forVPN uint64) uint64 {
	key, value, ok := m.resident.RemoveOldest()
	if !ok {
		log.Panic("no frame is free and no page is resident")
	}

	vpn := key.(uint64)
	frame := value.(uint64)

	entry, found := m.table.Find(vpn)
	if !found {
		log.Panicf("resident page %d has no page table entry", vpn)
	}

	// The stale frame stays in the entry. Readers must check Present first.
	raw := m.codec.SetPresent(entry.Raw, false)
	m.table.Update(vpn, m.codec.Entry(raw))

	m.lastEviction = &Eviction{
		VPN:       vpn,
		Frame:     frame,
		Raw:       raw,
		ForVPN:    forVPN,
		Remaining: m.Resident(),
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    HookPosPageEvicted,
		Item:   *m.lastEviction,
	})

	return frame
}

// LastEviction returns the eviction performed by the most recent
// HandleFault, or nil if that call found a free frame.
func (m *LRUFrameManager) LastEviction() *Eviction {
	return m.lastEviction
}

// IsResident tells if vpn currently occupies a frame.
func (m *LRUFrameManager) IsResident(vpn uint64) bool {
	return m.resident.Contains(vpn)
}

// Resident returns the resident pages from the least recently used to the
// most recently used.
func (m *LRUFrameManager) Resident() []ResidentPage {
	keys := m.resident.Keys()
	pages := make([]ResidentPage, 0, len(keys))

	for _, key := range keys {
		frame, _ := m.resident.Peek(key)
		pages = append(pages, ResidentPage{
			VPN:   key.(uint64),
			Frame: frame.(uint64),
		})
	}

	return pages
}

// FreeFrames returns the unassigned frames in the order they will be used.
// The list holds one element per free frame; use FreeFramesUpTo when the
// frame count is large.
func (m *LRUFrameManager) FreeFrames() []uint64 {
	return m.FreeFramesUpTo(m.freeCount)
}

// FreeFramesUpTo returns at most limit free frames, in the order they will be
// used.
func (m *LRUFrameManager) FreeFramesUpTo(limit uint64) []uint64 {
	if limit > m.freeCount {
		limit = m.freeCount
	}

	frames := make([]uint64, 0, limit)
	for frame := m.nextFrame; uint64(len(frames)) < limit; frame++ {
		if !m.seeded[frame] {
			frames = append(frames, frame)
		}
	}

	return frames
}

// FreeFrameCount returns the number of unassigned frames.
func (m *LRUFrameManager) FreeFrameCount() uint64 {
	return m.freeCount
}

// FrameCount returns the number of frames managed.
func (m *LRUFrameManager) FrameCount() uint64 {
	return m.frameCount
}
