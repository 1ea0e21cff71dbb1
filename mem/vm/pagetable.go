package vm

import (
	"log"
	"sort"
)

// A PageTableEntry maintains how a virtual page maps to a physical frame.
// Present and Frame always agree with the corresponding fields of Raw; build
// entries with ControlBitCodec.Entry.
type PageTableEntry struct {
	Present bool
	Frame   uint64
	Raw     uint64
}

// A PageTable maps virtual page numbers to entries. Pages without an entry
// are treated as not present.
type PageTable interface {
	// Find returns the entry of a virtual page. The bool return value
	// indicates if the page has an entry.
	Find(vpn uint64) (PageTableEntry, bool)

	// Update inserts or replaces the entry of a virtual page.
	Update(vpn uint64, entry PageTableEntry)

	// Remove deletes the entry of a virtual page.
	Remove(vpn uint64)

	// VPNs returns the pages that have an entry, in ascending order.
	VPNs() []uint64

	// InsertionOrder returns the pages that have an entry, in the order their
	// entries were first inserted. Replacing an entry keeps its position.
	InsertionOrder() []uint64

	// Len returns the number of entries.
	Len() int
}

// NewPageTable creates a new, empty PageTable.
func NewPageTable() PageTable {
	return &pageTableImpl{
		entries: make(map[uint64]PageTableEntry),
	}
}

// pageTableImpl is the default implementation of a PageTable. It is not safe
// for concurrent use; the MMU that owns it serializes access.
type pageTableImpl struct {
	entries map[uint64]PageTableEntry
	order   []uint64
}

func (t *pageTableImpl) Find(vpn uint64) (PageTableEntry, bool) {
	entry, found := t.entries[vpn]
	return entry, found
}

func (t *pageTableImpl) Update(vpn uint64, entry PageTableEntry) {
	if _, found := t.entries[vpn]; !found {
		t.order = append(t.order, vpn)
	}

	t.entries[vpn] = entry
}

func (t *pageTableImpl) Remove(vpn uint64) {
	t.pageMustExist(vpn)
	delete(t.entries, vpn)

	for i, v := range t.order {
		if v == vpn {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *pageTableImpl) VPNs() []uint64 {
	vpns := make([]uint64, 0, len(t.entries))
	for vpn := range t.entries {
		vpns = append(vpns, vpn)
	}

	sort.Slice(vpns, func(i, j int) bool { return vpns[i] < vpns[j] })

	return vpns
}

func (t *pageTableImpl) InsertionOrder() []uint64 {
	vpns := make([]uint64, len(t.order))
	copy(vpns, t.order)

	return vpns
}

func (t *pageTableImpl) Len() int {
	return len(t.entries)
}

func (t *pageTableImpl) pageMustExist(vpn uint64) {
	_, found := t.entries[vpn]
	if !found {
		log.Panicf("page %d does not exist", vpn)
	}
}
