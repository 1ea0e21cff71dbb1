package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned when the address-space parameters
	// are missing, contradictory, or not powers of two, and when a page table
	// entry refers to a frame that does not exist.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidSize is returned when a size string cannot be parsed.
	ErrInvalidSize = errors.New("invalid size")

	// ErrAddressOutOfRange is returned when a virtual address is outside of
	// the virtual address space.
	ErrAddressOutOfRange = errors.New("address out of range")
)

// A PageFault reports that a virtual page has no resident frame. It is not a
// failure; the MMU resolves it by loading the page. Entry holds a copy of the
// stale entry, or nil if the table has never seen the page.
type PageFault struct {
	VPN   uint64
	Entry *PageTableEntry
}

func (f *PageFault) Error() string {
	if f.Entry == nil {
		return fmt.Sprintf("page fault on virtual page %d (no entry)", f.VPN)
	}

	return fmt.Sprintf("page fault on virtual page %d (raw entry %#b)",
		f.VPN, f.Entry.Raw)
}
