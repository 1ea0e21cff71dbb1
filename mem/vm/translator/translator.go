// Package translator converts virtual addresses into physical addresses by
// consulting a page table.
package translator

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/vm"
)

// A TranslationResult holds every component of a successful translation.
// The *Bin fields are zero-padded binary strings of the widths the address
// space defines.
type TranslationResult struct {
	VirtualAddress  uint64
	PhysicalAddress uint64
	VPN             uint64
	Offset          uint64
	Frame           uint64

	// Raw is the control word of the entry used for the translation.
	Raw uint64

	VirtualAddressBin  string
	PhysicalAddressBin string
	VPNBin             string
	OffsetBin          string
	FrameBin           string
}

// A Translator splits virtual addresses and looks them up in a page table. It
// never modifies the table.
type Translator struct {
	space vm.AddressSpace
}

// New creates a Translator for the given address space.
func New(space vm.AddressSpace) *Translator {
	return &Translator{space: space}
}

// AddressSpace returns the address space the translator works on.
func (t *Translator) AddressSpace() vm.AddressSpace {
	return t.space
}

// VPN returns the virtual page number of an address.
func (t *Translator) VPN(vAddr uint64) uint64 {
	return vAddr >> t.space.OffsetBits()
}

// Translate returns the physical address that vAddr maps to. It returns a
// *vm.PageFault if the page is not present, vm.ErrAddressOutOfRange if
// vAddr is outside of the virtual address space, and
// vm.ErrInvalidConfiguration if the entry refers to a frame that does not
// exist.
func (t *Translator) Translate(
	vAddr uint64,
	table vm.PageTable,
) (TranslationResult, error) {
	if vAddr > t.space.MaxVirtualAddress() {
		return TranslationResult{}, fmt.Errorf(
			"%w: %d (max %d)",
			vm.ErrAddressOutOfRange, vAddr, t.space.MaxVirtualAddress())
	}

	vpn := t.VPN(vAddr)
	offset := vAddr & t.space.OffsetMask()

	entry, found := table.Find(vpn)
	if !found {
		return TranslationResult{}, &vm.PageFault{VPN: vpn}
	}

	if !entry.Present {
		stale := entry
		return TranslationResult{}, &vm.PageFault{VPN: vpn, Entry: &stale}
	}

	if entry.Frame >= t.space.FrameCount() {
		return TranslationResult{}, fmt.Errorf(
			"%w: page %d maps to frame %d, but there are only %d frames",
			vm.ErrInvalidConfiguration, vpn, entry.Frame,
			t.space.FrameCount())
	}

	pAddr := entry.Frame<<t.space.OffsetBits() | offset

	return TranslationResult{
		VirtualAddress:  vAddr,
		PhysicalAddress: pAddr,
		VPN:             vpn,
		Offset:          offset,
		Frame:           entry.Frame,
		Raw:             entry.Raw,

		VirtualAddressBin:  bin(vAddr, t.space.VirtualAddressBits()),
		PhysicalAddressBin: bin(pAddr, t.space.PhysicalAddressBits()),
		VPNBin:             bin(vpn, t.space.VPNBits()),
		OffsetBin:          bin(offset, t.space.OffsetBits()),
		FrameBin:           bin(entry.Frame, t.space.FrameBits()),
	}, nil
}

// bin formats v with exactly width digits. A zero-width field renders as an
// empty string.
func bin(v uint64, width uint) string {
	if width == 0 {
		return ""
	}

	return fmt.Sprintf("%0*b", int(width), v)
}
