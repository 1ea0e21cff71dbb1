package vm

import "fmt"

// Positions of the control bits, relative to the first bit above the frame
// field.
const (
	presentBit = iota
	protectionBit
	modifiedBit
	referencedBit
	cacheDisableBit
)

// ControlBits is the decoded form of a raw page table entry.
type ControlBits struct {
	Frame         uint64
	Present       bool
	Protected     bool // read-only
	Modified      bool
	Referenced    bool
	CacheDisabled bool
}

// A ControlBitCodec reads and writes the fields of a raw page table entry.
// The frame number occupies the low frameBits bits and the control bits sit
// right above it.
type ControlBitCodec struct {
	frameBits uint
}

// NewControlBitCodec creates a codec for frame numbers of frameBits bits.
func NewControlBitCodec(frameBits uint) ControlBitCodec {
	return ControlBitCodec{frameBits: frameBits}
}

// FrameBits returns the width of the frame field.
func (c ControlBitCodec) FrameBits() uint {
	return c.frameBits
}

// FrameMask selects the frame field.
func (c ControlBitCodec) FrameMask() uint64 {
	return 1<<c.frameBits - 1
}

// PresentMask selects the present bit.
func (c ControlBitCodec) PresentMask() uint64 {
	return c.mask(presentBit)
}

func (c ControlBitCodec) mask(bit uint) uint64 {
	return 1 << (c.frameBits + bit)
}

func (c ControlBitCodec) isSet(raw uint64, bit uint) bool {
	return raw&c.mask(bit) != 0
}

// Decode splits a raw entry into its fields.
func (c ControlBitCodec) Decode(raw uint64) ControlBits {
	return ControlBits{
		Frame:         raw & c.FrameMask(),
		Present:       c.isSet(raw, presentBit),
		Protected:     c.isSet(raw, protectionBit),
		Modified:      c.isSet(raw, modifiedBit),
		Referenced:    c.isSet(raw, referencedBit),
		CacheDisabled: c.isSet(raw, cacheDisableBit),
	}
}

// SetPresent returns raw with only the present bit changed.
func (c ControlBitCodec) SetPresent(raw uint64, present bool) uint64 {
	if present {
		return raw | c.PresentMask()
	}

	return raw &^ c.PresentMask()
}

// SetFrame returns raw with the frame field replaced by frame. The control
// bits are kept. A frame that does not fit in the frame field is an error.
func (c ControlBitCodec) SetFrame(raw, frame uint64) (uint64, error) {
	if frame&^c.FrameMask() != 0 {
		return raw, fmt.Errorf("%w: frame %d does not fit in %d bits",
			ErrInvalidConfiguration, frame, c.frameBits)
	}

	return raw&^c.FrameMask() | frame, nil
}

// Entry builds the page table entry that corresponds to a raw word.
func (c ControlBitCodec) Entry(raw uint64) PageTableEntry {
	bits := c.Decode(raw)

	return PageTableEntry{
		Present: bits.Present,
		Frame:   bits.Frame,
		Raw:     raw,
	}
}
