package vm

import (
	"fmt"
	"math/bits"
)

const maxAddressBits = 63

// An AddressSpace describes the geometry of the simulated memory: the page
// size, the number of physical frames and the number of virtual pages. It is
// immutable once built.
type AddressSpace struct {
	pageSize         uint64
	frameCount       uint64
	virtualPageCount uint64
}

// PageSize returns the page size in bytes.
func (s AddressSpace) PageSize() uint64 { return s.pageSize }

// FrameCount returns the number of physical frames.
func (s AddressSpace) FrameCount() uint64 { return s.frameCount }

// VirtualPageCount returns the number of virtual pages.
func (s AddressSpace) VirtualPageCount() uint64 { return s.virtualPageCount }

// PhysicalMemory returns the physical memory size in bytes.
func (s AddressSpace) PhysicalMemory() uint64 {
	return s.frameCount * s.pageSize
}

// VirtualMemory returns the virtual memory size in bytes.
func (s AddressSpace) VirtualMemory() uint64 {
	return s.virtualPageCount * s.pageSize
}

// OffsetBits returns the number of low-order bits addressing a byte within a
// page.
func (s AddressSpace) OffsetBits() uint {
	return log2(s.pageSize)
}

// FrameBits returns the number of bits of a frame number.
func (s AddressSpace) FrameBits() uint {
	return log2(s.frameCount)
}

// VPNBits returns the number of bits of a virtual page number.
func (s AddressSpace) VPNBits() uint {
	return log2(s.virtualPageCount)
}

// PhysicalAddressBits returns the width of a physical address.
func (s AddressSpace) PhysicalAddressBits() uint {
	return s.FrameBits() + s.OffsetBits()
}

// VirtualAddressBits returns the width of a virtual address.
func (s AddressSpace) VirtualAddressBits() uint {
	return s.VPNBits() + s.OffsetBits()
}

// MaxVirtualAddress returns the highest valid virtual address.
func (s AddressSpace) MaxVirtualAddress() uint64 {
	return 1<<s.VirtualAddressBits() - 1
}

// OffsetMask returns the mask selecting the offset bits of an address.
func (s AddressSpace) OffsetMask() uint64 {
	return s.pageSize - 1
}

// ControlBitCodec returns the codec matching the frame width of the space.
func (s AddressSpace) ControlBitCodec() ControlBitCodec {
	return NewControlBitCodec(s.FrameBits())
}

func (s AddressSpace) String() string {
	return fmt.Sprintf(
		"%d-bit virtual -> %d-bit physical, page %d B, "+
			"%d virtual pages, %d frames",
		s.VirtualAddressBits(), s.PhysicalAddressBits(), s.pageSize,
		s.virtualPageCount, s.frameCount)
}

func log2(n uint64) uint {
	return uint(bits.TrailingZeros64(n))
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

type sizeParam struct {
	set   bool
	bytes uint64
	text  string
}

func (p sizeParam) resolve() (uint64, error) {
	if p.text == "" {
		return p.bytes, nil
	}

	return ParseSize(p.text)
}

// An AddressSpaceBuilder builds AddressSpaces. The geometry is given either
// as frame and virtual page counts or as physical and virtual memory sizes.
type AddressSpaceBuilder struct {
	pageSize         sizeParam
	frameCount       *uint64
	virtualPageCount *uint64
	physicalMemory   sizeParam
	virtualMemory    sizeParam
}

// MakeAddressSpaceBuilder creates a new builder.
func MakeAddressSpaceBuilder() AddressSpaceBuilder {
	return AddressSpaceBuilder{}
}

// WithPageSize sets the page size from a size string such as "4KiB".
func (b AddressSpaceBuilder) WithPageSize(size string) AddressSpaceBuilder {
	b.pageSize = sizeParam{set: true, text: size}
	return b
}

// WithPageSizeBytes sets the page size in bytes.
func (b AddressSpaceBuilder) WithPageSizeBytes(n uint64) AddressSpaceBuilder {
	b.pageSize = sizeParam{set: true, bytes: n}
	return b
}

// WithFrameCount sets the number of physical frames.
func (b AddressSpaceBuilder) WithFrameCount(n uint64) AddressSpaceBuilder {
	b.frameCount = &n
	return b
}

// WithVirtualPageCount sets the number of virtual pages.
func (b AddressSpaceBuilder) WithVirtualPageCount(n uint64) AddressSpaceBuilder {
	b.virtualPageCount = &n
	return b
}

// WithPhysicalMemory sets the total physical memory from a size string.
func (b AddressSpaceBuilder) WithPhysicalMemory(size string) AddressSpaceBuilder {
	b.physicalMemory = sizeParam{set: true, text: size}
	return b
}

// WithPhysicalMemoryBytes sets the total physical memory in bytes.
func (b AddressSpaceBuilder) WithPhysicalMemoryBytes(n uint64) AddressSpaceBuilder {
	b.physicalMemory = sizeParam{set: true, bytes: n}
	return b
}

// WithVirtualMemory sets the total virtual memory from a size string.
func (b AddressSpaceBuilder) WithVirtualMemory(size string) AddressSpaceBuilder {
	b.virtualMemory = sizeParam{set: true, text: size}
	return b
}

// WithVirtualMemoryBytes sets the total virtual memory in bytes.
func (b AddressSpaceBuilder) WithVirtualMemoryBytes(n uint64) AddressSpaceBuilder {
	b.virtualMemory = sizeParam{set: true, bytes: n}
	return b
}

// Build validates the parameters and returns the AddressSpace.
func (b AddressSpaceBuilder) Build() (AddressSpace, error) {
	if !b.pageSize.set {
		return AddressSpace{}, fmt.Errorf(
			"%w: page size must be provided", ErrInvalidConfiguration)
	}

	pageSize, err := b.pageSize.resolve()
	if err != nil {
		return AddressSpace{}, err
	}

	if err := mustBePowerOfTwo("page size", pageSize); err != nil {
		return AddressSpace{}, err
	}

	s := AddressSpace{pageSize: pageSize}

	counts, err := b.countsFromCountPair()
	if err != nil {
		return AddressSpace{}, err
	}

	sizes, err := b.countsFromMemoryPair(pageSize)
	if err != nil {
		return AddressSpace{}, err
	}

	switch {
	case counts == nil && sizes == nil:
		return AddressSpace{}, fmt.Errorf(
			"%w: provide either frame count and virtual page count, "+
				"or physical memory and virtual memory",
			ErrInvalidConfiguration)
	case counts != nil && sizes != nil && *counts != *sizes:
		return AddressSpace{}, fmt.Errorf(
			"%w: counts (%d frames, %d pages) contradict memory sizes "+
				"(%d frames, %d pages)",
			ErrInvalidConfiguration,
			counts[0], counts[1], sizes[0], sizes[1])
	case counts != nil:
		s.frameCount, s.virtualPageCount = counts[0], counts[1]
	default:
		s.frameCount, s.virtualPageCount = sizes[0], sizes[1]
	}

	if err := s.validate(); err != nil {
		return AddressSpace{}, err
	}

	return s, nil
}

func (b AddressSpaceBuilder) countsFromCountPair() (*[2]uint64, error) {
	switch {
	case b.frameCount == nil && b.virtualPageCount == nil:
		return nil, nil
	case b.frameCount == nil || b.virtualPageCount == nil:
		return nil, fmt.Errorf(
			"%w: frame count and virtual page count must be provided together",
			ErrInvalidConfiguration)
	}

	return &[2]uint64{*b.frameCount, *b.virtualPageCount}, nil
}

func (b AddressSpaceBuilder) countsFromMemoryPair(
	pageSize uint64,
) (*[2]uint64, error) {
	switch {
	case !b.physicalMemory.set && !b.virtualMemory.set:
		return nil, nil
	case !b.physicalMemory.set || !b.virtualMemory.set:
		return nil, fmt.Errorf(
			"%w: physical memory and virtual memory must be provided together",
			ErrInvalidConfiguration)
	}

	physical, err := b.physicalMemory.resolve()
	if err != nil {
		return nil, err
	}

	virtual, err := b.virtualMemory.resolve()
	if err != nil {
		return nil, err
	}

	if physical%pageSize != 0 || virtual%pageSize != 0 {
		return nil, fmt.Errorf(
			"%w: memory sizes (%d B physical, %d B virtual) must be "+
				"multiples of the page size (%d B)",
			ErrInvalidConfiguration, physical, virtual, pageSize)
	}

	return &[2]uint64{physical / pageSize, virtual / pageSize}, nil
}

func (s AddressSpace) validate() error {
	if err := mustBePowerOfTwo("frame count", s.frameCount); err != nil {
		return err
	}

	err := mustBePowerOfTwo("virtual page count", s.virtualPageCount)
	if err != nil {
		return err
	}

	if s.VirtualAddressBits() > maxAddressBits {
		return fmt.Errorf("%w: virtual addresses of %d bits are not supported",
			ErrInvalidConfiguration, s.VirtualAddressBits())
	}

	if s.PhysicalAddressBits() > maxAddressBits {
		return fmt.Errorf("%w: physical addresses of %d bits are not supported",
			ErrInvalidConfiguration, s.PhysicalAddressBits())
	}

	return nil
}

func mustBePowerOfTwo(field string, value uint64) error {
	if value == 0 {
		return fmt.Errorf("%w: %s must be positive (got %d)",
			ErrInvalidConfiguration, field, value)
	}

	if !isPowerOfTwo(value) {
		return fmt.Errorf("%w: %s must be a power of two (got %d)",
			ErrInvalidConfiguration, field, value)
	}

	return nil
}
