package translator

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pagesim/mem/vm"
)

var _ = Describe("Translator", func() {
	var (
		space      vm.AddressSpace
		codec      vm.ControlBitCodec
		table      vm.PageTable
		translator *Translator
	)

	BeforeEach(func() {
		var err error
		space, err = vm.MakeAddressSpaceBuilder().
			WithPageSizeBytes(4096).
			WithFrameCount(4).
			WithVirtualPageCount(8).
			Build()
		Expect(err).NotTo(HaveOccurred())

		codec = space.ControlBitCodec()
		table = vm.NewPageTable()
		translator = New(space)
	})

	It("should translate a present page", func() {
		table.Update(2, codec.Entry(0b10111))

		result, err := translator.Translate(2*4096+0x123, table)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.VPN).To(Equal(uint64(2)))
		Expect(result.Offset).To(Equal(uint64(0x123)))
		Expect(result.Frame).To(Equal(uint64(3)))
		Expect(result.PhysicalAddress).To(Equal(uint64(3*4096 + 0x123)))
		Expect(result.Raw).To(Equal(uint64(0b10111)))
	})

	It("should render fixed-width binary fields", func() {
		table.Update(1, codec.Entry(0b101))

		result, err := translator.Translate(4096+5, table)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.VirtualAddressBin).To(Equal("001000000000101"))
		Expect(result.VPNBin).To(Equal("001"))
		Expect(result.OffsetBin).To(Equal("000000000101"))
		Expect(result.FrameBin).To(Equal("01"))
		Expect(result.PhysicalAddressBin).To(Equal("01000000000101"))
	})

	It("should round trip the decomposition", func() {
		for vpn := uint64(0); vpn < 8; vpn++ {
			table.Update(vpn, codec.Entry(codec.PresentMask()|vpn%4))
		}

		r := rand.New(rand.NewSource(1))
		for i := 0; i < 1000; i++ {
			vAddr := uint64(r.Int63n(int64(space.MaxVirtualAddress()) + 1))

			result, err := translator.Translate(vAddr, table)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.VPN).To(Equal(vAddr >> 12))
			Expect(result.Frame<<12 | result.Offset).
				To(Equal(result.PhysicalAddress))
			Expect(result.VPN<<12 | result.Offset).To(Equal(vAddr))
		}
	})

	It("should fault when the page has no entry", func() {
		for _, vAddr := range []uint64{5 * 4096, 5*4096 + 1, 6*4096 - 1} {
			_, err := translator.Translate(vAddr, table)

			var fault *vm.PageFault
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.VPN).To(Equal(uint64(5)))
			Expect(fault.Entry).To(BeNil())
		}
	})

	It("should fault with the stale entry when the page is not present", func() {
		table.Update(1, codec.Entry(0b01010))

		_, err := translator.Translate(4096, table)

		var fault *vm.PageFault
		Expect(errors.As(err, &fault)).To(BeTrue())
		Expect(fault.VPN).To(Equal(uint64(1)))
		Expect(fault.Entry).NotTo(BeNil())
		Expect(fault.Entry.Raw).To(Equal(uint64(0b01010)))
	})

	It("should reject addresses beyond the virtual address space", func() {
		_, err := translator.Translate(1<<15, table)

		Expect(err).To(MatchError(vm.ErrAddressOutOfRange))
	})

	It("should accept the highest virtual address", func() {
		table.Update(7, codec.Entry(0b100))

		result, err := translator.Translate(1<<15-1, table)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.PhysicalAddress).To(Equal(uint64(4095)))
	})

	It("should reject entries naming a frame that does not exist", func() {
		table.Update(0, vm.PageTableEntry{Present: true, Frame: 9, Raw: 0b100})

		_, err := translator.Translate(0, table)

		Expect(err).To(MatchError(vm.ErrInvalidConfiguration))
	})

	It("should not modify the table", func() {
		table.Update(3, codec.Entry(0b10110))

		first, err1 := translator.Translate(3*4096+7, table)
		second, err2 := translator.Translate(3*4096+7, table)

		Expect(err1).NotTo(HaveOccurred())
		Expect(err2).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
		entry, _ := table.Find(3)
		Expect(entry.Raw).To(Equal(uint64(0b10110)))
		Expect(table.Len()).To(Equal(1))
	})
})
