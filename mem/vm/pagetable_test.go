package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PageTable", func() {
	var table PageTable

	BeforeEach(func() {
		table = NewPageTable()
	})

	It("should not find pages without entries", func() {
		entry, found := table.Find(5)

		Expect(found).To(BeFalse())
		Expect(entry).To(BeZero())
	})

	It("should insert and replace entries", func() {
		table.Update(3, PageTableEntry{Present: true, Frame: 1, Raw: 0b101})
		table.Update(3, PageTableEntry{Present: false, Frame: 1, Raw: 0b001})

		entry, found := table.Find(3)
		Expect(found).To(BeTrue())
		Expect(entry.Present).To(BeFalse())
		Expect(table.Len()).To(Equal(1))
	})

	It("should list pages in order", func() {
		table.Update(7, PageTableEntry{})
		table.Update(0, PageTableEntry{})
		table.Update(3, PageTableEntry{})

		Expect(table.VPNs()).To(Equal([]uint64{0, 3, 7}))
	})

	It("should remember the insertion order", func() {
		table.Update(3, PageTableEntry{})
		table.Update(1, PageTableEntry{})
		table.Update(7, PageTableEntry{})
		table.Update(3, PageTableEntry{Present: true})
		table.Remove(1)
		table.Update(1, PageTableEntry{})

		Expect(table.InsertionOrder()).To(Equal([]uint64{3, 7, 1}))
		Expect(table.VPNs()).To(Equal([]uint64{1, 3, 7}))
	})

	It("should remove entries", func() {
		table.Update(2, PageTableEntry{})

		table.Remove(2)

		_, found := table.Find(2)
		Expect(found).To(BeFalse())
	})

	It("should panic when removing a missing page", func() {
		Expect(func() { table.Remove(9) }).To(Panic())
	})
})
