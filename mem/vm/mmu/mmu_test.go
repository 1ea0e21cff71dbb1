package mmu

import (
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pagesim/loader"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/frames"
	"github.com/sarchlab/pagesim/sim"
)

func buildSpace(frameCount, virtualPageCount uint64) vm.AddressSpace {
	space, err := vm.MakeAddressSpaceBuilder().
		WithPageSizeBytes(4096).
		WithFrameCount(frameCount).
		WithVirtualPageCount(virtualPageCount).
		Build()
	Expect(err).NotTo(HaveOccurred())

	return space
}

func residentVPNs(c *Comp) []uint64 {
	var vpns []uint64
	for _, r := range c.Snapshot().Resident {
		vpns = append(vpns, r.VPN)
	}

	return vpns
}

var _ = Describe("MMU", func() {
	var (
		mockCtrl *gomock.Controller
		space    vm.AddressSpace
		codec    vm.ControlBitCodec
		table    vm.PageTable
		mmu      *Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		space = buildSpace(4, 8)
		codec = space.ControlBitCodec()
		table = vm.NewPageTable()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func() {
		var err error
		mmu, err = MakeBuilder().
			WithAddressSpace(space).
			WithPageTable(table).
			Build("MMU")
		Expect(err).NotTo(HaveOccurred())
	}

	It("should require an address space", func() {
		_, err := MakeBuilder().Build("MMU")

		Expect(err).To(MatchError(vm.ErrInvalidConfiguration))
	})

	It("should reject tables with frames shared by two pages", func() {
		table.Update(0, codec.Entry(0b100))
		table.Update(1, codec.Entry(0b100))

		_, err := MakeBuilder().
			WithAddressSpace(space).
			WithPageTable(table).
			Build("MMU")

		Expect(err).To(MatchError(vm.ErrInvalidConfiguration))
	})

	It("should create an empty table when none is given", func() {
		mmu, err := MakeBuilder().WithAddressSpace(space).Build("MMU")

		Expect(err).NotTo(HaveOccurred())
		Expect(mmu.Snapshot().Entries).To(BeEmpty())
		Expect(mmu.Snapshot().FreeFrames).To(Equal([]uint64{0, 1, 2, 3}))
		Expect(mmu.Snapshot().FreeFrameCount).To(Equal(uint64(4)))
	})

	It("should translate a present page", func() {
		table.Update(0, codec.Entry(0b100))
		build()

		result, err := mmu.Resolve(0x10)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.PhysicalAddress).To(Equal(uint64(0x10)))
		Expect(mmu.Stats()).To(Equal(Stats{Accesses: 1, Hits: 1}))
	})

	It("should load a missing page and retry", func() {
		table.Update(0, codec.Entry(0b100))
		build()

		result, err := mmu.Resolve(4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.VPN).To(Equal(uint64(1)))
		Expect(result.Offset).To(Equal(uint64(0)))
		Expect(result.Frame).To(Equal(uint64(1)))
		Expect(result.PhysicalAddress).To(Equal(uint64(4096)))

		entry, found := table.Find(1)
		Expect(found).To(BeTrue())
		Expect(entry.Present).To(BeTrue())
		Expect(mmu.Stats()).To(Equal(Stats{Accesses: 1, Faults: 1}))
		Expect(residentVPNs(mmu)).To(Equal([]uint64{0, 1}))
	})

	It("should evict the first page of the table file first", func() {
		space = buildSpace(2, 8)
		content := "page number format = dec\nentry format = bin\n3 10\n1 11\n"
		var err error
		table, err = loader.ParsePageTable(
			strings.NewReader(content), space.ControlBitCodec())
		Expect(err).NotTo(HaveOccurred())
		build()

		info, err := mmu.ResolveWithInfo(5 * 4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(info.Eviction.VPN).To(Equal(uint64(3)))
		Expect(info.Result.Frame).To(Equal(uint64(0)))
		Expect(residentVPNs(mmu)).To(Equal([]uint64{1, 5}))
	})

	It("should return the record of the access", func() {
		space = buildSpace(2, 8)
		codec = space.ControlBitCodec()
		table.Update(0, codec.Entry(0b10))
		build()

		info, err := mmu.ResolveWithInfo(4096 + 7)

		Expect(err).NotTo(HaveOccurred())
		Expect(info.Outcome).To(Equal(OutcomeFault))
		Expect(info.VPN).To(Equal(uint64(1)))
		Expect(info.Result.PhysicalAddress).To(Equal(uint64(4096 + 7)))
		Expect(info.Resident).To(Equal([]ResidentState{
			{VPN: 0, Frame: 0},
			{VPN: 1, Frame: 1},
		}))

		info, err = mmu.ResolveWithInfo(1 << 20)

		Expect(err).To(MatchError(vm.ErrAddressOutOfRange))
		Expect(info.Outcome).To(Equal(OutcomeOutOfRange))
		Expect(info.Err).To(MatchError(vm.ErrAddressOutOfRange))
		Expect(info.Resident).To(HaveLen(2))
	})

	It("should keep each record to its own access", func() {
		space = buildSpace(4, 8)
		build()

		var wg sync.WaitGroup
		infos := make([]*AccessInfo, 8)
		for i := range infos {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				infos[i], _ = mmu.ResolveWithInfo(uint64(i) * 4096)
			}(i)
		}
		wg.Wait()

		for i, info := range infos {
			Expect(info.VAddr).To(Equal(uint64(i) * 4096))
			Expect(info.Result.VPN).To(Equal(uint64(i)))
			Expect(info.Resident[len(info.Resident)-1].VPN).
				To(Equal(uint64(i)))
		}
	})

	It("should count free frames without listing all of them", func() {
		space = buildSpace(1<<20, 8)
		build()

		_, err := mmu.Resolve(0)
		s := mmu.Snapshot()

		Expect(err).NotTo(HaveOccurred())
		Expect(s.FreeFrameCount).To(Equal(uint64(1<<20 - 1)))
		Expect(s.FreeFrames).To(HaveLen(MaxListedFreeFrames))
		Expect(s.FreeFrames[0]).To(Equal(uint64(1)))
	})

	It("should hit after a page has been loaded", func() {
		build()

		first, err1 := mmu.Resolve(3*4096 + 9)
		second, err2 := mmu.Resolve(3*4096 + 9)

		Expect(err1).NotTo(HaveOccurred())
		Expect(err2).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
		Expect(mmu.Stats().Hits).To(Equal(uint64(1)))
		Expect(mmu.Stats().Faults).To(Equal(uint64(1)))
	})

	It("should evict the least recently used page", func() {
		space = buildSpace(2, 8)
		codec = space.ControlBitCodec()
		build()

		_, _ = mmu.Resolve(0 * 4096)
		_, _ = mmu.Resolve(1 * 4096)
		_, _ = mmu.Resolve(0 * 4096)
		result, err := mmu.Resolve(2 * 4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Frame).To(Equal(uint64(1)))
		Expect(residentVPNs(mmu)).To(Equal([]uint64{0, 2}))

		evicted, _ := table.Find(1)
		Expect(evicted.Present).To(BeFalse())
		Expect(mmu.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should fault again on an evicted page and keep its control bits", func() {
		space = buildSpace(1, 8)
		codec = space.ControlBitCodec()
		table.Update(0, codec.Entry(0b1101))
		build()

		_, err := mmu.Resolve(4096)
		Expect(err).NotTo(HaveOccurred())

		result, err := mmu.Resolve(5)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Frame).To(Equal(uint64(0)))
		Expect(result.Raw).To(Equal(uint64(0b1101)))
		Expect(mmu.Stats().Evictions).To(Equal(uint64(2)))
	})

	It("should return out of range errors without changing state", func() {
		build()

		_, err := mmu.Resolve(1 << 15)

		Expect(err).To(MatchError(vm.ErrAddressOutOfRange))
		Expect(table.Len()).To(Equal(0))
		Expect(mmu.Snapshot().FreeFrames).To(HaveLen(4))
		Expect(mmu.Stats().OutOfRange).To(Equal(uint64(1)))
	})

	It("should return corrupted entries as configuration errors", func() {
		build()
		table.Update(2, vm.PageTableEntry{Present: true, Frame: 7, Raw: 0b111})

		_, err := mmu.Resolve(2 * 4096)

		Expect(err).To(MatchError(vm.ErrInvalidConfiguration))
		Expect(mmu.Stats().Invalid).To(Equal(uint64(1)))
	})

	It("should snapshot decoded entries", func() {
		table.Update(1, codec.Entry(0b1111101))
		table.Update(4, codec.Entry(0b0001010))
		build()

		s := mmu.Snapshot()

		Expect(s.Entries).To(Equal([]EntryState{
			{
				VPN: 1, Raw: 0b1111101, Frame: 1, Present: true,
				Protected: true, Modified: true, Referenced: true,
				CacheDisabled: true,
			},
			{VPN: 4, Raw: 0b0001010, Frame: 2, Protected: true},
		}))
		Expect(s.Resident).To(Equal([]ResidentState{{VPN: 1, Frame: 1}}))
		Expect(s.FreeFrames).To(Equal([]uint64{0, 2, 3}))
	})

	Context("hooks", func() {
		var hook *MockHook

		BeforeEach(func() {
			hook = NewMockHook(mockCtrl)
		})

		It("should report a hit", func() {
			table.Update(0, codec.Entry(0b100))
			build()
			mmu.AcceptHook(hook)

			var positions []*sim.HookPos
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					positions = append(positions, ctx.Pos)
				}).
				AnyTimes()

			_, err := mmu.Resolve(0)

			Expect(err).NotTo(HaveOccurred())
			Expect(positions).To(Equal([]*sim.HookPos{
				HookPosAccessStart,
				frames.HookPosPageTouched,
				HookPosAccessEnd,
			}))
		})

		It("should report a fault with its eviction", func() {
			space = buildSpace(1, 8)
			codec = space.ControlBitCodec()
			table.Update(0, codec.Entry(0b1))
			build()
			mmu.AcceptHook(hook)

			var positions []*sim.HookPos
			var info *AccessInfo
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					positions = append(positions, ctx.Pos)
					if ctx.Pos == HookPosAccessEnd {
						info = ctx.Item.(*AccessInfo)
					}
				}).
				AnyTimes()

			_, err := mmu.Resolve(4096)

			Expect(err).NotTo(HaveOccurred())
			Expect(positions).To(Equal([]*sim.HookPos{
				HookPosAccessStart,
				HookPosPageFault,
				frames.HookPosPageEvicted,
				frames.HookPosPageLoaded,
				HookPosAccessEnd,
			}))
			Expect(info.Outcome).To(Equal(OutcomeFault))
			Expect(info.Fault.VPN).To(Equal(uint64(1)))
			Expect(info.Fault.Entry).To(BeNil())
			Expect(info.Eviction.VPN).To(Equal(uint64(0)))
			Expect(info.Result.PhysicalAddress).To(Equal(uint64(0)))
		})

		It("should report failures", func() {
			build()

			hook.EXPECT().Func(gomock.Any()).Times(1)
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					Expect(ctx.Pos).To(Equal(HookPosAccessEnd))
					info := ctx.Item.(*AccessInfo)
					Expect(info.Outcome).To(Equal(OutcomeOutOfRange))
					Expect(info.Err).To(MatchError(vm.ErrAddressOutOfRange))
				})

			mmu.AcceptHook(hook)

			_, err := mmu.Resolve(1 << 20)
			Expect(err).To(HaveOccurred())
		})
	})
})
