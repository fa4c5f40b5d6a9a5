package tlb

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/tlb/internal"
	"github.com/sarchlab/osvm/sim"
	"go.uber.org/mock/gomock"
)

type addrRange struct {
	lo, hi uint64
}

func (r addrRange) Contains(vAddr uint64) bool {
	return vAddr >= r.lo && vAddr < r.hi
}

var _ = ginkgo.Describe("TLB", func() {
	var (
		mockCtrl *gomock.Controller
		set      *MockSet
		tlb      *Comp
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		set = NewMockSet(mockCtrl)

		tlb = MakeBuilder().WithNumEntries(4).Build("TLB")
		tlb.set = set
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should overwrite an existing translation in place", func() {
		set.EXPECT().
			Lookup(uint64(0x1000)).
			Return(2, internal.Block{VPage: 0x1000, Valid: true}, true)
		set.EXPECT().Update(2, internal.Block{
			VPage:    0x1000,
			PAddr:    0x5000,
			Valid:    true,
			Writable: true,
		})

		slot := tlb.Install(0x1234, 0x5000, true)

		Expect(slot).To(Equal(2))
	})

	ginkgo.It("should prefer an invalid slot", func() {
		set.EXPECT().Lookup(uint64(0x1000)).Return(0, internal.Block{}, false)
		set.EXPECT().FindInvalid().Return(3, true)
		set.EXPECT().Update(3, gomock.Any())

		slot := tlb.Install(0x1000, 0x5000, false)

		Expect(slot).To(Equal(3))
	})

	ginkgo.It("should evict when every slot is valid", func() {
		set.EXPECT().Lookup(uint64(0x1000)).Return(0, internal.Block{}, false)
		set.EXPECT().FindInvalid().Return(0, false)
		set.EXPECT().Evict().Return(1)
		set.EXPECT().Update(1, gomock.Any())

		slot := tlb.Install(0x1000, 0x5000, false)

		Expect(slot).To(Equal(1))
	})

	ginkgo.It("should not update a page it does not hold", func() {
		set.EXPECT().Lookup(uint64(0x1000)).Return(0, internal.Block{}, false)

		Expect(tlb.Update(0x1000, true)).To(BeFalse())
	})

	ginkgo.It("should reset the set on invalidate all", func() {
		set.EXPECT().Reset()

		tlb.InvalidateAll()
	})
})

var _ = ginkgo.Describe("TLB with a real set", func() {
	var (
		tlb    *Comp
		events []sim.HookCtx
	)

	ginkgo.BeforeEach(func() {
		events = nil
		tlb = MakeBuilder().WithNumEntries(4).Build("TLB")
		tlb.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			events = append(events, ctx)
		}))
	})

	install := func(n int) {
		for i := 0; i < n; i++ {
			tlb.Install(uint64(i+1)*0x1000, uint64(i+1)*0x10000, false)
		}
	}

	resolvable := func(vAddr uint64) bool {
		_, _, found := tlb.Probe(vAddr)
		return found
	}

	ginkgo.It("should fill slots in order", func() {
		install(4)

		for i := 0; i < 4; i++ {
			Expect(tlb.Entry(i).VAddr).To(Equal(uint64(i+1) * 0x1000))
		}
		Expect(tlb.ValidCount()).To(Equal(4))
	})

	ginkgo.It("should replace slots round-robin once full", func() {
		install(4)

		Expect(tlb.Install(0x10000000, 0x1000, false)).To(Equal(0))
		Expect(resolvable(0x1000)).To(BeFalse())
		Expect(resolvable(0x2000)).To(BeTrue())

		Expect(tlb.Install(0x20000000, 0x2000, false)).To(Equal(1))
		Expect(resolvable(0x2000)).To(BeFalse())

		tlb.Install(0x30000000, 0x3000, false)
		tlb.Install(0x40000000, 0x4000, false)
		Expect(tlb.Install(0x50000000, 0x5000, false)).To(Equal(0))
		Expect(resolvable(0x10000000)).To(BeFalse())
	})

	ginkgo.It("should report replacements through hooks", func() {
		install(5)

		Expect(events).To(HaveLen(5))
		for _, e := range events[:4] {
			Expect(e.Pos).To(BeIdenticalTo(vm.HookPosTLBInstall))
			Expect(e.Item.(vm.TLBEvent).Replaced).To(BeFalse())
		}
		Expect(events[4].Item.(vm.TLBEvent).Replaced).To(BeTrue())
	})

	ginkgo.It("should restart the victim pointer after invalidating", func() {
		install(4)
		tlb.Install(0x10000000, 0x1000, false)

		tlb.InvalidateAll()
		install(4)

		Expect(tlb.Install(0x10000000, 0x1000, false)).To(Equal(0))
		Expect(events[len(events)-6].Pos).
			To(BeIdenticalTo(vm.HookPosTLBInvalidate))
	})

	ginkgo.It("should use a freed slot before replacing", func() {
		install(4)

		tlb.InvalidatePAddr(0x30000)

		Expect(resolvable(0x3000)).To(BeFalse())
		Expect(tlb.Install(0x9000, 0x90000, false)).To(Equal(2))
	})

	ginkgo.It("should update the writable bit in place", func() {
		install(1)

		Expect(tlb.Update(0x1800, true)).To(BeTrue())

		entry, slot, found := tlb.Probe(0x1000)
		Expect(found).To(BeTrue())
		Expect(slot).To(Equal(0))
		Expect(entry.Writable).To(BeTrue())
	})

	ginkgo.It("should only strip a slot that still holds the region", func() {
		text := addrRange{lo: 0x1000, hi: 0x3000}
		slot := tlb.Install(0x1000, 0x10000, true)

		Expect(tlb.SetReadOnly(text, slot)).To(BeTrue())
		Expect(tlb.Entry(slot).Writable).To(BeFalse())

		tlb.InvalidateAll()
		tlb.Install(0x8000, 0x80000, true)

		Expect(tlb.SetReadOnly(text, slot)).To(BeFalse())
		Expect(tlb.Entry(slot).Writable).To(BeTrue())
	})

	ginkgo.It("should write-protect a region", func() {
		for i := 0; i < 4; i++ {
			tlb.Install(uint64(i+1)*0x1000, uint64(i+1)*0x10000, true)
		}

		n := tlb.ProtectRegion(addrRange{lo: 0x2000, hi: 0x4000})

		Expect(n).To(Equal(2))
		Expect(tlb.Entry(0).Writable).To(BeTrue())
		Expect(tlb.Entry(1).Writable).To(BeFalse())
		Expect(tlb.Entry(2).Writable).To(BeFalse())
	})
})
