package pagetable

import (
	"bytes"
	"fmt"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/osvm/mem/physmem"
	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/coremap"
	"go.uber.org/mock/gomock"
)

// fakeSwapper keeps evicted pages in a map, like a swap file that never
// reorders slots.
type fakeSwapper struct {
	memory   *physmem.Storage
	capacity int
	pages    map[string][]byte
}

func newFakeSwapper(memory *physmem.Storage, capacity int) *fakeSwapper {
	return &fakeSwapper{
		memory:   memory,
		capacity: capacity,
		pages:    make(map[string][]byte),
	}
}

func (s *fakeSwapper) key(pid vm.PID, vAddr uint64) string {
	return fmt.Sprintf("%d:%x", pid, vAddr)
}

func (s *fakeSwapper) Evict(pid vm.PID, vAddr, pAddr uint64) error {
	if len(s.pages) >= s.capacity {
		return vm.ErrSwapFull
	}

	data, err := s.memory.ReadPage(pAddr)
	if err != nil {
		return err
	}

	s.pages[s.key(pid, vAddr)] = data

	return nil
}

func (s *fakeSwapper) ReadSwapped(
	pid vm.PID,
	vAddr uint64,
	buf []byte,
) (bool, error) {
	data, ok := s.pages[s.key(pid, vAddr)]
	if !ok {
		return false, nil
	}

	copy(buf, data)

	return true, nil
}

func pattern(vAddr uint64) []byte {
	return bytes.Repeat([]byte{byte(vAddr >> 12)}, 4096)
}

var _ = ginkgo.Describe("Table", func() {
	var (
		mockCtrl  *gomock.Controller
		swapper   *MockSwapper
		shootdown *MockShootdown
		arena     *coremap.Arena
		cm        *coremap.Coremap
		memory    *physmem.Storage
		pt        *Table
		ptFrames  int
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		swapper = NewMockSwapper(mockCtrl)
		shootdown = NewMockShootdown(mockCtrl)

		arena = coremap.NewArena(16*4096, 12)
		cm = coremap.Bootstrap("Coremap", arena, vm.NewLogicalClock())
		memory = physmem.NewStorage(16*4096, 12)
		pt, ptFrames = Init("PageTable", arena, cm, memory)
		cm.SwitchOver()

		pt.SetSwapper(swapper)
		pt.SetShootdown(shootdown)
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	fill := func(pid vm.PID, base uint64, n int) {
		for i := 0; i < n; i++ {
			vAddr := base + uint64(i)*4096
			pAddr, err := pt.AllocatePage(pid, vAddr, true, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(memory.WritePage(pAddr, pattern(vAddr))).To(Succeed())
		}
	}

	ginkgo.Context("init", func() {
		ginkgo.It("should reserve frames for its own image", func() {
			Expect(ptFrames).To(Equal(1))
			Expect(arena.Stolen()).To(Equal(2))
		})

		ginkgo.It("should record the reserved frames as kernel pages", func() {
			Expect(pt.CountKind(KindKernel)).To(Equal(2))
			Expect(pt.CountKind(KindUser)).To(Equal(0))

			kernel := pt.Entries(vm.KernelPID)
			Expect(kernel).To(HaveLen(2))
			Expect(kernel[1].PAddr).To(Equal(uint64(0x1000)))
			Expect(kernel[1].VAddr).To(Equal(vm.PAddrToKVAddr(0x1000)))
		})
	})

	ginkgo.Context("translation", func() {
		ginkgo.It("should map a page and translate addresses within it", func() {
			pAddr, err := pt.AllocatePage(1, 0x1234, true, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(pAddr).To(Equal(uint64(0x2000)))

			pa, ok := pt.Translate(1, 0x1234)
			Expect(ok).To(BeTrue())
			Expect(pa).To(Equal(uint64(0x2234)))

			entry, ok := pt.Lookup(1, 0x1fff)
			Expect(ok).To(BeTrue())
			Expect(entry.VAddr).To(Equal(uint64(0x1000)))
			Expect(entry.Kind).To(Equal(KindUser))
		})

		ginkgo.It("should not translate for another process", func() {
			pt.AllocatePage(1, 0x1000, true, false)

			_, ok := pt.Translate(2, 0x1000)

			Expect(ok).To(BeFalse())
		})

		ginkgo.It("should refuse a second mapping of the same page", func() {
			pt.AllocatePage(1, 0x1000, true, false)

			Expect(func() {
				pt.AllocatePage(1, 0x1800, true, false)
			}).To(Panic())
		})
	})

	ginkgo.Context("flags", func() {
		ginkgo.It("should track writable and dirty bits", func() {
			pt.AllocatePage(1, 0x1000, true, false)
			pt.AllocatePage(1, 0x2000, false, false)

			Expect(pt.IsWritable(1, 0x1010)).To(BeTrue())
			Expect(pt.IsWritable(1, 0x2010)).To(BeFalse())
			Expect(pt.IsWritable(1, 0x3000)).To(BeFalse())

			Expect(pt.MarkDirty(1, 0x1010)).To(BeTrue())
			Expect(pt.MarkDirty(1, 0x3000)).To(BeFalse())

			entry, _ := pt.Lookup(1, 0x1000)
			Expect(entry.Dirty).To(BeTrue())
		})

		ginkgo.It("should write-protect a range", func() {
			fill(1, 0x1000, 3)

			n := pt.ProtectRange(1, 0x1000, 0x3000)

			Expect(n).To(Equal(2))
			Expect(pt.IsWritable(1, 0x1000)).To(BeFalse())
			Expect(pt.IsWritable(1, 0x2000)).To(BeFalse())
			Expect(pt.IsWritable(1, 0x3000)).To(BeTrue())
		})
	})

	ginkgo.Context("eviction", func() {
		ginkgo.It("should evict the oldest user page when memory is full", func() {
			for i := 0; i < 14; i++ {
				pid := vm.PID(1 + i%2)
				_, err := pt.AllocatePage(pid, uint64(0x10000+i*0x1000),
					true, false)
				Expect(err).NotTo(HaveOccurred())
			}

			swapper.EXPECT().
				Evict(vm.PID(1), uint64(0x10000), uint64(0x2000)).
				Return(nil)
			shootdown.EXPECT().InvalidatePAddr(uint64(0x2000))

			pAddr, err := pt.AllocatePage(3, 0x5000, true, true)

			Expect(err).NotTo(HaveOccurred())
			Expect(pAddr).To(Equal(uint64(0x2000)))
			_, ok := pt.Translate(1, 0x10000)
			Expect(ok).To(BeFalse())
			Expect(pt.CountKind(KindUser)).To(Equal(14))
			Expect(cm.InUseCount()).To(Equal(16))
		})

		ginkgo.It("should report out of memory when swap is full", func() {
			fill(1, 0x10000, 14)

			swapper.EXPECT().
				Evict(vm.PID(1), uint64(0x10000), uint64(0x2000)).
				Return(vm.ErrSwapFull)

			_, err := pt.AllocatePage(2, 0x5000, true, true)

			Expect(err).To(MatchError(vm.ErrOutOfMemory))
			_, ok := pt.Translate(1, 0x10000)
			Expect(ok).To(BeTrue())
			Expect(pt.ResidentCount(2)).To(Equal(0))
		})

		ginkgo.It("should report out of memory without a swapper", func() {
			pt.SetSwapper(nil)
			fill(1, 0x10000, 14)

			_, err := pt.AllocatePage(2, 0x5000, true, true)

			Expect(err).To(MatchError(vm.ErrOutOfMemory))
		})

		ginkgo.It("should never evict kernel pages", func() {
			pt.AllocKernelPages(14)

			_, err := pt.AllocatePage(1, 0x5000, true, true)

			Expect(err).To(MatchError(vm.ErrOutOfMemory))
		})
	})

	ginkgo.Context("kernel pages", func() {
		ginkgo.It("should allocate and free contiguous runs", func() {
			vAddr, err := pt.AllocKernelPages(3)

			Expect(err).NotTo(HaveOccurred())
			Expect(vAddr).To(Equal(vm.PAddrToKVAddr(0x2000)))
			Expect(pt.CountKind(KindKernel)).To(Equal(5))

			shootdown.EXPECT().InvalidatePAddr(gomock.Any()).Times(3)
			pt.FreeKernelRun(vAddr)

			Expect(pt.CountKind(KindKernel)).To(Equal(2))
			Expect(cm.InUseCount()).To(Equal(2))
		})

		ginkgo.It("should panic when freeing from the middle of a run", func() {
			vAddr, _ := pt.AllocKernelPages(3)

			Expect(func() { pt.FreeKernelRun(vAddr + 0x1000) }).To(Panic())
		})

		ginkgo.It("should fail when no run is long enough", func() {
			_, err := pt.AllocKernelPages(15)

			Expect(err).To(MatchError(vm.ErrOutOfMemory))
		})
	})

	ginkgo.Context("free all", func() {
		ginkgo.It("should release every frame of a process", func() {
			fill(1, 0x10000, 3)
			fill(2, 0x10000, 2)
			shootdown.EXPECT().InvalidatePAddr(gomock.Any()).Times(3)

			pt.FreeAll(1)

			Expect(pt.ResidentCount(1)).To(Equal(0))
			Expect(pt.ResidentCount(2)).To(Equal(2))
			Expect(cm.InUseCount()).To(Equal(4))
		})
	})

	ginkgo.Context("copy address space", func() {
		ginkgo.It("should copy contents and flags into new frames", func() {
			fill(1, 0x10000, 2)
			pt.AllocatePage(1, 0x20000, false, true)

			err := pt.CopyAddressSpace(1, 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(pt.ResidentCount(2)).To(Equal(3))
			for _, vAddr := range []uint64{0x10000, 0x11000} {
				src, _ := pt.Translate(1, vAddr)
				dst, _ := pt.Translate(2, vAddr)
				Expect(dst).NotTo(Equal(src))
				data, _ := memory.ReadPage(dst)
				Expect(data).To(Equal(pattern(vAddr)))
			}
			entry, _ := pt.Lookup(2, 0x20000)
			Expect(entry.Writable).To(BeFalse())
			Expect(entry.Dirty).To(BeTrue())
		})

		ginkgo.It("should read back source pages evicted during the copy", func() {
			fake := newFakeSwapper(memory, 64)
			pt.SetSwapper(fake)
			shootdown.EXPECT().InvalidatePAddr(gomock.Any()).AnyTimes()

			pt.AllocatePage(9, 0x1000, true, false) // slot 2, oldest
			fill(1, 0x10000, 13)                    // slots 3..15
			pt.FreeAll(9)
			fill(1, 0x400000, 1) // slot 2, youngest

			err := pt.CopyAddressSpace(1, 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(pt.ResidentCount(2)).To(Equal(14))
			Expect(pt.ResidentCount(1)).To(Equal(0))
			Expect(fake.pages).To(HaveLen(14))
			for _, e := range pt.Entries(2) {
				data, _ := memory.ReadPage(e.PAddr)
				Expect(data).To(Equal(pattern(e.VAddr)),
					fmt.Sprintf("page %#x", e.VAddr))
			}
		})

		ginkgo.It("should roll back when memory runs out", func() {
			fake := newFakeSwapper(memory, 2)
			pt.SetSwapper(fake)
			shootdown.EXPECT().InvalidatePAddr(gomock.Any()).AnyTimes()
			fill(1, 0x10000, 10)

			err := pt.CopyAddressSpace(1, 2)

			Expect(err).To(MatchError(vm.ErrOutOfMemory))
			Expect(pt.ResidentCount(2)).To(Equal(0))
			Expect(pt.ResidentCount(1)).To(Equal(8))
		})
	})
})
