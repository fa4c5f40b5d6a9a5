package mmu

import (
	"fmt"
	"os"

	"github.com/sarchlab/osvm/mem/physmem"
	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/coremap"
	"github.com/sarchlab/osvm/mem/vm/loader"
	"github.com/sarchlab/osvm/mem/vm/pagetable"
	"github.com/sarchlab/osvm/mem/vm/swap"
	"github.com/sarchlab/osvm/mem/vm/tlb"
	"github.com/sarchlab/osvm/sim"
)

// A Builder can build MMU component
type Builder struct {
	ramSize      uint64
	log2PageSize uint64
	numTLBEntry  int
	swapFile     string
	numSwapPages int
	clock        vm.Clock
	loader       loader.Loader
	terminator   ProcessTerminator
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		ramSize:      512 * 1024,
		log2PageSize: vm.DefaultLog2PageSize,
		numTLBEntry:  64,
		numSwapPages: 2048,
	}
}

// WithRAMSize sets the number of bytes of physical memory.
func (b Builder) WithRAMSize(n uint64) Builder {
	b.ramSize = n
	return b
}

// WithLog2PageSize sets the page size that the mmu support.
func (b Builder) WithLog2PageSize(log2PageSize uint64) Builder {
	b.log2PageSize = log2PageSize
	return b
}

// WithNumTLBEntries sets the number of slots in the TLB.
func (b Builder) WithNumTLBEntries(n int) Builder {
	b.numTLBEntry = n
	return b
}

// WithSwapFile sets the path of the swap file. If not set, a temporary file
// is used and removed at shutdown.
func (b Builder) WithSwapFile(path string) Builder {
	b.swapFile = path
	return b
}

// WithNumSwapPages sets the capacity of the swap file in pages.
func (b Builder) WithNumSwapPages(n int) Builder {
	b.numSwapPages = n
	return b
}

// WithClock sets the clock that orders frame acquisitions.
func (b Builder) WithClock(c vm.Clock) Builder {
	b.clock = c
	return b
}

// WithLoader sets how segment pages are read from executables. The default
// reads the executable directly.
func (b Builder) WithLoader(l loader.Loader) Builder {
	b.loader = l
	return b
}

// WithTerminator sets who is told to kill a process when a fault cannot be
// resolved.
func (b Builder) WithTerminator(t ProcessTerminator) Builder {
	b.terminator = t
	return b
}

// Build boots the virtual memory system. Memory is handed out in two
// phases: the coremap and the page table steal their images from the boot
// arena, and then the coremap takes over every remaining frame.
func (b Builder) Build(name string) (*Comp, error) {
	if b.ramSize>>b.log2PageSize == 0 {
		return nil, fmt.Errorf("%d bytes of RAM hold no page", b.ramSize)
	}

	mmu := &Comp{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		log2PageSize: b.log2PageSize,
		terminator:   b.terminator,
	}

	mmu.memory = physmem.NewStorage(b.ramSize, b.log2PageSize)

	arena := coremap.NewArena(b.ramSize, b.log2PageSize)
	mmu.coremap = coremap.Bootstrap(name+".Coremap", arena, b.clock)
	mmu.pageTable, _ = pagetable.Init(
		name+".PageTable", arena, mmu.coremap, mmu.memory)
	mmu.coremap.SwitchOver()

	err := b.createSwap(name, mmu)
	if err != nil {
		return nil, err
	}

	mmu.tlb = tlb.MakeBuilder().
		WithNumEntries(b.numTLBEntry).
		WithLog2PageSize(b.log2PageSize).
		Build(name + ".TLB")

	mmu.loader = b.loader
	if mmu.loader == nil {
		mmu.loader = loader.NewFileLoader(mmu.memory)
	}

	mmu.pageTable.SetSwapper(mmu.swap)
	mmu.pageTable.SetShootdown(mmu.tlb)
	mmu.swap.SetPageAllocator(mmu.pageTable)

	return mmu, nil
}

func (b Builder) createSwap(name string, mmu *Comp) error {
	path := b.swapFile
	if path == "" {
		f, err := os.CreateTemp("", "osvm-swap-*")
		if err != nil {
			return fmt.Errorf("creating swap file: %w", err)
		}

		f.Close()
		path = f.Name()
		mmu.tempSwapFile = path
	}

	s, err := swap.Open(name+".Swap", path,
		b.numSwapPages, b.log2PageSize, mmu.memory)
	if err != nil {
		return err
	}

	mmu.swap = s

	return nil
}
