package tlb

import (
	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/tlb/internal"
	"github.com/sarchlab/osvm/sim"
)

// A Builder can build TLBs
type Builder struct {
	numEntries   int
	log2PageSize uint64
}

// MakeBuilder returns a Builder
func MakeBuilder() Builder {
	return Builder{
		numEntries:   64,
		log2PageSize: vm.DefaultLog2PageSize,
	}
}

// WithNumEntries sets the number of slots in the TLB.
func (b Builder) WithNumEntries(n int) Builder {
	b.numEntries = n
	return b
}

// WithLog2PageSize sets the page size as a power of 2
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// Build creates a new TLB
func (b Builder) Build(name string) *Comp {
	if b.numEntries <= 0 {
		panic("a TLB needs at least one entry")
	}

	tlb := &Comp{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		log2PageSize: b.log2PageSize,
	}
	tlb.set = internal.NewSet(b.numEntries)

	return tlb
}
