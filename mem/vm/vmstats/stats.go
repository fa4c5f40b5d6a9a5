// Package vmstats counts, traces, and records the events of the virtual
// memory system. Every type in the package is a sim.Hook that can be
// attached to an mmu.
package vmstats

import (
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/sim"
)

// Counter names one of the statistics.
type Counter int

// The statistics kept for a run.
const (
	TLBFaults Counter = iota
	TLBFaultsWithFree
	TLBFaultsWithReplace
	TLBInvalidations
	TLBReloads
	PageFaultsZeroed
	PageFaultsDisk
	ELFFileReads
	SwapFileReads
	SwapFileWrites
	NumCounters
)

var counterNames = [NumCounters]string{
	"TLB Faults",
	"TLB Faults with Free",
	"TLB Faults with Replace",
	"TLB Invalidations",
	"TLB Reloads",
	"Page Faults (Zeroed)",
	"Page Faults (Disk)",
	"Page Faults from ELF",
	"Page Faults from Swapfile",
	"Swapfile Writes",
}

func (c Counter) String() string {
	if c < 0 || c >= NumCounters {
		return fmt.Sprintf("Counter(%d)", int(c))
	}

	return counterNames[c]
}

// Stats counts VM events.
type Stats struct {
	lock   sync.Mutex
	counts [NumCounters]uint64
}

// NewStats creates a Stats with every counter at zero.
func NewStats() *Stats {
	return &Stats{}
}

// Func updates the counters from a hook invocation.
func (s *Stats) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case vm.HookPosTLBInstall:
		e := ctx.Item.(vm.TLBEvent)
		s.Inc(TLBFaults)

		if e.Replaced {
			s.Inc(TLBFaultsWithReplace)
		} else {
			s.Inc(TLBFaultsWithFree)
		}
	case vm.HookPosTLBInvalidate:
		s.Inc(TLBInvalidations)
	case vm.HookPosTLBReload:
		s.Inc(TLBReloads)
	case vm.HookPosPageZeroFill:
		s.Inc(PageFaultsZeroed)
	case vm.HookPosPageDemandLoad:
		s.Inc(PageFaultsDisk)
		s.Inc(ELFFileReads)
	case vm.HookPosSwapIn:
		s.Inc(PageFaultsDisk)
		s.Inc(SwapFileReads)
	case vm.HookPosSwapOut:
		s.Inc(SwapFileWrites)
	}
}

// Inc adds one to a counter.
func (s *Stats) Inc(c Counter) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.counts[c]++
}

// Get returns the value of a counter.
func (s *Stats) Get(c Counter) uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.counts[c]
}

// Reset sets every counter to zero.
func (s *Stats) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.counts = [NumCounters]uint64{}
}

// Snapshot returns the counters keyed by name.
func (s *Stats) Snapshot() map[string]uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	m := make(map[string]uint64, NumCounters)
	for c := Counter(0); c < NumCounters; c++ {
		m[c.String()] = s.counts[c]
	}

	return m
}

// Check returns the identities between the counters that do not hold.
func (s *Stats) Check() []error {
	s.lock.Lock()
	c := s.counts
	s.lock.Unlock()

	var errs []error

	if c[TLBFaults] != c[TLBFaultsWithFree]+c[TLBFaultsWithReplace] {
		errs = append(errs, fmt.Errorf("%s (%d) != %s (%d) + %s (%d)",
			TLBFaults, c[TLBFaults],
			TLBFaultsWithFree, c[TLBFaultsWithFree],
			TLBFaultsWithReplace, c[TLBFaultsWithReplace]))
	}

	sum := c[TLBReloads] + c[PageFaultsDisk] + c[PageFaultsZeroed]
	if c[TLBFaults] != sum {
		errs = append(errs, fmt.Errorf("%s (%d) != %s + %s + %s (%d)",
			TLBFaults, c[TLBFaults],
			TLBReloads, PageFaultsDisk, PageFaultsZeroed, sum))
	}

	if c[PageFaultsDisk] != c[ELFFileReads]+c[SwapFileReads] {
		errs = append(errs, fmt.Errorf("%s (%d) != %s (%d) + %s (%d)",
			PageFaultsDisk, c[PageFaultsDisk],
			ELFFileReads, c[ELFFileReads],
			SwapFileReads, c[SwapFileReads]))
	}

	return errs
}

// Report prints every counter, followed by a warning for each identity that
// does not hold.
func (s *Stats) Report(w io.Writer) {
	fmt.Fprintln(w, "VM stats:")

	for c := Counter(0); c < NumCounters; c++ {
		fmt.Fprintf(w, "%-28s %d\n", c.String()+":", s.Get(c))
	}

	for _, err := range s.Check() {
		fmt.Fprintf(w, "WARNING: %v\n", err)
	}
}
