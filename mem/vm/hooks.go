package vm

import "github.com/sarchlab/osvm/sim"

// Hook positions invoked by the virtual memory components.
var (
	// HookPosFault triggers when the fault handler is entered. The item is a
	// FaultEvent.
	HookPosFault = &sim.HookPos{Name: "Fault"}

	// HookPosTLBReload triggers when a fault is resolved by a translation that
	// was already in the page table. The item is a PageEvent.
	HookPosTLBReload = &sim.HookPos{Name: "TLBReload"}

	// HookPosTLBInstall triggers when a translation is written into the TLB.
	// The item is a TLBEvent.
	HookPosTLBInstall = &sim.HookPos{Name: "TLBInstall"}

	// HookPosTLBInvalidate triggers when the whole TLB is flushed.
	HookPosTLBInvalidate = &sim.HookPos{Name: "TLBInvalidate"}

	// HookPosPageZeroFill triggers when a fresh page is zero-filled. The item
	// is a PageEvent.
	HookPosPageZeroFill = &sim.HookPos{Name: "PageZeroFill"}

	// HookPosPageDemandLoad triggers when a page is populated from the
	// backing executable. The item is a PageEvent.
	HookPosPageDemandLoad = &sim.HookPos{Name: "PageDemandLoad"}

	// HookPosPageEvict triggers when the page table reclaims a frame from its
	// owner. The item is a PageEvent.
	HookPosPageEvict = &sim.HookPos{Name: "PageEvict"}

	// HookPosSwapOut triggers when a page is written to the swap file. The
	// item is a PageEvent.
	HookPosSwapOut = &sim.HookPos{Name: "SwapOut"}

	// HookPosSwapIn triggers when a page is read back from the swap file. The
	// item is a PageEvent.
	HookPosSwapIn = &sim.HookPos{Name: "SwapIn"}

	// HookPosProcessKill triggers when a fault terminates a process. The item
	// is a FaultEvent and the detail is the error.
	HookPosProcessKill = &sim.HookPos{Name: "ProcessKill"}
)

// FaultEvent describes a memory exception.
type FaultEvent struct {
	PID   PID
	Type  FaultType
	VAddr uint64
}

// PageEvent describes something that happened to one page.
type PageEvent struct {
	PID   PID
	VAddr uint64
	PAddr uint64
}

// TLBEvent describes a TLB write.
type TLBEvent struct {
	Slot     int
	VAddr    uint64
	PAddr    uint64
	Writable bool
	Replaced bool
}
