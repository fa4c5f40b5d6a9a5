// Package vm provides the vocabulary shared by the virtual memory components:
// process identifiers, the address-space layout, fault types, and errors.
package vm

import "fmt"

// PID stands for Process ID.
type PID uint32

// KernelPID owns every kernel allocation in the page table.
const KernelPID PID = 0

// PIDMax is the largest number of processes that can exist at a time.
const PIDMax = 128

// Address-space layout of the MIPS machine the kernel runs on.
const (
	// UserTop is the first address above user space (USERTOP).
	UserTop uint64 = 0x80000000

	// UserStack is the initial user stack pointer (USERSTACK).
	UserStack uint64 = UserTop

	// KernelBase is the start of the direct-mapped kernel segment (KSEG0).
	KernelBase uint64 = 0x80000000

	// StackPages is the number of pages reserved for the user stack.
	StackPages = 12
)

// DefaultLog2PageSize gives 4 KiB pages.
const DefaultLog2PageSize = 12

// PAddrToKVAddr returns the kernel virtual address that maps paddr.
func PAddrToKVAddr(paddr uint64) uint64 {
	return paddr + KernelBase
}

// KVAddrToPAddr is the inverse of PAddrToKVAddr.
func KVAddrToPAddr(kvaddr uint64) uint64 {
	return kvaddr - KernelBase
}

// PageAlign rounds addr down to the start of its page.
func PageAlign(addr, log2PageSize uint64) uint64 {
	return (addr >> log2PageSize) << log2PageSize
}

// PageOffset returns the offset of addr within its page.
func PageOffset(addr, log2PageSize uint64) uint64 {
	return addr & ((1 << log2PageSize) - 1)
}

// PageRoundUp rounds n up to a multiple of the page size.
func PageRoundUp(n, log2PageSize uint64) uint64 {
	pageSize := uint64(1) << log2PageSize
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// FaultType is the code the hardware reports with a memory exception.
type FaultType int

// The fault codes the handler understands.
const (
	FaultRead FaultType = iota
	FaultWrite
	FaultReadOnly
)

func (t FaultType) String() string {
	switch t {
	case FaultRead:
		return "read"
	case FaultWrite:
		return "write"
	case FaultReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("FaultType(%d)", int(t))
	}
}
