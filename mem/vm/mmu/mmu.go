// Package mmu ties the virtual memory components together and resolves
// memory exceptions.
package mmu

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/sarchlab/osvm/mem/physmem"
	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/addrspace"
	"github.com/sarchlab/osvm/mem/vm/coremap"
	"github.com/sarchlab/osvm/mem/vm/loader"
	"github.com/sarchlab/osvm/mem/vm/pagetable"
	"github.com/sarchlab/osvm/mem/vm/swap"
	"github.com/sarchlab/osvm/mem/vm/tlb"
	"github.com/sarchlab/osvm/sim"
)

// A ProcessTerminator kills processes whose faults cannot be resolved.
type ProcessTerminator interface {
	Terminate(pid vm.PID, err error)
}

// Comp is the virtual memory system of one machine.
//
// Every operation that may allocate, evict, or change the active address
// space holds the fault lock. It is the outermost lock: the page table lock
// nests inside it, and the coremap and swap locks nest inside the page
// table lock. The TLB lock is a leaf.
type Comp struct {
	*sim.HookableBase

	faultLock sync.Mutex

	name         string
	log2PageSize uint64
	memory       *physmem.Storage
	coremap      *coremap.Coremap
	pageTable    *pagetable.Table
	swap         *swap.Store
	tlb          *tlb.Comp
	loader       loader.Loader
	terminator   ProcessTerminator
	active       *addrspace.AddressSpace
	tempSwapFile string
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// Log2PageSize returns the page size as a power of 2.
func (c *Comp) Log2PageSize() uint64 {
	return c.log2PageSize
}

// Memory returns the physical memory.
func (c *Comp) Memory() *physmem.Storage {
	return c.memory
}

// Coremap returns the frame allocator.
func (c *Comp) Coremap() *coremap.Coremap {
	return c.coremap
}

// PageTable returns the page table.
func (c *Comp) PageTable() *pagetable.Table {
	return c.pageTable
}

// Swap returns the swap store.
func (c *Comp) Swap() *swap.Store {
	return c.swap
}

// TLB returns the TLB.
func (c *Comp) TLB() *tlb.Comp {
	return c.tlb
}

// AcceptHook registers a hook with the MMU and every component it owns.
func (c *Comp) AcceptHook(hook sim.Hook) {
	c.HookableBase.AcceptHook(hook)
	c.pageTable.AcceptHook(hook)
	c.swap.AcceptHook(hook)
	c.tlb.AcceptHook(hook)
}

func (c *Comp) pageSize() uint64 {
	return 1 << c.log2PageSize
}

// Fault resolves a memory exception raised by the active address space.
//
// Faults that the process caused, an access outside every segment and the
// stack or a write to memory that may not be written, terminate the process
// and return vm.ErrSegmentationFault. Running out of memory and swap also
// terminates the process. An unknown fault type, or a fault above user
// space with no address space, is a kernel bug and panics.
func (c *Comp) Fault(faultType vm.FaultType, vAddr uint64) error {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	return c.fault(faultType, vAddr)
}

func (c *Comp) fault(faultType vm.FaultType, vAddr uint64) error {
	switch faultType {
	case vm.FaultRead, vm.FaultWrite, vm.FaultReadOnly:
	default:
		panic(vm.InvalidFaultError{Type: faultType, VAddr: vAddr})
	}

	as := c.active
	if as == nil {
		if vAddr >= vm.UserTop {
			panic(vm.InvariantViolation{
				What: fmt.Sprintf("%s fault at kernel address %#x",
					faultType, vAddr),
			})
		}

		return fmt.Errorf("%s fault at %#x with no address space: %w",
			faultType, vAddr, vm.ErrSegmentationFault)
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    vm.HookPosFault,
		Item:   vm.FaultEvent{PID: as.PID, Type: faultType, VAddr: vAddr},
	})

	vPage := vm.PageAlign(vAddr, c.log2PageSize)

	var err error
	if faultType == vm.FaultReadOnly {
		err = c.handleReadOnly(as, vPage)
	} else {
		err = c.handleMiss(as, faultType, vPage)
	}

	if err != nil {
		c.kill(as, faultType, vAddr, err)
	}

	return err
}

func (c *Comp) handleReadOnly(as *addrspace.AddressSpace, vPage uint64) error {
	if !c.pageTable.IsWritable(as.PID, vPage) {
		return fmt.Errorf("write to read-only page %#x: %w",
			vPage, vm.ErrSegmentationFault)
	}

	c.pageTable.MarkDirty(as.PID, vPage)

	if !c.tlb.Update(vPage, true) {
		c.install(as, vPage)
	}

	return nil
}

func (c *Comp) handleMiss(
	as *addrspace.AddressSpace,
	faultType vm.FaultType,
	vPage uint64,
) error {
	entry, found := c.pageTable.Lookup(as.PID, vPage)
	if found {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    vm.HookPosTLBReload,
			Item: vm.PageEvent{
				PID:   as.PID,
				VAddr: vPage,
				PAddr: entry.PAddr,
			},
		})

		c.resolve(as, faultType, vPage)

		return nil
	}

	seg := as.SegmentFor(vPage)
	if seg == nil && !as.InStack(vPage) {
		return fmt.Errorf("%s at %#x outside every segment and the stack: %w",
			faultType, vPage, vm.ErrSegmentationFault)
	}

	writable := seg == nil || seg.Writable

	_, found, err := c.swap.Load(as.PID, vPage, writable)
	if err != nil {
		return err
	}

	switch {
	case found:
		c.resolve(as, faultType, vPage)
	case seg != nil:
		err = c.demandLoad(as, faultType, seg, vPage)
	default:
		err = c.zeroFill(as, faultType, vPage)
	}

	return err
}

// resolve installs the translation of a resident page. A write fault to a
// writable page marks it dirty right away, as the write is about to happen.
func (c *Comp) resolve(
	as *addrspace.AddressSpace,
	faultType vm.FaultType,
	vPage uint64,
) int {
	if faultType == vm.FaultWrite && c.pageTable.IsWritable(as.PID, vPage) {
		c.pageTable.MarkDirty(as.PID, vPage)
	}

	return c.install(as, vPage)
}

func (c *Comp) install(as *addrspace.AddressSpace, vPage uint64) int {
	entry, found := c.pageTable.Lookup(as.PID, vPage)
	if !found {
		log.Panicf("page %#x of pid %d vanished while faulting",
			vPage, as.PID)
	}

	return c.tlb.Install(vPage, entry.PAddr, c.tlbWritable(as, entry))
}

// tlbWritable tells if the TLB may let a page be written without faulting.
// Clean pages are installed read-only so that the first write is seen.
func (c *Comp) tlbWritable(
	as *addrspace.AddressSpace,
	entry pagetable.Entry,
) bool {
	return as.Loading || (entry.Writable && entry.Dirty)
}

func (c *Comp) demandLoad(
	as *addrspace.AddressSpace,
	faultType vm.FaultType,
	seg *addrspace.Segment,
	vPage uint64,
) error {
	if as.Executable == nil {
		return fmt.Errorf("segment at %#x of pid %d has no executable: %w",
			seg.VBase, as.PID, vm.ErrSegmentationFault)
	}

	pAddr, err := c.pageTable.AllocatePage(as.PID, vPage, seg.Writable, false)
	if err != nil {
		return err
	}

	slot := c.tlb.Install(vPage, pAddr, true)

	err = c.memory.ZeroPage(pAddr)
	if err != nil {
		return err
	}

	offset := vPage - seg.VBase
	maxLen := min(c.pageSize(), seg.Size-offset)

	_, err = c.loader.LoadBytes(as.Executable,
		seg.FileOffset+int64(offset), pAddr, int(maxLen))
	if err != nil {
		return fmt.Errorf("demand loading %#x of pid %d: %w",
			vPage, as.PID, err)
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    vm.HookPosPageDemandLoad,
		Item:   vm.PageEvent{PID: as.PID, VAddr: vPage, PAddr: pAddr},
	})

	if faultType == vm.FaultWrite && seg.Writable {
		c.pageTable.MarkDirty(as.PID, vPage)
	}

	entry, _ := c.pageTable.Lookup(as.PID, vPage)
	if !c.tlbWritable(as, entry) {
		c.tlb.SetReadOnly(seg, slot)
	}

	return nil
}

func (c *Comp) zeroFill(
	as *addrspace.AddressSpace,
	faultType vm.FaultType,
	vPage uint64,
) error {
	pAddr, err := c.pageTable.AllocatePage(as.PID, vPage, true, false)
	if err != nil {
		return err
	}

	err = c.memory.ZeroPage(pAddr)
	if err != nil {
		return err
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    vm.HookPosPageZeroFill,
		Item:   vm.PageEvent{PID: as.PID, VAddr: vPage, PAddr: pAddr},
	})

	c.resolve(as, faultType, vPage)

	return nil
}

func (c *Comp) kill(
	as *addrspace.AddressSpace,
	faultType vm.FaultType,
	vAddr uint64,
	err error,
) {
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    vm.HookPosProcessKill,
		Item:   vm.FaultEvent{PID: as.PID, Type: faultType, VAddr: vAddr},
		Detail: err,
	})

	if c.terminator != nil {
		c.terminator.Terminate(as.PID, err)
	}
}

// Shutdown closes the swap file. A temporary swap file is removed.
func (c *Comp) Shutdown() error {
	err := c.swap.Close()
	if err != nil {
		return err
	}

	if c.tempSwapFile != "" {
		err = os.Remove(c.tempSwapFile)
		c.tempSwapFile = ""
	}

	return err
}
