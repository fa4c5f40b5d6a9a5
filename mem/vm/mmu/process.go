package mmu

import (
	"fmt"
	"log"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/addrspace"
)

// maxFaultsPerAccess bounds the faults one access may take. A miss can be
// followed by a read-only fault.
const maxFaultsPerAccess = 4

// Activate makes as the address space that faults are resolved against. The
// TLB is flushed unless as is already active.
func (c *Comp) Activate(as *addrspace.AddressSpace) {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	if c.active == as {
		return
	}

	c.active = as
	c.tlb.InvalidateAll()
}

// Active returns the active address space.
func (c *Comp) Active() *addrspace.AddressSpace {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	return c.active
}

// Access translates vAddr the way the CPU does, taking the faults the TLB
// raises until the access can proceed. Kernel addresses are direct mapped.
func (c *Comp) Access(vAddr uint64, write bool) (uint64, error) {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	return c.access(vAddr, write)
}

func (c *Comp) access(vAddr uint64, write bool) (uint64, error) {
	if vAddr >= vm.KernelBase {
		return vm.KVAddrToPAddr(vAddr), nil
	}

	for i := 0; i < maxFaultsPerAccess; i++ {
		entry, _, found := c.tlb.Probe(vAddr)

		var faultType vm.FaultType
		switch {
		case !found && write:
			faultType = vm.FaultWrite
		case !found:
			faultType = vm.FaultRead
		case write && !entry.Writable:
			faultType = vm.FaultReadOnly
		default:
			return entry.PAddr + vm.PageOffset(vAddr, c.log2PageSize), nil
		}

		err := c.fault(faultType, vAddr)
		if err != nil {
			return 0, err
		}
	}

	log.Panicf("access to %#x still faults after %d faults",
		vAddr, maxFaultsPerAccess)

	return 0, nil
}

// CopyIn reads n bytes of user memory starting at vAddr.
func (c *Comp) CopyIn(vAddr uint64, n int) ([]byte, error) {
	data := make([]byte, 0, n)

	err := c.walkUser(vAddr, uint64(n), false,
		func(pAddr, length uint64) error {
			chunk, err := c.memory.Read(pAddr, length)
			data = append(data, chunk...)

			return err
		})

	return data, err
}

// CopyOut writes data into user memory starting at vAddr.
func (c *Comp) CopyOut(vAddr uint64, data []byte) error {
	done := uint64(0)

	return c.walkUser(vAddr, uint64(len(data)), true,
		func(pAddr, length uint64) error {
			err := c.memory.Write(pAddr, data[done:done+length])
			done += length

			return err
		})
}

// walkUser calls f on the physical range of every page that [vAddr,
// vAddr+n) touches. Each page is translated and copied while holding the
// fault lock, so it cannot be evicted in between.
func (c *Comp) walkUser(
	vAddr, n uint64,
	write bool,
	f func(pAddr, length uint64) error,
) error {
	for n > 0 {
		length := min(n, c.pageSize()-vm.PageOffset(vAddr, c.log2PageSize))

		err := c.withPage(vAddr, write, length, f)
		if err != nil {
			return err
		}

		vAddr += length
		n -= length
	}

	return nil
}

func (c *Comp) withPage(
	vAddr uint64,
	write bool,
	length uint64,
	f func(pAddr, length uint64) error,
) error {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	pAddr, err := c.access(vAddr, write)
	if err != nil {
		return err
	}

	return f(pAddr, length)
}

// AllocKernelPages allocates n contiguous pages for the kernel and returns
// their kernel virtual address.
func (c *Comp) AllocKernelPages(n int) (uint64, error) {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	return c.pageTable.AllocKernelPages(n)
}

// FreeKernelPages frees a kernel allocation made by AllocKernelPages.
func (c *Comp) FreeKernelPages(vAddr uint64) {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	c.pageTable.FreeKernelRun(vAddr)
}

// NewAddressSpace creates an empty address space for pid.
func (c *Comp) NewAddressSpace(pid vm.PID) *addrspace.AddressSpace {
	if pid == vm.KernelPID || pid > vm.PIDMax {
		log.Panicf("pid %d cannot own an address space", pid)
	}

	return addrspace.New(pid, c.log2PageSize)
}

// CompleteLoad ends the loading of as and write-protects its read-only
// segments.
func (c *Comp) CompleteLoad(as *addrspace.AddressSpace) {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	as.CompleteLoad(protector{c})
}

// CopyAddressSpace duplicates as for process newPID. Pages in swap and in
// memory are both copied. On failure nothing of newPID is left behind.
func (c *Comp) CopyAddressSpace(
	as *addrspace.AddressSpace,
	newPID vm.PID,
) (*addrspace.AddressSpace, error) {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	if c.pageTable.ResidentCount(newPID) > 0 {
		log.Panicf("pid %d already owns memory", newPID)
	}

	return as.Copy(newPID, duplicator{c})
}

// DestroyAddressSpace releases every frame and swap slot of as. If as is
// active, no address space is active afterwards.
func (c *Comp) DestroyAddressSpace(as *addrspace.AddressSpace) error {
	c.faultLock.Lock()
	defer c.faultLock.Unlock()

	if c.active == as {
		c.active = nil
		c.tlb.InvalidateAll()
	}

	return as.Destroy(reclaimer{c})
}

type protector struct {
	*Comp
}

func (p protector) ProtectSegment(pid vm.PID, seg *addrspace.Segment) {
	p.pageTable.ProtectRange(pid, seg.VBase, seg.Top())

	if p.active != nil && p.active.PID == pid {
		p.tlb.ProtectRegion(seg)
	}
}

type duplicator struct {
	*Comp
}

func (d duplicator) DuplicatePages(src, dst vm.PID) error {
	err := d.swap.CopySlots(src, dst)
	if err != nil {
		return err
	}

	err = d.pageTable.CopyAddressSpace(src, dst)
	if err != nil {
		d.swap.FreeAll(dst)
		return fmt.Errorf("duplicating pid %d: %w", src, err)
	}

	return nil
}

type reclaimer struct {
	*Comp
}

func (r reclaimer) ReclaimPages(pid vm.PID) {
	r.pageTable.FreeAll(pid)
	r.swap.FreeAll(pid)
}
