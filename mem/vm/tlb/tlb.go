package tlb

import (
	"log"
	"sync"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/tlb/internal"
	"github.com/sarchlab/osvm/sim"
)

// Entry is a translation held by the TLB.
type Entry struct {
	VAddr    uint64
	PAddr    uint64
	Valid    bool
	Writable bool
}

// A Region is a range of virtual addresses, such as a segment.
type Region interface {
	Contains(vAddr uint64) bool
}

// Comp is the software-managed TLB. It is a single fully associative set.
//
// Every read-modify-write of the slots happens while holding the TLB lock,
// which stands in for raising the interrupt priority level. The lock is
// never held while calling out of the TLB, including while invoking hooks.
type Comp struct {
	sync.Mutex
	*sim.HookableBase

	name         string
	log2PageSize uint64
	set          internal.Set
}

// Name returns the name of the TLB.
func (c *Comp) Name() string {
	return c.name
}

// NumEntries returns the number of slots.
func (c *Comp) NumEntries() int {
	return c.set.NumWays()
}

func (c *Comp) vPage(vAddr uint64) uint64 {
	return vm.PageAlign(vAddr, c.log2PageSize)
}

// Install writes a translation for the page that holds vAddr and returns the
// slot used. An existing translation of the same page is overwritten in
// place. Otherwise the first invalid slot is used, and if there is none, the
// round-robin victim is replaced.
func (c *Comp) Install(vAddr, pAddr uint64, writable bool) int {
	c.Lock()

	vPage := c.vPage(vAddr)
	pAddr = vm.PageAlign(pAddr, c.log2PageSize)

	wayID, _, found := c.set.Lookup(vPage)
	replaced := false

	if !found {
		wayID, found = c.set.FindInvalid()
		if !found {
			wayID = c.set.Evict()
			replaced = true
		}
	}

	c.set.Update(wayID, internal.Block{
		VPage:    vPage,
		PAddr:    pAddr,
		Valid:    true,
		Writable: writable,
	})

	c.Unlock()

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    vm.HookPosTLBInstall,
		Item: vm.TLBEvent{
			Slot:     wayID,
			VAddr:    vPage,
			PAddr:    pAddr,
			Writable: writable,
			Replaced: replaced,
		},
	})

	return wayID
}

// Update rewrites the writable bit of the valid translation of vAddr. It
// returns false if no slot holds vAddr.
func (c *Comp) Update(vAddr uint64, writable bool) bool {
	c.Lock()
	defer c.Unlock()

	wayID, block, found := c.set.Lookup(c.vPage(vAddr))
	if !found {
		return false
	}

	block.Writable = writable
	c.set.Update(wayID, block)

	return true
}

// InvalidateAll clears every slot and resets the victim pointer.
func (c *Comp) InvalidateAll() {
	c.Lock()
	c.set.Reset()
	c.Unlock()

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    vm.HookPosTLBInvalidate,
	})
}

// InvalidatePAddr clears every slot that maps to the frame holding pAddr.
func (c *Comp) InvalidatePAddr(pAddr uint64) {
	c.Lock()
	defer c.Unlock()

	pAddr = vm.PageAlign(pAddr, c.log2PageSize)

	for i := 0; i < c.set.NumWays(); i++ {
		block := c.set.Block(i)
		if block.Valid && block.PAddr == pAddr {
			c.set.Update(i, internal.Block{})
		}
	}
}

// SetReadOnly clears the writable bit of a slot, but only if the slot still
// holds a page of region. The slot may have been recycled since it was
// installed. It returns whether the slot was changed.
func (c *Comp) SetReadOnly(region Region, slot int) bool {
	c.Lock()
	defer c.Unlock()

	c.slotMustExist(slot)

	block := c.set.Block(slot)
	if !block.Valid || !region.Contains(block.VPage) {
		return false
	}

	block.Writable = false
	c.set.Update(slot, block)

	return true
}

// ProtectRegion clears the writable bit of every slot that holds a page of
// region. It returns the number of slots changed.
func (c *Comp) ProtectRegion(region Region) int {
	c.Lock()
	defer c.Unlock()

	n := 0
	for i := 0; i < c.set.NumWays(); i++ {
		block := c.set.Block(i)
		if block.Valid && block.Writable && region.Contains(block.VPage) {
			block.Writable = false
			c.set.Update(i, block)
			n++
		}
	}

	return n
}

// Probe looks up the translation of vAddr, as the hardware does on every
// access.
func (c *Comp) Probe(vAddr uint64) (Entry, int, bool) {
	c.Lock()
	defer c.Unlock()

	wayID, block, found := c.set.Lookup(c.vPage(vAddr))
	if !found {
		return Entry{}, 0, false
	}

	return toEntry(block), wayID, true
}

// Entry returns the content of a slot.
func (c *Comp) Entry(slot int) Entry {
	c.Lock()
	defer c.Unlock()

	c.slotMustExist(slot)

	return toEntry(c.set.Block(slot))
}

// ValidCount returns the number of valid slots.
func (c *Comp) ValidCount() int {
	c.Lock()
	defer c.Unlock()

	n := 0
	for i := 0; i < c.set.NumWays(); i++ {
		if c.set.Block(i).Valid {
			n++
		}
	}

	return n
}

func (c *Comp) slotMustExist(slot int) {
	if slot < 0 || slot >= c.set.NumWays() {
		log.Panicf("TLB slot %d does not exist", slot)
	}
}

func toEntry(b internal.Block) Entry {
	return Entry{
		VAddr:    b.VPage,
		PAddr:    b.PAddr,
		Valid:    b.Valid,
		Writable: b.Writable,
	}
}
