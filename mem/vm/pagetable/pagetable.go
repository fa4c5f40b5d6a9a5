// Package pagetable implements the flat, globally shared page table. There is
// one entry per physical frame, so the slot index of an entry determines its
// physical address.
package pagetable

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/coremap"
	"github.com/sarchlab/osvm/sim"
)

// entryBytes is the size of one page table entry in the kernel image.
const entryBytes = 32

// Kind tells what a slot is used for.
type Kind uint8

// The kinds of page table entries.
const (
	KindFree Kind = iota
	KindUser
	KindKernel
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindUser:
		return "user"
	case KindKernel:
		return "kernel"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// An Entry maintains the information about how to translate the virtual
// address of one page to the physical frame that backs it.
type Entry struct {
	Kind     Kind
	PID      vm.PID
	VAddr    uint64
	PAddr    uint64
	Writable bool
	Dirty    bool

	// RunLen is the number of frames of a kernel allocation. It is only set
	// on the first slot of the run.
	RunLen int
}

// A FrameAllocator hands out physical frames.
type FrameAllocator interface {
	AllocOne() (coremap.Frame, bool)
	AllocContiguous(n int) (coremap.Frame, bool)
	Free(f coremap.Frame)
	OldestUserFrame() (coremap.Frame, bool)
}

// Memory gives access to the contents of physical frames.
type Memory interface {
	ReadPage(paddr uint64) ([]byte, error)
	WritePage(paddr uint64, data []byte) error
}

// A Swapper stores evicted pages.
type Swapper interface {
	// Evict writes the page out. On success the page table drops its entry.
	Evict(pid vm.PID, vAddr, pAddr uint64) error

	// ReadSwapped copies a swapped-out page into buf without releasing it.
	ReadSwapped(pid vm.PID, vAddr uint64, buf []byte) (bool, error)
}

// Shootdown removes stale translations of a frame from the TLB.
type Shootdown interface {
	InvalidatePAddr(pAddr uint64)
}

// Table is the page table. All operations are serialized by one table-wide
// lock.
type Table struct {
	sync.Mutex
	*sim.HookableBase

	name         string
	log2PageSize uint64
	entries      []Entry
	frames       FrameAllocator
	memory       Memory
	swapper      Swapper
	shootdown    Shootdown
}

// Init lays out the page table. Its entry array is stolen from the boot
// arena, after the frames that were already stolen, and those frames are
// recorded as kernel pages. It returns the number of frames that hold the
// page table itself.
func Init(
	name string,
	arena *coremap.Arena,
	frames FrameAllocator,
	memory Memory,
) (*Table, int) {
	t := &Table{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		log2PageSize: arena.Log2PageSize(),
		entries:      make([]Entry, arena.NumFrames()),
		frames:       frames,
		memory:       memory,
	}

	reserved := arena.Stolen()
	ptFrames := arena.FramesFor(uint64(arena.NumFrames()) * entryBytes)
	arena.Steal(ptFrames)

	for i := range t.entries {
		t.entries[i].PAddr = uint64(i) << t.log2PageSize
	}

	t.markKernelRun(0, reserved)
	t.markKernelRun(reserved, ptFrames)

	return t, ptFrames
}

func (t *Table) markKernelRun(first, n int) {
	if n == 0 {
		return
	}

	for i := first; i < first+n; i++ {
		e := &t.entries[i]
		e.Kind = KindKernel
		e.PID = vm.KernelPID
		e.VAddr = vm.PAddrToKVAddr(e.PAddr)
		e.Writable = true
		e.Dirty = true
	}

	t.entries[first].RunLen = n
}

// SetSwapper sets where evicted pages go. Without a swapper, running out of
// frames is an out-of-memory error.
func (t *Table) SetSwapper(s Swapper) {
	t.swapper = s
}

// SetShootdown sets the TLB that is told about reclaimed frames.
func (t *Table) SetShootdown(s Shootdown) {
	t.shootdown = s
}

// Name returns the name of the page table.
func (t *Table) Name() string {
	return t.name
}

func (t *Table) pageSize() uint64 {
	return 1 << t.log2PageSize
}

func (t *Table) alignToPage(addr uint64) uint64 {
	return vm.PageAlign(addr, t.log2PageSize)
}

func (t *Table) find(pid vm.PID, vAddr uint64) int {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Kind == KindFree || e.PID != pid {
			continue
		}

		if vAddr >= e.VAddr && vAddr < e.VAddr+t.pageSize() {
			return i
		}
	}

	return -1
}

// Translate returns the physical address that vAddr maps to in process pid.
// A false return only means pid has no mapping; the frame may still be in
// use by another process.
func (t *Table) Translate(pid vm.PID, vAddr uint64) (uint64, bool) {
	t.Lock()
	defer t.Unlock()

	i := t.find(pid, vAddr)
	if i < 0 {
		return 0, false
	}

	e := t.entries[i]

	return e.PAddr + (vAddr - e.VAddr), true
}

// Lookup returns a copy of the entry that maps vAddr in process pid.
func (t *Table) Lookup(pid vm.PID, vAddr uint64) (Entry, bool) {
	t.Lock()
	defer t.Unlock()

	i := t.find(pid, vAddr)
	if i < 0 {
		return Entry{}, false
	}

	return t.entries[i], true
}

// AllocatePage maps the page that holds vAddr in process pid to a frame and
// returns the physical address of the frame. When memory is exhausted, the
// oldest user frame is evicted to swap and reused. The frame contents are not
// cleared.
func (t *Table) AllocatePage(
	pid vm.PID,
	vAddr uint64,
	writable, dirty bool,
) (uint64, error) {
	t.Lock()
	defer t.Unlock()

	vAddr = t.alignToPage(vAddr)
	t.pageMustNotExist(pid, vAddr)

	f, err := t.acquireFrame()
	if err != nil {
		return 0, err
	}

	e := &t.entries[f]
	e.Kind = KindUser
	e.PID = pid
	e.VAddr = vAddr
	e.Writable = writable
	e.Dirty = dirty
	e.RunLen = 0

	return e.PAddr, nil
}

func (t *Table) acquireFrame() (coremap.Frame, error) {
	f, ok := t.frames.AllocOne()
	if ok {
		return f, nil
	}

	victim, ok := t.frames.OldestUserFrame()
	if !ok || t.swapper == nil {
		return 0, vm.ErrOutOfMemory
	}

	e := t.entries[victim]
	if e.Kind != KindUser {
		panic(vm.InvariantViolation{
			What: fmt.Sprintf("user frame %d has a %s page table entry",
				victim, e.Kind),
		})
	}

	err := t.swapper.Evict(e.PID, e.VAddr, e.PAddr)
	if err != nil {
		return 0, fmt.Errorf("evicting frame %d: %w", victim, err)
	}

	t.release(int(victim))

	t.InvokeHook(sim.HookCtx{
		Domain: t,
		Pos:    vm.HookPosPageEvict,
		Item:   vm.PageEvent{PID: e.PID, VAddr: e.VAddr, PAddr: e.PAddr},
	})

	f, ok = t.frames.AllocOne()
	if !ok {
		panic(vm.InvariantViolation{
			What: fmt.Sprintf("frame %d freed by eviction is gone", victim),
		})
	}

	return f, nil
}

// release drops the entry in slot i, tells the TLB, and frees the frame.
func (t *Table) release(i int) {
	pAddr := t.entries[i].PAddr

	if t.shootdown != nil {
		t.shootdown.InvalidatePAddr(pAddr)
	}

	t.entries[i] = Entry{PAddr: pAddr}
	t.frames.Free(coremap.Frame(i))
}

// AllocKernelPages allocates n physically contiguous frames for the kernel and
// returns the kernel virtual address of the first. Kernel pages are never
// evicted, so there is no fallback to swap.
func (t *Table) AllocKernelPages(n int) (uint64, error) {
	t.Lock()
	defer t.Unlock()

	f, ok := t.frames.AllocContiguous(n)
	if !ok {
		return 0, vm.ErrOutOfMemory
	}

	t.markKernelRun(int(f), n)

	return t.entries[f].VAddr, nil
}

// FreeKernelRun frees the kernel allocation that starts at vAddr.
func (t *Table) FreeKernelRun(vAddr uint64) {
	t.Lock()
	defer t.Unlock()

	for i := range t.entries {
		e := t.entries[i]
		if e.Kind != KindKernel || e.VAddr != vAddr {
			continue
		}

		if e.RunLen == 0 {
			log.Panicf("%#x is not the start of a kernel allocation", vAddr)
		}

		for j := i; j < i+e.RunLen; j++ {
			t.release(j)
		}

		return
	}

	log.Panicf("no kernel allocation at %#x", vAddr)
}

// CopyAddressSpace gives process dst a private copy of every resident page of
// process src, at the same virtual addresses and with the same flags. Pages
// of src that get evicted while the copy runs are read back from swap. If the
// copy cannot complete, every resident page created for dst is released and
// an out-of-memory error is returned. Pages of dst that were pushed to swap
// during the copy are left for the caller to discard.
func (t *Table) CopyAddressSpace(src, dst vm.PID) error {
	t.Lock()
	defer t.Unlock()

	pages := make([]Entry, 0)
	for _, e := range t.entries {
		if e.Kind == KindUser && e.PID == src {
			pages = append(pages, e)
		}
	}

	for _, p := range pages {
		err := t.copyPage(src, dst, p)
		if err != nil {
			t.freeAll(dst)
			return fmt.Errorf("copying pages of pid %d to pid %d: %w",
				src, dst, asOutOfMemory(err))
		}
	}

	return nil
}

func (t *Table) copyPage(src, dst vm.PID, p Entry) error {
	t.pageMustNotExist(dst, p.VAddr)

	data, err := t.readPage(src, p.VAddr)
	if err != nil {
		return err
	}

	f, err := t.acquireFrame()
	if err != nil {
		return err
	}

	e := &t.entries[f]
	e.Kind = KindUser
	e.PID = dst
	e.VAddr = p.VAddr
	e.Writable = p.Writable
	e.Dirty = p.Dirty

	return t.memory.WritePage(e.PAddr, data)
}

func (t *Table) readPage(pid vm.PID, vAddr uint64) ([]byte, error) {
	i := t.find(pid, vAddr)
	if i >= 0 {
		return t.memory.ReadPage(t.entries[i].PAddr)
	}

	if t.swapper == nil {
		return nil, fmt.Errorf("page %#x of pid %d vanished", vAddr, pid)
	}

	buf := make([]byte, t.pageSize())
	found, err := t.swapper.ReadSwapped(pid, vAddr, buf)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("page %#x of pid %d is neither resident "+
			"nor swapped", vAddr, pid)
	}

	return buf, nil
}

func asOutOfMemory(err error) error {
	if errors.Is(err, vm.ErrOutOfMemory) {
		return err
	}

	return fmt.Errorf("%w: %w", vm.ErrOutOfMemory, err)
}

// FreeAll releases every frame that process pid owns.
func (t *Table) FreeAll(pid vm.PID) {
	t.Lock()
	defer t.Unlock()

	t.freeAll(pid)
}

func (t *Table) freeAll(pid vm.PID) {
	for i := range t.entries {
		e := t.entries[i]
		if e.Kind == KindUser && e.PID == pid {
			t.release(i)
		}
	}
}

// IsWritable tells if the page that holds vAddr may be written by pid.
func (t *Table) IsWritable(pid vm.PID, vAddr uint64) bool {
	t.Lock()
	defer t.Unlock()

	i := t.find(pid, vAddr)
	if i < 0 {
		return false
	}

	return t.entries[i].Writable
}

// MarkDirty records that the page that holds vAddr has been written. It
// returns false if the page is not resident.
func (t *Table) MarkDirty(pid vm.PID, vAddr uint64) bool {
	t.Lock()
	defer t.Unlock()

	i := t.find(pid, vAddr)
	if i < 0 {
		return false
	}

	t.entries[i].Dirty = true

	return true
}

// ProtectRange clears the writable bit of every resident page of pid in
// [lo, hi). It returns the number of pages changed.
func (t *Table) ProtectRange(pid vm.PID, lo, hi uint64) int {
	t.Lock()
	defer t.Unlock()

	n := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.Kind != KindUser || e.PID != pid {
			continue
		}

		if e.VAddr >= lo && e.VAddr < hi && e.Writable {
			e.Writable = false
			n++
		}
	}

	return n
}

// Entries returns a copy of every entry that process pid owns.
func (t *Table) Entries(pid vm.PID) []Entry {
	t.Lock()
	defer t.Unlock()

	entries := make([]Entry, 0)
	for _, e := range t.entries {
		if e.Kind != KindFree && e.PID == pid {
			entries = append(entries, e)
		}
	}

	return entries
}

// ResidentCount returns the number of pages process pid has in memory.
func (t *Table) ResidentCount(pid vm.PID) int {
	return len(t.Entries(pid))
}

// CountKind returns the number of entries of a kind.
func (t *Table) CountKind(kind Kind) int {
	t.Lock()
	defer t.Unlock()

	n := 0
	for _, e := range t.entries {
		if e.Kind == kind {
			n++
		}
	}

	return n
}

func (t *Table) pageMustNotExist(pid vm.PID, vAddr uint64) {
	if t.find(pid, vAddr) >= 0 {
		log.Panicf("page %#x of pid %d already exists", vAddr, pid)
	}
}
