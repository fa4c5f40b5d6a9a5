// Package coremap keeps track of the physical frames of the machine.
package coremap

import (
	"log"
	"sync"

	"github.com/sarchlab/osvm/mem/vm"
)

// Frame is the index of a physical page frame.
type Frame int

// entryBytes is the size of one coremap entry in the kernel image.
const entryBytes = 16

type entry struct {
	inUse       bool
	isKernel    bool
	lastTouched vm.Timestamp
}

// Coremap is the frame allocator. It owns one entry per physical frame.
type Coremap struct {
	sync.Mutex

	name         string
	log2PageSize uint64
	clock        vm.Clock
	arena        *Arena
	entries      []entry
	ready        bool
}

// Bootstrap builds the coremap. The frames holding its own entry array are
// stolen from the arena. The coremap does not allocate until SwitchOver is
// called, which gives the page table a chance to steal its image as well.
func Bootstrap(name string, arena *Arena, clock vm.Clock) *Coremap {
	if clock == nil {
		clock = vm.NewLogicalClock()
	}

	c := &Coremap{
		name:         name,
		log2PageSize: arena.Log2PageSize(),
		clock:        clock,
		arena:        arena,
		entries:      make([]entry, arena.NumFrames()),
	}

	arena.Steal(arena.FramesFor(uint64(arena.NumFrames()) * entryBytes))

	return c
}

// SwitchOver seals the arena and takes over every frame stolen so far as a
// kernel frame.
func (c *Coremap) SwitchOver() {
	c.Lock()
	defer c.Unlock()

	if c.ready {
		log.Panicf("coremap %s already switched over", c.name)
	}

	now := c.clock.Now()
	for i := 0; i < c.arena.Stolen(); i++ {
		c.entries[i] = entry{inUse: true, isKernel: true, lastTouched: now}
	}

	c.arena.seal()
	c.ready = true
}

// Name returns the name of the coremap.
func (c *Coremap) Name() string {
	return c.name
}

// AllocOne returns the first free frame and marks it as a user frame. The
// bool is false when every frame is in use.
func (c *Coremap) AllocOne() (Frame, bool) {
	c.Lock()
	defer c.Unlock()

	c.mustBeReady()

	for i := range c.entries {
		if !c.entries[i].inUse {
			c.take(i, false)
			return Frame(i), true
		}
	}

	return 0, false
}

// AllocContiguous returns the first run of n free frames and marks them as
// kernel frames. There is no compaction; if no run is long enough, the bool
// is false.
func (c *Coremap) AllocContiguous(n int) (Frame, bool) {
	c.Lock()
	defer c.Unlock()

	c.mustBeReady()

	if n <= 0 {
		log.Panicf("cannot allocate %d contiguous frames", n)
	}

	count := 0
	for i := range c.entries {
		if c.entries[i].inUse {
			count = 0
			continue
		}

		count++
		if count == n {
			first := i - n + 1
			for j := first; j <= i; j++ {
				c.take(j, true)
			}

			return Frame(first), true
		}
	}

	return 0, false
}

func (c *Coremap) take(i int, isKernel bool) {
	c.entries[i] = entry{
		inUse:       true,
		isKernel:    isKernel,
		lastTouched: c.clock.Now(),
	}
}

// Free returns a frame to the allocator. The contents of the frame are left
// as they are.
func (c *Coremap) Free(f Frame) {
	c.Lock()
	defer c.Unlock()

	c.mustBeReady()
	c.frameMustExist(f)

	if !c.entries[f].inUse {
		log.Panicf("freeing frame %d, which is not in use", f)
	}

	c.entries[f] = entry{}
}

// OldestUserFrame returns the in-use user frame that was acquired first. It
// never returns a kernel frame. The bool is false if no user frame is in use.
func (c *Coremap) OldestUserFrame() (Frame, bool) {
	c.Lock()
	defer c.Unlock()

	victim := -1
	for i, e := range c.entries {
		if !e.inUse || e.isKernel {
			continue
		}

		if victim < 0 || e.lastTouched < c.entries[victim].lastTouched {
			victim = i
		}
	}

	if victim < 0 {
		return 0, false
	}

	return Frame(victim), true
}

// FrameCount returns the number of frames in RAM.
func (c *Coremap) FrameCount() int {
	return len(c.entries)
}

// InUseCount returns the number of frames currently allocated, including
// kernel frames.
func (c *Coremap) InUseCount() int {
	c.Lock()
	defer c.Unlock()

	count := 0
	for _, e := range c.entries {
		if e.inUse {
			count++
		}
	}

	return count
}

// FreeCount returns the number of free frames.
func (c *Coremap) FreeCount() int {
	return c.FrameCount() - c.InUseCount()
}

// IsInUse tells if a frame is allocated.
func (c *Coremap) IsInUse(f Frame) bool {
	c.Lock()
	defer c.Unlock()

	c.frameMustExist(f)

	return c.entries[f].inUse
}

// IsKernel tells if a frame belongs to the kernel.
func (c *Coremap) IsKernel(f Frame) bool {
	c.Lock()
	defer c.Unlock()

	c.frameMustExist(f)

	return c.entries[f].isKernel
}

// LastTouched returns the time the frame was last acquired.
func (c *Coremap) LastTouched(f Frame) vm.Timestamp {
	c.Lock()
	defer c.Unlock()

	c.frameMustExist(f)

	return c.entries[f].lastTouched
}

// FrameToPAddr returns the physical address of the start of a frame.
func (c *Coremap) FrameToPAddr(f Frame) uint64 {
	return uint64(f) << c.log2PageSize
}

// PAddrToFrame returns the frame that holds a physical address.
func (c *Coremap) PAddrToFrame(paddr uint64) Frame {
	return Frame(paddr >> c.log2PageSize)
}

func (c *Coremap) mustBeReady() {
	if !c.ready {
		log.Panicf("coremap %s used before switch over", c.name)
	}
}

func (c *Coremap) frameMustExist(f Frame) {
	if f < 0 || int(f) >= len(c.entries) {
		log.Panicf("frame %d does not exist", f)
	}
}
