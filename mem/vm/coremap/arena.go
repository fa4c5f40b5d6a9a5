package coremap

import "log"

// An Arena hands out physical frames before the coremap exists. It is the
// steal-memory allocator of early boot: frames are taken from the bottom of
// RAM and can never be returned. Once the coremap switches over, the arena is
// sealed and every stolen frame becomes a kernel frame in the coremap.
type Arena struct {
	log2PageSize uint64
	numFrames    int
	next         int
	sealed       bool
}

// NewArena partitions totalRAM bytes into frames.
func NewArena(totalRAM uint64, log2PageSize uint64) *Arena {
	return &Arena{
		log2PageSize: log2PageSize,
		numFrames:    int(totalRAM >> log2PageSize),
	}
}

// NumFrames returns the number of frames in RAM.
func (a *Arena) NumFrames() int {
	return a.numFrames
}

// Log2PageSize returns the page size of the frames as a power of 2.
func (a *Arena) Log2PageSize() uint64 {
	return a.log2PageSize
}

// FramesFor returns how many frames an image of n bytes occupies. It always
// rounds up by a full page, as the boot code has always done.
func (a *Arena) FramesFor(n uint64) int {
	pageSize := uint64(1) << a.log2PageSize
	return int((n + pageSize) / pageSize)
}

// Steal takes n contiguous frames and returns the first one.
func (a *Arena) Steal(n int) Frame {
	if a.sealed {
		log.Panicf("cannot steal memory after the coremap switched over")
	}

	if a.next+n > a.numFrames {
		log.Panicf("cannot steal %d frames, only %d left",
			n, a.numFrames-a.next)
	}

	first := Frame(a.next)
	a.next += n

	return first
}

// Stolen returns the number of frames stolen so far.
func (a *Arena) Stolen() int {
	return a.next
}

func (a *Arena) seal() {
	a.sealed = true
}
