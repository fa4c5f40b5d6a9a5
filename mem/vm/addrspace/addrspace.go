// Package addrspace describes the user address space of a process: its
// segments, its stack, and the executable that backs them.
package addrspace

import (
	"fmt"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/loader"
)

// MaxRegions is the number of regions besides the stack an address space
// can hold, one for text and one for data.
const MaxRegions = 2

// ErrInvalidRegion is returned when a region overlaps memory that is already
// described, or falls outside user space.
var ErrInvalidRegion = fmt.Errorf("invalid region: %w", vm.ErrSegmentationFault)

// A Segment is a page-aligned region backed by the executable.
type Segment struct {
	VBase      uint64
	Size       uint64
	NPages     int
	FileOffset int64
	Readable   bool
	Writable   bool
}

// Top returns the first address above the segment.
func (s *Segment) Top() uint64 {
	return s.VBase + s.Size
}

// Contains tells if vAddr falls in the segment.
func (s *Segment) Contains(vAddr uint64) bool {
	return vAddr >= s.VBase && vAddr < s.Top()
}

// Clone returns a copy of the segment.
func (s *Segment) Clone() *Segment {
	c := *s
	return &c
}

func (s *Segment) overlaps(lo, hi uint64) bool {
	return s.VBase < hi && lo < s.Top()
}

// A Protector write-protects the pages of a segment that are already mapped.
type Protector interface {
	ProtectSegment(pid vm.PID, seg *Segment)
}

// A Duplicator copies every page of one process to another.
type Duplicator interface {
	DuplicatePages(src, dst vm.PID) error
}

// A Reclaimer releases every page of a process.
type Reclaimer interface {
	ReclaimPages(pid vm.PID)
}

// AddressSpace is the user memory of one process.
type AddressSpace struct {
	PID        vm.PID
	Segments   []*Segment
	StackBase  uint64
	StackTop   uint64
	Executable loader.Executable

	// Loading is set while the executable is being loaded. Every segment
	// page is writable in the meantime.
	Loading bool

	log2PageSize uint64
}

// New creates an empty address space for pid. The stack occupies the
// vm.StackPages pages below vm.UserStack.
func New(pid vm.PID, log2PageSize uint64) *AddressSpace {
	return &AddressSpace{
		PID:          pid,
		StackTop:     vm.UserStack,
		StackBase:    vm.UserStack - vm.StackPages<<log2PageSize,
		log2PageSize: log2PageSize,
	}
}

// Log2PageSize returns the page size the address space is laid out in.
func (as *AddressSpace) Log2PageSize() uint64 {
	return as.log2PageSize
}

// DefineRegion adds a segment of size bytes at vAddr, whose first byte is
// at fileOffset in the executable. The region is widened to whole pages.
func (as *AddressSpace) DefineRegion(
	vAddr, size uint64,
	fileOffset int64,
	readable, writable bool,
) error {
	offset := vm.PageOffset(vAddr, as.log2PageSize)
	size = vm.PageRoundUp(size+offset, as.log2PageSize)
	vAddr -= offset
	fileOffset -= int64(offset)

	if size == 0 || fileOffset < 0 || vAddr+size > vm.UserTop {
		return fmt.Errorf("region %#x+%#x: %w", vAddr, size, ErrInvalidRegion)
	}

	if vAddr < as.StackTop && as.StackBase < vAddr+size {
		return fmt.Errorf("region %#x+%#x overlaps the stack: %w",
			vAddr, size, ErrInvalidRegion)
	}

	for _, s := range as.Segments {
		if s.overlaps(vAddr, vAddr+size) {
			return fmt.Errorf("region %#x+%#x overlaps segment at %#x: %w",
				vAddr, size, s.VBase, ErrInvalidRegion)
		}
	}

	if len(as.Segments) >= MaxRegions {
		return fmt.Errorf("more than %d regions: %w",
			MaxRegions, vm.ErrUnimplemented)
	}

	as.Segments = append(as.Segments, &Segment{
		VBase:      vAddr,
		Size:       size,
		NPages:     int(size >> as.log2PageSize),
		FileOffset: fileOffset,
		Readable:   readable,
		Writable:   writable,
	})

	return nil
}

// DefineStack returns the initial user stack pointer.
func (as *AddressSpace) DefineStack() uint64 {
	return as.StackTop
}

// SegmentFor returns the segment that holds vAddr, or nil if vAddr is in the
// stack or in no region at all.
func (as *AddressSpace) SegmentFor(vAddr uint64) *Segment {
	for _, s := range as.Segments {
		if s.Contains(vAddr) {
			return s
		}
	}

	return nil
}

// SegmentByBase returns the segment that starts exactly at vBase.
func (as *AddressSpace) SegmentByBase(vBase uint64) *Segment {
	for _, s := range as.Segments {
		if s.VBase == vBase {
			return s
		}
	}

	return nil
}

// InStack tells if vAddr falls in the stack.
func (as *AddressSpace) InStack(vAddr uint64) bool {
	return vAddr >= as.StackBase && vAddr < as.StackTop
}

// Valid tells if vAddr falls in a segment or in the stack.
func (as *AddressSpace) Valid(vAddr uint64) bool {
	return as.InStack(vAddr) || as.SegmentFor(vAddr) != nil
}

// PrepareLoad makes every segment writable until CompleteLoad.
func (as *AddressSpace) PrepareLoad() {
	as.Loading = true
}

// CompleteLoad ends loading and write-protects the pages of read-only
// segments that were mapped while loading.
func (as *AddressSpace) CompleteLoad(p Protector) {
	as.Loading = false

	for _, s := range as.Segments {
		if !s.Writable {
			p.ProtectSegment(as.PID, s)
		}
	}
}

// Copy creates an address space for newPID with the same layout and a
// private copy of every page. The executable gains a reference.
func (as *AddressSpace) Copy(
	newPID vm.PID,
	d Duplicator,
) (*AddressSpace, error) {
	n := &AddressSpace{
		PID:          newPID,
		StackBase:    as.StackBase,
		StackTop:     as.StackTop,
		Executable:   as.Executable,
		Loading:      as.Loading,
		log2PageSize: as.log2PageSize,
	}

	for _, s := range as.Segments {
		n.Segments = append(n.Segments, s.Clone())
	}

	err := d.DuplicatePages(as.PID, newPID)
	if err != nil {
		return nil, err
	}

	if n.Executable != nil {
		n.Executable.Retain()
	}

	return n, nil
}

// Destroy releases every page of the address space and its reference to
// the executable.
func (as *AddressSpace) Destroy(r Reclaimer) error {
	r.ReclaimPages(as.PID)
	as.Segments = nil

	if as.Executable == nil {
		return nil
	}

	err := as.Executable.Release()
	as.Executable = nil

	if err != nil {
		return fmt.Errorf("destroying address space of pid %d: %w",
			as.PID, err)
	}

	return nil
}
