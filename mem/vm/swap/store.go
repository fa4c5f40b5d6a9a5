// Package swap implements the backing store for evicted user pages. The store
// is a flat file divided into page-sized slots; slot k starts at byte
// k*PageSize and there is no header.
package swap

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/sim"
)

// ErrClosed is returned for operations on a store that has been shut down.
var ErrClosed = errors.New("swap store is closed")

// BackingFile is where the slots are kept. *os.File satisfies it.
type BackingFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Memory gives access to the contents of physical frames.
type Memory interface {
	ReadPage(paddr uint64) ([]byte, error)
	WritePage(paddr uint64, data []byte) error
}

// A PageAllocator maps a page to a fresh frame, evicting if it has to.
type PageAllocator interface {
	AllocatePage(
		pid vm.PID,
		vAddr uint64,
		writable, dirty bool,
	) (uint64, error)
}

type slot struct {
	used  bool
	pid   vm.PID
	vAddr uint64
}

// Store is the swap store.
type Store struct {
	sync.Mutex
	*sim.HookableBase

	name         string
	log2PageSize uint64
	file         BackingFile
	slots        []slot
	memory       Memory
	pages        PageAllocator
	closed       bool
}

// Open creates or opens the swap file at path and sizes it to hold numSlots
// pages. Any previous contents are ignored; all slots start free.
func Open(
	name, path string,
	numSlots int,
	log2PageSize uint64,
	memory Memory,
) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening swap file: %w", err)
	}

	err = f.Truncate(int64(numSlots) << log2PageSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing swap file: %w", err)
	}

	return New(name, f, numSlots, log2PageSize, memory), nil
}

// New creates a store over an already opened backing file.
func New(
	name string,
	file BackingFile,
	numSlots int,
	log2PageSize uint64,
	memory Memory,
) *Store {
	return &Store{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		log2PageSize: log2PageSize,
		file:         file,
		slots:        make([]slot, numSlots),
		memory:       memory,
	}
}

// SetPageAllocator sets who provides frames for pages loaded back in.
func (s *Store) SetPageAllocator(a PageAllocator) {
	s.pages = a
}

// Name returns the name of the store.
func (s *Store) Name() string {
	return s.name
}

// NumSlots returns the capacity of the store in pages.
func (s *Store) NumSlots() int {
	return len(s.slots)
}

func (s *Store) pageSize() uint64 {
	return 1 << s.log2PageSize
}

func (s *Store) offset(i int) int64 {
	return int64(i) << s.log2PageSize
}

func (s *Store) find(pid vm.PID, vAddr uint64) int {
	vAddr = vm.PageAlign(vAddr, s.log2PageSize)

	for i, sl := range s.slots {
		if sl.used && sl.pid == pid && sl.vAddr == vAddr {
			return i
		}
	}

	return -1
}

func (s *Store) firstFree() int {
	for i, sl := range s.slots {
		if !sl.used {
			return i
		}
	}

	return -1
}

func (s *Store) readSlot(i int, buf []byte) error {
	n, err := s.file.ReadAt(buf, s.offset(i))
	if n == len(buf) {
		return nil
	}

	if err == nil {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("reading swap slot %d: %w", i, err)
}

func (s *Store) writeSlot(i int, data []byte) error {
	_, err := s.file.WriteAt(data, s.offset(i))
	if err != nil {
		return fmt.Errorf("writing swap slot %d: %w", i, err)
	}

	return nil
}

// Evict writes the frame at pAddr to the first free slot and records it as
// page vAddr of pid. It returns vm.ErrSwapFull if every slot is taken.
func (s *Store) Evict(pid vm.PID, vAddr, pAddr uint64) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrClosed
	}

	vAddr = vm.PageAlign(vAddr, s.log2PageSize)
	if s.find(pid, vAddr) >= 0 {
		log.Panicf("page %#x of pid %d is already swapped out", vAddr, pid)
	}

	data, err := s.memory.ReadPage(pAddr)
	if err != nil {
		return err
	}

	err = s.store(pid, vAddr, data)
	if err != nil {
		return err
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    vm.HookPosSwapOut,
		Item:   vm.PageEvent{PID: pid, VAddr: vAddr, PAddr: pAddr},
	})

	return nil
}

func (s *Store) store(pid vm.PID, vAddr uint64, data []byte) error {
	i := s.firstFree()
	if i < 0 {
		return vm.ErrSwapFull
	}

	err := s.writeSlot(i, data)
	if err != nil {
		return err
	}

	s.slots[i] = slot{used: true, pid: pid, vAddr: vAddr}

	return nil
}

// Load brings page vAddr of pid back into memory. The slot is freed and a
// frame is allocated through the page allocator, which may evict another
// page into the slot just freed. The bool is false if the page is not in
// swap.
func (s *Store) Load(
	pid vm.PID,
	vAddr uint64,
	writable bool,
) (uint64, bool, error) {
	vAddr = vm.PageAlign(vAddr, s.log2PageSize)

	buf, ok, err := s.takeOut(pid, vAddr)
	if !ok || err != nil {
		return 0, ok, err
	}

	pAddr, err := s.pages.AllocatePage(pid, vAddr, writable, false)
	if err != nil {
		return 0, true, s.putBack(pid, vAddr, buf, err)
	}

	err = s.memory.WritePage(pAddr, buf)
	if err != nil {
		return 0, true, err
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    vm.HookPosSwapIn,
		Item:   vm.PageEvent{PID: pid, VAddr: vAddr, PAddr: pAddr},
	})

	return pAddr, true, nil
}

func (s *Store) takeOut(pid vm.PID, vAddr uint64) ([]byte, bool, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	if s.pages == nil {
		log.Panicf("swap store %s has no page allocator", s.name)
	}

	i := s.find(pid, vAddr)
	if i < 0 {
		return nil, false, nil
	}

	buf := make([]byte, s.pageSize())
	err := s.readSlot(i, buf)
	if err != nil {
		return nil, true, err
	}

	s.slots[i] = slot{}

	return buf, true, nil
}

func (s *Store) putBack(
	pid vm.PID,
	vAddr uint64,
	buf []byte,
	cause error,
) error {
	s.Lock()
	defer s.Unlock()

	err := s.store(pid, vAddr, buf)
	if err != nil {
		return fmt.Errorf("%w; page %#x of pid %d is lost: %w",
			cause, vAddr, pid, err)
	}

	return cause
}

// ReadSwapped copies a swapped-out page into buf and leaves the slot as it
// is. The bool is false if the page is not in swap.
func (s *Store) ReadSwapped(
	pid vm.PID,
	vAddr uint64,
	buf []byte,
) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	i := s.find(pid, vAddr)
	if i < 0 {
		return false, nil
	}

	return true, s.readSlot(i, buf[:s.pageSize()])
}

// CopySlots duplicates every swapped-out page of src for dst. If the store
// runs out of slots, the copies made so far are dropped and vm.ErrSwapFull
// is returned.
func (s *Store) CopySlots(src, dst vm.PID) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrClosed
	}

	buf := make([]byte, s.pageSize())
	for i := range s.slots {
		sl := s.slots[i]
		if !sl.used || sl.pid != src {
			continue
		}

		err := s.readSlot(i, buf)
		if err == nil {
			err = s.store(dst, sl.vAddr, buf)
		}

		if err != nil {
			s.freeAll(dst)
			return fmt.Errorf("copying swap of pid %d to pid %d: %w",
				src, dst, err)
		}
	}

	return nil
}

// FreeAll discards every slot of pid and returns how many there were.
func (s *Store) FreeAll(pid vm.PID) int {
	s.Lock()
	defer s.Unlock()

	return s.freeAll(pid)
}

func (s *Store) freeAll(pid vm.PID) int {
	n := 0
	for i := range s.slots {
		if s.slots[i].used && s.slots[i].pid == pid {
			s.slots[i] = slot{}
			n++
		}
	}

	return n
}

// Contains tells if page vAddr of pid is in swap.
func (s *Store) Contains(pid vm.PID, vAddr uint64) bool {
	s.Lock()
	defer s.Unlock()

	return s.find(pid, vAddr) >= 0
}

// UsedSlots returns the number of slots in use.
func (s *Store) UsedSlots() int {
	s.Lock()
	defer s.Unlock()

	n := 0
	for _, sl := range s.slots {
		if sl.used {
			n++
		}
	}

	return n
}

// Close shuts the store down and closes the backing file. Closing twice is
// a no-op.
func (s *Store) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return s.file.Close()
}
