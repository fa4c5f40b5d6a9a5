// Package physmem models the physical RAM of the machine.
package physmem

import (
	"errors"
	"sync"
)

// ErrBeyondCapacity is returned when an access runs past the end of RAM.
var ErrBeyondCapacity = errors.New(
	"accessing physical address beyond the storage capacity")

// A Storage keeps the contents of physical memory.
//
// The storage manages memory in page-sized units. For the units that are
// never touched by Read and Write, no host memory is allocated.
type Storage struct {
	sync.Mutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity and page
// size.
func NewStorage(capacity uint64, log2PageSize uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 1 << log2PageSize
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the size of RAM in bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// PageSize returns the size of one unit.
func (s *Storage) PageSize() uint64 {
	return s.unitSize
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initilizes a storage unit in the storage object
func (s *Storage) createOrGetStorageUnit(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, ErrBeyondCapacity
	}

	baseAddr, _ := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr
	return
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	return s.read(address, length)
}

func (s *Storage) read(address uint64, length uint64) ([]byte, error) {
	if address+length > s.capacity {
		return nil, ErrBeyondCapacity
	}

	currAddr := address
	lenLeft := length
	dataOffset := uint64(0)
	res := make([]byte, length)

	for currAddr < address+length {
		unit, err := s.createOrGetStorageUnit(currAddr)
		if err != nil {
			return nil, err
		}

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenLeftInUnit := baseAddr + s.unitSize - currAddr
		lenToRead := lenLeftInUnit
		if lenLeft < lenLeftInUnit {
			lenToRead = lenLeft
		}

		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])
		lenLeft -= lenToRead
		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write copies data into memory starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	s.Lock()
	defer s.Unlock()

	return s.write(address, data)
}

func (s *Storage) write(address uint64, data []byte) error {
	if address+uint64(len(data)) > s.capacity {
		return ErrBeyondCapacity
	}

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit, err := s.createOrGetStorageUnit(currAddr)
		if err != nil {
			return err
		}

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenLeftInData := uint64(len(data)) - dataOffset
		lenLeftInUnit := baseAddr + s.unitSize - currAddr
		lenToWrite := lenLeftInUnit
		if lenLeftInData < lenLeftInUnit {
			lenToWrite = lenLeftInData
		}

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

// ReadPage returns a copy of the page that starts at paddr.
func (s *Storage) ReadPage(paddr uint64) ([]byte, error) {
	return s.Read(s.align(paddr), s.unitSize)
}

// WritePage overwrites the page that starts at paddr. Data shorter than a
// page leaves the rest of the page untouched.
func (s *Storage) WritePage(paddr uint64, data []byte) error {
	if uint64(len(data)) > s.unitSize {
		data = data[:s.unitSize]
	}

	return s.Write(s.align(paddr), data)
}

// ZeroPage clears the page that starts at paddr.
func (s *Storage) ZeroPage(paddr uint64) error {
	return s.Write(s.align(paddr), make([]byte, s.unitSize))
}

// CopyPage copies the page at src over the page at dst.
func (s *Storage) CopyPage(dst, src uint64) error {
	s.Lock()
	defer s.Unlock()

	data, err := s.read(s.align(src), s.unitSize)
	if err != nil {
		return err
	}

	return s.write(s.align(dst), data)
}

func (s *Storage) align(addr uint64) uint64 {
	base, _ := s.parseAddress(addr)
	return base
}
