// Package internal provides the definition required for defining TLB.
package internal

// A Block is one TLB slot.
type Block struct {
	VPage    uint64
	PAddr    uint64
	Valid    bool
	Writable bool
}

// A Set holds a certain number of blocks. Each virtual page is held by at
// most one valid block.
type Set interface {
	Lookup(vPage uint64) (wayID int, block Block, found bool)
	Block(wayID int) Block
	Update(wayID int, block Block)
	FindInvalid() (wayID int, found bool)
	Evict() (wayID int)
	Reset()
	NumWays() int
}

// NewSet creates a new TLB set with every block invalid.
func NewSet(numWays int) Set {
	s := &SetImpl{}
	s.blocks = make([]Block, numWays)
	s.vPageWayIDMap = make(map[uint64]int)

	return s
}

// SetImpl is a fully associative set that replaces blocks round-robin.
type SetImpl struct {
	blocks        []Block
	vPageWayIDMap map[uint64]int
	nextVictim    int
}

// Lookup finds the valid block that holds vPage.
func (s *SetImpl) Lookup(vPage uint64) (wayID int, block Block, found bool) {
	wayID, ok := s.vPageWayIDMap[vPage]
	if !ok {
		return 0, Block{}, false
	}

	return wayID, s.blocks[wayID], true
}

// Block returns the content of a way.
func (s *SetImpl) Block(wayID int) Block {
	return s.blocks[wayID]
}

// Update overwrites a way.
func (s *SetImpl) Update(wayID int, block Block) {
	old := s.blocks[wayID]
	if old.Valid {
		delete(s.vPageWayIDMap, old.VPage)
	}

	if block.Valid {
		if other, ok := s.vPageWayIDMap[block.VPage]; ok && other != wayID {
			s.blocks[other].Valid = false
		}

		s.vPageWayIDMap[block.VPage] = wayID
	}

	s.blocks[wayID] = block
}

// FindInvalid returns the first way that holds no translation.
func (s *SetImpl) FindInvalid() (wayID int, found bool) {
	for i, b := range s.blocks {
		if !b.Valid {
			return i, true
		}
	}

	return 0, false
}

// Evict returns the next way in round-robin order. The pointer only moves
// when a victim is taken.
func (s *SetImpl) Evict() (wayID int) {
	wayID = s.nextVictim
	s.nextVictim = (s.nextVictim + 1) % len(s.blocks)

	return wayID
}

// Reset invalidates every way and moves the victim pointer back to way 0.
func (s *SetImpl) Reset() {
	for i := range s.blocks {
		s.blocks[i] = Block{}
	}

	s.vPageWayIDMap = make(map[uint64]int)
	s.nextVictim = 0
}

// NumWays returns the number of ways.
func (s *SetImpl) NumWays() int {
	return len(s.blocks)
}
