// Package workload runs processes against the virtual memory system: it
// loads them, forks them, and makes them touch their memory at random.
package workload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/addrspace"
	"github.com/sarchlab/osvm/mem/vm/loader"
	"github.com/sarchlab/osvm/mem/vm/mmu"
)

// Where the program segments are placed, as a MIPS linker would.
const (
	TextBase uint64 = 0x00400000
	DataBase uint64 = 0x10000000
)

// A Progress is told about every finished access.
type Progress interface {
	IncrementFinished(amount uint64)
}

// Config describes a workload.
type Config struct {
	NumProcs    int
	NumAccesses int
	Seed        int64

	TextPages int
	DataPages int

	// WildRate is the probability that an access writes the text segment or
	// falls outside the address space. Such accesses kill the process.
	WildRate float64
}

// DefaultConfig returns a small workload.
func DefaultConfig() Config {
	return Config{
		NumProcs:    4,
		NumAccesses: 10000,
		Seed:        1,
		TextPages:   4,
		DataPages:   3,
	}
}

// Result summarizes a run.
type Result struct {
	Accesses int
	Killed   map[vm.PID]error
	Exited   []vm.PID
}

type process struct {
	as        *addrspace.AddressSpace
	kernelMem uint64
}

// Driver runs a workload. It is the process terminator of the mmu it runs
// on.
type Driver struct {
	config   Config
	mmu      *mmu.Comp
	rng      *rand.Rand
	progress Progress

	steps atomic.Uint64

	pauseLock sync.Mutex
	paused    bool
	resumed   *sync.Cond

	killLock sync.Mutex
	killed   map[vm.PID]error
}

// NewDriver creates a driver for config.
func NewDriver(config Config) *Driver {
	d := &Driver{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		killed: make(map[vm.PID]error),
	}
	d.resumed = sync.NewCond(&d.pauseLock)

	return d
}

// Attach sets the mmu that the workload runs on.
func (d *Driver) Attach(m *mmu.Comp) {
	d.mmu = m
}

// WithProgress reports every access to p.
func (d *Driver) WithProgress(p Progress) *Driver {
	d.progress = p
	return d
}

// Terminate records that the mmu killed a process.
func (d *Driver) Terminate(pid vm.PID, err error) {
	d.killLock.Lock()
	defer d.killLock.Unlock()

	d.killed[pid] = err
}

func (d *Driver) isKilled(pid vm.PID) bool {
	d.killLock.Lock()
	defer d.killLock.Unlock()

	_, ok := d.killed[pid]

	return ok
}

// Pause stops the workload before its next access.
func (d *Driver) Pause() {
	d.pauseLock.Lock()
	defer d.pauseLock.Unlock()

	d.paused = true
}

// Continue resumes a paused workload.
func (d *Driver) Continue() {
	d.pauseLock.Lock()
	defer d.pauseLock.Unlock()

	d.paused = false
	d.resumed.Broadcast()
}

func (d *Driver) waitIfPaused() {
	d.pauseLock.Lock()
	defer d.pauseLock.Unlock()

	for d.paused {
		d.resumed.Wait()
	}
}

// Steps returns the number of accesses made so far.
func (d *Driver) Steps() uint64 {
	return d.steps.Load()
}

// ProgramImage generates an executable image with the given number of text
// and data pages. Every word holds its own file offset.
func ProgramImage(textPages, dataPages int, log2PageSize uint64) []byte {
	image := make([]byte, (textPages+dataPages)<<log2PageSize)
	for off := 0; off+4 <= len(image); off += 4 {
		binary.LittleEndian.PutUint32(image[off:], uint32(off))
	}

	return image
}

// Run loads the program into NumProcs processes, forks each of them, and
// makes NumAccesses random accesses. Every process is destroyed at the end.
// If exe is nil, a generated image is used.
func (d *Driver) Run(exe loader.Executable) (*Result, error) {
	if d.mmu == nil {
		return nil, fmt.Errorf("no mmu attached")
	}

	if exe == nil {
		exe = loader.NewExecutable("workload", bytes.NewReader(ProgramImage(
			d.config.TextPages, d.config.DataPages, d.mmu.Log2PageSize())),
			nil)
	}
	defer exe.Release()

	procs, err := d.startProcesses(exe)
	if err != nil {
		d.destroyAll(procs)
		return nil, err
	}

	res := &Result{Killed: make(map[vm.PID]error)}

	for i := 0; i < d.config.NumAccesses && len(procs) > 0; i++ {
		d.waitIfPaused()

		n := d.rng.Intn(len(procs))
		if !d.step(procs[n]) {
			d.destroy(procs[n])
			procs = append(procs[:n], procs[n+1:]...)
		}

		res.Accesses++
		d.steps.Add(1)

		if d.progress != nil {
			d.progress.IncrementFinished(1)
		}
	}

	for _, p := range procs {
		res.Exited = append(res.Exited, p.as.PID)
	}

	d.destroyAll(procs)

	d.killLock.Lock()
	for pid, err := range d.killed {
		res.Killed[pid] = err
	}
	d.killLock.Unlock()

	return res, nil
}

func (d *Driver) startProcesses(exe loader.Executable) ([]*process, error) {
	procs := make([]*process, 0, 2*d.config.NumProcs)

	for i := 0; i < d.config.NumProcs; i++ {
		p, err := d.load(vm.PID(i+1), exe)
		if err != nil {
			return procs, err
		}

		procs = append(procs, p)
	}

	for _, parent := range procs[:d.config.NumProcs] {
		child, err := d.fork(parent, parent.as.PID+vm.PID(d.config.NumProcs))
		if err != nil {
			return procs, err
		}

		procs = append(procs, child)
	}

	return procs, nil
}

func (d *Driver) load(pid vm.PID, exe loader.Executable) (*process, error) {
	pageSize := uint64(1) << d.mmu.Log2PageSize()
	textSize := uint64(d.config.TextPages) * pageSize
	dataSize := uint64(d.config.DataPages) * pageSize

	exe.Retain()

	as := d.mmu.NewAddressSpace(pid)
	as.Executable = exe

	p := &process{as: as}

	err := as.DefineRegion(TextBase, textSize, 0, true, false)
	if err == nil {
		err = as.DefineRegion(DataBase, dataSize, int64(textSize), true, true)
	}

	if err == nil {
		p.kernelMem, err = d.mmu.AllocKernelPages(1)
	}

	if err != nil {
		d.destroy(p)
		return nil, err
	}

	d.mmu.Activate(as)
	as.PrepareLoad()

	// The loader patches the entry point of the program.
	err = d.mmu.CopyOut(TextBase, []byte{0x08, 0x00, 0xe0, 0x03})
	if err != nil {
		d.destroy(p)
		return nil, err
	}

	d.mmu.CompleteLoad(as)

	return p, nil
}

func (d *Driver) fork(parent *process, pid vm.PID) (*process, error) {
	as, err := d.mmu.CopyAddressSpace(parent.as, pid)
	if err != nil {
		return nil, err
	}

	child := &process{as: as}

	child.kernelMem, err = d.mmu.AllocKernelPages(1)
	if err != nil {
		d.destroy(child)
		return nil, err
	}

	return child, nil
}

// step makes one access on behalf of p and tells if p is still alive.
func (d *Driver) step(p *process) bool {
	d.mmu.Activate(p.as)

	vAddr, write := d.pickAccess(p.as)

	var err error
	if write {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, d.rng.Uint32())
		err = d.mmu.CopyOut(vAddr, buf)
	} else {
		_, err = d.mmu.CopyIn(vAddr, 4)
	}

	if err != nil && !d.isKilled(p.as.PID) {
		log.Panicf("pid %d failed an access at %#x without being killed: %v",
			p.as.PID, vAddr, err)
	}

	return err == nil
}

func (d *Driver) pickAccess(as *addrspace.AddressSpace) (uint64, bool) {
	if d.rng.Float64() < d.config.WildRate {
		if d.rng.Intn(2) == 0 {
			return TextBase, true
		}

		return DataBase - 4, false
	}

	write := d.rng.Intn(2) == 0

	switch d.rng.Intn(3) {
	case 0:
		seg := as.SegmentByBase(TextBase)
		return seg.VBase + d.wordIn(seg.Size), false
	case 1:
		seg := as.SegmentByBase(DataBase)
		return seg.VBase + d.wordIn(seg.Size), write
	default:
		return as.StackBase + d.wordIn(as.StackTop-as.StackBase), write
	}
}

func (d *Driver) wordIn(size uint64) uint64 {
	return uint64(d.rng.Int63n(int64(size/4))) * 4
}

func (d *Driver) destroy(p *process) {
	if p.kernelMem != 0 {
		d.mmu.FreeKernelPages(p.kernelMem)
		p.kernelMem = 0
	}

	err := d.mmu.DestroyAddressSpace(p.as)
	if err != nil {
		log.Printf("destroying pid %d: %v", p.as.PID, err)
	}
}

func (d *Driver) destroyAll(procs []*process) {
	for _, p := range procs {
		d.destroy(p)
	}
}
