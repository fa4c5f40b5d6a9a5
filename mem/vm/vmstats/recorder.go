package vmstats

import (
	"sync"

	"github.com/sarchlab/osvm/datarecording"
	"github.com/sarchlab/osvm/sim"
)

// EventTableName is the table the Recorder writes events to.
const EventTableName = "vm_event"

// CounterTableName is the table the Recorder writes the final counters to.
const CounterTableName = "vm_counter"

// EventEntry is a row of the event table.
type EventEntry struct {
	ID        string
	Seq       uint64
	Component string
	What      string
	PID       uint32
	VAddr     uint64
	PAddr     uint64
	Slot      int
	Detail    string
}

// CounterEntry is a row of the counter table.
type CounterEntry struct {
	Name  string
	Value uint64
}

// Recorder stores every VM event in a data recorder.
type Recorder struct {
	lock        sync.Mutex
	recorder    datarecording.DataRecorder
	idGenerator sim.IDGenerator
	seq         uint64
}

// NewRecorder creates the event tables and returns a hook that fills them.
func NewRecorder(
	recorder datarecording.DataRecorder,
	idGenerator sim.IDGenerator,
) *Recorder {
	recorder.CreateTable(EventTableName, EventEntry{})
	recorder.CreateTable(CounterTableName, CounterEntry{})

	return &Recorder{
		recorder:    recorder,
		idGenerator: idGenerator,
	}
}

// Func records the event.
func (r *Recorder) Func(ctx sim.HookCtx) {
	e := EventFromHook(ctx)

	r.lock.Lock()
	r.seq++
	seq := r.seq
	r.lock.Unlock()

	r.recorder.InsertData(EventTableName, EventEntry{
		ID:        r.idGenerator.Generate(),
		Seq:       seq,
		Component: e.Component,
		What:      e.What,
		PID:       e.PID,
		VAddr:     e.VAddr,
		PAddr:     e.PAddr,
		Slot:      e.Slot,
		Detail:    e.Detail,
	})
}

// RecordCounters stores the current value of every counter.
func (r *Recorder) RecordCounters(s *Stats) {
	for c := Counter(0); c < NumCounters; c++ {
		r.recorder.InsertData(CounterTableName,
			CounterEntry{Name: c.String(), Value: s.Get(c)})
	}

	r.recorder.Flush()
}
