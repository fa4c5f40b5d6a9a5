package vmstats

import (
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/osvm/sim"
)

// LogHook prints every VM event through a logger.
type LogHook struct {
	sim.LogHookBase
}

// NewLogHook creates a LogHook that writes to logger.
func NewLogHook(logger *log.Logger) *LogHook {
	h := new(LogHook)
	h.Logger = logger

	return h
}

// Func logs the event.
func (h *LogHook) Func(ctx sim.HookCtx) {
	e := EventFromHook(ctx)

	msg := fmt.Sprintf("%s %s pid=%d vaddr=%#x paddr=%#x",
		e.Component, e.What, e.PID, e.VAddr, e.PAddr)

	if e.Slot >= 0 {
		msg += fmt.Sprintf(" slot=%d", e.Slot)
	}

	if e.Detail != "" {
		msg += " " + e.Detail
	}

	h.Print(msg)
}

// A Tracer writes one CSV line per VM event.
type Tracer struct {
	writer io.Writer
	seq    uint64
}

// NewTracer produce a new Tracer, injecting the dependency of a writer.
func NewTracer(w io.Writer) *Tracer {
	t := new(Tracer)
	t.writer = w

	return t
}

// Func prints the trace line.
func (t *Tracer) Func(ctx sim.HookCtx) {
	e := EventFromHook(ctx)
	t.seq++

	_, err := fmt.Fprintf(t.writer,
		"%d,%s,%s,%d,%#x,%#x,%d\n",
		t.seq, e.Component, e.What, e.PID, e.VAddr, e.PAddr, e.Slot)
	if err != nil {
		panic(err)
	}
}
