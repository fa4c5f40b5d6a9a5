package vmstats

import (
	"fmt"

	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/sim"
)

type namer interface {
	Name() string
}

// Event is the flattened form of a hook invocation.
type Event struct {
	Component string
	What      string
	PID       uint32
	VAddr     uint64
	PAddr     uint64
	Slot      int
	Detail    string
}

// EventFromHook flattens a hook invocation. The fields that the item does not
// carry are left zero, and Slot is -1 unless the event is about a TLB slot.
func EventFromHook(ctx sim.HookCtx) Event {
	e := Event{Slot: -1}

	if n, ok := ctx.Domain.(namer); ok {
		e.Component = n.Name()
	}

	if ctx.Pos != nil {
		e.What = ctx.Pos.Name
	}

	switch item := ctx.Item.(type) {
	case vm.FaultEvent:
		e.PID = uint32(item.PID)
		e.VAddr = item.VAddr
		e.Detail = item.Type.String()
	case vm.PageEvent:
		e.PID = uint32(item.PID)
		e.VAddr = item.VAddr
		e.PAddr = item.PAddr
	case vm.TLBEvent:
		e.VAddr = item.VAddr
		e.PAddr = item.PAddr
		e.Slot = item.Slot
	}

	if ctx.Detail != nil {
		if e.Detail != "" {
			e.Detail += ": "
		}

		e.Detail += fmt.Sprint(ctx.Detail)
	}

	return e
}
