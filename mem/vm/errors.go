package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory means no frame could be found, even after eviction.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrSegmentationFault means an access fell outside every segment and
	// the stack, or wrote to memory that is not writable (EFAULT).
	ErrSegmentationFault = errors.New("segmentation fault")

	// ErrUnimplemented is returned for requests the VM deliberately does not
	// support, such as a third region (EUNIMP).
	ErrUnimplemented = errors.New("unimplemented")

	// ErrSwapFull means every swap slot is taken. It is an out-of-memory
	// condition for the operation that needed the eviction.
	ErrSwapFull = fmt.Errorf("swap space exhausted: %w", ErrOutOfMemory)
)

// InvalidFaultError is the panic value raised when the hardware reports a
// fault code the handler does not know. It indicates a kernel bug.
type InvalidFaultError struct {
	Type  FaultType
	VAddr uint64
}

func (e InvalidFaultError) Error() string {
	return fmt.Sprintf("invalid fault type %d at %#x", int(e.Type), e.VAddr)
}

// InvariantViolation is the panic value raised when the kernel discovers that
// its own bookkeeping is inconsistent.
type InvariantViolation struct {
	What string
}

func (e InvariantViolation) Error() string {
	return "kernel invariant violated: " + e.What
}
