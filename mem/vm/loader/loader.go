// Package loader provides the backing executables that segments are demand
// paged from.
package loader

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// An Executable is an open program file shared by every address space that
// runs it. It is reference counted; the file is closed when the last
// reference is released.
type Executable interface {
	io.ReaderAt

	Name() string
	Retain()
	Release() error
}

type executable struct {
	sync.Mutex

	name   string
	reader io.ReaderAt
	closer io.Closer
	refs   int
}

// OpenExecutable opens the file at path with a single reference.
func OpenExecutable(path string) (Executable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening executable: %w", err)
	}

	return NewExecutable(path, f, f), nil
}

// NewExecutable wraps a reader as an executable with a single reference.
// The closer may be nil.
func NewExecutable(
	name string,
	reader io.ReaderAt,
	closer io.Closer,
) Executable {
	return &executable{
		name:   name,
		reader: reader,
		closer: closer,
		refs:   1,
	}
}

func (e *executable) Name() string {
	return e.name
}

func (e *executable) ReadAt(p []byte, off int64) (int, error) {
	e.Lock()
	released := e.refs == 0
	e.Unlock()

	if released {
		log.Panicf("reading executable %s after its last release", e.name)
	}

	return e.reader.ReadAt(p, off)
}

func (e *executable) Retain() {
	e.Lock()
	defer e.Unlock()

	if e.refs == 0 {
		log.Panicf("retaining executable %s after its last release", e.name)
	}

	e.refs++
}

func (e *executable) Release() error {
	e.Lock()
	defer e.Unlock()

	if e.refs == 0 {
		log.Panicf("executable %s released too many times", e.name)
	}

	e.refs--
	if e.refs > 0 || e.closer == nil {
		return nil
	}

	return e.closer.Close()
}

// Memory is where loaded bytes are written.
type Memory interface {
	Write(address uint64, data []byte) error
}

// A Loader copies part of an executable into physical memory.
type Loader interface {
	// LoadBytes reads at most maxLen bytes at fileOffset into the frame at
	// pAddr and returns how many bytes came from the file. Bytes past the
	// end of the file are zero.
	LoadBytes(
		exe Executable,
		fileOffset int64,
		pAddr uint64,
		maxLen int,
	) (int, error)
}

// FileLoader is the Loader that reads straight from the executable.
type FileLoader struct {
	memory Memory
}

// NewFileLoader creates a FileLoader that writes into memory.
func NewFileLoader(memory Memory) *FileLoader {
	return &FileLoader{memory: memory}
}

// LoadBytes implements Loader.
func (l *FileLoader) LoadBytes(
	exe Executable,
	fileOffset int64,
	pAddr uint64,
	maxLen int,
) (int, error) {
	buf := make([]byte, maxLen)

	n, err := exe.ReadAt(buf, fileOffset)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("reading %s at %d: %w", exe.Name(), fileOffset, err)
	}

	err = l.memory.Write(pAddr, buf)
	if err != nil {
		return n, err
	}

	return n, nil
}
