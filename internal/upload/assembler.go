// Package upload reassembles chunked uploads on local disk.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"filescdn/internal/storage"
)

var (
	ErrOutOfOrderChunk = errors.New("chunk out of order")
	ErrNotActive       = errors.New("no active upload for file id")
	ErrAlreadyActive   = errors.New("upload already active for file id")
)

// IOError wraps a storage failure during assembly. It is never retried here.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Assembler keeps exactly one open write handle per active file id and appends chunks
// to it in order. Appends for the same id are serialized.
type Assembler struct {
	disk *storage.Disk

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	next    int
	written int64
}

func NewAssembler(disk *storage.Disk) *Assembler {
	return &Assembler{disk: disk, entries: make(map[string]*entry)}
}

// Begin creates (or truncates) the file at path and expects chunk 1 next.
func (a *Assembler) Begin(fileID, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.entries[fileID]; ok {
		return ErrAlreadyActive
	}
	f, err := a.disk.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	a.entries[fileID] = &entry{f: f, path: path, next: 1}
	return nil
}

// Append writes one chunk. chunkID must be the next expected index.
func (a *Assembler) Append(fileID string, chunkID int, r io.Reader) (int64, error) {
	e := a.lookup(fileID)
	if e == nil {
		return 0, ErrNotActive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.f == nil {
		return 0, ErrNotActive
	}
	if chunkID != e.next {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrOutOfOrderChunk, e.next, chunkID)
	}

	n, err := io.Copy(e.f, r)
	if err != nil {
		return n, &IOError{Op: "write", Path: e.path, Err: err}
	}
	e.next++
	e.written += n
	return n, nil
}

// Written returns the number of bytes appended so far.
func (a *Assembler) Written(fileID string) (int64, bool) {
	e := a.lookup(fileID)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written, true
}

// Finalize flushes and closes the write handle and forgets the upload.
func (a *Assembler) Finalize(fileID string) (string, int64, error) {
	e := a.take(fileID)
	if e == nil {
		return "", 0, ErrNotActive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.f
	e.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return e.path, e.written, &IOError{Op: "sync", Path: e.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return e.path, e.written, &IOError{Op: "close", Path: e.path, Err: err}
	}
	return e.path, e.written, nil
}

// Discard closes the write handle, if any, and deletes the partial file.
func (a *Assembler) Discard(fileID string) error {
	e := a.take(fileID)
	if e == nil {
		return ErrNotActive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.f != nil {
		e.f.Close()
		e.f = nil
	}
	if err := a.disk.Remove(e.path); err != nil {
		return &IOError{Op: "remove", Path: e.path, Err: err}
	}
	return nil
}

// Active returns the number of uploads with an open handle.
func (a *Assembler) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *Assembler) lookup(fileID string) *entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[fileID]
}

func (a *Assembler) take(fileID string) *entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entries[fileID]
	delete(a.entries, fileID)
	return e
}
