// Package datafile implements the append-only, random-readable physical
// file that backs one Bitcask data file. A File moves through three
// states over its lifetime: Writable (the active file, appendable),
// Sealed (immutable, read-only) and Retired (unlinked, draining readers).
package datafile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// State is the lifecycle stage of a data file.
type State int32

const (
	Writable State = iota
	Sealed
	Retired
)

func (s State) String() string {
	switch s {
	case Writable:
		return "writable"
	case Sealed:
		return "sealed"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// ErrSealed is returned by Append once the file has been sealed.
var ErrSealed = errors.New("datafile: file is sealed")

// ErrRetired is returned by ReadAt once the file has been retired.
var ErrRetired = errors.New("datafile: file is retired")

// File is one on-disk data file. Appends are only valid while Writable;
// reads are valid in any state except Retired. Retirement unlinks the
// underlying path but keeps the *os.File handle open until every
// outstanding reference has been released, so in-flight reads on POSIX
// filesystems complete without error even though the directory entry is
// already gone.
type File struct {
	// ID is this file's monotonically increasing file-id, as encoded in
	// its filename.
	ID uint32

	path string

	mu     sync.Mutex // serializes Append and Seal against each other
	f      *os.File
	writer *bufio.Writer

	size atomic.Int64
	state atomic.Int32

	refcount    atomic.Int64
	pendingDrop atomic.Bool
	closed      atomic.Bool

	syncOnWrite bool
}

// OpenWritable creates (or reopens, e.g. after a crash mid-rollover) the
// active data file at path with the given file-id. The initial reference
// count is 1, representing the file map's own entry; callers that hand
// the file to a reader must Acquire first.
func OpenWritable(path string, id uint32, syncOnWrite bool) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("datafile: open writable %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("datafile: stat %s: %w", path, err)
	}

	df := &File{
		ID:          id,
		path:        path,
		f:           f,
		writer:      bufio.NewWriter(f),
		syncOnWrite: syncOnWrite,
	}
	df.size.Store(stat.Size())
	df.refcount.Store(1)
	return df, nil
}

// OpenSealed opens an existing data file read-only, in the Sealed state.
// Used by Recovery (for every existing file), by the file-handle cache
// when it reopens an evicted file, and when a file is retired.
func OpenSealed(path string, id uint32) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datafile: open sealed %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("datafile: stat %s: %w", path, err)
	}

	df := &File{
		ID:   id,
		path: path,
		f:    f,
	}
	df.size.Store(stat.Size())
	df.state.Store(int32(Sealed))
	df.refcount.Store(1)
	return df, nil
}

// Path returns the file's path on disk.
func (df *File) Path() string { return df.path }

// SetPath updates the path the handle reports, used after a merge output
// file is committed by renaming it into its final name.
func (df *File) SetPath(path string) { df.path = path }

// State returns the current lifecycle state.
func (df *File) State() State { return State(df.state.Load()) }

// Size returns the current logical length of the file. While Writable
// this is monotonically non-decreasing as Append succeeds.
func (df *File) Size() int64 { return df.size.Load() }

// Append writes record bytes to the end of the file and returns the
// offset at which they start. Only valid while Writable.
func (df *File) Append(data []byte) (int64, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.State() != Writable {
		return 0, ErrSealed
	}

	offset := df.size.Load()
	n, err := df.writer.Write(data)
	if err != nil {
		return 0, fmt.Errorf("datafile: append to %s: %w", df.path, err)
	}
	if n != len(data) {
		return 0, fmt.Errorf("datafile: short write to %s: wrote %d of %d bytes", df.path, n, len(data))
	}

	if df.syncOnWrite {
		if err := df.flushAndSyncLocked(); err != nil {
			return 0, err
		}
	}

	df.size.Add(int64(len(data)))
	return offset, nil
}

// ReadAt reads length bytes starting at offset. Valid in any state except
// Retired. Safe for concurrent use by any number of callers, including
// concurrently with Append, because it issues a positioned pread against
// the OS file descriptor rather than seeking a shared cursor.
func (df *File) ReadAt(offset int64, length uint32) ([]byte, error) {
	if df.State() == Retired {
		return nil, ErrRetired
	}

	// Appends may still be sitting in the active file's write buffer; a
	// read that lands past what's been flushed would otherwise see a
	// short read even though Append already reported the offset as valid.
	if df.State() == Writable {
		df.mu.Lock()
		if err := df.flushLocked(); err != nil {
			df.mu.Unlock()
			return nil, err
		}
		df.mu.Unlock()
	}

	buf := make([]byte, length)
	n, err := df.f.ReadAt(buf, offset)
	if err != nil && n != int(length) {
		return nil, fmt.Errorf("datafile: read %d bytes at %d from %s: %w", length, offset, df.path, err)
	}
	return buf, nil
}

// Seal flushes buffered writes to the OS and transitions the file to
// Sealed. After Seal returns, Append always fails with ErrSealed.
func (df *File) Seal() error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.State() != Writable {
		return nil
	}
	if err := df.flushAndSyncLocked(); err != nil {
		return err
	}
	df.state.Store(int32(Sealed))
	return nil
}

func (df *File) flushLocked() error {
	if df.writer == nil {
		return nil
	}
	if err := df.writer.Flush(); err != nil {
		return fmt.Errorf("datafile: flush %s: %w", df.path, err)
	}
	return nil
}

func (df *File) flushAndSyncLocked() error {
	if err := df.flushLocked(); err != nil {
		return err
	}
	if err := df.f.Sync(); err != nil {
		return fmt.Errorf("datafile: sync %s: %w", df.path, err)
	}
	return nil
}

// Acquire increments the reference count. Pair with a deferred Release.
// Callers that hold onto a *File across an I/O call (e.g. a reader that
// looked the file up in the file map and is about to ReadAt) must do this
// so that a concurrent Retire cannot close the handle out from under them.
func (df *File) Acquire() { df.refcount.Add(1) }

// Release decrements the reference count. If the handle has been marked
// for drop (via Close or Retire) and this was the last outstanding
// reference, the underlying file descriptor is closed now.
//
// Close and Retire may race with a reader's own Acquire/Release pair, and
// Retire on an already-evicted (and therefore already Close-pending)
// handle can observe the reference count cross zero more than once; the
// closed flag makes the actual os.File.Close idempotent so that race is
// harmless.
func (df *File) Release() {
	if df.refcount.Add(-1) <= 0 && df.pendingDrop.Load() {
		if df.closed.CompareAndSwap(false, true) {
			df.f.Close()
		}
	}
}

// Close closes the underlying file descriptor without unlinking the
// path, deferring the close if readers still hold a reference. Used by
// the bounded file-handle cache when it evicts a sealed file: the file
// stays on disk and will simply be reopened on the next Resolve.
func (df *File) Close() error {
	df.pendingDrop.Store(true)
	df.Release() // drop the cache's own reference
	return nil
}

// Unlink removes the underlying path from disk and marks the file
// Retired, without touching the reference count. In-flight reads keep
// working because the open file descriptor survives an unlink on POSIX
// filesystems; new reads via ReadAt are rejected immediately (ErrRetired)
// since they'd otherwise race the descriptor's eventual close. Callers
// that already dropped their own reference to this handle (e.g. by
// evicting it from a cache via Close) should call Unlink rather than
// Retire, so the reference count isn't decremented twice for one logical
// ownership slot.
func (df *File) Unlink() error {
	df.state.Store(int32(Retired))
	if err := os.Remove(df.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("datafile: unlink %s: %w", df.path, err)
	}
	return nil
}

// Retire unlinks the underlying file and marks it Retired, then releases
// the caller's own reference (the file map's initial reference, for a
// handle that was never shared with a cache). The open file descriptor
// remains valid for any reader that still holds a reference until that
// reader releases it too.
func (df *File) Retire() error {
	if err := df.Unlink(); err != nil {
		return err
	}
	df.pendingDrop.Store(true)
	df.Release()
	return nil
}
