// Package lock guards a store directory against being opened by two
// processes at once, using an advisory file lock so acquisition is atomic
// and release is automatic on process exit even if the process is killed
// before a clean Close.
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned by Acquire when another process already holds the
// store's lock.
var ErrHeld = errors.New("lock: store directory is locked by another process")

// Lock wraps a gofrs/flock.Flock scoped to one store directory.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive, non-blocking lock on name (a well-known
// filename) inside dir. It fails fast with ErrHeld rather than waiting,
// matching the spec's requirement that a second process opening the same
// store be rejected rather than queued.
func Acquire(dir, name string) (*Lock, error) {
	fl := flock.New(filepath.Join(dir, name))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lock{fl: fl}, nil
}

// Release gives up the lock. Safe to call once; further calls are no-ops.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("lock: release %s: %w", l.fl.Path(), err)
	}
	return nil
}
