package lock

import (
	"errors"
	"testing"
)

func TestAcquireRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "store.lock")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	_, err = Acquire(dir, "store.lock")
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire: err=%v, want ErrHeld", err)
	}
}

func TestReleaseThenReacquire(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "store.lock")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := Acquire(dir, "store.lock")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	defer second.Release()
}
