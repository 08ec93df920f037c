package datafile

import (
	"path/filepath"
	"testing"
)

func TestAppendAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000000000.data")
	df, err := OpenWritable(path, 0, false)
	if err != nil {
		t.Fatalf("OpenWritable() error = %v", err)
	}
	defer df.Release()

	off1, err := df.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if off1 != 0 {
		t.Fatalf("first offset = %d, want 0", off1)
	}

	off2, err := df.Append([]byte("world!"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if off2 != 5 {
		t.Fatalf("second offset = %d, want 5", off2)
	}

	got, err := df.ReadAt(0, 5)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("ReadAt(0,5) = %q, want %q", got, "hello")
	}

	got, err = df.ReadAt(5, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(got) != "world!" {
		t.Errorf("ReadAt(5,6) = %q, want %q", got, "world!")
	}

	if df.Size() != 11 {
		t.Errorf("Size() = %d, want 11", df.Size())
	}
}

func TestSealForbidsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000000000.data")
	df, err := OpenWritable(path, 0, false)
	if err != nil {
		t.Fatalf("OpenWritable() error = %v", err)
	}
	defer df.Release()

	if _, err := df.Append([]byte("x")); err != nil {
		t.Fatalf("Append() before seal error = %v", err)
	}
	if err := df.Seal(); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if df.State() != Sealed {
		t.Fatalf("State() = %v, want Sealed", df.State())
	}
	if _, err := df.Append([]byte("y")); err != ErrSealed {
		t.Errorf("Append() after seal error = %v, want ErrSealed", err)
	}

	// Reads must still work after sealing.
	got, err := df.ReadAt(0, 1)
	if err != nil || string(got) != "x" {
		t.Errorf("ReadAt() after seal = (%q, %v), want (%q, nil)", got, err, "x")
	}
}

func TestRetireUnlinksButReadersFinish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000000000.data")
	df, err := OpenWritable(path, 0, false)
	if err != nil {
		t.Fatalf("OpenWritable() error = %v", err)
	}
	if _, err := df.Append([]byte("payload")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := df.Seal(); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// Simulate a reader that has already looked this file up in the file
	// map and is about to read it.
	df.Acquire()

	if err := df.Retire(); err != nil {
		t.Fatalf("Retire() error = %v", err)
	}
	if df.State() != Retired {
		t.Fatalf("State() = %v, want Retired", df.State())
	}

	// The in-flight reader's read must still succeed even though the path
	// is gone.
	got, err := df.f.ReadAt(make([]byte, 7), 0)
	_ = got
	if err != nil {
		t.Errorf("read after retire (still referenced) error = %v", err)
	}

	// New reads via the public API are rejected once retired.
	if _, err := df.ReadAt(0, 7); err != ErrRetired {
		t.Errorf("ReadAt() after retire error = %v, want ErrRetired", err)
	}

	df.Release() // matches the Acquire above; closes the underlying fd
}
