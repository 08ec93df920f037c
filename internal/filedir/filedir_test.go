package filedir

import (
	"os"
	"testing"
)

func openTestDir(t *testing.T) *Directory {
	t.Helper()
	d, err := Open(t.TempDir(), "test.lock", false, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewActiveAndResolve(t *testing.T) {
	d := openTestDir(t)

	df, err := d.NewActive()
	if err != nil {
		t.Fatalf("NewActive: %v", err)
	}
	if _, err := df.Append([]byte("hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	resolved, err := d.Resolve(df.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer resolved.Release()

	data, err := resolved.ReadAt(0, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadAt = %q, want hello", data)
	}
}

func TestSealActiveMovesIntoCache(t *testing.T) {
	d := openTestDir(t)

	df, err := d.NewActive()
	if err != nil {
		t.Fatalf("NewActive: %v", err)
	}
	id := df.ID

	if err := d.SealActive(); err != nil {
		t.Fatalf("SealActive: %v", err)
	}

	resolved, err := d.Resolve(id)
	if err != nil {
		t.Fatalf("Resolve after seal: %v", err)
	}
	resolved.Release()
}

func TestRetireUnlinksFile(t *testing.T) {
	d := openTestDir(t)

	df, err := d.NewActive()
	if err != nil {
		t.Fatalf("NewActive: %v", err)
	}
	id := df.ID
	path := df.Path()

	if err := d.SealActive(); err != nil {
		t.Fatalf("SealActive: %v", err)
	}
	if err := d.Retire(id); err != nil {
		t.Fatalf("Retire: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err=%v", path, err)
	}
	if _, err := d.Resolve(id); err == nil {
		t.Fatal("expected Resolve of a retired file-id to fail")
	}
}

func TestAllocateIDIsDisjointAcrossRolloverAndMerge(t *testing.T) {
	d := openTestDir(t)

	if _, err := d.NewActive(); err != nil {
		t.Fatalf("NewActive: %v", err)
	}

	merge, err := d.CreateMergeOutput()
	if err != nil {
		t.Fatalf("CreateMergeOutput: %v", err)
	}
	if _, err := d.NewActive(); err != nil {
		t.Fatalf("second NewActive: %v", err)
	}

	if err := d.CommitMergeOutput(merge); err != nil {
		t.Fatalf("CommitMergeOutput: %v", err)
	}

	seen := make(map[uint32]bool)
	for _, id := range d.IDs() {
		if seen[id] {
			t.Fatalf("duplicate file-id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Fatalf("IDs() = %v, want 3 distinct file-ids (two active files, one merge output)", d.IDs())
	}
}

func TestReopenRecognizesExistingDataFiles(t *testing.T) {
	dir := t.TempDir()

	d1, err := Open(dir, "test.lock", false, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := d1.NewActive(); err != nil {
		t.Fatalf("NewActive: %v", err)
	}
	if err := d1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d2, err := Open(dir, "test.lock", false, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d2.Close()

	if len(d2.IDs()) != 1 {
		t.Fatalf("IDs() = %v, want exactly 1 recognized file", d2.IDs())
	}
}

func TestCleanMergeDebrisOnOpen(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/0000000005.merge", []byte("debris"), 0644); err != nil {
		t.Fatalf("write debris: %v", err)
	}

	d, err := Open(dir, "test.lock", false, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(dir + "/0000000005.merge"); !os.IsNotExist(err) {
		t.Fatalf("expected merge debris to be removed, stat err=%v", err)
	}
}
