// Package filedir enumerates, names and orders the data files that make up
// a store directory, owns the directory lock, and resolves file-ids to
// open handles for readers — caching a bounded working set of sealed
// file handles and reopening from disk on demand once evicted.
package filedir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/golang/groupcache/lru"

	"github.com/aetherkv/bitcask/internal/datafile"
	"github.com/aetherkv/bitcask/internal/lock"
)

const (
	dataSuffix  = ".data"
	mergeSuffix = ".merge"
	idWidth     = 10
)

// DataFileName returns the conventional filename for file-id on disk:
// a fixed-width, zero-padded decimal so that lexicographic order matches
// numeric order.
func DataFileName(id uint32) string {
	return fmt.Sprintf("%0*d%s", idWidth, id, dataSuffix)
}

func mergeFileName(id uint32) string {
	return fmt.Sprintf("%0*d%s", idWidth, id, mergeSuffix)
}

func parseDataFileID(name string) (uint32, bool) {
	if !strings.HasSuffix(name, dataSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(name, dataSuffix)
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Directory owns the store's on-disk namespace: the directory lock, the
// active file, and a bounded cache of open sealed-file handles.
type Directory struct {
	dir         string
	syncOnWrite bool
	lk          *lock.Lock

	nextID atomic.Uint32

	mu     sync.Mutex
	paths  map[uint32]string // every known file-id -> path, active included
	active *datafile.File
	cache  *lru.Cache // sealed file-id -> *datafile.File
}

// Open acquires the store-directory lock, creates dir if missing, deletes
// any debris left by a merge that crashed before it could rename its
// output into place, and enumerates the existing data files in file-id
// order. It does not itself create the active file or run recovery —
// that is the caller's (the root bitcask package's) job, since only it
// knows whether an existing file should become active or a fresh one
// should be started.
func Open(dir, lockFileName string, syncOnWrite bool, handleCacheSize int) (*Directory, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("filedir: create %s: %w", dir, err)
	}

	lk, err := lock.Acquire(dir, lockFileName)
	if err != nil {
		return nil, err
	}

	d := &Directory{
		dir:         dir,
		syncOnWrite: syncOnWrite,
		lk:          lk,
		paths:       make(map[uint32]string),
		cache:       lru.New(handleCacheSize),
	}
	d.cache.OnEvicted = func(key lru.Key, value interface{}) {
		value.(*datafile.File).Close()
	}

	if err := d.cleanMergeDebris(); err != nil {
		lk.Release()
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		lk.Release()
		return nil, fmt.Errorf("filedir: read %s: %w", dir, err)
	}

	var ids []uint32
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseDataFileID(e.Name())
		if !ok {
			continue // unrecognized file: ignored, not deleted
		}
		ids = append(ids, id)
		d.paths[id] = filepath.Join(dir, e.Name())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var maxID uint32
	var haveAny bool
	for _, id := range ids {
		if !haveAny || id > maxID {
			maxID = id
			haveAny = true
		}
	}
	if haveAny {
		d.nextID.Store(maxID + 1)
	}

	return d, nil
}

// cleanMergeDebris deletes any ".merge" file: it is either mid-write (the
// merger that produced it never reached the commit rename) or was never
// referenced by a committed keydir, so it is always safe to discard.
func (d *Directory) cleanMergeDebris() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("filedir: read %s: %w", d.dir, err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), mergeSuffix) {
			if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("filedir: remove merge debris %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// IDs returns every known data file-id, ascending.
func (d *Directory) IDs() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]uint32, 0, len(d.paths))
	for id := range d.paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OpenForRecovery opens file-id read-only for the sequential scan
// Recovery performs. The caller owns the returned handle and must Close
// it when done; it is not placed in the cache (Recovery walks every file
// exactly once, so caching would only cost memory for no benefit).
func (d *Directory) OpenForRecovery(id uint32) (*datafile.File, error) {
	d.mu.Lock()
	path, ok := d.paths[id]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("filedir: unknown file-id %d", id)
	}
	return datafile.OpenSealed(path, id)
}

// AllocateID hands out the next file-id, atomically. Both active-file
// rollover and merge output allocate from this single counter, which is
// what keeps the two id sequences disjoint even though they run
// concurrently.
func (d *Directory) AllocateID() uint32 {
	return d.nextID.Add(1) - 1
}

// NewActive creates and installs a fresh active file at a newly allocated
// file-id, recording its path. The caller is responsible for sealing any
// previous active file first.
func (d *Directory) NewActive() (*datafile.File, error) {
	id := d.AllocateID()
	path := filepath.Join(d.dir, DataFileName(id))

	df, err := datafile.OpenWritable(path, id, d.syncOnWrite)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.paths[id] = path
	d.active = df
	d.mu.Unlock()

	return df, nil
}

// Active returns the current active file, acquiring a reference on the
// caller's behalf. Release it when done.
func (d *Directory) Active() *datafile.File {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active.Acquire()
	return d.active
}

// SealActive seals the current active file and moves it into the sealed
// cache so future readers resolve it without reopening from disk.
func (d *Directory) SealActive() error {
	d.mu.Lock()
	old := d.active
	d.active = nil
	d.mu.Unlock()

	if old == nil {
		return nil
	}
	if err := old.Seal(); err != nil {
		return err
	}

	d.mu.Lock()
	d.cache.Add(old.ID, old)
	d.mu.Unlock()
	return nil
}

// Resolve returns the data file backing file-id, acquiring a reference on
// the caller's behalf; Release it when done. The active file and cached
// sealed files are returned directly; anything evicted from the cache is
// reopened from disk and re-cached.
func (d *Directory) Resolve(id uint32) (*datafile.File, error) {
	d.mu.Lock()
	if d.active != nil && d.active.ID == id {
		df := d.active
		df.Acquire()
		d.mu.Unlock()
		return df, nil
	}
	if v, ok := d.cache.Get(id); ok {
		df := v.(*datafile.File)
		df.Acquire()
		d.mu.Unlock()
		return df, nil
	}
	path, ok := d.paths[id]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("filedir: unknown file-id %d", id)
	}

	df, err := datafile.OpenSealed(path, id)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache.Add(id, df)
	d.mu.Unlock()

	df.Acquire()
	return df, nil
}

// CreateMergeOutput allocates a file-id from the shared counter and opens
// a writable file named with the reserved ".merge" suffix, so that a
// crash before CommitMergeOutput leaves behind debris that is trivially
// identifiable and safe to delete.
func (d *Directory) CreateMergeOutput() (*datafile.File, error) {
	id := d.AllocateID()
	path := filepath.Join(d.dir, mergeFileName(id))
	return datafile.OpenWritable(path, id, d.syncOnWrite)
}

// CommitMergeOutput seals a merge output file and renames it from its
// ".merge" name to the normal ".data" name, atomically making it a
// first-class sealed data file. It is registered in the path table and
// sealed-file cache exactly like any other sealed file.
func (d *Directory) CommitMergeOutput(df *datafile.File) error {
	if err := df.Seal(); err != nil {
		return err
	}

	finalPath := filepath.Join(d.dir, DataFileName(df.ID))
	if err := os.Rename(df.Path(), finalPath); err != nil {
		return fmt.Errorf("filedir: commit merge output %s: %w", df.Path(), err)
	}
	df.SetPath(finalPath)

	d.mu.Lock()
	d.paths[df.ID] = finalPath
	d.cache.Add(df.ID, df)
	d.mu.Unlock()
	return nil
}

// Retire removes id from the directory's bookkeeping and unlinks its
// backing file. Any reader that already resolved a handle to it keeps
// that handle alive via its own reference until it releases it.
func (d *Directory) Retire(id uint32) error {
	d.mu.Lock()
	path, known := d.paths[id]
	delete(d.paths, id)
	var df *datafile.File
	wasCached := false
	if v, ok := d.cache.Get(id); ok {
		df = v.(*datafile.File)
		wasCached = true
		// Remove triggers OnEvicted, which calls df.Close(): that already
		// releases the cache's own reference to df, so below we must only
		// unlink it, not release it a second time.
		d.cache.Remove(id)
	}
	d.mu.Unlock()

	if df == nil {
		if !known {
			path = filepath.Join(d.dir, DataFileName(id))
		}
		var err error
		df, err = datafile.OpenSealed(path, id)
		if err != nil {
			return fmt.Errorf("filedir: open %d for retirement: %w", id, err)
		}
	}

	if wasCached {
		return df.Unlink()
	}
	return df.Retire()
}

// Close seals the active file (if any) and releases the directory lock.
func (d *Directory) Close() error {
	if err := d.SealActive(); err != nil {
		return err
	}
	return d.lk.Release()
}
