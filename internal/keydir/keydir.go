// Package keydir implements the in-memory directory mapping every live key
// to its current on-disk location. It is the single source of truth for
// "does this key exist, and if so where" — absence from the keydir means
// the key does not exist, full stop.
package keydir

import "sync"

// Entry is a key's current record location.
type Entry struct {
	FileID      uint32
	ValueOffset int64
	ValueSize   uint32
	Timestamp   uint64
}

// KeyDir is a concurrent key→Entry mapping. Get/Put/Remove publish
// atomically with respect to each other: any Get observes a value that
// was present at some point during the call, and a Put/Remove that
// returns before a subsequent Get begins is visible to that Get.
type KeyDir struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty KeyDir.
func New() *KeyDir {
	return &KeyDir{entries: make(map[string]Entry)}
}

// Get returns the entry for key, if any.
func (kd *KeyDir) Get(key string) (Entry, bool) {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	e, ok := kd.entries[key]
	return e, ok
}

// Put overwrites (or creates) the entry for key and reports whether the
// key was previously absent.
func (kd *KeyDir) Put(key string, entry Entry) (inserted bool) {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	_, existed := kd.entries[key]
	kd.entries[key] = entry
	return !existed
}

// Remove deletes key's entry, if present, and reports whether it existed.
func (kd *KeyDir) Remove(key string) bool {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	_, existed := kd.entries[key]
	delete(kd.entries, key)
	return existed
}

// CompareAndSwap replaces the entry for key with next, but only if the
// entry currently on file is exactly cur (the merger's atomic-swap
// precondition: the key must not have been written again since the
// merge snapshot was taken). Reports whether the swap happened.
func (kd *KeyDir) CompareAndSwap(key string, cur, next Entry) bool {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	e, ok := kd.entries[key]
	if !ok || e != cur {
		return false
	}
	kd.entries[key] = next
	return true
}

// Len returns the number of live keys.
func (kd *KeyDir) Len() int {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	return len(kd.entries)
}

// IsEmpty reports whether the keydir holds no keys.
func (kd *KeyDir) IsEmpty() bool {
	return kd.Len() == 0
}

// ForEach invokes fn for every key, stopping early if fn returns false.
// It iterates a snapshot of the key set taken at the moment of the call,
// so concurrent Put/Remove calls never produce a torn iteration and a
// key added after the snapshot is simply not visited; see DESIGN.md for
// the rationale (spec.md §9 Open Questions).
func (kd *KeyDir) ForEach(fn func(key string, entry Entry) bool) {
	kd.mu.RLock()
	snapshot := make(map[string]Entry, len(kd.entries))
	for k, v := range kd.entries {
		snapshot[k] = v
	}
	kd.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Keys returns a snapshot of the current key set, owned by the caller.
func (kd *KeyDir) Keys() []string {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	keys := make([]string, 0, len(kd.entries))
	for k := range kd.entries {
		keys = append(keys, k)
	}
	return keys
}
