package keydir

import (
	"sync"
	"testing"
)

func TestPutGetRemove(t *testing.T) {
	kd := New()

	if _, ok := kd.Get("a"); ok {
		t.Fatal("Get() on empty keydir found a key")
	}

	inserted := kd.Put("a", Entry{FileID: 1, ValueOffset: 10, ValueSize: 5})
	if !inserted {
		t.Error("Put() on new key should report inserted=true")
	}

	e, ok := kd.Get("a")
	if !ok || e.FileID != 1 || e.ValueOffset != 10 {
		t.Errorf("Get() = %+v, %v, want FileID=1 Offset=10", e, ok)
	}

	updated := kd.Put("a", Entry{FileID: 2, ValueOffset: 20, ValueSize: 6})
	if updated {
		t.Error("Put() on existing key should report inserted=false")
	}

	if !kd.Remove("a") {
		t.Error("Remove() on existing key should return true")
	}
	if kd.Remove("a") {
		t.Error("Remove() on already-removed key should return false")
	}
	if _, ok := kd.Get("a"); ok {
		t.Error("Get() after Remove() should not find the key")
	}
}

func TestCompareAndSwap(t *testing.T) {
	kd := New()
	cur := Entry{FileID: 1, ValueOffset: 0, ValueSize: 5}
	kd.Put("a", cur)

	next := Entry{FileID: 2, ValueOffset: 0, ValueSize: 5}
	if !kd.CompareAndSwap("a", cur, next) {
		t.Fatal("CompareAndSwap() should succeed when current entry matches")
	}
	e, _ := kd.Get("a")
	if e != next {
		t.Errorf("entry after swap = %+v, want %+v", e, next)
	}

	// A stale compare value (the key moved on) must not swap.
	stale := Entry{FileID: 1, ValueOffset: 0, ValueSize: 5}
	if kd.CompareAndSwap("a", stale, Entry{FileID: 3}) {
		t.Error("CompareAndSwap() should fail against a stale current entry")
	}
}

func TestForEachEarlyExit(t *testing.T) {
	kd := New()
	for _, k := range []string{"a", "b", "c"} {
		kd.Put(k, Entry{})
	}

	visited := 0
	kd.ForEach(func(key string, entry Entry) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("ForEach() visited %d keys, want 1 (early exit)", visited)
	}

	visited = 0
	kd.ForEach(func(key string, entry Entry) bool {
		visited++
		return true
	})
	if visited != 3 {
		t.Errorf("ForEach() visited %d keys, want 3", visited)
	}
}

func TestConcurrentAccess(t *testing.T) {
	kd := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			kd.Put(key, Entry{FileID: uint32(i)})
			kd.Get(key)
		}(i)
	}
	wg.Wait()
	if kd.Len() == 0 {
		t.Error("expected keys to be present after concurrent puts")
	}
}
