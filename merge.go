package bitcask

import (
	"fmt"
	"log/slog"

	"github.com/aetherkv/bitcask/internal/keydir"
	"github.com/aetherkv/bitcask/internal/record"
)

// Merge compacts every currently-sealed data file into a fresh set of
// data files holding only the live value for each key, then retires the
// old files. It runs concurrently with Puts, Dels, Gets and Traverse: the
// active file and any file created after the merge's snapshot is taken
// are left untouched, and a key that is overwritten or deleted during the
// merge keeps whatever value the concurrent writer gave it (see
// DESIGN.md for the compare-and-swap commit this relies on).
func (s *Store) Merge() error {
	if s.closed.Load() {
		return ErrClosed
	}

	// The writer lock keeps a rollover from replacing the active file
	// between reading its id and listing the files to merge.
	s.writeMu.Lock()
	active := s.dir.Active()
	activeID := active.ID
	active.Release()
	ids := s.dir.IDs()
	s.writeMu.Unlock()

	var mergeIDs []uint32
	for _, id := range ids {
		if id != activeID {
			mergeIDs = append(mergeIDs, id)
		}
	}
	if len(mergeIDs) == 0 {
		return nil
	}
	mergeSet := make(map[uint32]bool, len(mergeIDs))
	for _, id := range mergeIDs {
		mergeSet[id] = true
	}

	type relocated struct {
		key     string
		orig    keydir.Entry
		next    keydir.Entry
		value   []byte
		present bool
	}

	var items []relocated
	s.kd.ForEach(func(key string, entry keydir.Entry) bool {
		if mergeSet[entry.FileID] {
			items = append(items, relocated{key: key, orig: entry})
		}
		return true
	})

	if len(items) == 0 {
		return s.retireMergedFiles(mergeIDs)
	}

	for i := range items {
		it := &items[i]

		// A concurrent Put/Del may already have moved this key off the
		// file we're about to merge; skip the read entirely rather than
		// risk reading stale bytes, and let the compare-and-swap below
		// leave the (already correct) current entry untouched.
		if cur, ok := s.kd.Get(it.key); !ok || cur != it.orig {
			continue
		}

		df, err := s.dir.Resolve(it.orig.FileID)
		if err != nil {
			return fmt.Errorf("bitcask: merge: resolve file %d for key %q: %w", it.orig.FileID, it.key, err)
		}
		value, err := df.ReadAt(it.orig.ValueOffset, it.orig.ValueSize)
		df.Release()
		if err != nil {
			return fmt.Errorf("bitcask: merge: read key %q: %w", it.key, err)
		}
		it.value = value
		it.present = true
	}

	out, err := s.dir.CreateMergeOutput()
	if err != nil {
		return fmt.Errorf("bitcask: merge: create output file: %w", err)
	}

	for i := range items {
		it := &items[i]
		if !it.present {
			continue
		}

		encoded := record.Encode(it.orig.Timestamp, []byte(it.key), it.value, false)
		if uint64(out.Size())+uint64(len(encoded)) > s.maxFileSize.Load() && out.Size() > 0 {
			if err := s.dir.CommitMergeOutput(out); err != nil {
				return fmt.Errorf("bitcask: merge: commit output file: %w", err)
			}
			out, err = s.dir.CreateMergeOutput()
			if err != nil {
				return fmt.Errorf("bitcask: merge: create successor output file: %w", err)
			}
		}

		offset, err := out.Append(encoded)
		if err != nil {
			return fmt.Errorf("bitcask: merge: write %q: %w", it.key, err)
		}
		it.next = keydir.Entry{
			FileID:      out.ID,
			ValueOffset: offset + int64(record.HeaderSize) + int64(len(it.key)),
			ValueSize:   uint32(len(it.value)),
			Timestamp:   it.orig.Timestamp,
		}
	}

	if err := s.dir.CommitMergeOutput(out); err != nil {
		return fmt.Errorf("bitcask: merge: commit final output file: %w", err)
	}

	s.writeMu.Lock()
	swapped, skipped := 0, 0
	for _, it := range items {
		if !it.present {
			continue
		}
		if s.kd.CompareAndSwap(it.key, it.orig, it.next) {
			swapped++
		} else {
			// Key was overwritten or deleted by a concurrent Put/Del
			// since the snapshot; its current entry already reflects
			// that newer write, so leave it alone.
			skipped++
		}
	}
	s.writeMu.Unlock()

	slog.Info("bitcask: merge complete", "files_merged", len(mergeIDs), "keys_relocated", swapped, "keys_skipped_stale", skipped)

	return s.retireMergedFiles(mergeIDs)
}

// retireMergedFiles unlinks every file-id in ids, tolerating a file
// already being gone (e.g. retired by a racing Merge).
func (s *Store) retireMergedFiles(ids []uint32) error {
	for _, id := range ids {
		if err := s.dir.Retire(id); err != nil {
			return fmt.Errorf("bitcask: merge: retire file %d: %w", id, err)
		}
	}
	return nil
}
