package bitcask

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aetherkv/bitcask/internal/datafile"
	"github.com/aetherkv/bitcask/internal/filedir"
	"github.com/aetherkv/bitcask/internal/keydir"
	"github.com/aetherkv/bitcask/internal/record"
)

// PutResult reports whether a Put inserted a brand-new key or overwrote
// an existing one.
type PutResult int

const (
	Inserted PutResult = iota
	Updated
)

func (r PutResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "updated"
}

// Store is one open Bitcask store: a directory of append-only data
// files, an in-memory keydir, and the writer lock that serializes
// mutation and the merge swap. The zero value is not usable; construct
// one with Open.
type Store struct {
	opts options
	dir  *filedir.Directory
	kd   *keydir.KeyDir

	writeMu sync.Mutex // serializes Put/Del/rollover and the merge swap
	lastTS  uint64     // protected by writeMu

	maxFileSize atomic.Uint64
	closed      atomic.Bool
}

// Open opens (creating if necessary) the store rooted at dir, acquiring
// the store-directory lock and running Recovery to rebuild the keydir
// from whatever data files already exist.
func Open(dir string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	fd, err := filedir.Open(dir, o.lockFileName, o.syncOnPut, o.handleCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{opts: o, dir: fd, kd: keydir.New()}
	s.maxFileSize.Store(o.maxFileSize)

	if err := s.recover(); err != nil {
		fd.Close()
		return nil, fmt.Errorf("bitcask: open %s: %w", dir, err)
	}

	if _, err := fd.NewActive(); err != nil {
		fd.Close()
		return nil, fmt.Errorf("bitcask: open %s: create active file: %w", dir, err)
	}

	slog.Info("bitcask: store opened", "dir", dir, "keys", s.kd.Len())
	return s, nil
}

// recover scans every existing data file in file-id order and rebuilds
// the keydir, truncating a short trailing record on the last file and
// failing hard on any corruption found elsewhere. It does not create the
// new active file; Open does that once recovery has succeeded.
func (s *Store) recover() error {
	ids := s.dir.IDs()
	var maxTS uint64

	for i, id := range ids {
		df, err := s.dir.OpenForRecovery(id)
		if err != nil {
			return fmt.Errorf("recovery: open file %d: %w", id, err)
		}

		isLast := i == len(ids)-1
		n, err := s.scanFile(df, id, isLast)
		df.Close()
		if err != nil {
			return err
		}
		if n > maxTS {
			maxTS = n
		}
	}

	s.lastTS = maxTS
	return nil
}

// scanFile decodes every record in df sequentially from offset 0,
// upserting s.kd as it goes, and returns the highest timestamp observed.
func (s *Store) scanFile(df *datafile.File, id uint32, isLast bool) (maxTS uint64, err error) {
	raw, err := os.ReadFile(df.Path())
	if err != nil {
		return 0, fmt.Errorf("recovery: read file %d: %w", id, err)
	}

	offset := 0
	for offset < len(raw) {
		rec, consumed, derr := record.Decode(raw[offset:])
		if derr == record.ErrShortRead {
			if isLast {
				slog.Warn("bitcask: truncating short trailing record", "file_id", id, "offset", offset)
				if terr := os.Truncate(df.Path(), int64(offset)); terr != nil {
					return 0, fmt.Errorf("recovery: truncate file %d at %d: %w", id, offset, terr)
				}
				break
			}
			return 0, fmt.Errorf("recovery: short read mid-sequence in sealed file %d at offset %d", id, offset)
		}
		if derr == record.ErrCorrupt {
			return 0, fmt.Errorf("recovery: %w in file %d at offset %d", ErrCorrupt, id, offset)
		}
		if derr != nil {
			return 0, fmt.Errorf("recovery: decode file %d at offset %d: %w", id, offset, derr)
		}

		if rec.Timestamp > maxTS {
			maxTS = rec.Timestamp
		}

		key := string(rec.Key)
		if rec.Tombstone {
			s.kd.Remove(key)
		} else {
			valueOffset := int64(offset) + int64(record.HeaderSize) + int64(len(rec.Key))
			s.kd.Put(key, keydir.Entry{
				FileID:      id,
				ValueOffset: valueOffset,
				ValueSize:   uint32(len(rec.Value)),
				Timestamp:   rec.Timestamp,
			})
		}

		offset += consumed
	}

	return maxTS, nil
}

// nextTimestamp returns a timestamp guaranteed to be strictly greater
// than the previous one this Store handed out, even if the wall clock
// goes backwards. Must be called with writeMu held.
func (s *Store) nextTimestamp() uint64 {
	now := uint64(time.Now().UnixNano())
	if now <= s.lastTS {
		now = s.lastTS + 1
	}
	s.lastTS = now
	return now
}

// rollIfNeededLocked seals the active file and starts a successor if
// appending recordSize bytes would push it over the configured
// max_file_size, provided the active file is not already empty (an
// oversized record written to an empty active file is allowed through,
// producing a single oversized file — see DESIGN.md). Must be called
// with writeMu held.
func (s *Store) rollIfNeededLocked(recordSize int) error {
	active := s.dir.Active()
	size := active.Size()
	active.Release()

	max := s.maxFileSize.Load()
	if size == 0 || uint64(size)+uint64(recordSize) <= max {
		return nil
	}

	if err := s.dir.SealActive(); err != nil {
		return fmt.Errorf("bitcask: seal active file: %w", err)
	}
	if _, err := s.dir.NewActive(); err != nil {
		return fmt.Errorf("bitcask: create successor active file: %w", err)
	}
	return nil
}

// Put stores key→value, returning Inserted or Updated. An empty key is
// rejected with ErrInvalidArgument.
func (s *Store) Put(key, value []byte) (PutResult, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(key) == 0 {
		return 0, ErrInvalidArgument
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.nextTimestamp()
	encoded := record.Encode(ts, key, value, false)

	if err := s.rollIfNeededLocked(len(encoded)); err != nil {
		return 0, err
	}

	active := s.dir.Active()
	offset, err := active.Append(encoded)
	fileID := active.ID
	active.Release()
	if err != nil {
		return 0, fmt.Errorf("bitcask: put %q: %w", key, err)
	}

	valueOffset := offset + int64(record.HeaderSize) + int64(len(key))
	inserted := s.kd.Put(string(key), keydir.Entry{
		FileID:      fileID,
		ValueOffset: valueOffset,
		ValueSize:   uint32(len(value)),
		Timestamp:   ts,
	})

	result := Updated
	if inserted {
		result = Inserted
	}
	slog.Debug("bitcask: put", "key", string(key), "result", result.String(), "file_id", fileID, "offset", offset)
	return result, nil
}

// Del removes key, writing a tombstone record iff the key was present.
// Reports whether the key existed.
func (s *Store) Del(key []byte) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := s.kd.Get(string(key)); !ok {
		return false, nil
	}

	ts := s.nextTimestamp()
	encoded := record.Encode(ts, key, nil, true)

	if err := s.rollIfNeededLocked(len(encoded)); err != nil {
		return false, err
	}

	active := s.dir.Active()
	_, err := active.Append(encoded)
	active.Release()
	if err != nil {
		return false, fmt.Errorf("bitcask: del %q: %w", key, err)
	}

	s.kd.Remove(string(key))
	slog.Debug("bitcask: del", "key", string(key))
	return true, nil
}

// readEntry resolves a keydir entry to its value bytes, retrying (up to
// maxAttempts times) if it races a concurrent merge retirement: the entry
// is re-read from the keydir so a freshly-swapped location (or the key's
// disappearance) is observed rather than surfaced as a spurious I/O error.
// The whole record is read and its CRC verified; a mismatch is reported
// as ErrCorrupt.
func (s *Store) readEntry(key string) ([]byte, bool, error) {
	const maxAttempts = 5

	entry, ok := s.kd.Get(key)
	if !ok {
		return nil, false, nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		df, err := s.dir.Resolve(entry.FileID)
		if err != nil {
			// The file backing this entry is gone: a merge retired it
			// after we looked it up. Re-read the keydir; if the key is
			// still live it now points somewhere that exists.
			entry, ok = s.kd.Get(key)
			if !ok {
				return nil, false, nil
			}
			continue
		}

		keyLen := int64(len(key))
		recStart := entry.ValueOffset - int64(record.HeaderSize) - keyLen
		raw, rerr := df.ReadAt(recStart, uint32(int64(record.HeaderSize)+keyLen)+entry.ValueSize)
		df.Release()
		if rerr == datafile.ErrRetired {
			entry, ok = s.kd.Get(key)
			if !ok {
				return nil, false, nil
			}
			continue
		}
		if rerr != nil {
			return nil, false, fmt.Errorf("bitcask: get %q: %w", key, rerr)
		}
		rec, _, derr := record.Decode(raw)
		if derr != nil {
			return nil, false, fmt.Errorf("bitcask: get %q: %w in file %d", key, ErrCorrupt, entry.FileID)
		}
		return rec.Value, true, nil
	}

	return nil, false, fmt.Errorf("bitcask: get %q: gave up retrying past a concurrent merge", key)
}

// Get returns the current value for key, or ok=false if it does not
// exist.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	return s.readEntry(string(key))
}

// Traverse visits every live key, reading its value lazily. It iterates
// a snapshot of the key set taken at the moment of the call; a
// concurrent Put/Del on a given key may be reflected in the value
// Traverse reads for it (pre- or post-write), but never a torn record.
// The visitor stops iteration early by returning false.
func (s *Store) Traverse(visit func(key, value []byte) bool) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var outerErr error
	s.kd.ForEach(func(key string, _ keydir.Entry) bool {
		value, ok, err := s.readEntry(key)
		if err != nil {
			outerErr = err
			return false
		}
		if !ok {
			// Deleted between the snapshot and this read: nothing to show.
			return true
		}
		return visit([]byte(key), value)
	})
	return outerErr
}

// Empty reports whether the store currently holds no live keys.
func (s *Store) Empty() bool {
	return s.kd.IsEmpty()
}

// SetMaxFileSize changes the size threshold used for future rollover
// decisions. Lowering it below the active file's current size does not
// seal it immediately; the next Put/Del to roll over will simply trigger
// on the new, lower threshold.
func (s *Store) SetMaxFileSize(n uint64) {
	s.maxFileSize.Store(n)
}

// Close seals the active file and releases the store-directory lock.
// Further operations on this Store return ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.dir.Close()
}
