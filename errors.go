package bitcask

import "errors"

// ErrInvalidArgument is returned for a structurally invalid request: an
// empty key, or (in principle) a key/value exceeding the 32-bit size
// fields the wire format allows.
var ErrInvalidArgument = errors.New("bitcask: invalid argument")

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errors.New("bitcask: store is closed")

// ErrFileSizeBelowRecord would be returned if max_file_size were
// configured smaller than a record that must be written. This
// implementation instead follows the "succeed with a single oversized
// file" policy documented in DESIGN.md, so this error is never actually
// returned by Put/Del; it's kept exported because a future max_file_size
// validation path (e.g. in SetMaxFileSize) may want it, and because the
// spec names it as a distinguished error kind.
var ErrFileSizeBelowRecord = errors.New("bitcask: max file size is smaller than this record")

// ErrCorrupt surfaces a CRC or structural mismatch found inside a sealed
// file. It is fatal during Open (Recovery) and fatal for the single Get
// that hits it.
var ErrCorrupt = errors.New("bitcask: corrupt record")
