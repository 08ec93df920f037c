package bitcask

// DefaultLockFileName is the well-known lock file every store directory
// carries, unless overridden with WithLockFileName.
const DefaultLockFileName = "bitcask.lock"

// DefaultMaxFileSize is the threshold, in bytes, above which the active
// file is sealed and a successor created. Large but finite, per spec.
const DefaultMaxFileSize uint64 = 1 << 30 // 1 GiB

// DefaultFileHandleCacheSize bounds how many sealed-file descriptors stay
// open at once; beyond this, the least-recently-used handle is closed and
// the file is reopened from disk the next time it's needed.
const DefaultFileHandleCacheSize = 128

type options struct {
	lockFileName    string
	maxFileSize     uint64
	syncOnPut       bool
	handleCacheSize int
}

func defaultOptions() options {
	return options{
		lockFileName:    DefaultLockFileName,
		maxFileSize:     DefaultMaxFileSize,
		syncOnPut:       false,
		handleCacheSize: DefaultFileHandleCacheSize,
	}
}

// Option configures a Store at Open time.
type Option func(*options)

// WithMaxFileSize sets the size threshold (bytes) above which the active
// file is sealed and a successor created. Equivalent to spec.md's
// max_file_size(bytes) configuration operation, applied up front; see
// also (*Store).SetMaxFileSize to change it after Open.
func WithMaxFileSize(n uint64) Option {
	return func(o *options) { o.maxFileSize = n }
}

// WithSyncOnPut makes every Put/Del flush OS buffers before returning.
func WithSyncOnPut(sync bool) Option {
	return func(o *options) { o.syncOnPut = sync }
}

// WithLockFileName overrides the well-known lock filename.
func WithLockFileName(name string) Option {
	return func(o *options) { o.lockFileName = name }
}

// WithFileHandleCacheSize bounds the number of sealed-file descriptors
// kept open at once.
func WithFileHandleCacheSize(n int) Option {
	return func(o *options) { o.handleCacheSize = n }
}
