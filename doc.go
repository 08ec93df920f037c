// Package bitcask implements a log-structured, append-only key-value
// store in the Bitcask lineage: a single writer appends records to an
// active data file, an in-memory keydir maps every live key to its
// current record location, and any number of readers look values up
// through that keydir concurrently with the writer and with compaction.
package bitcask
