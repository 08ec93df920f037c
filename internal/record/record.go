// Package record encodes and decodes the on-disk record format: a fixed
// header carrying a CRC32 checksum, a monotonic timestamp and the key/value
// sizes, followed by the key bytes and (unless the record is a tombstone)
// the value bytes.
package record

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// HeaderSize is the fixed size, in bytes, of every record header:
// crc32(4) + timestamp(8) + key_size(4) + value_size(4).
const HeaderSize = 20

// TombstoneSentinel is the literal value_size that marks a record as a
// tombstone. It is part of the CRC input, not a logical zero length.
const TombstoneSentinel uint32 = 0xFFFFFFFF

// ErrShortRead is returned when the supplied bytes do not contain a full
// record: either the header itself is incomplete, or the header is valid
// but the key/value payload is truncated. Recovery treats this as "stop,
// and truncate at the last good offset" when it occurs in the final file;
// in any earlier file it fails recovery.
var ErrShortRead = errors.New("record: short read")

// ErrCorrupt is returned when the CRC does not match, or the header
// declares a structurally impossible record (zero-length key).
var ErrCorrupt = errors.New("record: corrupt")

// Record is the decoded form of one on-disk entry.
type Record struct {
	Timestamp uint64
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Encode serializes ts/key/value into a freshly allocated buffer. Pass
// tombstone=true to encode a deletion marker; value is ignored in that case.
func Encode(ts uint64, key, value []byte, tombstone bool) []byte {
	valueSize := uint32(len(value))
	if tombstone {
		valueSize = TombstoneSentinel
	}

	total := HeaderSize + len(key)
	if !tombstone {
		total += len(value)
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[4:12], ts)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[16:20], valueSize)
	copy(buf[HeaderSize:], key)
	if !tombstone {
		copy(buf[HeaderSize+len(key):], value)
	}

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[0:4], crc)

	return buf
}

// Decode parses a prefix of buf into a Record, reporting how many bytes
// were consumed. It returns ErrShortRead if buf does not yet contain a
// full record (the caller should read more and retry), and ErrCorrupt if
// the CRC fails to verify or the header is structurally invalid.
func Decode(buf []byte) (rec Record, consumed int, err error) {
	if len(buf) < HeaderSize {
		return Record{}, 0, ErrShortRead
	}

	crc := binary.LittleEndian.Uint32(buf[0:4])
	ts := binary.LittleEndian.Uint64(buf[4:12])
	keySize := binary.LittleEndian.Uint32(buf[12:16])
	valueSize := binary.LittleEndian.Uint32(buf[16:20])

	if keySize == 0 {
		return Record{}, 0, ErrCorrupt
	}

	tombstone := valueSize == TombstoneSentinel
	payloadSize := int(keySize)
	if !tombstone {
		payloadSize += int(valueSize)
	}
	total := HeaderSize + payloadSize

	if len(buf) < total {
		return Record{}, 0, ErrShortRead
	}

	if crc32.ChecksumIEEE(buf[4:total]) != crc {
		return Record{}, 0, ErrCorrupt
	}

	key := make([]byte, keySize)
	copy(key, buf[HeaderSize:HeaderSize+int(keySize)])

	rec = Record{
		Timestamp: ts,
		Key:       key,
		Tombstone: tombstone,
	}
	if !tombstone {
		value := make([]byte, valueSize)
		copy(value, buf[HeaderSize+int(keySize):total])
		rec.Value = value
	}

	return rec, total, nil
}

// Size returns the total encoded size, in bytes, of a record with the
// given key/value lengths without allocating or encoding it.
func Size(keyLen, valueLen int, tombstone bool) int {
	if tombstone {
		return HeaderSize + keyLen
	}
	return HeaderSize + keyLen + valueLen
}
