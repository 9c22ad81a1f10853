package store

import (
	"encoding/binary"
	"fmt"
)

// RecordSize is the serialized length of every FileRecord. All values in the
// store have exactly this length.
const RecordSize = 32

// FileRecord is the fixed-shape metadata tuple stored per file. The path is
// not part of the record; it is the key.
type FileRecord struct {
	Hash   uint64
	Inode  uint64
	Links  uint64
	Blocks int64
}

// Marshal serializes the record: the four fields in declared order, native
// endianness. The layout is part of the on-disk format.
func (r FileRecord) Marshal() []byte {
	buf := make([]byte, RecordSize)
	binary.NativeEndian.PutUint64(buf[0:8], r.Hash)
	binary.NativeEndian.PutUint64(buf[8:16], r.Inode)
	binary.NativeEndian.PutUint64(buf[16:24], r.Links)
	binary.NativeEndian.PutUint64(buf[24:32], uint64(r.Blocks))
	return buf
}

// UnmarshalRecord decodes a serialized record.
func UnmarshalRecord(data []byte) (FileRecord, error) {
	if len(data) != RecordSize {
		return FileRecord{}, fmt.Errorf("store: record has %d bytes, want %d", len(data), RecordSize)
	}
	return FileRecord{
		Hash:   binary.NativeEndian.Uint64(data[0:8]),
		Inode:  binary.NativeEndian.Uint64(data[8:16]),
		Links:  binary.NativeEndian.Uint64(data[16:24]),
		Blocks: int64(binary.NativeEndian.Uint64(data[24:32])),
	}, nil
}

// KeyFor builds the store key for a path: the path bytes plus one
// terminating NUL. The key length is the byte length of the path plus one,
// never a code-point count.
func KeyFor(path string) []byte {
	key := make([]byte, len(path)+1)
	copy(key, path)
	return key
}

// PathFromKey recovers the path from a store key by stripping the
// terminating NUL.
func PathFromKey(key []byte) string {
	if n := len(key); n > 0 && key[n-1] == 0 {
		return string(key[:n-1])
	}
	return string(key)
}
