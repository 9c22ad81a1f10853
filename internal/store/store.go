// Package store wraps the embedded key-value database holding one fixed-size
// metadata record per file path. The backing engine is bbolt: a memory-mapped
// B+tree with a single serialized writer, any number of concurrent snapshot
// readers, and keys iterated in ascending byte order.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// DBFileName is the database file created under the configured directory.
const DBFileName = "ffc.db"

var (
	bucketFiles = []byte("files")

	// ErrStoreFull is returned by PutRecord once the database has already
	// grown past its configured maximum size. The size checked is the one the
	// transaction saw before the write, so the write that first crosses the
	// bound still succeeds.
	ErrStoreFull = errors.New("store: database reached configured maximum size")
)

// Options tunes durability. All three default to off, which makes a
// committed transaction durable once Commit returns. Turning any of them on
// trades crash safety for write throughput.
type Options struct {
	NoSync         bool
	NoFreelistSync bool
	NoGrowSync     bool
}

// Store is the persistent path→record database. Safe for concurrent use:
// reads run against consistent snapshots and writes are serialized by the
// engine itself.
type Store struct {
	db      *bolt.DB
	maxSize int64
	log     *zap.SugaredLogger
}

// Open creates the database directory if missing and opens (or creates) the
// database file inside it. maxSize bounds on-disk growth.
func Open(dir string, maxSize int64, opts Options, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, DBFileName)

	db, err := bolt.Open(path, 0o644, &bolt.Options{
		Timeout:        time.Second,
		NoSync:         opts.NoSync,
		NoFreelistSync: opts.NoFreelistSync,
		NoGrowSync:     opts.NoGrowSync,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: creating bucket: %w", err)
	}

	return &Store{db: db, maxSize: maxSize, log: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Txn is a single transaction over the files bucket. A Txn handed to a View
// callback rejects writes; one handed to an Update callback allows them.
type Txn struct {
	tx      *bolt.Tx
	bucket  *bolt.Bucket
	maxSize int64
}

// View runs fn in a read-only snapshot transaction. Any number of View
// transactions may run concurrently with each other and with one writer.
func (s *Store) View(fn func(*Txn) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx, bucket: tx.Bucket(bucketFiles), maxSize: s.maxSize})
	})
}

// Update runs fn in the single write transaction. The transaction commits
// when fn returns nil and rolls back, leaving the pre-transaction state,
// when fn returns an error.
func (s *Store) Update(fn func(*Txn) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx, bucket: tx.Bucket(bucketFiles), maxSize: s.maxSize})
	})
}

// GetRecord looks up the record for path. The second return is false when no
// record exists.
func (t *Txn) GetRecord(path string) (FileRecord, bool, error) {
	data := t.bucket.Get(KeyFor(path))
	if data == nil {
		return FileRecord{}, false, nil
	}
	rec, err := UnmarshalRecord(data)
	if err != nil {
		return FileRecord{}, false, err
	}
	return rec, true, nil
}

// PutRecord upserts the record for path, overwriting any prior value.
func (t *Txn) PutRecord(path string, rec FileRecord) error {
	if t.maxSize > 0 && t.tx.Size() > t.maxSize {
		return ErrStoreFull
	}
	return t.bucket.Put(KeyFor(path), rec.Marshal())
}

// DeleteRecord removes the record for path. Deleting an absent key is a
// no-op.
func (t *Txn) DeleteRecord(path string) error {
	return t.bucket.Delete(KeyFor(path))
}

// ForEach iterates every key/record pair in ascending key byte order.
// Returning an error from fn stops the iteration and propagates the error.
func (t *Txn) ForEach(fn func(path string, rec FileRecord) error) error {
	return t.bucket.ForEach(func(k, v []byte) error {
		rec, err := UnmarshalRecord(v)
		if err != nil {
			return err
		}
		return fn(PathFromKey(k), rec)
	})
}

// DeleteKeys removes the given paths inside this transaction. Used by the
// reconciliation pass, which collects stale keys during cursor iteration and
// deletes them before commit.
func (t *Txn) DeleteKeys(paths []string) error {
	for _, p := range paths {
		if err := t.bucket.Delete(KeyFor(p)); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.View(func(t *Txn) error {
		n = t.bucket.Stats().KeyN
		return nil
	})
	return n, err
}
