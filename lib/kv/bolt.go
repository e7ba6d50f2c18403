package kv

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rkv-db/rkv/rpc/common"
	bolt "go.etcd.io/bbolt"
)

var logger = common.GetLogger("kv")

// Bucket layout of the bolt file. The meta bucket holds the applied index so
// that data and index always move in the same write transaction.
var (
	bucketData = []byte("data")
	bucketMeta = []byte("meta")

	keyAppliedIndex = []byte("applied_index")
)

// --------------------------------------------------------------------------
// Bolt-backed Store
// --------------------------------------------------------------------------

// boltStore implements Store on top of a memory-mapped bbolt database.
// bbolt gives us single-writer serialized write transactions and
// snapshot-isolated read transactions, which is exactly the transactional
// contract the replication layer builds on.
type boltStore struct {
	path string

	// mu guards the db handle itself. Restore swaps the handle; normal
	// operations only take the read side.
	mu sync.RWMutex
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bolt database at path.
func NewBoltStore(path string) (Store, error) {
	db, err := openBolt(path)
	if err != nil {
		return nil, err
	}
	return &boltStore{path: path, db: db}, nil
}

func openBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	// Make sure both buckets exist so later transactions can rely on them.
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return db, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (s *boltStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	var loaded bool

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get([]byte(key))
		if v != nil {
			// v is only valid for the lifetime of the transaction
			value = append([]byte(nil), v...)
			loaded = true
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get failed: %w", err)
	}

	return value, loaded, nil
}

func (s *boltStore) Apply(index uint64, ops []Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)

		// Idempotence: an index at or below the applied index has already
		// been committed in a previous transaction.
		if index <= appliedIndexFromBucket(meta) {
			logger.Debugf("skipping already applied index %d", index)
			return nil
		}

		data := tx.Bucket(bucketData)
		for _, op := range ops {
			switch op.Kind {
			case OpPut:
				if err := data.Put([]byte(op.Key), op.Value); err != nil {
					return err
				}
			case OpDelete:
				if err := data.Delete([]byte(op.Key)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown op kind %d at index %d", op.Kind, index)
			}
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], index)
		return meta.Put(keyAppliedIndex, buf[:])
	})
}

func (s *boltStore) AppliedIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var index uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		index = appliedIndexFromBucket(tx.Bucket(bucketMeta))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read applied index: %w", err)
	}
	return index, nil
}

func (s *boltStore) Snapshot(w io.Writer) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var index uint64

	// A single read transaction: the copy and the applied index it reports
	// are guaranteed to belong together.
	err := s.db.View(func(tx *bolt.Tx) error {
		index = appliedIndexFromBucket(tx.Bucket(bucketMeta))
		_, err := tx.WriteTo(w)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot failed: %w", err)
	}

	return index, nil
}

func (s *boltStore) Restore(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stream the snapshot into a sibling temp file first so a crash cannot
	// leave a half-written database behind.
	tmpPath := s.path + ".restore"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file for restore: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync snapshot data: %w", err)
	}
	tmp.Close()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database for restore: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to swap database file: %w", err)
	}

	db, err := openBolt(s.path)
	if err != nil {
		return fmt.Errorf("failed to reopen database after restore: %w", err)
	}
	s.db = db

	logger.Infof("restored store from snapshot (%s)", s.path)
	return nil
}

func (s *boltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func appliedIndexFromBucket(meta *bolt.Bucket) uint64 {
	v := meta.Get(keyAppliedIndex)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
