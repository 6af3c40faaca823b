package guard

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/CefBoud/monsink/utils"
	"github.com/boltdb/bolt"
)

// Store is the durable key-value store behind an OffsetGuard.
type Store interface {
	Load() (map[string]int64, error)
	Save(marks map[string]int64) error
	Close() error
}

var offsetsBucket = []byte("offsets")

// BoltStore keeps marks in a bolt database, one key per destination path.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := utils.EnsurePath(path, false); err != nil {
		return nil, fmt.Errorf("could not create guard directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open bolt store %v: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(offsetsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create offsets bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load reads every stored mark.
func (s *BoltStore) Load() (map[string]int64, error) {
	marks := make(map[string]int64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(offsetsBucket).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("corrupt mark for %q: %d bytes", k, len(v))
			}
			marks[string(k)] = int64(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	return marks, err
}

// Save writes marks in a single transaction.
func (s *BoltStore) Save(marks map[string]int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(offsetsBucket)
		for k, v := range marks {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(v))
			if err := b.Put([]byte(k), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the bolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
