package kv

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucketSlots = "slots" // key: slot name -> value

// Bolt stores slots in a local bbolt file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketSlots))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: init %s: %w", path, err)
	}

	return &Bolt{db: db}, nil
}

// Get returns a copy of the slot value.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte

	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(boltBucketSlots)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		value = append([]byte(nil), v...)
		return nil
	})

	return value, err
}

// Put writes the slot in its own transaction; bbolt fsyncs on commit.
func (b *Bolt) Put(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketSlots)).Put([]byte(key), value)
	})
}

// Close releases the file lock.
func (b *Bolt) Close() error {
	return b.db.Close()
}
