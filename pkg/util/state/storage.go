package state

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// PersistentStorage is a wrapper around persistent K:V db that
// provides thread safe functions to set and fetch values grouped in
// named buckets.
type PersistentStorage struct {
	db *bbolt.DB
}

// NewPersistentStorage opens or creates a storage with 0o600 rights. The
// timeout limits waiting for the file lock held by another process.
func NewPersistentStorage(path string, timeout time.Duration) (*PersistentStorage, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt at %s: %w", path, err)
	}

	return &PersistentStorage{db: db}, nil
}

// Put saves given KV in the bucket.
func (p PersistentStorage) Put(bucket, k, v []byte) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return fmt.Errorf("can't create bucket %s in persistent storage: %w", bucket, err)
		}

		return b.Put(k, v)
	})
}

// Get returns value stored in the bucket. Nil corresponds to missing value.
func (p PersistentStorage) Get(bucket, k []byte) (res []byte, err error) {
	err = p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			if v := b.Get(k); v != nil {
				res = bytes.Clone(v)
			}
		}
		return nil
	})

	return
}

// Delete removes the key from the bucket.
func (p PersistentStorage) Delete(bucket, k []byte) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			err := b.Delete(k)
			if err != nil {
				return fmt.Errorf("can't delete %s from bucket %s: %w", k, bucket, err)
			}
		}

		return nil
	})
}

// DeleteFromAll removes the key from every bucket.
func (p PersistentStorage) DeleteFromAll(k []byte) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("can't delete %s from bucket %s: %w", k, name, err)
			}
			return nil
		})
	})
}

// Close closes persistent database instance.
func (p PersistentStorage) Close() error {
	return p.db.Close()
}
