package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var downloadedBucket = []byte("downloaded")

type BoltLedger struct {
	db *bolt.DB
}

func NewBolt(path string) (*BoltLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(downloadedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Has(name string) (bool, error) {
	var found bool
	err := l.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(downloadedBucket).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

func (l *BoltLedger) Record(e Entry) error {
	encoded, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(downloadedBucket).Put([]byte(e.Name), encoded)
	})
}

func (l *BoltLedger) Forget(name string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(downloadedBucket).Delete([]byte(name))
	})
}

// List returns entries in key order.
func (l *BoltLedger) List() ([]Entry, error) {
	var entries []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(downloadedBucket).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode ledger entry %q: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func (l *BoltLedger) Close() error {
	return l.db.Close()
}
