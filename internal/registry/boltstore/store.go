// Package boltstore persists ledger entries in a single bolt file.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/boltdb/bolt"
)

const tokensBucket = "tokens"

// Store is a registry.Store backed by bolt.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the ledger file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tokensBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Load returns every entry in commit order.
func (s *Store) Load(ctx context.Context) ([]registry.Entry, error) {
	var out []registry.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(tokensBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e registry.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Append writes e under the next bucket sequence.
func (s *Store) Append(ctx context.Context, e registry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tokensBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

var _ registry.Store = (*Store)(nil)
