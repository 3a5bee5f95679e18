package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
)

// ErrNotDeployed is returned when no record exists for a contract.
var ErrNotDeployed = errors.New("contract not deployed")

const (
	deploymentsBucket = "deployments"
	scriptsBucket     = "scripts"
)

// Record describes one deployed contract.
type Record struct {
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	TxHash       string    `json:"tx_hash"`
	Network      string    `json:"network"`
	Deployer     string    `json:"deployer"`
	BytecodeHash string    `json:"bytecode_hash"`
	DeployedAt   time.Time `json:"deployed_at"`
}

// Store keeps deployment records and executed script ids in bolt, both
// scoped per network.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the deployments file at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening deployments %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{deploymentsBucket, scriptsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error { return s.db.Close() }

func key(network, name string) []byte { return []byte(network + "/" + name) }

// Get returns the record for name on network.
func (s *Store) Get(network, name string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(deploymentsBucket)).Get(key(network, name))
		if v == nil {
			return fmt.Errorf("%w: %s on %s", ErrNotDeployed, name, network)
		}
		rec = new(Record)
		return json.Unmarshal(v, rec)
	})
	return rec, err
}

// List returns every record, sorted by network then name.
func (s *Store) List() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(deploymentsBucket)).ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Network != out[j].Network {
			return out[i].Network < out[j].Network
		}
		return out[i].Name < out[j].Name
	})
	return out, err
}

// Executed reports whether scriptID already ran on network.
func (s *Store) Executed(network, scriptID string) (bool, error) {
	var done bool
	err := s.db.View(func(tx *bolt.Tx) error {
		done = tx.Bucket([]byte(scriptsBucket)).Get(key(network, scriptID)) != nil
		return nil
	})
	return done, err
}

// Complete saves rec and marks scriptID executed in one transaction.
func (s *Store) Complete(scriptID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(deploymentsBucket)).Put(key(rec.Network, rec.Name), data); err != nil {
			return err
		}
		stamp := []byte(rec.DeployedAt.UTC().Format(time.RFC3339))
		return tx.Bucket([]byte(scriptsBucket)).Put(key(rec.Network, scriptID), stamp)
	})
}

// Forget removes the record for name and the script marker, so the next
// run deploys again.
func (s *Store) Forget(network, name, scriptID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(deploymentsBucket)).Delete(key(network, name)); err != nil {
			return err
		}
		return tx.Bucket([]byte(scriptsBucket)).Delete(key(network, scriptID))
	})
}
