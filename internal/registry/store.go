package registry

import (
	"context"
	"sync"
)

// Entry is one committed record plus the allocation nonce that produced its
// address. Persisting the nonce keeps allocation monotonic across restarts.
type Entry struct {
	Nonce  uint64      `json:"nonce"`
	Record TokenRecord `json:"record"`
}

// Store persists committed entries in commit order.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, e Entry) error
}

// memStore keeps entries in memory. It is the default for NewLedger.
type memStore struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *memStore) Load(context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *memStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}
