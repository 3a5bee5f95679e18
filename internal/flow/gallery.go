package flow

import (
	"context"
	"sync"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
)

// RefreshCounter is bumped after each confirmed creation. Galleries reload
// when the value they last saw changes.
type RefreshCounter struct {
	mu   sync.Mutex
	n    uint64
	subs map[int]chan uint64
	next int
}

// NewRefreshCounter returns a counter at zero.
func NewRefreshCounter() *RefreshCounter {
	return &RefreshCounter{subs: make(map[int]chan uint64)}
}

// Value returns the current count.
func (r *RefreshCounter) Value() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Bump increments the counter and notifies subscribers.
func (r *RefreshCounter) Bump() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- r.n
	}
	return r.n
}

// Subscribe returns a channel holding the latest value after each Bump.
func (r *RefreshCounter) Subscribe() (<-chan uint64, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	ch := make(chan uint64, 1)
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
}

// Snapshot is what a gallery shows.
type Snapshot struct {
	All      []registry.TokenRecord
	Mine     []registry.TokenRecord
	Identity *common.Address
	LoadedAt time.Time
}

// Gallery lists all tokens and, with an identity, the identity's own.
type Gallery struct {
	mu       sync.Mutex
	reg      registry.Registry
	identity *common.Address
	snap     Snapshot
	lastKey  uint64
	loaded   bool
	fetches  int
}

// NewGallery returns a gallery over reg.
func NewGallery(reg registry.Registry) *Gallery {
	return &Gallery{reg: reg}
}

// SetIdentity sets (or clears with nil) the address whose tokens are listed
// separately. The next Refresh reloads.
func (g *Gallery) SetIdentity(addr *common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if addr != nil {
		a := *addr
		addr = &a
	}
	g.identity = addr
	g.loaded = false
}

// Load fetches unconditionally.
func (g *Gallery) Load(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	identity := g.identity
	g.mu.Unlock()

	all, err := g.reg.AllTokens(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{All: all, Identity: identity, LoadedAt: time.Now()}
	if identity != nil {
		mine, err := g.reg.TokensByCreator(ctx, *identity)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Mine = mine
	}

	g.mu.Lock()
	g.snap = snap
	g.loaded = true
	g.fetches++
	g.mu.Unlock()
	return snap, nil
}

// Refresh reloads only when key differs from the last key seen or nothing
// was loaded yet. The bool reports whether a fetch happened.
func (g *Gallery) Refresh(ctx context.Context, key uint64) (Snapshot, bool, error) {
	g.mu.Lock()
	if g.loaded && key == g.lastKey {
		snap := g.snap
		g.mu.Unlock()
		return snap, false, nil
	}
	g.mu.Unlock()

	snap, err := g.Load(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}
	g.mu.Lock()
	g.lastKey = key
	g.mu.Unlock()
	return snap, true, nil
}

// Fetches returns how many loads ran.
func (g *Gallery) Fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}
