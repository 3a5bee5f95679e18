package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// LocalFactoryAddress is the factory address a Ledger derives token
// addresses from unless WithFactory says otherwise. It is the first contract
// address on a fresh Hardhat node.
var LocalFactoryAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// FirstNonce is the nonce of a contract's first CREATE. Contract accounts
// start at nonce 1 (EIP-161), so token i of a factory sits at
// CreateAddress(factory, FirstNonce+i).
const FirstNonce uint64 = 1

// Ledger is the in-process Registry. Creation is two-phase: Begin validates
// and allocates an address, Commit makes the record visible.
type Ledger struct {
	mu        sync.RWMutex
	factory   common.Address
	nonce     uint64
	records   []TokenRecord
	byCreator map[common.Address][]int
	byAddress map[common.Address]int
	tokens    map[common.Address]*Token

	store   Store
	log     *zap.Logger
	metrics *Metrics
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithStore persists committed records to s.
func WithStore(s Store) LedgerOption {
	return func(l *Ledger) { l.store = s }
}

// WithFactory sets the address token addresses are derived from.
func WithFactory(addr common.Address) LedgerOption {
	return func(l *Ledger) { l.factory = addr }
}

// WithLogger sets the ledger logger.
func WithLogger(log *zap.Logger) LedgerOption {
	return func(l *Ledger) { l.log = log }
}

// WithMetrics records ledger activity on m.
func WithMetrics(m *Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger returns an empty ledger. Without WithStore records live in memory.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		factory:   LocalFactoryAddress,
		nonce:     FirstNonce,
		byCreator: make(map[common.Address][]int),
		byAddress: make(map[common.Address]int),
		tokens:    make(map[common.Address]*Token),
		store:     &memStore{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenLedger builds a ledger and replays every entry already in its store.
func OpenLedger(ctx context.Context, opts ...LedgerOption) (*Ledger, error) {
	l := NewLedger(opts...)
	entries, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	for _, e := range entries {
		if _, dup := l.byAddress[e.Record.TokenAddress]; dup {
			return nil, fmt.Errorf("loading ledger: duplicate token address %s", e.Record.TokenAddress.Hex())
		}
		l.apply(e.Record)
		if e.Nonce >= l.nonce {
			l.nonce = e.Nonce + 1
		}
	}
	l.metrics.observeLoaded(len(l.records))
	l.log.Debug("ledger loaded",
		zap.Int("tokens", len(l.records)),
		zap.Uint64("next_nonce", l.nonce))
	return l, nil
}

// Factory returns the address token addresses are derived from.
func (l *Ledger) Factory() common.Address { return l.factory }

// Begin validates a request and allocates its token address. The record
// stays invisible to queries until Commit.
func (l *Ledger) Begin(req Request) (*Pending, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		l.metrics.observeRejected(rejectReason(err))
		return nil, err
	}

	l.mu.Lock()
	nonce := l.nonce
	l.nonce++
	l.mu.Unlock()

	rec := TokenRecord{
		TokenAddress: crypto.CreateAddress(l.factory, nonce),
		Name:         req.Name,
		Symbol:       req.Symbol,
		Creator:      req.Creator,
		TotalSupply:  req.EffectiveSupply(),
	}
	return &Pending{ledger: l, nonce: nonce, record: rec}, nil
}

// CreateToken validates, allocates and commits in one step.
func (l *Ledger) CreateToken(ctx context.Context, creator common.Address, name, symbol string, supply *big.Int) (*TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.Begin(Request{Creator: creator, Name: name, Symbol: symbol, Supply: supply})
	if err != nil {
		return nil, err
	}
	rec, err := p.Commit(ctx)
	if err != nil {
		p.Rollback()
		return nil, err
	}
	return rec, nil
}

// TokenCount returns the number of committed records.
func (l *Ledger) TokenCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.records)), nil
}

// Token returns the record at index in creation order.
func (l *Ledger) Token(ctx context.Context, index uint64) (*TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.records)) {
		return nil, fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, index, len(l.records))
	}
	rec := l.records[index].Clone()
	return &rec, nil
}

// AllTokens returns every record in creation order.
func (l *Ledger) AllTokens(ctx context.Context) ([]TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TokenRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.Clone()
	}
	return out, nil
}

// TokensByCreator returns the records created by creator in creation order.
func (l *Ledger) TokensByCreator(ctx context.Context, creator common.Address) ([]TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.byCreator[creator]
	out := make([]TokenRecord, len(idx))
	for i, j := range idx {
		out[i] = l.records[j].Clone()
	}
	return out, nil
}

// Instance returns the token deployed at addr.
func (l *Ledger) Instance(addr common.Address) (*Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tokens[addr]
	return t, ok
}

// apply appends rec to the indices. Callers hold the write lock or own l.
func (l *Ledger) apply(rec TokenRecord) {
	idx := len(l.records)
	l.records = append(l.records, rec)
	l.byCreator[rec.Creator] = append(l.byCreator[rec.Creator], idx)
	l.byAddress[rec.TokenAddress] = idx
	l.tokens[rec.TokenAddress] = NewToken(rec.TokenAddress, l.factory, rec.Creator, rec.Name, rec.Symbol, rec.TotalSupply)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrInvalidSupply):
		return "invalid_supply"
	default:
		return "other"
	}
}

// Pending is a validated creation awaiting Commit or Rollback.
type Pending struct {
	ledger *Ledger
	nonce  uint64
	record TokenRecord
	closed bool
}

// Address returns the address allocated for the pending token.
func (p *Pending) Address() common.Address { return p.record.TokenAddress }

// Record returns a copy of the record that Commit would store.
func (p *Pending) Record() TokenRecord { return p.record.Clone() }

// Commit stores the record and appends it to the global list and the
// creator index under one lock.
func (p *Pending) Commit(ctx context.Context) (*TokenRecord, error) {
	l := p.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.closed {
		return nil, ErrPendingClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, dup := l.byAddress[p.record.TokenAddress]; dup {
		return nil, fmt.Errorf("token address %s already allocated", p.record.TokenAddress.Hex())
	}
	if err := l.store.Append(ctx, Entry{Nonce: p.nonce, Record: p.record}); err != nil {
		return nil, fmt.Errorf("persisting token %s: %w", p.record.TokenAddress.Hex(), err)
	}
	l.apply(p.record)
	p.closed = true

	l.metrics.observeCreated(len(l.records))
	l.log.Info("token created",
		zap.String("address", p.record.TokenAddress.Hex()),
		zap.String("symbol", p.record.Symbol),
		zap.String("creator", p.record.Creator.Hex()),
		zap.String("supply", p.record.TotalSupply.String()))

	rec := p.record.Clone()
	return &rec, nil
}

// Rollback discards the pending record. Its nonce is not reused. Rolling
// back a committed creation is a no-op.
func (p *Pending) Rollback() {
	l := p.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	l.metrics.observeRollback()
	l.log.Debug("pending token rolled back", zap.String("address", p.record.TokenAddress.Hex()))
}

var _ Registry = (*Ledger)(nil)
