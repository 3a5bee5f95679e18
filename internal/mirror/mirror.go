// Package mirror copies a registry's tokens into a ledger store, so a chain
// registry can be served from a local or Postgres copy.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

// ErrDiverged is returned when the copy holds a token the source does not
// have at the same index.
var ErrDiverged = errors.New("mirror diverged from source")

// Result summarises one Run.
type Result struct {
	Added int
	Total uint64
}

// Syncer appends tokens from src to dst. Entries are appended in index
// order with the nonce the factory used for that index, so a Run after a
// crash resumes where the last one stopped and a ledger opened on dst
// allocates the factory's next address.
type Syncer struct {
	src registry.Registry
	dst registry.Store
	log *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Syncer) { s.log = log }
}

// New returns a Syncer copying src into dst.
func New(src registry.Registry, dst registry.Store, opts ...Option) *Syncer {
	s := &Syncer{src: src, dst: dst, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run copies every source token the store does not have yet.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	have, err := s.dst.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("loading mirror: %w", err)
	}
	count, err := s.src.TokenCount(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading source count: %w", err)
	}
	if uint64(len(have)) > count {
		return Result{}, fmt.Errorf("%w: mirror has %d tokens, source %d", ErrDiverged, len(have), count)
	}
	if n := len(have); n > 0 {
		last, err := s.src.Token(ctx, uint64(n-1))
		if err != nil {
			return Result{}, fmt.Errorf("reading source token %d: %w", n-1, err)
		}
		if last.TokenAddress != have[n-1].Record.TokenAddress {
			return Result{}, fmt.Errorf("%w: token %d is %s in mirror, %s in source",
				ErrDiverged, n-1, have[n-1].Record.TokenAddress.Hex(), last.TokenAddress.Hex())
		}
	}

	res := Result{Total: count}
	for i := uint64(len(have)); i < count; i++ {
		rec, err := s.src.Token(ctx, i)
		if err != nil {
			return res, fmt.Errorf("reading source token %d: %w", i, err)
		}
		if err := s.dst.Append(ctx, registry.Entry{Nonce: registry.FirstNonce + i, Record: *rec}); err != nil {
			return res, fmt.Errorf("appending token %d: %w", i, err)
		}
		res.Added++
	}
	s.log.Info("mirror synced", zap.Int("added", res.Added), zap.Uint64("total", res.Total))
	return res, nil
}

// Watch runs Run on a ticker until ctx is cancelled. Failed runs are logged
// and retried on the next tick; the first run's error is returned.
func (s *Syncer) Watch(ctx context.Context, interval time.Duration, onRun func(Result)) error {
	res, err := s.Run(ctx)
	if err != nil {
		return err
	}
	if onRun != nil {
		onRun(res)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Warn("mirror sync failed", zap.Error(err))
				continue
			}
			if onRun != nil {
				onRun(res)
			}
		}
	}
}
