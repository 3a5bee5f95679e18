package chain

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoHealthyRPC is returned when no endpoint answered.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Discard nodes more than this many blocks behind the best.
const staleBlockThreshold = 3

// Endpoint is one probed RPC URL.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Err         error
}

// Healthy reports whether the probe succeeded.
func (e Endpoint) Healthy() bool { return e.Err == nil }

// ProbeEndpoints pings every URL in parallel. Results keep the input order.
func ProbeEndpoints(ctx context.Context, urls []string, timeout time.Duration) []Endpoint {
	results := make([]Endpoint, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			latency, block, err := NewEVMClient(url).Ping(pctx)
			results[i] = Endpoint{URL: url, Latency: latency, BlockNumber: block, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// PickFastest returns the lowest-latency healthy endpoint that is not lagging
// the best observed block.
func PickFastest(endpoints []Endpoint) (Endpoint, error) {
	var best uint64
	for _, e := range endpoints {
		if e.Healthy() && e.BlockNumber > best {
			best = e.BlockNumber
		}
	}
	candidates := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if !e.Healthy() || best-e.BlockNumber > staleBlockThreshold {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return Endpoint{}, ErrNoHealthyRPC
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Latency < candidates[j].Latency
	})
	return candidates[0], nil
}

// BestRPC probes urls and returns the fastest healthy one. A single URL is
// returned without probing.
func BestRPC(ctx context.Context, urls []string) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}
	ep, err := PickFastest(ProbeEndpoints(ctx, urls, 5*time.Second))
	if err != nil {
		return "", err
	}
	return ep.URL, nil
}
