// check-factories: probes every RPC of every supported network in parallel
// and, for networks with a factory address, reads its token count through
// the fastest healthy endpoint. Prints a summary table.
//
// Run from the module root:
//
//	go run ./scripts/check-factories sepolia=0xFactory... localhost=0xFactory...
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/factory"
)

const rpcTimeout = 12 * time.Second

// ── types ─────────────────────────────────────────────────────────────────────

type result struct {
	network string
	rpc     string
	latency string
	block   string
	tokens  string
	note    string
}

// ── main ──────────────────────────────────────────────────────────────────────

func main() {
	factories, err := parseFactories(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	reg := chain.NewRegistry()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []result
	)

	for _, n := range reg.All() {
		wg.Add(1)
		go func(n chain.Network) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
			defer cancel()

			probes := chain.ProbeEndpoints(ctx, n.RPCs, rpcTimeout/2)
			best, bestErr := chain.PickFastest(probes)

			var rows []result
			for _, p := range probes {
				r := result{network: n.Name, rpc: p.URL, latency: "—", block: "—", tokens: ""}
				if !p.Healthy() {
					r.note = shortErr(p.Err)
				} else {
					r.latency = p.Latency.Round(time.Millisecond).String()
					r.block = fmt.Sprintf("%d", p.BlockNumber)
				}
				if bestErr == nil && p.URL == best.URL {
					r.note = "best"
					if addr, ok := factories[n.Name]; ok {
						r.tokens = tokenCount(ctx, p.URL, addr)
					}
				}
				rows = append(rows, r)
			}

			mu.Lock()
			results = append(results, rows...)
			mu.Unlock()
		}(n)
	}

	wg.Wait()

	printTable(results)
}

func tokenCount(ctx context.Context, url string, addr common.Address) string {
	n, err := factory.New(chain.NewEVMClient(url), addr).TokenCount(ctx)
	if err != nil {
		return "error: " + shortErr(err)
	}
	return fmt.Sprintf("%d", n)
}

// parseFactories reads network=address pairs.
func parseFactories(args []string) (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(args))
	for _, a := range args {
		name, addr, ok := strings.Cut(a, "=")
		if !ok || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("expected network=0xaddress, got %q", a)
		}
		out[strings.ToLower(name)] = common.HexToAddress(addr)
	}
	return out, nil
}

// ── output ────────────────────────────────────────────────────────────────────

func printTable(results []result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.network != b.network {
			return a.network < b.network
		}
		return a.rpc < b.rpc
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "NETWORK\tRPC\tLATENCY\tBLOCK\tTOKENS\tNOTE")
	fmt.Fprintln(w, strings.Repeat("-", 10)+"\t"+
		strings.Repeat("-", 40)+"\t"+
		strings.Repeat("-", 8)+"\t"+
		strings.Repeat("-", 10)+"\t"+
		strings.Repeat("-", 6)+"\t"+
		strings.Repeat("-", 12))

	last := ""
	for _, r := range results {
		if r.network != last {
			if last != "" {
				fmt.Fprintln(w, "\t\t\t\t\t") // blank separator between networks
			}
			last = r.network
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.network, r.rpc, r.latency, r.block, r.tokens, r.note)
	}
	w.Flush()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func shortErr(err error) string {
	s := err.Error()
	if len(s) > 30 {
		return s[:30] + "…"
	}
	return s
}
