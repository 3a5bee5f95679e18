package ens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
)

// ---------------------------------------------------------------------------
// Namehash — EIP-137 vectors
// ---------------------------------------------------------------------------

func TestNamehashEmpty(t *testing.T) {
	assert.Equal(t, common.Hash{}, Namehash(""))
}

func TestNamehashVectors(t *testing.T) {
	assert.Equal(t, "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae", Namehash("eth").Hex())
	assert.Equal(t, "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f", Namehash("foo.eth").Hex())
}

func TestNamehashNormalizesCase(t *testing.T) {
	assert.Equal(t, Namehash("foo.eth"), Namehash("Foo.ETH"))
	assert.NotEqual(t, Namehash("alice.eth"), Namehash("bob.eth"))
}

func TestIsName(t *testing.T) {
	assert.True(t, IsName("alice.eth"))
	assert.True(t, IsName("sub.alice.eth"))
	assert.False(t, IsName("0x00000000000000000000000000000000000000a1"))
	assert.False(t, IsName("alice"))
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// ensMock answers eth_call by target address and method selector.
func ensMock(t *testing.T, answers map[common.Address]map[string][]byte) *chain.EVMClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int               `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var msg struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(req.Params[0], &msg))

		result := "0x"
		if byMethod, ok := answers[common.HexToAddress(msg.To)]; ok {
			if out, ok := byMethod[strings.ToLower(msg.Data[:10])]; ok {
				result = hexutil.Encode(out)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return chain.NewEVMClient(srv.URL)
}

func selector(method string) string {
	return hexutil.Encode(ensABI.Methods[method].ID)
}

func packOut(t *testing.T, method string, v any) []byte {
	t.Helper()
	out, err := ensABI.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

var (
	resolverAddr = common.HexToAddress("0x4976fb03C32e5B8cfe2b6cCB31c09Ba78EBaBa41")
	vitalik      = common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")
)

// ---------------------------------------------------------------------------
// Resolve / Lookup
// ---------------------------------------------------------------------------

func TestResolve(t *testing.T) {
	rpc := ensMock(t, map[common.Address]map[string][]byte{
		RegistryAddress: {selector("resolver"): packOut(t, "resolver", resolverAddr)},
		resolverAddr:    {selector("addr"): packOut(t, "addr", vitalik)},
	})
	got, err := NewResolver(rpc).Resolve(context.Background(), "vitalik.eth")
	require.NoError(t, err)
	assert.Equal(t, vitalik, got)
}

func TestResolveNoResolver(t *testing.T) {
	rpc := ensMock(t, map[common.Address]map[string][]byte{
		RegistryAddress: {selector("resolver"): packOut(t, "resolver", common.Address{})},
	})
	_, err := NewResolver(rpc).Resolve(context.Background(), "nobody.eth")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveNoAddress(t *testing.T) {
	rpc := ensMock(t, map[common.Address]map[string][]byte{
		RegistryAddress: {selector("resolver"): packOut(t, "resolver", resolverAddr)},
		resolverAddr:    {selector("addr"): packOut(t, "addr", common.Address{})},
	})
	_, err := NewResolver(rpc).Resolve(context.Background(), "empty.eth")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveEmptyResult(t *testing.T) {
	rpc := ensMock(t, nil)
	_, err := NewResolver(rpc).Resolve(context.Background(), "x.eth")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup(t *testing.T) {
	rpc := ensMock(t, map[common.Address]map[string][]byte{
		RegistryAddress: {selector("resolver"): packOut(t, "resolver", resolverAddr)},
		resolverAddr:    {selector("name"): packOut(t, "name", "vitalik.eth")},
	})
	name, err := NewResolver(rpc).Lookup(context.Background(), vitalik)
	require.NoError(t, err)
	assert.Equal(t, "vitalik.eth", name)
}
