package factory

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/Mohsinsiddi/ctfactory/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// fake factory node
// ---------------------------------------------------------------------------

var factoryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

const (
	hardhatKey0 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatKey1 = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

// fakeNode answers the JSON-RPC calls the client makes, executing
// createToken against an in-memory record list.
type fakeNode struct {
	mu        sync.Mutex
	records   []tokenRecord
	receipts  map[common.Hash]map[string]interface{}
	revertTx  bool // mine transactions with status 0
	noEvents  bool // omit TokenCreated logs
	nonce     uint64
	sentCount int
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{receipts: make(map[common.Hash]map[string]interface{})}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     int               `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	result, rpcErr := n.handle(req.Method, req.Params)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

func revert(reason string) map[string]interface{} {
	return map[string]interface{}{"code": 3, "message": "execution reverted: " + reason}
}

func (n *fakeNode) handle(method string, params []json.RawMessage) (interface{}, map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch method {
	case "eth_chainId":
		return "0x7a69", nil
	case "eth_gasPrice":
		return "0x3b9aca00", nil
	case "eth_getTransactionCount":
		return hexutil.EncodeUint64(n.nonce), nil
	case "eth_estimateGas":
		var msg struct {
			Data hexutil.Bytes `json:"data"`
		}
		json.Unmarshal(params[0], &msg) //nolint:errcheck
		if reason := n.validate(msg.Data); reason != "" {
			return nil, revert(reason)
		}
		return "0x30d40", nil
	case "eth_call":
		var msg struct {
			Data hexutil.Bytes `json:"data"`
		}
		json.Unmarshal(params[0], &msg) //nolint:errcheck
		return n.call(msg.Data)
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		json.Unmarshal(params[0], &raw) //nolint:errcheck
		return n.send(raw)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		json.Unmarshal(params[0], &hash) //nolint:errcheck
		if rc, ok := n.receipts[hash]; ok {
			return rc, nil
		}
		return nil, nil
	}
	return nil, map[string]interface{}{"code": -32601, "message": "method not found"}
}

func (n *fakeNode) validate(data []byte) string {
	m, err := ABI.MethodById(data[:4])
	if err != nil || m.Name != "createToken" {
		return ""
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return "bad input"
	}
	if args[0].(string) == "" {
		return "Name required"
	}
	if args[1].(string) == "" {
		return "Symbol required"
	}
	return ""
}

func (n *fakeNode) call(data []byte) (interface{}, map[string]interface{}) {
	m, err := ABI.MethodById(data[:4])
	if err != nil {
		return nil, revert("unknown selector")
	}
	args, _ := m.Inputs.Unpack(data[4:])
	var out []byte
	switch m.Name {
	case "getTokenCount":
		out, err = m.Outputs.Pack(big.NewInt(int64(len(n.records))))
	case "getToken":
		i := args[0].(*big.Int).Int64()
		if i >= int64(len(n.records)) {
			return nil, revert("Index out of bounds")
		}
		out, err = m.Outputs.Pack(n.records[i])
	case "getAllTokens":
		out, err = m.Outputs.Pack(n.records)
	case "getTokensByCreator":
		creator := args[0].(common.Address)
		mine := []tokenRecord{}
		for _, r := range n.records {
			if r.Creator == creator {
				mine = append(mine, r)
			}
		}
		out, err = m.Outputs.Pack(mine)
	}
	if err != nil {
		return nil, revert(err.Error())
	}
	return hexutil.Encode(out), nil
}

func (n *fakeNode) send(raw []byte) (interface{}, map[string]interface{}) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, map[string]interface{}{"code": -32000, "message": err.Error()}
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
	if err != nil {
		return nil, map[string]interface{}{"code": -32000, "message": err.Error()}
	}
	n.nonce++
	n.sentCount++

	receipt := map[string]interface{}{"status": "0x1", "blockNumber": "0x1", "gasUsed": "0x1", "logs": []interface{}{}}
	if n.revertTx {
		receipt["status"] = "0x0"
		n.receipts[tx.Hash()] = receipt
		return tx.Hash().Hex(), nil
	}

	m, _ := ABI.MethodById(tx.Data()[:4])
	args, _ := m.Inputs.Unpack(tx.Data()[4:])
	supply := args[2].(*big.Int)
	if supply.Sign() == 0 {
		supply = big.NewInt(registry.DefaultSupply)
	}
	rec := tokenRecord{
		TokenAddress: crypto.CreateAddress(factoryAddr, registry.FirstNonce+uint64(len(n.records))),
		Name:         args[0].(string),
		Symbol:       args[1].(string),
		Creator:      from,
		TotalSupply:  supply,
	}
	n.records = append(n.records, rec)

	if !n.noEvents {
		ev := ABI.Events["TokenCreated"]
		data, _ := ev.Inputs.NonIndexed().Pack(rec.Name, rec.Symbol, rec.TotalSupply)
		receipt["logs"] = []interface{}{map[string]interface{}{
			"address": factoryAddr.Hex(),
			"topics": []string{
				ev.ID.Hex(),
				common.BytesToHash(rec.TokenAddress.Bytes()).Hex(),
				common.BytesToHash(rec.Creator.Bytes()).Hex(),
			},
			"data": hexutil.Encode(data),
		}}
	}
	n.receipts[tx.Hash()] = receipt
	return tx.Hash().Hex(), nil
}

func newSigner(t *testing.T, key string) chain.TxSigner {
	t.Helper()
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	w, err := mgr.AddWithKey("w", key)
	require.NoError(t, err)
	s, err := wallet.NewSigner(w, mgr.Keystore())
	require.NoError(t, err)
	return s
}

func newClient(t *testing.T, url string, signer chain.TxSigner) *Client {
	t.Helper()
	opts := []Option{WithPollInterval(time.Millisecond), WithConfirmTimeout(5 * time.Second)}
	if signer != nil {
		opts = append(opts, WithSigner(signer))
	}
	return New(chain.NewEVMClient(url), factoryAddr, opts...)
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestCreateAndQuery(t *testing.T) {
	_, srv := newFakeNode(t)
	ctx := context.Background()
	deployer := newSigner(t, hardhatKey0)
	alice := newSigner(t, hardhatKey1)

	c := newClient(t, srv.URL, deployer)
	gen, err := c.CreateToken(ctx, deployer.Address(), "Genesis", "gen", big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "GEN", gen.Symbol)
	assert.Equal(t, big.NewInt(registry.DefaultSupply), gen.TotalSupply)
	assert.Equal(t, deployer.Address(), gen.Creator)

	ca := newClient(t, srv.URL, alice)
	alp, err := ca.CreateToken(ctx, common.Address{}, "Alpha", "ALP", big.NewInt(5000))
	require.NoError(t, err)
	assert.Equal(t, alice.Address(), alp.Creator)

	count, err := c.TokenCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	mine, err := c.TokensByCreator(ctx, alice.Address())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "ALP", mine[0].Symbol)
	assert.Equal(t, big.NewInt(5000), mine[0].TotalSupply)

	all, err := c.AllTokens(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, gen.TokenAddress, all[0].TokenAddress)
	assert.Equal(t, alp.TokenAddress, all[1].TokenAddress)

	again, err := c.AllTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, all, again)

	first, err := c.Token(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Genesis", first.Name)
}

func TestTokenIndexOutOfRange(t *testing.T) {
	_, srv := newFakeNode(t)
	c := newClient(t, srv.URL, nil)
	_, err := c.Token(context.Background(), 0)
	assert.ErrorIs(t, err, registry.ErrIndexOutOfRange)
}

func TestValidationBeforeNetwork(t *testing.T) {
	node, srv := newFakeNode(t)
	c := newClient(t, srv.URL, newSigner(t, hardhatKey0))
	ctx := context.Background()

	_, err := c.CreateToken(ctx, common.Address{}, " ", "SYM", nil)
	assert.ErrorIs(t, err, registry.ErrInvalidName)
	_, err = c.CreateToken(ctx, common.Address{}, "Genesis", "", nil)
	assert.ErrorIs(t, err, registry.ErrInvalidSymbol)
	assert.Zero(t, node.sentCount)
}

func TestSubmitWithoutSigner(t *testing.T) {
	_, srv := newFakeNode(t)
	c := newClient(t, srv.URL, nil)
	_, err := c.Submit(context.Background(), registry.Request{Name: "Genesis", Symbol: "GEN"})
	assert.ErrorIs(t, err, registry.ErrSubmission)
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestSubmitCreatorMismatch(t *testing.T) {
	_, srv := newFakeNode(t)
	c := newClient(t, srv.URL, newSigner(t, hardhatKey0))
	_, err := c.Submit(context.Background(), registry.Request{
		Creator: common.HexToAddress("0x01"),
		Name:    "Genesis",
		Symbol:  "GEN",
	})
	assert.ErrorIs(t, err, registry.ErrSubmission)
}

func TestRevertedTransactionIsFinalizationError(t *testing.T) {
	node, srv := newFakeNode(t)
	node.revertTx = true
	c := newClient(t, srv.URL, newSigner(t, hardhatKey0))

	sub, err := c.Submit(context.Background(), registry.Request{Name: "Genesis", Symbol: "GEN"})
	require.NoError(t, err)
	_, err = sub.Wait(context.Background())
	require.ErrorIs(t, err, registry.ErrFinalization)
	assert.Equal(t, "transaction failed", registry.UserMessage(err))
}

func TestWaitFallsBackWithoutEvent(t *testing.T) {
	node, srv := newFakeNode(t)
	node.noEvents = true
	signer := newSigner(t, hardhatKey0)
	c := newClient(t, srv.URL, signer)

	rec, err := c.CreateToken(context.Background(), signer.Address(), "Genesis", "GEN", big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), rec.TotalSupply)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, registry.FirstNonce), rec.TokenAddress)
}

func TestCreateTokenSurvivesCallerCancelAfterAccept(t *testing.T) {
	_, srv := newFakeNode(t)
	signer := newSigner(t, hardhatKey0)
	c := newClient(t, srv.URL, signer)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.Submit(ctx, registry.Request{Name: "Genesis", Symbol: "GEN"})
	require.NoError(t, err)
	cancel()

	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer wcancel()
	rec, err := sub.Wait(wctx)
	require.NoError(t, err)
	assert.Equal(t, "GEN", rec.Symbol)
}

func TestEmptyCallResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x"}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, nil).TokenCount(context.Background())
	assert.ErrorContains(t, err, "empty result")
}

func TestParseTokenCreatedRejectsForeignLogs(t *testing.T) {
	_, ok := parseTokenCreated([]common.Hash{{}}, nil)
	assert.False(t, ok)
}
