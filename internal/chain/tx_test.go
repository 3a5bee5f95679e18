package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keySigner struct{ key *ecdsa.PrivateKey }

func (s keySigner) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

func (s keySigner) SignTx(tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), s.key)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

func newKeySigner(t *testing.T) keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return keySigner{key: key}
}

// txNode records the last raw transaction and answers the calls SendTx makes.
func txNode(t *testing.T, estimate map[string]interface{}) (*httptest.Server, *types.Transaction) {
	t.Helper()
	sent := new(types.Transaction)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = "0x7a69"
		case "eth_getTransactionCount":
			resp["result"] = "0x3"
		case "eth_gasPrice":
			resp["result"] = "0x64"
		case "eth_estimateGas":
			if estimate != nil {
				resp["error"] = estimate
			} else {
				resp["result"] = "0x2710"
			}
		case "eth_sendRawTransaction":
			var raw hexutil.Bytes
			json.Unmarshal(req.Params[0], &raw) //nolint:errcheck
			require.NoError(t, sent.UnmarshalBinary(raw))
			resp["result"] = sent.Hash().Hex()
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv, sent
}

func TestSendTxFillsFields(t *testing.T) {
	srv, sent := txNode(t, nil)
	signer := newKeySigner(t)
	to := common.HexToAddress("0xfa")

	hash, err := NewEVMClient(srv.URL).SendTx(context.Background(), signer, TxRequest{To: &to, Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, sent.Hash(), hash)
	assert.Equal(t, uint64(3), sent.Nonce())
	assert.Equal(t, uint64(12000), sent.Gas())
	assert.Equal(t, big.NewInt(100), sent.GasTipCap())
	assert.Equal(t, big.NewInt(200), sent.GasFeeCap())
	assert.Equal(t, &to, sent.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), sent)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}

func TestSendTxFallbackGas(t *testing.T) {
	srv, sent := txNode(t, map[string]interface{}{"code": -32000, "message": "gas required exceeds allowance"})
	_, err := NewEVMClient(srv.URL).SendTx(context.Background(), newKeySigner(t), TxRequest{Data: []byte{1}, FallbackGas: 6_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(6_000_000), sent.Gas())
	assert.Nil(t, sent.To())
}

func TestSendTxRevertDuringEstimate(t *testing.T) {
	srv, _ := txNode(t, map[string]interface{}{"code": 3, "message": "execution reverted: Name required"})
	_, err := NewEVMClient(srv.URL).SendTx(context.Background(), newKeySigner(t), TxRequest{FallbackGas: 1})
	require.Error(t, err)
	assert.True(t, IsRevert(err))
	assert.Equal(t, "Name required", RevertReason(err))
}
