package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"
)

// ErrReverted is returned when a mined transaction has status 0.
var ErrReverted = errors.New("transaction reverted")

// EVMClient is a minimal JSON-RPC client for EVM chains.
type EVMClient struct {
	url    string
	client *http.Client
	nextID atomic.Int64
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string) *EVMClient {
	return &EVMClient{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// URL returns the endpoint this client talks to.
func (c *EVMClient) URL() string { return c.url }

// RPCError is a JSON-RPC error object. Data carries revert payloads when the
// node includes them.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsRevert reports whether err is a node-side execution revert.
func IsRevert(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == 3 || strings.Contains(rpcErr.Message, "revert")
	}
	return false
}

// RevertReason extracts the human-readable part of a revert error.
func RevertReason(err error) string {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return ""
	}
	msg := rpcErr.Message
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted:"):])
	}
	return msg
}

// CallMsg describes an eth_call / eth_estimateGas request.
type CallMsg struct {
	From  common.Address
	To    *common.Address // nil for contract creation
	Data  []byte
	Value *big.Int
}

func (m CallMsg) params() map[string]string {
	p := map[string]string{}
	if m.From != (common.Address{}) {
		p["from"] = m.From.Hex()
	}
	if m.To != nil {
		p["to"] = m.To.Hex()
	}
	if len(m.Data) > 0 {
		p["data"] = hexutil.Encode(m.Data)
	}
	if m.Value != nil && m.Value.Sign() > 0 {
		p["value"] = hexutil.EncodeBig(m.Value)
	}
	return p
}

// Call executes a read-only call against the latest block and returns the
// raw return data.
func (c *EVMClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", msg.params(), "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// EstimateGas estimates gas for a transaction.
func (c *EVMClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "eth_estimateGas", msg.params(), "latest"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// GasPrice returns the current gas price.
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var out hexutil.Big
	if err := c.call(ctx, &out, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

// ChainID returns the chain's ID.
func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	var out hexutil.Big
	if err := c.call(ctx, &out, "eth_chainId"); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

// BlockNumber returns the latest block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// PendingNonce returns the transaction count including queued transactions.
func (c *EVMClient) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "eth_getTransactionCount", addr.Hex(), "pending"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// GetCode returns the bytecode at an address. Empty means no contract.
func (c *EVMClient) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_getCode", addr.Hex(), "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SendRawTransaction broadcasts a signed raw transaction.
func (c *EVMClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var out common.Hash
	if err := c.call(ctx, &out, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, err
	}
	return out, nil
}

// LogEntry holds one event log from a receipt.
type LogEntry struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// TxReceipt holds the on-chain receipt of a mined transaction.
type TxReceipt struct {
	Hash            common.Hash
	Status          uint64 // 1 = success, 0 = reverted
	BlockNumber     uint64
	GasUsed         uint64
	ContractAddress *common.Address // set when a contract was deployed
	Logs            []LogEntry
}

type rawReceipt struct {
	Status          hexutil.Uint64  `json:"status"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	ContractAddress *common.Address `json:"contractAddress"`
	Logs            []LogEntry      `json:"logs"`
}

// TransactionReceipt fetches the receipt for hash.
// Returns nil, nil if the transaction is still pending.
func (c *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*TxReceipt, error) {
	var raw *rawReceipt
	if err := c.call(ctx, &raw, "eth_getTransactionReceipt", hash.Hex()); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil // still pending
	}
	return &TxReceipt{
		Hash:            hash,
		Status:          uint64(raw.Status),
		BlockNumber:     uint64(raw.BlockNumber),
		GasUsed:         uint64(raw.GasUsed),
		ContractAddress: raw.ContractAddress,
		Logs:            raw.Logs,
	}, nil
}

// WaitForReceipt polls until the transaction is mined or ctx expires. Polls
// are paced by limiter; pass nil to poll every two seconds. A reverted
// transaction returns its receipt together with ErrReverted.
func (c *EVMClient) WaitForReceipt(ctx context.Context, hash common.Hash, limiter *rate.Limiter) (*TxReceipt, error) {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(2*time.Second), 1)
	}
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), err)
		}
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			continue
		}
		if receipt.Status == 0 {
			return receipt, fmt.Errorf("%w (hash: %s)", ErrReverted, hash.Hex())
		}
		return receipt, nil
	}
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (c *EVMClient) call(ctx context.Context, result any, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("parsing result of %s: %w", method, err)
	}
	return nil
}
