// Package factory is a typed client for the deployed confidential token
// factory contract.
package factory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoSigner means a write was attempted without a signing wallet.
var ErrNoSigner = errors.New("no signing wallet configured")

// Client talks to one factory deployment.
type Client struct {
	rpc        *chain.EVMClient
	address    common.Address
	signer     chain.TxSigner
	log        *zap.Logger
	pollEvery  time.Duration
	confirmFor time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithSigner enables writes from signer's account.
func WithSigner(s chain.TxSigner) Option {
	return func(c *Client) { c.signer = s }
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithPollInterval sets how often Wait polls for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollEvery = d }
}

// WithConfirmTimeout bounds Wait after a request was accepted.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) { c.confirmFor = d }
}

// New returns a client for the factory at address.
func New(rpc *chain.EVMClient, address common.Address, opts ...Option) *Client {
	c := &Client{
		rpc:        rpc,
		address:    address,
		log:        zap.NewNop(),
		pollEvery:  config.ReceiptPollInterval,
		confirmFor: config.TxConfirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the factory address.
func (c *Client) Address() common.Address { return c.address }

// ---------------------------------------------------------------------------
// reads
// ---------------------------------------------------------------------------

func (c *Client) call(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	to := c.address
	out, err := c.rpc.Call(ctx, chain.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result, is %s a factory on this network?", method, c.address.Hex())
	}
	return out, nil
}

// TokenCount returns the number of tokens the factory created.
func (c *Client) TokenCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "getTokenCount")
	if err != nil {
		return 0, err
	}
	n, err := unpackUint("getTokenCount", out)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("getTokenCount: %s overflows uint64", n)
	}
	return n.Uint64(), nil
}

// Token returns the record at index.
func (c *Client) Token(ctx context.Context, index uint64) (*registry.TokenRecord, error) {
	count, err := c.TokenCount(ctx)
	if err != nil {
		return nil, err
	}
	if index >= count {
		return nil, fmt.Errorf("%w: index %d, count %d", registry.ErrIndexOutOfRange, index, count)
	}
	out, err := c.call(ctx, "getToken", new(big.Int).SetUint64(index))
	if err != nil {
		if chain.IsRevert(err) {
			return nil, fmt.Errorf("%w: index %d", registry.ErrIndexOutOfRange, index)
		}
		return nil, err
	}
	rec, err := unpackRecord(out)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AllTokens returns every record in creation order.
func (c *Client) AllTokens(ctx context.Context) ([]registry.TokenRecord, error) {
	out, err := c.call(ctx, "getAllTokens")
	if err != nil {
		return nil, err
	}
	return unpackRecords("getAllTokens", out)
}

// TokensByCreator returns the records created by creator.
func (c *Client) TokensByCreator(ctx context.Context, creator common.Address) ([]registry.TokenRecord, error) {
	out, err := c.call(ctx, "getTokensByCreator", creator)
	if err != nil {
		return nil, err
	}
	return unpackRecords("getTokensByCreator", out)
}

// ---------------------------------------------------------------------------
// writes
// ---------------------------------------------------------------------------

// Submission is a createToken transaction that was accepted by the node.
type Submission struct {
	TxHash  common.Hash
	Request registry.Request

	client *Client
}

// Submit validates req, then signs and broadcasts createToken. Validation
// errors are returned before any RPC call.
func (c *Client) Submit(ctx context.Context, req registry.Request) (*Submission, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if c.signer == nil {
		return nil, &registry.SubmissionError{Cause: ErrNoSigner}
	}
	from := c.signer.Address()
	if req.Creator == (common.Address{}) {
		req.Creator = from
	}
	if req.Creator != from {
		return nil, registry.Submissionf("creator %s is not the signing wallet %s", req.Creator.Hex(), from.Hex())
	}

	supply := req.Supply
	if supply == nil {
		supply = new(big.Int)
	}
	data, err := ABI.Pack("createToken", req.Name, req.Symbol, supply)
	if err != nil {
		return nil, &registry.SubmissionError{Cause: fmt.Errorf("encoding createToken: %w", err)}
	}

	to := c.address
	hash, err := c.rpc.SendTx(ctx, c.signer, chain.TxRequest{
		To:          &to,
		Data:        data,
		FallbackGas: config.GasLimitFactoryCreate,
	})
	if err != nil {
		if chain.IsRevert(err) {
			if verr := revertToValidation(chain.RevertReason(err)); verr != nil {
				return nil, verr
			}
		}
		return nil, &registry.SubmissionError{Cause: err}
	}

	c.log.Info("createToken submitted",
		zap.String("tx", hash.Hex()),
		zap.String("factory", c.address.Hex()),
		zap.String("symbol", req.Symbol))
	return &Submission{TxHash: hash, Request: req, client: c}, nil
}

// Wait blocks until the transaction is mined and returns the new record.
func (s *Submission) Wait(ctx context.Context) (*registry.TokenRecord, error) {
	c := s.client
	limiter := rate.NewLimiter(rate.Every(c.pollEvery), 1)
	receipt, err := c.rpc.WaitForReceipt(ctx, s.TxHash, limiter)
	if err != nil {
		if errors.Is(err, chain.ErrReverted) {
			return nil, &registry.FinalizationError{TxHash: s.TxHash}
		}
		return nil, &registry.FinalizationError{TxHash: s.TxHash, Cause: err}
	}

	for _, lg := range receipt.Logs {
		if lg.Address != c.address {
			continue
		}
		if rec, ok := parseTokenCreated(lg.Topics, lg.Data); ok {
			c.log.Info("token created",
				zap.String("address", rec.TokenAddress.Hex()),
				zap.Uint64("block", receipt.BlockNumber))
			return &rec, nil
		}
	}

	// No event in the receipt: fall back to the creator's newest record.
	mine, err := c.TokensByCreator(ctx, s.Request.Creator)
	if err != nil {
		return nil, &registry.FinalizationError{TxHash: s.TxHash, Cause: err}
	}
	if len(mine) == 0 {
		return nil, &registry.FinalizationError{TxHash: s.TxHash, Cause: errors.New("mined but no token recorded")}
	}
	rec := mine[len(mine)-1]
	return &rec, nil
}

// CreateToken submits and waits. The wait is detached from ctx once the
// transaction was accepted and bounded by the confirm timeout.
func (c *Client) CreateToken(ctx context.Context, creator common.Address, name, symbol string, supply *big.Int) (*registry.TokenRecord, error) {
	sub, err := c.Submit(ctx, registry.Request{Creator: creator, Name: name, Symbol: symbol, Supply: supply})
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.confirmFor)
	defer cancel()
	return sub.Wait(wctx)
}

func revertToValidation(reason string) error {
	switch {
	case strings.Contains(reason, "Name required"):
		return fmt.Errorf("%w: %s", registry.ErrInvalidName, reason)
	case strings.Contains(reason, "Symbol required"):
		return fmt.Errorf("%w: %s", registry.ErrInvalidSymbol, reason)
	}
	return nil
}

var _ registry.Registry = (*Client)(nil)
