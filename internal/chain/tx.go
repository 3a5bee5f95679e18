package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxSigner signs transactions for one account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) ([]byte, error)
}

// TxRequest describes a transaction to build, sign and broadcast.
type TxRequest struct {
	To          *common.Address // nil deploys a contract
	Data        []byte
	FallbackGas uint64 // used when estimation fails for a reason other than a revert
}

// SendTx fills nonce, gas and EIP-1559 fees, signs with signer and
// broadcasts. A revert during gas estimation is returned as is so callers can
// inspect the reason.
func (c *EVMClient) SendTx(ctx context.Context, signer TxSigner, req TxRequest) (common.Hash, error) {
	from := signer.Address()

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := c.PendingNonce(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	gasLimit, err := c.EstimateGas(ctx, CallMsg{From: from, To: req.To, Data: req.Data})
	switch {
	case err == nil:
		gasLimit = gasLimit * 12 / 10 // 20% buffer
	case IsRevert(err):
		return common.Hash{}, err
	case req.FallbackGas > 0:
		gasLimit = req.FallbackGas
	default:
		return common.Hash{}, fmt.Errorf("estimating gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gasLimit,
		To:        req.To,
		Value:     big.NewInt(0),
		Data:      req.Data,
	})

	raw, err := signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := c.SendRawTransaction(ctx, raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}
	return hash, nil
}
