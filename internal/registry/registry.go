// Package registry holds the token registry: the list of deployed tokens,
// creation and query operations, and the in-process ledger implementation.
package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Registry creates tokens and answers queries about them. Implemented by the
// in-process Ledger and by the on-chain factory client.
type Registry interface {
	CreateToken(ctx context.Context, creator common.Address, name, symbol string, supply *big.Int) (*TokenRecord, error)
	TokenCount(ctx context.Context) (uint64, error)
	Token(ctx context.Context, index uint64) (*TokenRecord, error)
	AllTokens(ctx context.Context) ([]TokenRecord, error)
	TokensByCreator(ctx context.Context, creator common.Address) ([]TokenRecord, error)
}
