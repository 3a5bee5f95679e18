package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an instantiated token. Every field is fixed at construction.
type Token struct {
	address       common.Address
	factory       common.Address
	creator       common.Address
	name          string
	symbol        string
	initialSupply *big.Int
}

// NewToken binds a token to its factory, creator and initial supply.
func NewToken(address, factory, creator common.Address, name, symbol string, initialSupply *big.Int) *Token {
	return &Token{
		address:       address,
		factory:       factory,
		creator:       creator,
		name:          name,
		symbol:        symbol,
		initialSupply: new(big.Int).Set(initialSupply),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Factory() common.Address { return t.factory }
func (t *Token) Creator() common.Address { return t.creator }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }

// InitialSupply returns a copy of the supply minted to the creator.
func (t *Token) InitialSupply() *big.Int { return new(big.Int).Set(t.initialSupply) }
