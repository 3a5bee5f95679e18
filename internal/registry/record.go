package registry

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// DefaultSupply is substituted when a request carries a zero supply.
const DefaultSupply = 1_000_000_000

// MaxSymbolLength bounds symbols typed into clients. The registry itself
// accepts any non-empty symbol.
const MaxSymbolLength = 6

// TokenRecord is the registry's entry for one deployed token.
type TokenRecord struct {
	TokenAddress common.Address `json:"tokenAddress"`
	Name         string         `json:"name"`
	Symbol       string         `json:"symbol"`
	Creator      common.Address `json:"creator"`
	TotalSupply  *big.Int       `json:"totalSupply"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (r TokenRecord) Clone() TokenRecord {
	if r.TotalSupply != nil {
		r.TotalSupply = new(big.Int).Set(r.TotalSupply)
	}
	return r
}

// String renders the record the way `token list` prints it.
func (r TokenRecord) String() string {
	return fmt.Sprintf("%s (%s) at %s | creator: %s | supply: %s",
		r.Name, r.Symbol, r.TokenAddress.Hex(), r.Creator.Hex(), supplyString(r.TotalSupply))
}

func supplyString(s *big.Int) string {
	if s == nil {
		return "0"
	}
	return s.String()
}

// Request is a createToken call before validation.
type Request struct {
	Creator common.Address
	Name    string
	Symbol  string
	Supply  *big.Int
}

// Normalize trims the name and strips whitespace from the symbol before
// upper-casing it.
func (r Request) Normalize() Request {
	r.Name = strings.TrimSpace(r.Name)
	r.Symbol = strings.ToUpper(strings.Map(func(c rune) rune {
		if unicode.IsSpace(c) {
			return -1
		}
		return c
	}, r.Symbol))
	return r
}

// Validate checks a normalized request. It never looks at symbol length.
func (r Request) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidSymbol)
	}
	if r.Supply != nil {
		if r.Supply.Sign() < 0 {
			return fmt.Errorf("%w: negative supply %s", ErrInvalidSupply, r.Supply)
		}
		if r.Supply.Cmp(math.MaxBig256) > 0 {
			return fmt.Errorf("%w: supply exceeds uint256", ErrInvalidSupply)
		}
	}
	return nil
}

// EffectiveSupply returns the supply that will be recorded.
func (r Request) EffectiveSupply() *big.Int {
	if r.Supply == nil || r.Supply.Sign() == 0 {
		return big.NewInt(DefaultSupply)
	}
	return new(big.Int).Set(r.Supply)
}

// CheckSymbolLength enforces MaxSymbolLength for client input.
func CheckSymbolLength(symbol string) error {
	if n := len([]rune(symbol)); n > MaxSymbolLength {
		return fmt.Errorf("%w: %q is %d characters, at most %d allowed", ErrInvalidSymbol, symbol, n, MaxSymbolLength)
	}
	return nil
}

// ParseSupply parses a decimal supply. Empty input is zero, which the
// registry replaces with DefaultSupply.
func ParseSupply(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a whole number", ErrInvalidSupply, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative supply %s", ErrInvalidSupply, s)
	}
	if v.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("%w: supply exceeds uint256", ErrInvalidSupply)
	}
	return v, nil
}
