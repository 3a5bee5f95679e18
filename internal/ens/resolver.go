// Package ens resolves ENS names so creators can be given as "alice.eth".
package ens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
)

// RegistryAddress is the ENS registry, the same on Ethereum mainnet and Sepolia.
var RegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

// ErrNotFound is returned when a name or address has no record.
var ErrNotFound = errors.New("ens: no record")

const resolverABI = `[
  {"type":"function","name":"resolver","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"addr","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"name","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]}
]`

var ensABI = mustParse(resolverABI)

func mustParse(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

// IsName reports whether s looks like an ENS name rather than an address.
func IsName(s string) bool {
	return strings.Contains(s, ".") && !common.IsHexAddress(s)
}

// Namehash implements the EIP-137 namehash.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		node = common.BytesToHash(crypto.Keccak256(node[:], label))
	}
	return node
}

// Resolver queries ENS through one RPC endpoint.
type Resolver struct {
	rpc      *chain.EVMClient
	registry common.Address
}

// NewResolver returns a resolver using the standard ENS registry.
func NewResolver(rpc *chain.EVMClient) *Resolver {
	return &Resolver{rpc: rpc, registry: RegistryAddress}
}

func (r *Resolver) call(ctx context.Context, to common.Address, method string, node common.Hash) ([]any, error) {
	data, err := ensABI.Pack(method, node)
	if err != nil {
		return nil, err
	}
	out, err := r.rpc.Call(ctx, chain.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("ens %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty %s result", ErrNotFound, method)
	}
	return ensABI.Unpack(method, out)
}

func (r *Resolver) resolverFor(ctx context.Context, node common.Hash, what string) (common.Address, error) {
	vals, err := r.call(ctx, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, err
	}
	res := vals[0].(common.Address)
	if res == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no resolver for %s", ErrNotFound, what)
	}
	return res, nil
}

// Resolve returns the address name points to.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	node := Namehash(name)
	res, err := r.resolverFor(ctx, node, name)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := r.call(ctx, res, "addr", node)
	if err != nil {
		return common.Address{}, err
	}
	addr := vals[0].(common.Address)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no address for %s", ErrNotFound, name)
	}
	return addr, nil
}

// Lookup returns the primary name of addr via the reverse registrar.
func (r *Resolver) Lookup(ctx context.Context, addr common.Address) (string, error) {
	reverse := strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x")) + ".addr.reverse"
	node := Namehash(reverse)
	res, err := r.resolverFor(ctx, node, addr.Hex())
	if err != nil {
		return "", err
	}
	vals, err := r.call(ctx, res, "name", node)
	if err != nil {
		return "", err
	}
	name := vals[0].(string)
	if name == "" {
		return "", fmt.Errorf("%w: no name for %s", ErrNotFound, addr.Hex())
	}
	return name, nil
}
