package chain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNetworkNotFound is returned when a network is not in the registry.
var ErrNetworkNotFound = errors.New("network not found")

// Network holds the metadata for one EVM network the factory can live on.
type Network struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	ChainID     int64    `json:"chain_id"`
	Currency    string   `json:"currency"`
	RPCs        []string `json:"rpcs"`
	Explorer    string   `json:"explorer,omitempty"` // empty for local nodes
	FaucetURL   string   `json:"faucet_url,omitempty"`
}

// TxURL returns the explorer link for a transaction, or "" without an explorer.
func (n *Network) TxURL(hash string) string {
	if n.Explorer == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", n.Explorer, hash)
}

// AddressURL returns the explorer link for an address, or "" without an explorer.
func (n *Network) AddressURL(addr string) string {
	if n.Explorer == "" {
		return ""
	}
	return fmt.Sprintf("%s/address/%s", n.Explorer, addr)
}

// Registry is the network registry.
type Registry struct {
	networks []Network
	byName   map[string]*Network
	byID     map[int64]*Network
}

// NewRegistry returns the registry of supported networks.
func NewRegistry() *Registry {
	networks := allNetworks()
	r := &Registry{
		networks: networks,
		byName:   make(map[string]*Network, len(networks)),
		byID:     make(map[int64]*Network, len(networks)),
	}
	for i := range r.networks {
		n := &r.networks[i]
		r.byName[n.Name] = n
		r.byID[n.ChainID] = n
	}
	return r
}

// All returns every network in the registry.
func (r *Registry) All() []Network {
	return r.networks
}

// GetByName finds a network by its slug name (e.g. "sepolia").
func (r *Registry) GetByName(name string) (*Network, error) {
	n, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, name)
	}
	return n, nil
}

// GetByChainID finds a network by its numeric chain ID.
func (r *Registry) GetByChainID(id int64) (*Network, error) {
	n, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: chain id %d", ErrNetworkNotFound, id)
	}
	return n, nil
}

// Names returns the slug names of all networks in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.networks))
	for i, n := range r.networks {
		names[i] = n.Name
	}
	return names
}

func allNetworks() []Network {
	return []Network{
		{
			Name:        "sepolia",
			DisplayName: "Ethereum Sepolia",
			ChainID:     11155111,
			Currency:    "ETH",
			RPCs: []string{
				"https://ethereum-sepolia-rpc.publicnode.com",
				"https://rpc.sepolia.org",
				"https://sepolia.drpc.org",
			},
			Explorer:  "https://sepolia.etherscan.io",
			FaucetURL: "https://sepoliafaucet.com",
		},
		{
			Name:        "ethereum",
			DisplayName: "Ethereum",
			ChainID:     1,
			Currency:    "ETH",
			RPCs: []string{
				"https://ethereum-rpc.publicnode.com",
				"https://eth.llamarpc.com",
			},
			Explorer: "https://etherscan.io",
		},
		{
			Name:        "localhost",
			DisplayName: "Local Hardhat Node",
			ChainID:     31337,
			Currency:    "ETH",
			RPCs:        []string{"http://127.0.0.1:8545"},
		},
	}
}
