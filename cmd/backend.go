package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/deploy"
	"github.com/Mohsinsiddi/ctfactory/internal/ens"
	"github.com/Mohsinsiddi/ctfactory/internal/factory"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/Mohsinsiddi/ctfactory/internal/registry/boltstore"
	"github.com/Mohsinsiddi/ctfactory/internal/registry/pgstore"
	"github.com/Mohsinsiddi/ctfactory/internal/ui"
	"github.com/Mohsinsiddi/ctfactory/internal/wallet"
)

// keystoreBackend holds private keys. nil means the OS keychain under the
// config directory.
var keystoreBackend wallet.KeystoreBackend

func newWalletManager() *wallet.Manager {
	if keystoreBackend == nil {
		keystoreBackend = wallet.DefaultKeystore(cfg.Dir())
	}
	return wallet.NewManager(
		wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())),
		wallet.WithKeystore(keystoreBackend),
	)
}

// resolveWallet returns the --wallet wallet, else the configured default,
// else the manager's implicit default.
func resolveWallet(mgr *wallet.Manager) (*wallet.Wallet, error) {
	name := walletFlag
	if name == "" {
		name = cfg.DefaultWallet
	}
	w, err := mgr.Resolve(name)
	if err != nil {
		if errors.Is(err, wallet.ErrNoWallet) {
			return nil, fmt.Errorf("%w: add one with `ctfactory wallet add <name> --key <hex>` or pass --wallet", err)
		}
		return nil, err
	}
	return w, nil
}

// signerFor opens the signer of a signing wallet.
func signerFor(mgr *wallet.Manager, w *wallet.Wallet) (*wallet.Signer, error) {
	s, err := wallet.NewSigner(w, mgr.Keystore())
	if errors.Is(err, wallet.ErrWatchOnly) {
		return nil, fmt.Errorf("%w; add a signing wallet with `ctfactory wallet add <name> --key <hex>`", err)
	}
	return s, err
}

func currentNetwork() (*chain.Network, error) {
	n, err := chain.NewRegistry().GetByName(cfg.DefaultNetwork)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (see `ctfactory network list`)", err, cfg.DefaultNetwork)
	}
	return n, nil
}

// rpcURLs lists custom RPCs before built-in ones.
func rpcURLs(n *chain.Network) []string {
	urls := slices.Clone(cfg.GetRPCs(n.Name))
	for _, u := range n.RPCs {
		if !slices.Contains(urls, u) {
			urls = append(urls, u)
		}
	}
	return urls
}

func dialNetwork(ctx context.Context, n *chain.Network) (*chain.EVMClient, error) {
	url, err := chain.BestRPC(ctx, rpcURLs(n))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.DisplayName, err)
	}
	logger.Debug("using rpc", zap.String("network", n.Name), zap.String("url", url))
	return chain.NewEVMClient(url), nil
}

// ensNetwork is where ENS names resolve, whatever network tokens live on.
const ensNetwork = "ethereum"

// resolveAddress accepts a hex address or an ENS name.
func resolveAddress(ctx context.Context, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	if !ens.IsName(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	n, err := chain.NewRegistry().GetByName(ensNetwork)
	if err != nil {
		return common.Address{}, err
	}
	rpc, err := dialNetwork(ctx, n)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := ens.NewResolver(rpc).Resolve(ctx, s)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolving %s: %w", s, err)
	}
	logger.Debug("ens resolved", zap.String("name", s), zap.String("address", addr.Hex()))
	return addr, nil
}

// factoryAddress returns the pinned factory for n, else the deployment record.
func factoryAddress(n *chain.Network) (common.Address, error) {
	if addr := cfg.GetFactory(n.Name); addr != "" {
		if !common.IsHexAddress(addr) {
			return common.Address{}, fmt.Errorf("configured factory for %s is not an address: %q", n.Name, addr)
		}
		return common.HexToAddress(addr), nil
	}
	store, err := deploy.OpenStore(cfg.DeploymentsPath())
	if err != nil {
		return common.Address{}, err
	}
	defer store.Close()
	rec, err := store.Get(n.Name, deploy.FactoryContractName)
	if err != nil {
		if errors.Is(err, deploy.ErrNotDeployed) {
			return common.Address{}, fmt.Errorf("no factory on %s: run `ctfactory factory deploy --artifact <file>` or `ctfactory config set-factory %s <address>`", n.Name, n.Name)
		}
		return common.Address{}, err
	}
	return common.HexToAddress(rec.Address), nil
}

// backend is an opened registry plus what is needed to release it.
type backend struct {
	name     string
	registry registry.Registry
	network  *chain.Network // chain backend only
	close    func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBackend opens the configured registry. signer is only used by the
// chain backend and may be nil for read-only commands; extra applies to the
// ledger backends.
func openBackend(ctx context.Context, signer chain.TxSigner, extra ...registry.LedgerOption) (*backend, error) {
	ledgerOpts := append([]registry.LedgerOption{registry.WithLogger(logger)}, extra...)
	switch cfg.Backend {
	case config.BackendMemory:
		return &backend{name: cfg.Backend, registry: registry.NewLedger(ledgerOpts...)}, nil

	case config.BackendLocal:
		st, err := boltstore.Open(cfg.LedgerFile())
		if err != nil {
			return nil, err
		}
		l, err := registry.OpenLedger(ctx, append(ledgerOpts, registry.WithStore(st))...)
		if err != nil {
			st.Close()
			return nil, err
		}
		return &backend{name: cfg.Backend, registry: l, close: st.Close}, nil

	case config.BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres backend needs postgres_dsn: ctfactory config set postgres_dsn <dsn>")
		}
		st, err := pgstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		l, err := registry.OpenLedger(ctx, append(ledgerOpts, registry.WithStore(st))...)
		if err != nil {
			st.Close()
			return nil, err
		}
		return &backend{name: cfg.Backend, registry: l, close: st.Close}, nil

	case config.BackendChain:
		n, err := currentNetwork()
		if err != nil {
			return nil, err
		}
		addr, err := factoryAddress(n)
		if err != nil {
			return nil, err
		}
		rpc, err := dialNetwork(ctx, n)
		if err != nil {
			return nil, err
		}
		opts := []factory.Option{factory.WithLogger(logger)}
		if signer != nil {
			opts = append(opts, factory.WithSigner(signer))
		}
		return &backend{name: cfg.Backend, registry: factory.New(rpc, addr, opts...), network: n}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func formatSupply(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// errorLine renders a command error for stderr.
func errorLine(err error) string {
	var fe *registry.FinalizationError
	if errors.As(err, &fe) {
		msg := registry.UserMessage(err)
		if fe.TxHash != (common.Hash{}) {
			msg += " (tx " + fe.TxHash.Hex() + ")"
		}
		return ui.Err(msg)
	}
	return ui.Err(err.Error())
}
