package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mohsinsiddi/ctfactory/internal/chain"
	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Factory deployment identifiers.
const (
	DeployScriptID      = "deploy_confidentialTokenFactory"
	FactoryContractName = "ConfidentialTokenFactory"
)

// FactoryMethods are the functions a factory artifact must expose.
var FactoryMethods = []string{"createToken", "getTokenCount", "getToken", "getAllTokens", "getTokensByCreator"}

// Script is one idempotent deployment step.
type Script struct {
	ID           string
	ContractName string
	Artifact     *Artifact
}

// FactoryScript returns the factory deployment step for artifact.
func FactoryScript(artifact *Artifact) Script {
	return Script{ID: DeployScriptID, ContractName: FactoryContractName, Artifact: artifact}
}

// Result is the outcome of Run.
type Result struct {
	Record Record
	Reused bool // the script had already run; nothing was sent
}

// Deployer sends contract-creation transactions for one network.
type Deployer struct {
	rpc       *chain.EVMClient
	signer    chain.TxSigner
	store     *Store
	network   string
	log       *zap.Logger
	pollEvery time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithLogger sets the deployer logger.
func WithLogger(log *zap.Logger) DeployerOption {
	return func(d *Deployer) { d.log = log }
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(p time.Duration) DeployerOption {
	return func(d *Deployer) { d.pollEvery = p }
}

// NewDeployer returns a deployer that records into store.
func NewDeployer(rpc *chain.EVMClient, signer chain.TxSigner, store *Store, network string, opts ...DeployerOption) *Deployer {
	d := &Deployer{
		rpc:       rpc,
		signer:    signer,
		store:     store,
		network:   network,
		log:       zap.NewNop(),
		pollEvery: config.ReceiptPollInterval,
		timeout:   config.TxDeployTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes s unless it already ran on this network with its record in
// place, in which case the existing record is returned.
func (d *Deployer) Run(ctx context.Context, s Script) (*Result, error) {
	done, err := d.store.Executed(d.network, s.ID)
	if err != nil {
		return nil, err
	}
	if done {
		rec, err := d.store.Get(d.network, s.ContractName)
		if err == nil {
			d.log.Info("deploy script already executed", zap.String("script", s.ID), zap.String("address", rec.Address))
			return &Result{Record: *rec, Reused: true}, nil
		}
		if !errors.Is(err, ErrNotDeployed) {
			return nil, err
		}
	}

	if s.Artifact == nil {
		return nil, fmt.Errorf("script %s: no artifact", s.ID)
	}

	hash, err := d.rpc.SendTx(ctx, d.signer, chain.TxRequest{
		Data:        s.Artifact.Bytecode,
		FallbackGas: config.GasLimitFactoryDeploy,
	})
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", s.ContractName, err)
	}
	d.log.Info("deployment sent", zap.String("contract", s.ContractName), zap.String("tx", hash.Hex()))

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	receipt, err := d.rpc.WaitForReceipt(wctx, hash, rate.NewLimiter(rate.Every(d.pollEvery), 1))
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", s.ContractName, err)
	}
	if receipt.ContractAddress == nil {
		return nil, fmt.Errorf("deploying %s: receipt %s has no contract address", s.ContractName, hash.Hex())
	}

	rec := Record{
		Name:         s.ContractName,
		Address:      receipt.ContractAddress.Hex(),
		TxHash:       hash.Hex(),
		Network:      d.network,
		Deployer:     d.signer.Address().Hex(),
		BytecodeHash: s.Artifact.BytecodeHash(),
		DeployedAt:   d.now().UTC(),
	}
	if err := d.store.Complete(s.ID, rec); err != nil {
		return nil, fmt.Errorf("recording deployment: %w", err)
	}
	d.log.Info("contract deployed",
		zap.String("contract", rec.Name),
		zap.String("address", rec.Address),
		zap.Uint64("block", receipt.BlockNumber))
	return &Result{Record: rec}, nil
}
