package config

import "time"

// Gas limits used as EstimateGas fallbacks when the node cannot simulate the tx.
// createToken deploys a whole confidential token, so it is far above a plain call.
const (
	GasLimitFactoryCreate = uint64(3_000_000)
	GasLimitFactoryDeploy = uint64(6_000_000)
)

// Timeouts shared by cmd and server.
const (
	RPCCallTimeout      = 15 * time.Second
	TxConfirmTimeout    = 3 * time.Minute
	TxDeployTimeout     = 5 * time.Minute
	ReceiptPollInterval = 2 * time.Second
)
