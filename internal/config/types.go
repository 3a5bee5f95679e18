package config

// Config holds all ctfactory configuration.
type Config struct {
	DefaultNetwork string              `json:"default_network"`
	DefaultWallet  string              `json:"default_wallet"`
	Backend        string              `json:"backend"` // "memory" | "local" | "postgres" | "chain"
	CustomRPCs     map[string][]string `json:"custom_rpcs"`
	Factories      map[string]string   `json:"factories"` // network -> factory address override
	LedgerPath     string              `json:"ledger_path,omitempty"`
	PostgresDSN    string              `json:"postgres_dsn,omitempty"`
	ServerAddr     string              `json:"server_addr"`
	LogLevel       string              `json:"log_level"`
	LogFile        string              `json:"log_file,omitempty"`

	// internal: config dir path used for Save()
	configDir string
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendChain    = "chain"
)

// Backends lists every supported registry backend.
var Backends = []string{BackendMemory, BackendLocal, BackendPostgres, BackendChain}
