package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	defaultNetwork    = "sepolia"
	defaultBackend    = BackendChain
	defaultServerAddr = "127.0.0.1:8080"
	defaultLogLevel   = "info"

	configFile      = "config.json"
	walletsFile     = "wallets.json"
	deploymentsFile = "deployments.db"
	ledgerFile      = "ledger.db"
)

// Load reads config from dir (or creates defaults). dir defaults to ~/.ctfactory.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".ctfactory")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}
	if cfg.Factories == nil {
		cfg.Factories = make(map[string]string)
	}

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Set assigns a scalar config key from its string form. Used by `config set`.
func (c *Config) Set(key, value string) error {
	switch key {
	case "default_network":
		c.DefaultNetwork = strings.ToLower(value)
	case "default_wallet":
		c.DefaultWallet = value
	case "backend":
		if !slices.Contains(Backends, value) {
			return fmt.Errorf("unknown backend %q (want one of %s)", value, strings.Join(Backends, ", "))
		}
		c.Backend = value
	case "ledger_path":
		c.LedgerPath = value
	case "postgres_dsn":
		c.PostgresDSN = value
	case "server_addr":
		c.ServerAddr = value
	case "log_level":
		c.LogLevel = value
	case "log_file":
		c.LogFile = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// AddRPC adds a custom RPC URL for a network.
func (c *Config) AddRPC(network, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	if slices.Contains(c.CustomRPCs[network], url) {
		return fmt.Errorf("RPC %s already exists for network %s", url, network)
	}
	c.CustomRPCs[network] = append(c.CustomRPCs[network], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a network.
func (c *Config) RemoveRPC(network, url string) error {
	rpcs := c.CustomRPCs[network]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for network %s", url, network)
	}
	c.CustomRPCs[network] = slices.Delete(rpcs, idx, idx+1)
	return nil
}

// GetRPCs returns custom RPCs for a network.
func (c *Config) GetRPCs(network string) []string {
	return c.CustomRPCs[network]
}

// SetFactory pins the factory address used on a network, overriding the
// deployment record.
func (c *Config) SetFactory(network, address string) {
	if c.Factories == nil {
		c.Factories = make(map[string]string)
	}
	if address == "" {
		delete(c.Factories, network)
		return
	}
	c.Factories[network] = address
}

// GetFactory returns the pinned factory address for a network, or "".
func (c *Config) GetFactory(network string) string {
	return c.Factories[network]
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// WalletsPath is where wallet metadata is stored.
func (c *Config) WalletsPath() string {
	return filepath.Join(c.configDir, walletsFile)
}

// DeploymentsPath is the bolt file holding deployment records.
func (c *Config) DeploymentsPath() string {
	return filepath.Join(c.configDir, deploymentsFile)
}

// LedgerFile is the bolt file backing the local registry backend.
func (c *Config) LedgerFile() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}
	return filepath.Join(c.configDir, ledgerFile)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		DefaultNetwork: defaultNetwork,
		Backend:        defaultBackend,
		ServerAddr:     defaultServerAddr,
		LogLevel:       defaultLogLevel,
		CustomRPCs:     make(map[string][]string),
		Factories:      make(map[string]string),
		configDir:      dir,
	}
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
