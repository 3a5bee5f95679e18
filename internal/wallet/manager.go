// Package wallet keeps the accounts that create tokens and deploy the
// factory. Metadata lives in a JSON file; signing keys live in a keystore.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	TypeWatchOnly = "watch-only"
	TypeSigning   = "signing"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletExists   = errors.New("wallet already exists")
	ErrInvalidName    = errors.New("invalid wallet name")
	ErrInvalidKey     = errors.New("invalid private key")
	ErrInvalidAddress = errors.New("invalid address")
	ErrNoWallet       = errors.New("no wallet configured")
)

// Wallet is one account. Private keys never live here.
type Wallet struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Type      string `json:"type"`
	KeyRef    string `json:"key_ref,omitempty"`
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at"`
}

// EVMAddress returns the address tokens are attributed to.
func (w *Wallet) EVMAddress() common.Address {
	return common.HexToAddress(w.Address)
}

func (w *Wallet) CanSign() bool { return w.Type == TypeSigning }

// Store persists wallet metadata.
type Store interface {
	Load() ([]*Wallet, error)
	Save([]*Wallet) error
}

// Manager adds, removes and selects wallets. The store is read lazily on
// first use.
type Manager struct {
	mu      sync.Mutex
	store   Store
	ks      KeystoreBackend
	wallets map[string]*Wallet
	loaded  bool
}

type Option func(*Manager)

// WithInMemoryStore keeps wallets and keys in memory.
func WithInMemoryStore() Option {
	return func(m *Manager) {
		m.store = &memStore{}
		m.ks = NewInMemoryKeystore()
	}
}

func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

func WithKeystore(ks KeystoreBackend) Option {
	return func(m *Manager) { m.ks = ks }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		wallets: make(map[string]*Wallet),
		store:   &memStore{},
		ks:      NewInMemoryKeystore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Keystore() KeystoreBackend { return m.ks }

// AddWatchOnly registers an address that can own tokens but cannot sign.
func (m *Manager) AddWatchOnly(name, address string) (*Wallet, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return m.insert(&Wallet{Name: name, Address: common.HexToAddress(address).Hex(), Type: TypeWatchOnly}, "")
}

// AddWithKey imports a hex private key. The key goes to the keystore and
// the wallet records only its reference.
func (m *Manager) AddWithKey(name, hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(stripHexPrefix(strings.TrimSpace(hexKey)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return m.insert(&Wallet{Name: name, Address: crypto.PubkeyToAddress(key.PublicKey).Hex(), Type: TypeSigning}, privKeyHex(key))
}

// Generate creates a signing wallet with a fresh random key.
func (m *Manager) Generate(name string) (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return m.insert(&Wallet{Name: name, Address: crypto.PubkeyToAddress(key.PublicKey).Hex(), Type: TypeSigning}, privKeyHex(key))
}

// insert stores hexKey (when set) before the metadata so a wallet never
// points at a missing key.
func (m *Manager) insert(w *Wallet, hexKey string) (*Wallet, error) {
	if err := validName(w.Name); err != nil {
		return nil, err
	}
	err := m.locked(func() error {
		if _, exists := m.wallets[w.Name]; exists {
			return fmt.Errorf("%w: %s", ErrWalletExists, w.Name)
		}
		if hexKey != "" {
			ref, err := m.ks.Store(w.Name, hexKey)
			if err != nil {
				return fmt.Errorf("storing key: %w", err)
			}
			w.KeyRef = ref
		}
		w.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		m.wallets[w.Name] = w
		return m.persist()
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (m *Manager) Get(name string) (*Wallet, error) {
	var w *Wallet
	err := m.locked(func() error {
		var err error
		w, err = m.lookup(name)
		return err
	})
	return w, err
}

// Remove deletes a wallet and its stored key.
func (m *Manager) Remove(name string) error {
	return m.locked(func() error {
		w, err := m.lookup(name)
		if err != nil {
			return err
		}
		if w.KeyRef != "" {
			if err := m.ks.Delete(w.KeyRef); err != nil {
				return fmt.Errorf("removing key: %w", err)
			}
		}
		delete(m.wallets, name)
		return m.persist()
	})
}

// List returns all wallets sorted by name.
func (m *Manager) List() ([]*Wallet, error) {
	var out []*Wallet
	err := m.locked(func() error {
		out = m.sorted()
		return nil
	})
	return out, err
}

func (m *Manager) SetDefault(name string) error {
	return m.locked(func() error {
		if _, err := m.lookup(name); err != nil {
			return err
		}
		for _, w := range m.wallets {
			w.IsDefault = w.Name == name
		}
		return m.persist()
	})
}

// Default returns the wallet marked default. A lone wallet is the default
// even when unmarked. nil when neither applies.
func (m *Manager) Default() *Wallet {
	var def *Wallet
	_ = m.locked(func() error {
		for _, w := range m.wallets {
			if w.IsDefault {
				def = w
				return nil
			}
		}
		if len(m.wallets) == 1 {
			for _, w := range m.wallets {
				def = w
			}
		}
		return nil
	})
	return def
}

// Resolve returns the named wallet, or the default when name is empty.
func (m *Manager) Resolve(name string) (*Wallet, error) {
	if name != "" {
		return m.Get(name)
	}
	if w := m.Default(); w != nil {
		return w, nil
	}
	return nil, ErrNoWallet
}

// locked runs fn holding the lock with the store loaded.
func (m *Manager) locked(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		wallets, err := m.store.Load()
		if err != nil {
			return err
		}
		for _, w := range wallets {
			m.wallets[w.Name] = w
		}
		m.loaded = true
	}
	return fn()
}

func (m *Manager) lookup(name string) (*Wallet, error) {
	w, ok := m.wallets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	return w, nil
}

func (m *Manager) persist() error { return m.store.Save(m.sorted()) }

func (m *Manager) sorted() []*Wallet {
	out := make([]*Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func stripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

type memStore struct{ wallets []*Wallet }

func (s *memStore) Load() ([]*Wallet, error) { return s.wallets, nil }

func (s *memStore) Save(wallets []*Wallet) error {
	s.wallets = wallets
	return nil
}

// JSONStore keeps wallets in a JSON file, replaced atomically on save.
type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore { return &JSONStore{path: path} }

func (s *JSONStore) Load() ([]*Wallet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var wallets []*Wallet
	if err := json.Unmarshal(data, &wallets); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return wallets, nil
}

func (s *JSONStore) Save(wallets []*Wallet) error {
	data, err := json.MarshalIndent(wallets, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
