package wallet

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

const keychainService = "ctfactory"

var (
	ErrKeyNotFound         = errors.New("signing key not found")
	ErrKeystoreUnavailable = errors.New("keystore not available")
)

// KeystoreBackend holds signing keys outside the wallets file. Store returns
// the reference recorded on the wallet.
type KeystoreBackend interface {
	Store(name, hexKey string) (string, error)
	Retrieve(ref string) (string, error)
	Delete(ref string) error
}

func refFor(name string) string { return keychainService + "." + name }

// Keystore keeps signing keys in the OS keychain.
type Keystore struct {
	ring keyring.Keyring
}

// DefaultKeystore opens the OS keychain. Headless Linux machines without a
// secret service fall back to the encrypted file backend under configDir/keys.
func DefaultKeystore(configDir string) *Keystore {
	dir := filepath.Join(configDir, "keys")
	ring, err := keyring.Open(ringConfig(dir, preferredBackends()))
	if err != nil {
		ring, err = keyring.Open(ringConfig(dir, []keyring.BackendType{keyring.FileBackend}))
		if err != nil {
			ring = nil
		}
	}
	return &Keystore{ring: ring}
}

func ringConfig(dir string, backends []keyring.BackendType) keyring.Config {
	return keyring.Config{
		ServiceName:              keychainService,
		AllowedBackends:          backends,
		KeychainTrustApplication: true,
		FileDir:                  dir,
		FilePasswordFunc:         keyring.TerminalPrompt,
	}
}

// nil lets keyring pick every backend available on the platform.
func preferredBackends() []keyring.BackendType {
	if runtime.GOOS != "linux" {
		return nil
	}
	return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.FileBackend}
}

func (k *Keystore) Store(name, hexKey string) (string, error) {
	if k.ring == nil {
		return "", ErrKeystoreUnavailable
	}
	ref := refFor(name)
	item := keyring.Item{Key: ref, Data: []byte(hexKey), Label: "ctfactory signing key " + name}
	if err := k.ring.Set(item); err != nil {
		return "", fmt.Errorf("saving key for %s: %w", name, err)
	}
	return ref, nil
}

func (k *Keystore) Retrieve(ref string) (string, error) {
	if k.ring == nil {
		return "", ErrKeystoreUnavailable
	}
	item, err := k.ring.Get(ref)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("reading key %s: %w", ref, err)
	}
	return string(item.Data), nil
}

// Delete ignores refs that were never stored.
func (k *Keystore) Delete(ref string) error {
	if k.ring == nil {
		return nil
	}
	if err := k.ring.Remove(ref); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// InMemoryKeystore keeps keys in a map. Tests and the memory backend use it.
type InMemoryKeystore struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewInMemoryKeystore() *InMemoryKeystore {
	return &InMemoryKeystore{keys: make(map[string]string)}
}

func (k *InMemoryKeystore) Store(name, hexKey string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ref := refFor(name)
	k.keys[ref] = hexKey
	return ref, nil
}

func (k *InMemoryKeystore) Retrieve(ref string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok := k.keys[ref]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrKeyNotFound, ref)
}

func (k *InMemoryKeystore) Delete(ref string) error {
	k.mu.Lock()
	delete(k.keys, ref)
	k.mu.Unlock()
	return nil
}
