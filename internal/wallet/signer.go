package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrWatchOnly is returned when a signer is requested for a wallet without a key.
var ErrWatchOnly = errors.New("watch-only wallet cannot sign")

// Signer signs factory and deployment transactions for one wallet. The key
// is read from the keystore on first use and kept for the signer's lifetime.
type Signer struct {
	wallet *Wallet
	ks     KeystoreBackend

	once sync.Once
	key  *ecdsa.PrivateKey
	err  error
}

func NewSigner(w *Wallet, ks KeystoreBackend) (*Signer, error) {
	if !w.CanSign() {
		return nil, fmt.Errorf("%w: %s", ErrWatchOnly, w.Name)
	}
	return &Signer{wallet: w, ks: ks}, nil
}

// SignTx signs tx for chainID with the London signer and returns the
// encoded transaction ready for eth_sendRawTransaction.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing tx for %s: %w", s.wallet.Name, err)
	}
	return signed.MarshalBinary()
}

func (s *Signer) Address() common.Address { return s.wallet.EVMAddress() }

func (s *Signer) Name() string { return s.wallet.Name }

func (s *Signer) load() {
	hexKey, err := s.ks.Retrieve(s.wallet.KeyRef)
	if err != nil {
		s.err = fmt.Errorf("loading key for %s: %w", s.wallet.Name, err)
		return
	}
	key, err := crypto.HexToECDSA(stripHexPrefix(hexKey))
	if err != nil {
		s.err = fmt.Errorf("%w: stored key for %s", ErrInvalidKey, s.wallet.Name)
		return
	}
	if crypto.PubkeyToAddress(key.PublicKey) != s.Address() {
		s.err = fmt.Errorf("stored key for %s does not match %s", s.wallet.Name, s.Address().Hex())
		return
	}
	s.key = key
}

func privKeyHex(k *ecdsa.PrivateKey) string {
	return common.Bytes2Hex(crypto.FromECDSA(k))
}
