package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs transactions on behalf of one account
type Wallet interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type keyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyWallet builds a wallet from a hex encoded private key
func NewKeyWallet(hexKey string) (Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return &keyWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// LoadKeystoreWallet decrypts a keystore v3 JSON file
func LoadKeystoreWallet(path, passphrase string) (Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}
	return &keyWallet{key: key.PrivateKey, address: key.Address}, nil
}

// WalletFromSettings picks the configured signer. A nil wallet with a nil error
// means no signer is configured.
func WalletFromSettings(privateKey, keystorePath, passphrase string) (Wallet, error) {
	switch {
	case privateKey != "":
		return NewKeyWallet(privateKey)
	case keystorePath != "":
		return LoadKeystoreWallet(keystorePath, passphrase)
	default:
		return nil, nil
	}
}

func (w *keyWallet) Address() common.Address { return w.address }

func (w *keyWallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}
