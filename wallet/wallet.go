package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/types"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKeyHex returns the hex-encoded Ed25519 public key.
func (w *Wallet) PubKeyHex() string {
	return hex.EncodeToString(w.pub)
}

// Address returns the 20-byte address derived from the public key.
func (w *Wallet) Address() types.Address {
	var pk types.PublicKey
	copy(pk[:], w.pub)
	return types.AddressFromPublicKey(pk)
}

// AddressHex returns the hex-encoded address.
func (w *Wallet) AddressHex() string {
	addr := w.Address()
	return hex.EncodeToString(addr[:])
}

// Transfer builds and signs a transfer transaction from this wallet to to,
// with the given nonce and fee parameters (spec.md §3). Payload is the
// wallet's raw public key, required by the executor to verify the
// signature without a separate key-lookup step.
func (w *Wallet) Transfer(to types.Address, value, nonce, gasLimit, maxFeePerGas, maxPriorityFeePerGas uint64) *types.Transaction {
	tx := &types.Transaction{
		Sender:               w.Address(),
		Nonce:                nonce,
		Payload:              append([]byte{}, w.pub...),
		GasLimit:             gasLimit,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		To:                   to,
		HasTo:                true,
		Value:                value,
	}
	tx.Sign(w.priv)
	return tx
}

// nodeKeyFile is the on-disk shape of <data_dir>/node_key.json (spec.md §6):
// a JSON object holding the hex-encoded private key, generated on first
// start if absent.
type nodeKeyFile struct {
	PrivateKey string `json:"private_key"`
}

// LoadOrCreateNodeKey reads the validator key at path, generating and
// persisting a fresh one if the file does not exist.
func LoadOrCreateNodeKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		priv, _, genErr := crypto.GenerateKeyPair()
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := saveNodeKey(path, priv); saveErr != nil {
			return nil, saveErr
		}
		return priv, nil
	}
	if err != nil {
		return nil, err
	}
	var f nodeKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse node key file: %w", err)
	}
	raw, err := hex.DecodeString(f.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode node key: %w", err)
	}
	return crypto.PrivKeyFromBytes(raw)
}

func saveNodeKey(path string, priv crypto.PrivateKey) error {
	data, err := json.MarshalIndent(nodeKeyFile{PrivateKey: hex.EncodeToString(priv)}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
