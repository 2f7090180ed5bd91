package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

// GenesisAccount is one pre-funded account in the genesis file.
type GenesisAccount struct {
	Address string `json:"address"` // hex-encoded 20-byte address
	Balance string `json:"balance"` // decimal string, parsed as a big.Int
}

// GenesisValidator is one initial validator entry.
type GenesisValidator struct {
	PublicKey string `json:"public_key"` // hex-encoded 32-byte ed25519 key
	Stake     uint64 `json:"stake"`
}

// Genesis is the JSON file that seeds a fresh chain (spec.md §6): applied on
// first start, ignored on subsequent starts.
type Genesis struct {
	ChainID    uint64             `json:"chain_id"`
	Timestamp  int64              `json:"timestamp"`
	Accounts   []GenesisAccount   `json:"accounts"`
	Validators []GenesisValidator `json:"validators"`
}

// LoadGenesis reads and parses a genesis JSON file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("genesis validation: %w", err)
	}
	return &g, nil
}

// Validate checks structural well-formedness of every account and validator
// entry before anything is applied to the trie.
func (g *Genesis) Validate() error {
	if g.ChainID == 0 {
		return fmt.Errorf("chain_id must not be zero")
	}
	if len(g.Validators) == 0 {
		return fmt.Errorf("validators list must not be empty")
	}
	for i, a := range g.Accounts {
		b, err := hex.DecodeString(a.Address)
		if err != nil || len(b) != types.AddressSize {
			return fmt.Errorf("accounts[%d]: address must be %d-byte hex", i, types.AddressSize)
		}
		if _, ok := new(big.Int).SetString(a.Balance, 10); !ok {
			return fmt.Errorf("accounts[%d]: balance %q is not a valid decimal integer", i, a.Balance)
		}
	}
	for i, v := range g.Validators {
		b, err := hex.DecodeString(v.PublicKey)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("validators[%d]: public_key must be 64-char hex (32 bytes)", i)
		}
	}
	return nil
}

// ValidatorSet builds the types.ValidatorSet described by the genesis file.
func (g *Genesis) ValidatorSet() (*types.ValidatorSet, error) {
	vs := make([]types.Validator, len(g.Validators))
	for i, gv := range g.Validators {
		raw, err := hex.DecodeString(gv.PublicKey)
		if err != nil {
			return nil, err
		}
		var pk types.PublicKey
		copy(pk[:], raw)
		vs[i] = types.Validator{PublicKey: pk, Stake: gv.Stake}
	}
	return types.NewValidatorSet(g.ChainID, vs), nil
}

// Apply inserts every genesis account into a fresh trie and commits the
// resulting root as state's starting point. Call only when the state store
// holds no prior committed root (a fresh data directory).
func Apply(g *Genesis, state *storage.StateStore) (types.Hash, error) {
	working := state.OpenWorkingCopy()
	for _, a := range g.Accounts {
		raw, err := hex.DecodeString(a.Address)
		if err != nil {
			return types.Hash{}, err
		}
		bal, ok := new(big.Int).SetString(a.Balance, 10)
		if !ok {
			return types.Hash{}, fmt.Errorf("genesis: invalid balance %q for %s", a.Balance, a.Address)
		}
		acct := types.NewAccount()
		acct.Balance = bal
		if err := working.Insert(raw, acct.Encode()); err != nil {
			return types.Hash{}, fmt.Errorf("genesis: insert account %s: %w", a.Address, err)
		}
	}
	root := types.Hash(working.RootHash())
	state.Commit(root)
	return root, nil
}
