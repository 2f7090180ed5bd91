// Package config loads the node's TOML configuration file and the genesis
// JSON file that seeds a fresh chain (spec.md §6).
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// NetworkConfig identifies the chain and the node's listening ports.
type NetworkConfig struct {
	ChainID        uint64   `toml:"chain_id"`
	P2PPort        int      `toml:"p2p_port"`
	RPCPort        int      `toml:"rpc_port"`
	BootstrapNodes []string `toml:"bootstrap_nodes"`
}

// ConsensusConfig tunes the BFT engine's pacing.
type ConsensusConfig struct {
	BlockTimeMS   int64 `toml:"block_time_ms"`
	MaxValidators int   `toml:"max_validators"`
}

// ValidatorConfig holds the validator.enabled flag. The flag is parsed but
// not read by the start command: a started node always runs the consensus
// engine, and there is no read-only follower mode.
type ValidatorConfig struct {
	Enabled bool `toml:"enabled"`
}

// StorageConfig points at the on-disk data directory.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// APIConfig is the RPC listen address.
type APIConfig struct {
	Address string `toml:"address"`
}

// MetricsConfig is the metrics listen address.
type MetricsConfig struct {
	Address string `toml:"address"`
}

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `toml:"ca_cert"`
	NodeCert string `toml:"node_cert"`
	NodeKey  string `toml:"node_key"`
}

// Config holds all node configuration (spec.md §6 "Node config").
type Config struct {
	Network   NetworkConfig   `toml:"network"`
	Consensus ConsensusConfig `toml:"consensus"`
	Validator ValidatorConfig `toml:"validator"`
	Storage   StorageConfig   `toml:"storage"`
	API       APIConfig       `toml:"api"`
	Metrics   MetricsConfig   `toml:"metrics"`
	TLS       *TLSConfig      `toml:"tls"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			ChainID: 1,
			P2PPort: 30303,
			RPCPort: 8545,
		},
		Consensus: ConsensusConfig{
			BlockTimeMS:   1000,
			MaxValidators: 100,
		},
		Validator: ValidatorConfig{Enabled: true},
		Storage:   StorageConfig{DataDir: "./data"},
		API:       APIConfig{Address: "127.0.0.1:8545"},
		Metrics:   MetricsConfig{Address: "127.0.0.1:9090"},
	}
}

// Load reads a TOML config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Network.ChainID == 0 {
		return fmt.Errorf("network.chain_id must not be zero")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Network.P2PPort <= 0 || c.Network.P2PPort > 65535 {
		return fmt.Errorf("network.p2p_port must be 1-65535, got %d", c.Network.P2PPort)
	}
	if c.Network.RPCPort <= 0 || c.Network.RPCPort > 65535 {
		return fmt.Errorf("network.rpc_port must be 1-65535, got %d", c.Network.RPCPort)
	}
	if c.Network.RPCPort == c.Network.P2PPort {
		return fmt.Errorf("network.rpc_port and network.p2p_port must not be the same (%d)", c.Network.RPCPort)
	}
	if c.Consensus.MaxValidators <= 0 {
		return fmt.Errorf("consensus.max_validators must be positive")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as TOML.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
