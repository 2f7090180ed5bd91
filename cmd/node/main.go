// Command node runs a quorumchain validator and exposes operator CLI
// utilities (spec.md §6).
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorumchain/quorumchain/config"
	"github.com/quorumchain/quorumchain/consensus"
	"github.com/quorumchain/quorumchain/crypto/certgen"
	"github.com/quorumchain/quorumchain/events"
	"github.com/quorumchain/quorumchain/finality"
	"github.com/quorumchain/quorumchain/indexer"
	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/network"
	"github.com/quorumchain/quorumchain/node"
	"github.com/quorumchain/quorumchain/producer"
	"github.com/quorumchain/quorumchain/rpc"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
	"github.com/quorumchain/quorumchain/wallet"
)

func main() {
	root := &cobra.Command{
		Use:   "node",
		Short: "quorumchain validator node",
	}
	root.AddCommand(newStartCmd(), newKeyGenCmd(), newSubmitTxCmd(), newQueryBalanceCmd(), newGetBlockCmd(), newConnectPeerCmd(), newGenCertsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStartCmd() *cobra.Command {
	var cfgPath, genesisPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the validator node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cfgPath, genesisPath)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "config.toml", "path to TOML config file")
	cmd.Flags().StringVar(&genesisPath, "genesis", "genesis.json", "path to genesis JSON file (applied only on first start)")
	return cmd
}

func runStart(cfgPath, genesisPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			return fmt.Errorf("config: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}

	privKey, err := wallet.LoadOrCreateNodeKey(cfg.Storage.DataDir + "/node_key.json")
	if err != nil {
		return fmt.Errorf("node key: %w", err)
	}
	var pubKey types.PublicKey
	copy(pubKey[:], privKey.Public())

	db, err := storage.NewLevelDB(cfg.Storage.DataDir + "/chain")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	blocks := storage.NewBlockStore(db)
	receipts := storage.NewReceiptStore(db)

	genesis, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	validators, err := genesis.ValidatorSet()
	if err != nil {
		return fmt.Errorf("genesis validator set: %w", err)
	}

	var state *storage.StateStore
	if latest, ok := blocks.LatestHeight(); ok {
		// Existing chain: the genesis file is ignored past the first start.
		latestBlock, err := blocks.GetBlockByHeight(latest)
		if err != nil {
			return fmt.Errorf("read latest block: %w", err)
		}
		state = storage.NewStateStore(db, latestBlock.Header.StateRoot)
	} else {
		state = storage.NewStateStore(db, types.Hash{})
		root, err := config.Apply(genesis, state)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		genesisBlock := types.Block{Header: types.Header{StateRoot: root, Slot: 0}}
		if err := blocks.CommitBlock(&genesisBlock, 0); err != nil {
			return fmt.Errorf("commit genesis block: %w", err)
		}
		if err := blocks.MarkFinalized(0); err != nil {
			return fmt.Errorf("finalize genesis block: %w", err)
		}
		fmt.Printf("Genesis applied: chain_id=%d state_root=%x\n", genesis.ChainID, root)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	pool := mempool.New(mempool.DefaultConfig())
	final := finality.New(validators, blocks, emitter)

	startHeight, _ := blocks.LatestHeight()
	engine := consensus.New(pubKey, privKey, validators, startHeight+1)
	prod := producer.New(state, pool, emitter, validators.ID)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.Network.P2PPort)
	netNode := network.NewNode(fmt.Sprintf("%x", pubKey[:8]), p2pAddr, pool, tlsCfg)

	n := node.New(node.Config{
		Engine:   engine,
		Producer: prod,
		Mempool:  pool,
		State:    state,
		Blocks:   blocks,
		Receipts: receipts,
		Final:    final,
		Net:      netNode,
		Emitter:  emitter,
		PrivKey:  privKey,
		PubKey:   pubKey,
	})
	network.NewSyncer(netNode, blocks, n)

	if err := netNode.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	fmt.Printf("P2P listening on %s\n", p2pAddr)

	peerListPath := cfg.Storage.DataDir + "/peers.json"
	if err := netNode.LoadPeerList(peerListPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: load peer list: %v\n", err)
	}
	for _, addr := range cfg.Network.BootstrapNodes {
		if err := netNode.AddPeer(addr, addr); err != nil {
			fmt.Fprintf(os.Stderr, "warning: bootstrap peer %s: %v\n", addr, err)
		}
	}

	rpcHandler := rpc.NewHandler(blocks, receipts, state, pool, idx, cfg.Network.ChainID)
	rpcServer := rpc.NewServer(cfg.API.Address, rpcHandler, "")
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	fmt.Printf("RPC listening on %s\n", cfg.API.Address)

	ticker := time.NewTicker(time.Duration(cfg.Consensus.BlockTimeMS) * time.Millisecond)
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Consensus running (validator pubkey: %x)\n", pubKey[:])
	intervalMS := cfg.Consensus.BlockTimeMS
	for {
		select {
		case <-ticker.C:
			n.Tick(intervalMS)
		case <-sigCh:
			fmt.Println("Shutting down...")
			if err := n.Shutdown(peerListPath); err != nil {
				fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
			}
			fmt.Println("Shutdown complete.")
			return nil
		}
	}
}

func newKeyGenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "key-gen",
		Short: "generate a new validator key",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.Generate()
			if err != nil {
				return err
			}
			fmt.Printf("Public key:  %s\n", w.PubKeyHex())
			fmt.Printf("Address:     %s\n", w.AddressHex())
			if out != "" {
				data, err := json.MarshalIndent(map[string]string{"private_key": hex.EncodeToString(w.PrivKey())}, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return err
				}
				fmt.Printf("Saved to:    %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write the generated key (default: print only)")
	return cmd
}

func newSubmitTxCmd() *cobra.Command {
	var rpcAddr, payloadHex string
	cmd := &cobra.Command{
		Use:   "submit-tx",
		Short: "submit a raw transaction payload to a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := hex.DecodeString(payloadHex)
			if err != nil {
				return fmt.Errorf("payload: %w", err)
			}
			var tx types.Transaction
			if err := json.Unmarshal(payload, &tx); err != nil {
				return fmt.Errorf("payload is not a valid encoded transaction: %w", err)
			}
			resp, err := callRPC(rpcAddr, "sendTx", tx)
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "http://127.0.0.1:8545", "node RPC address")
	cmd.Flags().StringVar(&payloadHex, "payload", "", "hex-encoded JSON transaction")
	cmd.MarkFlagRequired("payload")
	return cmd
}

func newQueryBalanceCmd() *cobra.Command {
	var rpcAddr, address string
	cmd := &cobra.Command{
		Use:   "query-balance",
		Short: "query an account's balance and nonce",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callRPC(rpcAddr, "getBalance", map[string]string{"address": address})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "http://127.0.0.1:8545", "node RPC address")
	cmd.Flags().StringVar(&address, "address", "", "hex-encoded 20-byte address")
	cmd.MarkFlagRequired("address")
	return cmd
}

func newGetBlockCmd() *cobra.Command {
	var rpcAddr string
	var height uint64
	cmd := &cobra.Command{
		Use:   "get-block",
		Short: "fetch a block by height",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := callRPC(rpcAddr, "getBlock", map[string]uint64{"height": height})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "http://127.0.0.1:8545", "node RPC address")
	cmd.Flags().Uint64Var(&height, "height", 0, "block height")
	return cmd
}

func newConnectPeerCmd() *cobra.Command {
	var dataDir, multiaddr string
	cmd := &cobra.Command{
		Use:   "connect-peer",
		Short: "register a peer for the node to dial on its next start",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dataDir + "/peers.json"
			var list []network.PersistedPeer
			if data, err := os.ReadFile(path); err == nil {
				if err := json.Unmarshal(data, &list); err != nil {
					return fmt.Errorf("parse existing peer list: %w", err)
				}
			}
			list = append(list, network.PersistedPeer{ID: multiaddr, Addr: multiaddr})
			data, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Printf("Peer %s registered; takes effect on next start.\n", multiaddr)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "node data directory")
	cmd.Flags().StringVar(&multiaddr, "multiaddr", "", "peer address (host:port)")
	cmd.MarkFlagRequired("multiaddr")
	return cmd
}

func newGenCertsCmd() *cobra.Command {
	var dir, nodeID string
	cmd := &cobra.Command{
		Use:   "gencerts",
		Short: "generate a self-signed CA and node certificate for mTLS peering",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := certgen.GenerateAll(dir, nodeID, nil); err != nil {
				return err
			}
			fmt.Printf("Wrote ca.crt, ca.key, %s.crt, %s.key to %s\n", nodeID, nodeID, dir)
			fmt.Println("Set ca_cert, node_cert and node_key in the [tls] table of config.toml to the files under this directory.")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out", "./certs", "directory to write the CA and node cert/key pairs to")
	cmd.Flags().StringVar(&nodeID, "node-id", "node0", "common name / filename prefix for the node certificate")
	return cmd
}

// callRPC issues a JSON-RPC 2.0 request to a running node and returns the
// decoded response.
func callRPC(addr, method string, params any) (rpc.Response, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return rpc.Response{}, err
	}
	req := rpc.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: paramsJSON}
	body, err := json.Marshal(req)
	if err != nil {
		return rpc.Response{}, err
	}
	httpResp, err := http.Post(addr, "application/json", bytes.NewReader(body))
	if err != nil {
		return rpc.Response{}, fmt.Errorf("rpc request: %w", err)
	}
	defer httpResp.Body.Close()
	var resp rpc.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return rpc.Response{}, fmt.Errorf("decode rpc response: %w", err)
	}
	return resp, nil
}

func printResponse(resp rpc.Response) error {
	if resp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
