// Command node runs a single PFHS validator as its own process, joining a
// cluster over libp2p instead of the in-process channel fixture cmd/cluster
// drives. Peer addresses and the validator set's key material are supplied
// by environment/.env, the same ambient-config path the teacher's node
// binary reads its validator list and listen address from.
package main

import (
	"context"
	"encoding/hex"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/uhyunpark/pfhs/params"
	"github.com/uhyunpark/pfhs/pkg/consensus"
	"github.com/uhyunpark/pfhs/pkg/crypto"
	"github.com/uhyunpark/pfhs/pkg/mempool"
	"github.com/uhyunpark/pfhs/pkg/metrics"
	"github.com/uhyunpark/pfhs/pkg/p2p"
	"github.com/uhyunpark/pfhs/pkg/storage"
	"github.com/uhyunpark/pfhs/pkg/util"
)

func main() {
	node := params.LoadNodeFromEnv("")
	protocol := params.DefaultProtocol()

	logFile := node.LogPath
	if logFile == "" {
		logFile = "data/node.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	if len(node.ValidatorSeedsHex) == 0 {
		sugar.Fatalw("no_validator_seeds", "hint", "set NODE_VALIDATOR_SEEDS_HEX")
	}
	if node.ValidatorIndex < 0 || node.ValidatorIndex >= len(node.ValidatorSeedsHex) {
		sugar.Fatalw("validator_index_out_of_range", "index", node.ValidatorIndex, "n", len(node.ValidatorSeedsHex))
	}

	privKeys := make([]*crypto.PrivateKey, len(node.ValidatorSeedsHex))
	members := make([]*crypto.PublicKey, len(node.ValidatorSeedsHex))
	for i, seedHex := range node.ValidatorSeedsHex {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			sugar.Fatalw("bad_seed_hex", "index", i, "err", err)
		}
		sk, err := crypto.GenerateKey(seed)
		if err != nil {
			sugar.Fatalw("key_derivation_failed", "index", i, "err", err)
		}
		privKeys[i] = sk
		members[i] = sk.PublicKey()
	}
	quorum := consensus.NewQuorum(members)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := p2p.NewHost(ctx, p2p.Config{ListenAddr: node.ListenAddr, Logger: sugar})
	if err != nil {
		sugar.Fatalw("p2p_host_failed", "err", err)
	}
	defer host.Close()
	sugar.Infow("p2p_listening", "peer_id", host.ID())

	var peers []consensus.Peer
	peerIdx := 0
	for i := range members {
		if i == node.ValidatorIndex {
			continue
		}
		if peerIdx >= len(node.PeerAddrs) {
			sugar.Fatalw("missing_peer_addr", "for_validator_index", i)
		}
		link, err := host.Connect(ctx, node.PeerAddrs[peerIdx])
		if err != nil {
			sugar.Fatalw("p2p_connect_failed", "addr", node.PeerAddrs[peerIdx], "err", err)
		}
		peers = append(peers, consensus.Peer{PublicKey: members[i], Index: i, Link: link})
		peerIdx++
	}

	if err := os.MkdirAll(node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "err", err)
	}
	wal, err := storage.NewFileWAL(node.DataDir + "/commits.log")
	if err != nil {
		sugar.Fatalw("wal_open_failed", "err", err)
	}

	blockStore, err := storage.NewPebbleStore(node.DataDir + "/blocks")
	if err != nil {
		sugar.Fatalw("blockstore_open_failed", "err", err)
	}
	defer blockStore.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	go func() {
		if err := metrics.Serve(":2112", registry); err != nil {
			sugar.Warnw("metrics_server_stopped", "err", err)
		}
	}()

	pool := mempool.New()

	identity := consensus.Identity{
		Name:       host.ID(),
		PrivateKey: privKeys[node.ValidatorIndex],
		Index:      node.ValidatorIndex,
	}
	ep := consensus.NewEndpoint(identity, peers, quorum, util.RealClock{}, protocol.Timeout, sugar)
	ep.WAL = wal
	ep.BlockStore = blockStore
	ep.Mempool = pool
	ep.MaxTxsPerBlock = 32
	ep.Metrics = collector
	ep.BroadcastTransport = host
	ep.Execute = func(b consensus.Block) {
		sugar.Infow("executed", "validator", identity.Name, "view", uint64(b.View), "txs", len(b.Transactions))
	}

	sugar.Infow("node_starting", "validators", len(members), "index", node.ValidatorIndex, "quorum_n", quorum.N())
	if err := ep.StartConsensus(ctx, consensus.View(protocol.MaxView)); err != nil {
		sugar.Infow("node_stopped", "err", err)
	}
}
