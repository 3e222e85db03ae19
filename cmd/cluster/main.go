// Command cluster bootstraps an in-process PFHS validator set and drives
// it for a fixed number of views, the Go counterpart of a thread-per-
// endpoint local devnet.
package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/uhyunpark/pfhs/params"
	"github.com/uhyunpark/pfhs/pkg/cluster"
	"github.com/uhyunpark/pfhs/pkg/consensus"
	"github.com/uhyunpark/pfhs/pkg/mempool"
	"github.com/uhyunpark/pfhs/pkg/metrics"
	"github.com/uhyunpark/pfhs/pkg/storage"
	"github.com/uhyunpark/pfhs/pkg/util"
)

func main() {
	node := params.LoadNodeFromEnv("")
	protocol := params.DefaultProtocol()

	logFile := node.LogPath
	if logFile == "" {
		logFile = "data/cluster.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	f := 1 // tolerates one faulty validator out of 3f+1 = 4
	if node.SingleNode {
		f = 0
	}

	endpoints, err := cluster.SetupCluster(f, protocol.Timeout, util.RealClock{}, sugar)
	if err != nil {
		sugar.Fatalw("cluster_setup_failed", "err", err)
	}

	if err := os.MkdirAll(node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "err", err)
	}
	wal, err := storage.NewFileWAL(node.DataDir + "/commits.log")
	if err != nil {
		sugar.Fatalw("wal_open_failed", "err", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	go func() {
		if err := metrics.Serve(":2112", registry); err != nil {
			sugar.Warnw("metrics_server_stopped", "err", err)
		}
	}()

	pool := mempool.New()
	gen, err := mempool.NewGenerator(len(endpoints), rand.New(rand.NewSource(1)))
	if err != nil {
		sugar.Fatalw("txgen_init_failed", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		sugar.Infow("shutdown_signal_received")
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := gen.SubmitOne(pool); err != nil {
					sugar.Warnw("txgen_submit_failed", "err", err)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		ep := ep
		ep.WAL = wal
		ep.BlockStore = storage.NewInMemoryBlockStore()
		ep.Mempool = pool
		ep.MaxTxsPerBlock = 32
		ep.Metrics = collector
		ep.Execute = func(b consensus.Block) {
			sugar.Infow("executed", "validator", ep.Identity.Name, "view", uint64(b.View), "txs", len(b.Transactions))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ep.StartConsensus(ctx, consensus.View(protocol.MaxView)); err != nil {
				sugar.Infow("endpoint_stopped", "validator", ep.Identity.Name, "err", err)
			}
		}()
	}
	wg.Wait()
}
