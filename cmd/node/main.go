package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fermi-network/fermi/params"
	"github.com/fermi-network/fermi/pkg/api"
	"github.com/fermi-network/fermi/pkg/consensus"
	"github.com/fermi-network/fermi/pkg/controllers/bank"
	"github.com/fermi-network/fermi/pkg/controllers/futures"
	"github.com/fermi-network/fermi/pkg/controllers/router"
	"github.com/fermi-network/fermi/pkg/controllers/spot"
	"github.com/fermi-network/fermi/pkg/controllers/stake"
	"github.com/fermi-network/fermi/pkg/crypto"
	"github.com/fermi-network/fermi/pkg/p2p"
	"github.com/fermi-network/fermi/pkg/storage"
	"github.com/fermi-network/fermi/pkg/types"
	"github.com/fermi-network/fermi/pkg/util"
	"github.com/fermi-network/fermi/pkg/validator"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/node.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Controllers + router ----
	bc := bank.New()
	sc := stake.New(bc)
	sp := spot.New(bc)
	fc := futures.New(bc)
	r := router.New(bc, sc, sp, fc)
	r.CatchupStateFrequency = cfg.Exchange.CatchupStateFrequency
	if err := r.InitializeControllerAccounts(); err != nil {
		sugar.Fatalw("controller_accounts_init_failed", "err", err)
	}

	// ---- Critical-path store ----
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data/pebble"
	}
	store, err := storage.NewPebbleStore(dataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	// ---- Validator execution core ----
	metrics := validator.NewMetrics()
	state, err := validator.New(r, store, metrics, nil, nil)
	if err != nil {
		sugar.Fatalw("validator_init_failed", "err", err)
	}
	mempool := validator.NewMempool()
	bridge := validator.NewBridge(state, mempool)

	// ---- Consensus ----
	selfID := consensus.NodeID(cfg.Consensus.Validators[0])

	var ids []consensus.NodeID
	for _, s := range cfg.Consensus.Validators {
		ids = append(ids, consensus.NodeID(s))
	}

	// For single-node development: only use this validator
	// For multi-node: use all validators
	// TODO: Proper peer discovery & dynamic validator set
	singleNodeMode := cfg.Node.SingleNode
	if singleNodeMode {
		ids = []consensus.NodeID{selfID}
	}

	// Quorum: N validators, need 2f+1 = 2*t+1 where N=3t+1
	n := len(ids)
	t := (n - 1) / 3

	consState := &consensus.State{
		Q:       consensus.Quorum{N: n, T: t},
		SelfID:  selfID,
		Blocks:  make(map[consensus.Hash]consensus.Block),
		Genesis: consensus.GenesisBlock(),
	}
	safety := consensus.NewSafety(consState)
	pm := consensus.NewPacemaker(
		consensus.PacemakerTimers{Ppc: cfg.Consensus.Ppc, Delta: cfg.Consensus.Delta},
		util.RealClock{},
		consState,
	)

	elec := consensus.RoundRobinElector{IDs: ids}
	var signer interface{} = crypto.DummySigner{}

	lpn, err := p2p.NewLibp2pNet(context.Background(), p2p.Libp2pConfig{
		ListenAddr: os.Getenv("LISTEN"),
		Bootstrap:  []string{},
		SelfID:     consState.SelfID,
		Quorum:     consState.Q,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalw("libp2p_init_failed", "err", err)
	}
	net := lpn

	engine := consensus.NewEngine(consState, safety, pm, bridge, net, elec, signer)
	engine.Logger = sugar
	engine.Store = storage.NewInMemoryBlockStore()

	if os.Getenv("VERBOSE") == "true" {
		engine.VerboseLogging = true
		sugar.Info("verbose logging enabled")
	}

	// ---- API server ----
	apiServer := api.NewServer(bridge, state, store)
	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = ":8080"
	}
	go func() {
		sugar.Infow("api_server_starting", "addr", apiAddr)
		if err := apiServer.Start(apiAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	bridge.OnSealed = func(block types.Block) {
		apiServer.BroadcastSealedBlock(block, int64(consState.Height))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logInterval := consensus.Height(100)
	lastLoggedHeight := consensus.Height(0)

	sugar.Infow("node_starting",
		"config_validators", len(cfg.Consensus.Validators),
		"active_validators", len(ids),
		"single_node_mode", singleNodeMode,
		"quorum_need", 2*t+1,
		"sealed_block", state.BlockNumber())

	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Fatalw("engine_failed", "err", err)
		}
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if consState.Height-lastLoggedHeight >= logInterval || consState.Height <= 5 {
				snap := metrics.Snapshot()
				sugar.Infow("consensus_progress",
					"height", consState.Height,
					"view", consState.View,
					"sealed_block", state.BlockNumber(),
					"tx_received", snap.TransactionsReceived,
					"tx_received_failed", snap.TransactionsReceivedFailed)
				lastLoggedHeight = consState.Height
			}
		}
	}
}
