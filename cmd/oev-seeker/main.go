package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/auction"
	"github.com/mev-protocol/oev-seeker/internal/config"
	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/executor"
	"github.com/mev-protocol/oev-seeker/internal/health"
	"github.com/mev-protocol/oev-seeker/internal/metrics"
	"github.com/mev-protocol/oev-seeker/internal/protocol"
	"github.com/mev-protocol/oev-seeker/internal/rpc"
	"github.com/mev-protocol/oev-seeker/internal/scanner"
	"github.com/mev-protocol/oev-seeker/internal/seeker"
	"github.com/mev-protocol/oev-seeker/internal/store"
	"github.com/mev-protocol/oev-seeker/internal/transmute"
	"github.com/mev-protocol/oev-seeker/internal/wallet"
	"github.com/mev-protocol/oev-seeker/internal/watchlist"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogging(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("dapi", cfg.Contracts.DapiName).
		Str("topic", cfg.Auction.BidTopic.Hex()).
		Msg("OEV seeker starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	targetPool := rpc.NewPool(rpc.Config{
		Name:                "target",
		Endpoints:           cfg.TargetChain.Endpoints(),
		RequestTimeout:      cfg.TargetChain.RequestTimeout,
		HealthCheckInterval: cfg.TargetChain.HealthCheckInterval,
		RequestsPerSecond:   cfg.TargetChain.RequestsPerSecond,
	})
	auctionPool := rpc.NewPool(rpc.Config{
		Name:                "auction",
		Endpoints:           cfg.Auction.Chain.Endpoints(),
		RequestTimeout:      cfg.Auction.Chain.RequestTimeout,
		HealthCheckInterval: cfg.Auction.Chain.HealthCheckInterval,
		RequestsPerSecond:   cfg.Auction.Chain.RequestsPerSecond,
	})
	if err := targetPool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start target chain RPC pool")
	}
	if err := auctionPool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start auction network RPC pool")
	}

	walletCfg := wallet.Config{
		PrivateKey:       cfg.Wallet.PrivateKey,
		TxTimeout:        cfg.Wallet.TxTimeout,
		GasLimitBufferBp: cfg.Wallet.GasLimitBufferBp,
	}
	walletCfg.Name = "target"
	targetWallet := wallet.New(walletCfg, targetPool)
	walletCfg.Name = "auction"
	auctionWallet := wallet.New(walletCfg, auctionPool)
	for _, w := range []*wallet.Wallet{targetWallet, auctionWallet} {
		if err := w.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start wallet")
		}
	}

	c := cfg.Contracts
	pool := contracts.LendingPool{Address: c.LendingPool}
	router := contracts.PriceRouter{Address: c.PriceRouter}
	liquidator := contracts.Liquidator{Address: c.Liquidator}
	multicall := contracts.Multicall3{Address: c.Multicall3}
	server := contracts.Api3Server{Address: c.Api3Server}
	house := contracts.AuctionHouse{Address: c.AuctionHouse}

	st := store.New()
	params := protocol.NewParams(targetPool, pool, cfg.Strategy.ParamsCacheTTL)
	engine := transmute.NewEngine(targetPool, contracts.Simulator{Address: c.Simulator}, server)
	minProfit := types.ParseUnits(cfg.Strategy.MinProfitUSD)

	scan := scanner.New(scanner.Config{
		DapiName:                  c.DapiName,
		FeedAsset:                 c.FeedAsset,
		EthMarkets:                c.EthMarkets,
		TransmutationPercent:      cfg.Strategy.TransmutationPercent,
		MinProfitUSD:              minProfit,
		MaxRepayCollateralPercent: cfg.Strategy.MaxRepayCollateralPercent,
		AllowSameAsset:            cfg.Strategy.AllowSameAsset,
		ChunkSize:                 cfg.Strategy.ScanChunkSize,
	}, engine, targetPool, params, pool, router, liquidator)

	manager := auction.NewManager(auction.Config{
		Topic:              cfg.Auction.BidTopic,
		TargetChainID:      targetWallet.ChainID(),
		OevProxy:           c.OevProxy,
		UpdateSender:       targetWallet.Address(),
		BidPercentOfProfit: cfg.Strategy.BidPercentOfProfit,
		BidExpiration:      cfg.Strategy.BidExpiration,
		SafetyWindow:       cfg.Strategy.ExpirationSafetyWindow,
	}, auctionWallet, house, st)

	fetcher := auction.NewLogFetcher(auction.LogConfig{
		AuctionHouse: c.AuctionHouse,
		Bidder:       auctionWallet.Address(),
		Topic:        cfg.Auction.BidTopic,
		BlockRange:   cfg.Auction.LogBlockRange,
		Lookback:     cfg.Auction.Lookback,
		Retention:    cfg.Auction.Retention,
	}, auctionPool, st)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	exec := executor.New(executor.Config{
		MinProfitUSD:     minProfit,
		FulfillmentDelay: cfg.Strategy.FulfillmentDelay,
		ReportTimeout:    cfg.Wallet.TxTimeout,
	}, targetWallet, manager, multicall, server, liquidator)
	exec.OnReport = m.ObserveFulfillment

	builder := watchlist.NewBuilder(watchlist.Config{
		DeploymentBlock:        cfg.WatchList.DeploymentBlock,
		BlockRange:             cfg.WatchList.LogBlockRange,
		ReorgBuffer:            cfg.WatchList.ReorgBuffer,
		EthMarkets:             c.EthMarkets,
		MinBorrowUSD:           types.ParseUnits(cfg.WatchList.MinBorrowUSD),
		LiquidityMarginPercent: cfg.WatchList.LiquiditySafetyMarginPercent,
		ChunkSize:              cfg.WatchList.ChunkSize,
	}, targetPool, params, watchlist.Contracts{
		Pool:       pool,
		Router:     router,
		Liquidator: liquidator,
		Multicall:  multicall,
	}, st)

	agent := seeker.New(seeker.Config{
		LoopInterval:    cfg.Strategy.LoopInterval,
		RefreshInterval: cfg.WatchList.PollInterval,
		CallTimeout:     cfg.Strategy.CallTimeout,
		Retry:           cfg.Retry,
		Persist:         cfg.WatchList.Persist,
		PersistInterval: cfg.WatchList.PersistInterval,
		WatchListPath:   cfg.WatchList.Path,
		LoadPersisted:   !cfg.IsProduction(),
		PriceRouter:     c.PriceRouter,
	}, seeker.Components{
		Store:     st,
		Scanner:   scan,
		Bids:      manager,
		Logs:      fetcher,
		Executor:  exec,
		WatchList: builder,
		Oracle:    params,
		Metrics:   m,
	})

	var ops *metrics.Server
	if cfg.Metrics.Enabled {
		ops = metrics.NewServer(cfg.Metrics.ListenAddr, reg, agent.Status)
		ops.Start()
	}
	var healthSrv *health.Server
	if cfg.Health.Enabled {
		healthSrv = health.New(cfg.Health.GRPCAddr)
		if err := healthSrv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start health server")
		}
	}

	if err := agent.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bootstrap failed")
	}
	if err := agent.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start seeker")
	}
	if healthSrv != nil {
		healthSrv.MarkReady()
	}

	log.Info().Msg("All components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if healthSrv != nil {
		healthSrv.Stop()
	}
	agent.Stop(shutdownCtx)
	if ops != nil {
		ops.Stop(shutdownCtx)
	}
	cancel()
	auctionPool.Stop(shutdownCtx)
	targetPool.Stop(shutdownCtx)

	log.Info().Msg("Shutdown complete")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
