// Package config defines the seeker's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/internal/pkg/retry"
)

// Config is built once at startup: defaults, then an optional TOML file,
// then OEV_* environment variables.
type Config struct {
	Environment string          `toml:"environment"`
	Wallet      WalletConfig    `toml:"wallet"`
	TargetChain ChainConfig     `toml:"target_chain"`
	Auction     AuctionConfig   `toml:"auction"`
	Contracts   ContractsConfig `toml:"contracts"`
	Strategy    StrategyConfig  `toml:"strategy"`
	WatchList   WatchListConfig `toml:"watch_list"`
	Retry       retry.Config    `toml:"retry"`
	Logging     LoggingConfig   `toml:"logging"`
	Metrics     MetricsConfig   `toml:"metrics"`
	Health      HealthConfig    `toml:"health"`
}

// WalletConfig holds the signing key shared by both chains
type WalletConfig struct {
	PrivateKey       string        `toml:"private_key"`
	TxTimeout        time.Duration `toml:"tx_timeout"`
	GasLimitBufferBp uint64        `toml:"gas_limit_buffer_bp"`
}

// ChainConfig describes how to reach one chain
type ChainConfig struct {
	RPCURL              string        `toml:"rpc_url"`
	APIKey              string        `toml:"api_key"`
	FallbackRPCURL      string        `toml:"fallback_rpc_url"`
	RequestTimeout      time.Duration `toml:"request_timeout"`
	HealthCheckInterval time.Duration `toml:"health_check_interval"`
	RequestsPerSecond   float64       `toml:"requests_per_second"`
}

// Endpoints returns the primary endpoint, with the API key appended as a
// path segment when set, followed by the fallback if any.
func (c ChainConfig) Endpoints() []string {
	var out []string
	if c.RPCURL != "" {
		primary := c.RPCURL
		if c.APIKey != "" {
			primary = strings.TrimRight(primary, "/") + "/" + c.APIKey
		}
		out = append(out, primary)
	}
	if c.FallbackRPCURL != "" {
		out = append(out, c.FallbackRPCURL)
	}
	return out
}

// AuctionConfig covers the auction network and our participation in it
type AuctionConfig struct {
	Chain         ChainConfig   `toml:"chain"`
	BidTopic      common.Hash   `toml:"bid_topic"`
	LogBlockRange uint64        `toml:"log_block_range"`
	Lookback      uint64        `toml:"lookback_blocks"`
	Retention     time.Duration `toml:"retention"`
}

// ContractsConfig holds every external contract address
type ContractsConfig struct {
	LendingPool  common.Address   `toml:"lending_pool"`
	PriceRouter  common.Address   `toml:"price_router"`
	Liquidator   common.Address   `toml:"liquidator"`
	Simulator    common.Address   `toml:"simulator"`
	Multicall3   common.Address   `toml:"multicall3"`
	Api3Server   common.Address   `toml:"api3_server"`
	OevProxy     common.Address   `toml:"oev_proxy"`
	AuctionHouse common.Address   `toml:"auction_house"`
	FeedAsset    common.Address   `toml:"feed_asset"`
	DapiName     string           `toml:"dapi_name"`
	EthMarkets   []common.Address `toml:"eth_markets"`
}

// StrategyConfig holds the knobs of the scan and bid loop
type StrategyConfig struct {
	TransmutationPercent      float64       `toml:"transmutation_percent"`
	MinProfitUSD              float64       `toml:"min_profit_usd"`
	BidPercentOfProfit        float64       `toml:"bid_percent_of_profit"`
	BidExpiration             time.Duration `toml:"bid_expiration"`
	MaxRepayCollateralPercent float64       `toml:"max_repay_collateral_percent"`
	AllowSameAsset            bool          `toml:"allow_same_asset"`
	ScanChunkSize             int           `toml:"scan_chunk_size"`
	FulfillmentDelay          time.Duration `toml:"fulfillment_delay"`
	ExpirationSafetyWindow    time.Duration `toml:"expiration_safety_window"`
	CallTimeout               time.Duration `toml:"call_timeout"`
	LoopInterval              time.Duration `toml:"loop_interval"`
	ParamsCacheTTL            time.Duration `toml:"params_cache_ttl"`
}

// WatchListConfig controls candidate borrower discovery
type WatchListConfig struct {
	DeploymentBlock              uint64        `toml:"deployment_block"`
	LogBlockRange                uint64        `toml:"log_block_range"`
	ReorgBuffer                  uint64        `toml:"reorg_buffer_blocks"`
	PollInterval                 time.Duration `toml:"poll_interval"`
	MinBorrowUSD                 float64       `toml:"min_borrow_usd"`
	LiquiditySafetyMarginPercent float64       `toml:"liquidity_safety_margin_percent"`
	ChunkSize                    int           `toml:"chunk_size"`
	Persist                      bool          `toml:"persist"`
	Path                         string        `toml:"path"`
	PersistInterval              time.Duration `toml:"persist_interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

type HealthConfig struct {
	Enabled  bool   `toml:"enabled"`
	GRPCAddr string `toml:"grpc_addr"`
}

// Defaults returns a Config with every tunable set. Addresses, keys and
// endpoints have no defaults.
func Defaults() Config {
	return Config{
		Environment: "development",
		Wallet: WalletConfig{
			TxTimeout:        2 * time.Minute,
			GasLimitBufferBp: 2_000,
		},
		TargetChain: ChainConfig{
			RequestTimeout:      10 * time.Second,
			HealthCheckInterval: 30 * time.Second,
			RequestsPerSecond:   25,
		},
		Auction: AuctionConfig{
			Chain: ChainConfig{
				RequestTimeout:      10 * time.Second,
				HealthCheckInterval: 30 * time.Second,
				RequestsPerSecond:   10,
			},
			LogBlockRange: 5_000,
			Lookback:      100_000,
			Retention:     25 * time.Hour,
		},
		Contracts: ContractsConfig{
			DapiName: "ETH/USD",
		},
		Strategy: StrategyConfig{
			TransmutationPercent:      100.2,
			MinProfitUSD:              5,
			BidPercentOfProfit:        50,
			BidExpiration:             30 * time.Minute,
			MaxRepayCollateralPercent: 95,
			AllowSameAsset:            true,
			ScanChunkSize:             500,
			FulfillmentDelay:          5 * time.Minute,
			ExpirationSafetyWindow:    15 * time.Second,
			CallTimeout:               30 * time.Second,
			LoopInterval:              5 * time.Second,
			ParamsCacheTTL:            10 * time.Minute,
		},
		WatchList: WatchListConfig{
			LogBlockRange:                10_000,
			ReorgBuffer:                  10,
			PollInterval:                 time.Minute,
			MinBorrowUSD:                 100,
			LiquiditySafetyMarginPercent: 10,
			ChunkSize:                    250,
			Persist:                      true,
			Path:                         "watchlist.json",
			PersistInterval:              5 * time.Minute,
		},
		Retry: retry.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Health: HealthConfig{
			Enabled:  true,
			GRPCAddr: ":9091",
		},
	}
}

// IsProduction reports whether persisted state must be ignored at startup
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"console": true,
	"json":    true,
}

// Validate checks for missing or inconsistent values and reports every
// problem found in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Wallet.PrivateKey == "" {
		errs = append(errs, "wallet: private_key must be set")
	}
	if c.TargetChain.RPCURL == "" {
		errs = append(errs, "target_chain: rpc_url must be set")
	}
	if c.Auction.Chain.RPCURL == "" {
		errs = append(errs, "auction.chain: rpc_url must be set")
	}

	addresses := []struct {
		name string
		addr common.Address
	}{
		{"lending_pool", c.Contracts.LendingPool},
		{"price_router", c.Contracts.PriceRouter},
		{"liquidator", c.Contracts.Liquidator},
		{"simulator", c.Contracts.Simulator},
		{"multicall3", c.Contracts.Multicall3},
		{"api3_server", c.Contracts.Api3Server},
		{"oev_proxy", c.Contracts.OevProxy},
		{"auction_house", c.Contracts.AuctionHouse},
		{"feed_asset", c.Contracts.FeedAsset},
	}
	for _, a := range addresses {
		if a.addr == (common.Address{}) {
			errs = append(errs, fmt.Sprintf("contracts: %s must be set", a.name))
		}
	}
	if len(c.Contracts.EthMarkets) == 0 {
		errs = append(errs, "contracts: eth_markets must list at least one market")
	}
	if c.Contracts.DapiName == "" || len(c.Contracts.DapiName) > 32 {
		errs = append(errs, "contracts: dapi_name must be 1-32 bytes")
	}
	if c.Auction.BidTopic == (common.Hash{}) {
		errs = append(errs, "auction: bid_topic must be set")
	}

	s := c.Strategy
	if s.TransmutationPercent <= 0 || s.TransmutationPercent == 100 {
		errs = append(errs, fmt.Sprintf("strategy: transmutation_percent must be positive and not 100, got %v", s.TransmutationPercent))
	}
	if s.BidPercentOfProfit <= 0 || s.BidPercentOfProfit > 100 {
		errs = append(errs, fmt.Sprintf("strategy: bid_percent_of_profit must be in (0, 100], got %v", s.BidPercentOfProfit))
	}
	if s.MaxRepayCollateralPercent <= 0 || s.MaxRepayCollateralPercent > 100 {
		errs = append(errs, fmt.Sprintf("strategy: max_repay_collateral_percent must be in (0, 100], got %v", s.MaxRepayCollateralPercent))
	}
	if s.ScanChunkSize < 1 || s.ScanChunkSize > 500 {
		errs = append(errs, fmt.Sprintf("strategy: scan_chunk_size must be 1-500, got %d", s.ScanChunkSize))
	}
	if s.MinProfitUSD < 0 {
		errs = append(errs, "strategy: min_profit_usd must not be negative")
	}
	if s.BidExpiration <= s.ExpirationSafetyWindow {
		errs = append(errs, "strategy: bid_expiration must exceed expiration_safety_window")
	}
	if s.CallTimeout <= 0 || s.LoopInterval <= 0 {
		errs = append(errs, "strategy: call_timeout and loop_interval must be positive")
	}

	if c.WatchList.LogBlockRange == 0 || c.Auction.LogBlockRange == 0 {
		errs = append(errs, "log_block_range must be positive")
	}
	if c.WatchList.ChunkSize < 1 || c.WatchList.ChunkSize > 500 {
		errs = append(errs, fmt.Sprintf("watch_list: chunk_size must be 1-500, got %d", c.WatchList.ChunkSize))
	}
	if c.WatchList.Persist && c.WatchList.Path == "" {
		errs = append(errs, "watch_list: path is required when persist is enabled")
	}
	if c.Auction.Retention <= 0 {
		errs = append(errs, "auction: retention must be positive")
	}

	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("unknown logging.level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("unknown logging.format %q (valid: console, json)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
