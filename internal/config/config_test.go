package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.TargetChain.RPCURL = "https://rpc.example"
	cfg.Auction.Chain.RPCURL = "https://auction.example"
	cfg.Auction.BidTopic = common.HexToHash("0x01")
	cfg.Contracts = ContractsConfig{
		LendingPool:  common.HexToAddress("0x01"),
		PriceRouter:  common.HexToAddress("0x02"),
		Liquidator:   common.HexToAddress("0x03"),
		Simulator:    common.HexToAddress("0x04"),
		Multicall3:   common.HexToAddress("0x05"),
		Api3Server:   common.HexToAddress("0x06"),
		OevProxy:     common.HexToAddress("0x07"),
		AuctionHouse: common.HexToAddress("0x08"),
		FeedAsset:    common.HexToAddress("0x09"),
		DapiName:     "ETH/USD",
		EthMarkets:   []common.Address{common.HexToAddress("0x09")},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing key", func(c *Config) { c.Wallet.PrivateKey = "" }, "private_key"},
		{"missing target rpc", func(c *Config) { c.TargetChain.RPCURL = "" }, "target_chain"},
		{"missing auction rpc", func(c *Config) { c.Auction.Chain.RPCURL = "" }, "auction.chain"},
		{"zero address", func(c *Config) { c.Contracts.Simulator = common.Address{} }, "simulator"},
		{"no eth markets", func(c *Config) { c.Contracts.EthMarkets = nil }, "eth_markets"},
		{"identity transmutation", func(c *Config) { c.Strategy.TransmutationPercent = 100 }, "transmutation_percent"},
		{"bid percent zero", func(c *Config) { c.Strategy.BidPercentOfProfit = 0 }, "bid_percent_of_profit"},
		{"bid percent over 100", func(c *Config) { c.Strategy.BidPercentOfProfit = 100.1 }, "bid_percent_of_profit"},
		{"chunk too large", func(c *Config) { c.Strategy.ScanChunkSize = 501 }, "scan_chunk_size"},
		{"chunk zero", func(c *Config) { c.Strategy.ScanChunkSize = 0 }, "scan_chunk_size"},
		{"watch list chunk zero", func(c *Config) { c.WatchList.ChunkSize = 0 }, "chunk_size"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"persist without path", func(c *Config) { c.WatchList.Path = "" }, "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEndpoints(t *testing.T) {
	c := ChainConfig{RPCURL: "https://rpc.example/v2/", APIKey: "secret", FallbackRPCURL: "https://fallback.example"}
	got := c.Endpoints()
	if len(got) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(got))
	}
	if got[0] != "https://rpc.example/v2/secret" {
		t.Errorf("primary = %s, want https://rpc.example/v2/secret", got[0])
	}
	if got[1] != "https://fallback.example" {
		t.Errorf("fallback = %s", got[1])
	}

	if got := (ChainConfig{RPCURL: "https://only"}).Endpoints(); len(got) != 1 || got[0] != "https://only" {
		t.Errorf("Endpoints() = %v, want [https://only]", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeker.toml")
	content := `
environment = "staging"

[strategy]
transmutation_percent = 99.8
bid_expiration = "45m"

[contracts]
lending_pool = "0x00000000000000000000000000000000000000aa"
eth_markets = ["0x00000000000000000000000000000000000000bb"]

[watch_list]
min_borrow_usd = 50.0
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OEV_MIN_BORROW_USD", "250")
	t.Setenv("OEV_PERSIST_WATCHLIST", "false")
	t.Setenv("OEV_TARGET_RPC_URL", "https://env.example")
	t.Setenv("OEV_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("Environment = %s, want staging", cfg.Environment)
	}
	if cfg.Strategy.TransmutationPercent != 99.8 {
		t.Errorf("TransmutationPercent = %v, want 99.8", cfg.Strategy.TransmutationPercent)
	}
	if cfg.Strategy.BidExpiration != 45*time.Minute {
		t.Errorf("BidExpiration = %s, want 45m", cfg.Strategy.BidExpiration)
	}
	if cfg.Strategy.FulfillmentDelay != 5*time.Minute {
		t.Errorf("FulfillmentDelay = %s, want default 5m", cfg.Strategy.FulfillmentDelay)
	}
	if cfg.Contracts.LendingPool != common.HexToAddress("0xaa") {
		t.Errorf("LendingPool = %s", cfg.Contracts.LendingPool)
	}
	if len(cfg.Contracts.EthMarkets) != 1 || cfg.Contracts.EthMarkets[0] != common.HexToAddress("0xbb") {
		t.Errorf("EthMarkets = %v", cfg.Contracts.EthMarkets)
	}
	if cfg.WatchList.MinBorrowUSD != 250 {
		t.Errorf("MinBorrowUSD = %v, want env override 250", cfg.WatchList.MinBorrowUSD)
	}
	if cfg.WatchList.Persist {
		t.Error("Persist = true, want env override false")
	}
	if cfg.TargetChain.RPCURL != "https://env.example" {
		t.Errorf("RPCURL = %s", cfg.TargetChain.RPCURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Strategy.ScanChunkSize != 500 {
		t.Errorf("ScanChunkSize = %d, want default 500", cfg.Strategy.ScanChunkSize)
	}
	if cfg.WatchList.ChunkSize != 250 {
		t.Errorf("WatchList.ChunkSize = %d, want default 250", cfg.WatchList.ChunkSize)
	}
}

func TestIsProduction(t *testing.T) {
	cfg := Defaults()
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
	cfg.Environment = "Production"
	if !cfg.IsProduction() {
		t.Error("expected production")
	}
}
