package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when empty) over the defaults,
// loads .env if present and applies OEV_* overrides. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Environment, "OEV_ENVIRONMENT")

	setStr(&cfg.Wallet.PrivateKey, "OEV_WALLET_PRIVATE_KEY")

	setStr(&cfg.TargetChain.RPCURL, "OEV_TARGET_RPC_URL")
	setStr(&cfg.TargetChain.APIKey, "OEV_TARGET_RPC_API_KEY")
	setStr(&cfg.TargetChain.FallbackRPCURL, "OEV_TARGET_FALLBACK_RPC_URL")
	setStr(&cfg.Auction.Chain.RPCURL, "OEV_AUCTION_RPC_URL")

	setFloat64(&cfg.WatchList.MinBorrowUSD, "OEV_MIN_BORROW_USD")
	setBool(&cfg.WatchList.Persist, "OEV_PERSIST_WATCHLIST")
	setStr(&cfg.WatchList.Path, "OEV_WATCHLIST_PATH")

	setStr(&cfg.Logging.Level, "OEV_LOG_LEVEL")
	setStr(&cfg.Logging.Format, "OEV_LOG_FORMAT")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
