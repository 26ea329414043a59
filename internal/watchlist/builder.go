// Package watchlist maintains the candidate borrower set from lending
// market Borrow logs, keeping only accounts large enough and close enough
// to their liquidation threshold to be worth scanning.
package watchlist

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/store"
	"github.com/mev-protocol/oev-seeker/internal/transmute"
	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

var mantissa = big.NewInt(1e18)

// Config for the watch list builder
type Config struct {
	DeploymentBlock        uint64
	BlockRange             uint64
	ReorgBuffer            uint64
	EthMarkets             []common.Address
	MinBorrowUSD           *big.Int
	LiquidityMarginPercent float64
	ChunkSize              int
}

// Chain is the target chain access the builder needs
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Markets lists the pool's markets
type Markets interface {
	Markets(ctx context.Context) ([]common.Address, error)
}

// Contracts the health check reads through
type Contracts struct {
	Pool       contracts.LendingPool
	Router     contracts.PriceRouter
	Liquidator contracts.Liquidator
	Multicall  contracts.Multicall3
}

// Builder grows the store's watch list
type Builder struct {
	config     Config
	chain      Chain
	markets    Markets
	contracts  Contracts
	store      *store.Store
	ethMarkets map[common.Address]struct{}
}

func NewBuilder(cfg Config, chain Chain, markets Markets, c Contracts, st *store.Store) *Builder {
	if cfg.BlockRange == 0 {
		cfg.BlockRange = 10_000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 250
	}
	if cfg.MinBorrowUSD == nil {
		cfg.MinBorrowUSD = new(big.Int)
	}
	eth := make(map[common.Address]struct{}, len(cfg.EthMarkets))
	for _, m := range cfg.EthMarkets {
		eth[m] = struct{}{}
	}
	return &Builder{
		config:     cfg,
		chain:      chain,
		markets:    markets,
		contracts:  c,
		store:      st,
		ethMarkets: eth,
	}
}

// Backfill replays Borrow logs from the deployment block to the head.
// Returns the number of accounts added.
func (b *Builder) Backfill(ctx context.Context) (int, error) {
	return b.sync(ctx, b.config.DeploymentBlock)
}

// Refresh replays logs from the last scanned block, reaching back
// ReorgBuffer blocks so shallow reorganisations are picked up again.
func (b *Builder) Refresh(ctx context.Context) (int, error) {
	from := b.config.DeploymentBlock
	if last := b.store.Snapshot().WatchList.LastBlock; last > from {
		from = last
		if from-b.config.DeploymentBlock > b.config.ReorgBuffer {
			from -= b.config.ReorgBuffer
		} else {
			from = b.config.DeploymentBlock
		}
	}
	return b.sync(ctx, from)
}

func (b *Builder) sync(ctx context.Context, from uint64) (int, error) {
	head, err := b.chain.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("target head: %w", err)
	}
	if from > head {
		return 0, nil
	}

	borrowers, err := b.Borrowers(ctx, from, head)
	if err != nil {
		return 0, err
	}
	candidates := b.unknown(borrowers)
	keep, err := b.Filter(ctx, candidates)
	if err != nil {
		return 0, err
	}
	added := b.store.AddAccounts(keep, head)

	log.Info().
		Uint64("from", from).
		Uint64("to", head).
		Int("borrowers", len(borrowers)).
		Int("candidates", len(candidates)).
		Int("added", added).
		Int("watched", len(b.store.Snapshot().WatchList.Accounts)).
		Msg("Watch list synced")
	return added, nil
}

// Borrowers returns the distinct borrowers of every market in [from, to],
// in first-seen order, paged by BlockRange
func (b *Builder) Borrowers(ctx context.Context, from, to uint64) ([]common.Address, error) {
	markets, err := b.markets.Markets(ctx)
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, nil
	}

	seen := make(map[common.Address]struct{})
	var out []common.Address
	for start := from; start <= to; start += b.config.BlockRange {
		end := start + b.config.BlockRange - 1
		if end > to {
			end = to
		}
		logs, err := b.chain.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: markets,
			Topics:    [][]common.Hash{{contracts.BorrowEventID}},
		})
		if err != nil {
			return nil, fmt.Errorf("borrow logs %d-%d: %w", start, end, err)
		}
		for _, l := range logs {
			if l.Removed {
				continue
			}
			borrower, err := contracts.DecodeBorrowLog(l)
			if err != nil {
				log.Warn().Err(err).Uint64("block", l.BlockNumber).Msg("Skipping borrow log")
				continue
			}
			if _, ok := seen[borrower]; ok {
				continue
			}
			seen[borrower] = struct{}{}
			out = append(out, borrower)
		}
	}
	return out, nil
}

func (b *Builder) unknown(accounts []common.Address) []common.Address {
	watched := b.store.Snapshot().WatchList.Accounts
	known := make(map[common.Address]struct{}, len(watched))
	for _, a := range watched {
		known[a] = struct{}{}
	}
	out := make([]common.Address, 0, len(accounts))
	for _, a := range accounts {
		if _, ok := known[a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// Filter keeps the accounts whose position qualifies for watching, reading
// liquidity and balances in Multicall3 batches at live prices
func (b *Builder) Filter(ctx context.Context, accounts []common.Address) ([]common.Address, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	prices, err := b.prices(ctx)
	if err != nil {
		return nil, err
	}

	var keep []common.Address
	for start := 0; start < len(accounts); start += b.config.ChunkSize {
		end := start + b.config.ChunkSize
		if end > len(accounts) {
			end = len(accounts)
		}
		chunk := accounts[start:end]

		calls := make([]contracts.Call, 0, 2*len(chunk))
		for _, a := range chunk {
			calls = append(calls, b.contracts.Pool.GetAccountLiquidity(a), b.contracts.Liquidator.GetAccountDetails(a))
		}
		returns, err := b.aggregate(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("account health batch at %d: %w", start, err)
		}
		for i, a := range chunk {
			liq, err := contracts.DecodeAccountLiquidity(a, returns[2*i])
			if err != nil {
				log.Warn().Err(err).Str("borrower", a.Hex()).Msg("Skipping account")
				continue
			}
			details, err := contracts.DecodeAccountDetails(returns[2*i+1])
			if err != nil {
				log.Warn().Err(err).Str("borrower", a.Hex()).Msg("Skipping account")
				continue
			}
			if b.Qualifies(liq, details, prices) {
				keep = append(keep, a)
			}
		}
	}
	return keep, nil
}

// Qualifies reports whether an account borrows at least MinBorrowUSD from
// ETH markets and its liquidity is below LiquidityMarginPercent of its
// total borrow value. Accounts already in shortfall always qualify.
func (b *Builder) Qualifies(liq seekertypes.AccountLiquidity, d seekertypes.AccountDetails, prices map[common.Address]*big.Int) bool {
	if liq.ErrorCode != nil && liq.ErrorCode.Sign() != 0 {
		return false
	}
	ethBorrow, totalBorrow := new(big.Int), new(big.Int)
	for i, asset := range d.Assets {
		price := prices[asset]
		if price == nil || i >= len(d.BorrowBalances) {
			continue
		}
		usd := new(big.Int).Mul(d.BorrowBalances[i], price)
		usd.Quo(usd, mantissa)
		totalBorrow.Add(totalBorrow, usd)
		if _, ok := b.ethMarkets[asset]; ok {
			ethBorrow.Add(ethBorrow, usd)
		}
	}
	if ethBorrow.Sign() == 0 || ethBorrow.Cmp(b.config.MinBorrowUSD) < 0 {
		return false
	}
	if liq.Shortfall != nil && liq.Shortfall.Sign() > 0 {
		return true
	}
	margin := transmute.PercentageValue(totalBorrow, b.config.LiquidityMarginPercent)
	return liq.Liquidity.Cmp(margin) < 0
}

func (b *Builder) prices(ctx context.Context) (map[common.Address]*big.Int, error) {
	markets, err := b.markets.Markets(ctx)
	if err != nil {
		return nil, err
	}
	calls := make([]contracts.Call, len(markets))
	for i, m := range markets {
		calls[i] = b.contracts.Router.GetUnderlyingPrice(m)
	}
	returns, err := b.aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("market prices: %w", err)
	}
	prices := make(map[common.Address]*big.Int, len(markets))
	for i, ret := range returns {
		p, err := contracts.DecodeUnderlyingPrice(ret)
		if err != nil {
			log.Warn().Err(err).Str("market", markets[i].Hex()).Msg("Undecodable market price")
			continue
		}
		prices[markets[i]] = p
	}
	return prices, nil
}

func (b *Builder) aggregate(ctx context.Context, calls []contracts.Call) ([][]byte, error) {
	call := b.contracts.Multicall.Aggregate(calls)
	out, err := b.chain.CallContract(ctx, ethereum.CallMsg{To: &call.Target, Data: call.Data}, nil)
	if err != nil {
		return nil, err
	}
	_, returns, err := contracts.DecodeAggregate(out)
	if err != nil {
		return nil, err
	}
	if len(returns) != len(calls) {
		return nil, fmt.Errorf("aggregate: got %d results, want %d", len(returns), len(calls))
	}
	return returns, nil
}
