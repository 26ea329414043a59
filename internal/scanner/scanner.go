// Package scanner finds the most profitable liquidation among watched
// accounts under a transmuted feed price.
package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/transmute"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

var mantissa = big.NewInt(1e18)

// Config for the scanner
type Config struct {
	DapiName                  string
	FeedAsset                 common.Address
	EthMarkets                []common.Address
	TransmutationPercent      float64
	MinProfitUSD              *big.Int
	MaxRepayCollateralPercent float64
	AllowSameAsset            bool
	ChunkSize                 int
}

// Simulator runs calls under a substituted feed value
type Simulator interface {
	Transmuted(ctx context.Context, dapiName string, value *big.Int, calls []contracts.Call) (transmute.Outcome, error)
}

// Chain is the plain read access the scanner needs
type Chain interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Params serves cached protocol parameters
type Params interface {
	Markets(ctx context.Context) ([]common.Address, error)
	CloseFactor(ctx context.Context) (*big.Int, error)
}

// Result summarises one scan cycle
type Result struct {
	Opportunity *types.Opportunity
	Scanned     int
	Shortfalls  int
	// Reverted is set when a simulation reverted and the cycle was abandoned
	Reverted bool
}

// Scanner ranks accounts by liquidation profit
type Scanner struct {
	config     Config
	sim        Simulator
	chain      Chain
	params     Params
	pool       contracts.LendingPool
	router     contracts.PriceRouter
	liquidator contracts.Liquidator
	ethMarkets map[common.Address]struct{}
}

func New(cfg Config, sim Simulator, chain Chain, params Params, pool contracts.LendingPool, router contracts.PriceRouter, liquidator contracts.Liquidator) *Scanner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	eth := make(map[common.Address]struct{}, len(cfg.EthMarkets))
	for _, m := range cfg.EthMarkets {
		eth[m] = struct{}{}
	}
	return &Scanner{
		config:     cfg,
		sim:        sim,
		chain:      chain,
		params:     params,
		pool:       pool,
		router:     router,
		liquidator: liquidator,
		ethMarkets: eth,
	}
}

// CurrentPrice reads the live feed price from the router
func (s *Scanner) CurrentPrice(ctx context.Context) (*big.Int, error) {
	call := s.router.GetUnderlyingPrice(s.config.FeedAsset)
	out, err := s.chain.CallContract(ctx, ethereum.CallMsg{To: &call.Target, Data: call.Data}, nil)
	if err != nil {
		return nil, fmt.Errorf("current price: %w", err)
	}
	return contracts.DecodeUnderlyingPrice(out)
}

// FindBest scans accounts and returns the highest-profit liquidation above
// the profit threshold. A simulation revert ends the cycle without an
// opportunity and without an error.
func (s *Scanner) FindBest(ctx context.Context, accounts []common.Address) (Result, error) {
	result := Result{Scanned: len(accounts)}
	if len(accounts) == 0 {
		return result, nil
	}

	current, err := s.CurrentPrice(ctx)
	if err != nil {
		return result, err
	}
	value := transmute.PercentageValue(current, s.config.TransmutationPercent)

	liquidities, reverted, err := s.accountLiquidities(ctx, value, accounts)
	if err != nil || reverted {
		result.Reverted = reverted
		return result, err
	}
	ranked := RankShortfalls(liquidities)
	result.Shortfalls = len(ranked)
	if len(ranked) == 0 {
		return result, nil
	}

	log.Debug().
		Int("accounts", len(accounts)).
		Int("shortfalls", len(ranked)).
		Str("price", current.String()).
		Str("transmuted", value.String()).
		Msg("Shortfall accounts under transmuted price")

	prices, reverted, err := s.marketPrices(ctx, value)
	if err != nil || reverted {
		result.Reverted = reverted
		return result, err
	}
	closeFactor, err := s.params.CloseFactor(ctx)
	if err != nil {
		return result, err
	}
	balance, err := s.chain.BalanceAt(ctx, s.liquidator.Address, nil)
	if err != nil {
		return result, fmt.Errorf("liquidator balance: %w", err)
	}

	var best *types.Opportunity
	for _, acct := range ranked {
		params, ok, reverted, err := s.plan(ctx, value, acct.Account, prices, closeFactor, balance)
		if err != nil {
			return result, err
		}
		if reverted {
			result.Reverted = true
			return result, nil
		}
		if !ok {
			continue
		}

		outcome, err := s.sim.Transmuted(ctx, s.config.DapiName, value, []contracts.Call{s.liquidator.Liquidate(params)})
		if err != nil {
			return result, fmt.Errorf("simulate liquidation of %s: %w", acct.Account.Hex(), err)
		}
		if outcome.Reverted {
			log.Warn().
				Str("borrower", acct.Account.Hex()).
				Str("reason", outcome.Reason).
				Msg("Liquidation simulation reverted, abandoning cycle")
			result.Reverted = true
			return result, nil
		}
		profit, err := contracts.DecodeLiquidate(outcome.Returns[0])
		if err != nil {
			log.Warn().Err(err).Str("borrower", acct.Account.Hex()).Msg("Undecodable liquidation result")
			continue
		}
		if profit.USD.Cmp(s.config.MinProfitUSD) < 0 {
			log.Debug().
				Str("borrower", acct.Account.Hex()).
				Str("profitUsd", types.FormatUnits(profit.USD)).
				Msg("Liquidation below profit threshold")
			continue
		}
		if best == nil || profit.USD.Cmp(best.Profit.USD) > 0 {
			best = &types.Opportunity{
				Liquidation:        params,
				Profit:             profit,
				Shortfall:          acct.Shortfall,
				CurrentPrice:       current,
				TransmutationValue: value,
			}
		}
	}

	result.Opportunity = best
	return result, nil
}

func (s *Scanner) accountLiquidities(ctx context.Context, value *big.Int, accounts []common.Address) ([]types.AccountLiquidity, bool, error) {
	out := make([]types.AccountLiquidity, 0, len(accounts))
	for start := 0; start < len(accounts); start += s.config.ChunkSize {
		end := start + s.config.ChunkSize
		if end > len(accounts) {
			end = len(accounts)
		}
		chunk := accounts[start:end]

		calls := make([]contracts.Call, len(chunk))
		for i, a := range chunk {
			calls[i] = s.pool.GetAccountLiquidity(a)
		}
		outcome, err := s.sim.Transmuted(ctx, s.config.DapiName, value, calls)
		if err != nil {
			return nil, false, fmt.Errorf("account liquidity batch at %d: %w", start, err)
		}
		if outcome.Reverted {
			log.Warn().Int("offset", start).Str("reason", outcome.Reason).Msg("Account liquidity simulation reverted")
			return nil, true, nil
		}
		for i, ret := range outcome.Returns {
			liq, err := contracts.DecodeAccountLiquidity(chunk[i], ret)
			if err != nil {
				log.Warn().Err(err).Str("borrower", chunk[i].Hex()).Msg("Skipping account")
				continue
			}
			if liq.ErrorCode.Sign() != 0 {
				log.Warn().Str("borrower", chunk[i].Hex()).Str("code", liq.ErrorCode.String()).Msg("Lending pool error for account")
				continue
			}
			out = append(out, liq)
		}
	}
	return out, false, nil
}

func (s *Scanner) marketPrices(ctx context.Context, value *big.Int) (map[common.Address]*big.Int, bool, error) {
	markets, err := s.params.Markets(ctx)
	if err != nil {
		return nil, false, err
	}
	calls := make([]contracts.Call, len(markets))
	for i, m := range markets {
		calls[i] = s.router.GetUnderlyingPrice(m)
	}
	outcome, err := s.sim.Transmuted(ctx, s.config.DapiName, value, calls)
	if err != nil {
		return nil, false, fmt.Errorf("market prices: %w", err)
	}
	if outcome.Reverted {
		log.Warn().Str("reason", outcome.Reason).Msg("Market price simulation reverted")
		return nil, true, nil
	}
	prices := make(map[common.Address]*big.Int, len(markets))
	for i, ret := range outcome.Returns {
		p, err := contracts.DecodeUnderlyingPrice(ret)
		if err != nil {
			log.Warn().Err(err).Str("market", markets[i].Hex()).Msg("Undecodable market price")
			continue
		}
		prices[markets[i]] = p
	}
	return prices, false, nil
}

// plan picks the borrow and collateral legs for account and sizes the
// repayment. ok is false when the account cannot be liquidated through
// this feed. reverted is set when the details simulation reverted.
func (s *Scanner) plan(ctx context.Context, value *big.Int, account common.Address, prices map[common.Address]*big.Int, closeFactor, balance *big.Int) (_ types.LiquidationParams, ok, reverted bool, err error) {
	outcome, err := s.sim.Transmuted(ctx, s.config.DapiName, value, []contracts.Call{s.liquidator.GetAccountDetails(account)})
	if err != nil {
		return types.LiquidationParams{}, false, false, fmt.Errorf("account details of %s: %w", account.Hex(), err)
	}
	if outcome.Reverted {
		log.Warn().Str("borrower", account.Hex()).Str("reason", outcome.Reason).Msg("Account details simulation reverted, abandoning cycle")
		return types.LiquidationParams{}, false, true, nil
	}
	details, err := contracts.DecodeAccountDetails(outcome.Returns[0])
	if err != nil {
		log.Warn().Err(err).Str("borrower", account.Hex()).Msg("Skipping account")
		return types.LiquidationParams{}, false, false, nil
	}

	borrowAsset, borrow := s.largestEthBorrow(details)
	if borrow == nil {
		log.Debug().Str("borrower", account.Hex()).Msg("No ETH borrow")
		return types.LiquidationParams{}, false, false, nil
	}
	borrowPrice := prices[borrowAsset]
	if borrowPrice == nil || borrowPrice.Sign() == 0 {
		log.Warn().Str("borrower", account.Hex()).Str("market", borrowAsset.Hex()).Msg("Missing borrow market price")
		return types.LiquidationParams{}, false, false, nil
	}

	collateralAsset, collateralUSD := s.largestCollateral(details, borrowAsset, prices)
	if collateralUSD == nil {
		log.Debug().Str("borrower", account.Hex()).Msg("No usable collateral")
		return types.LiquidationParams{}, false, false, nil
	}

	closeShare := new(big.Int).Mul(borrow, closeFactor)
	closeShare.Quo(closeShare, mantissa)

	collateralShare := transmute.PercentageValue(collateralUSD, s.config.MaxRepayCollateralPercent)
	collateralShare.Mul(collateralShare, mantissa)
	collateralShare.Quo(collateralShare, borrowPrice)

	repay := MaxRepay(closeShare, balance, collateralShare)
	if repay.Sign() == 0 {
		log.Debug().Str("borrower", account.Hex()).Msg("Zero repay amount")
		return types.LiquidationParams{}, false, false, nil
	}

	return types.LiquidationParams{
		BorrowAsset:     borrowAsset,
		Borrower:        account,
		CollateralAsset: collateralAsset,
		RepayAmount:     repay,
	}, true, false, nil
}

// largestEthBorrow returns the ETH-denominated market with the largest
// borrow balance
func (s *Scanner) largestEthBorrow(d types.AccountDetails) (common.Address, *big.Int) {
	var asset common.Address
	var largest *big.Int
	for i, a := range d.Assets {
		if _, ok := s.ethMarkets[a]; !ok {
			continue
		}
		b := d.BorrowBalances[i]
		if b.Sign() == 0 {
			continue
		}
		if largest == nil || b.Cmp(largest) > 0 {
			asset, largest = a, b
		}
	}
	return asset, largest
}

// largestCollateral returns the collateral market with the largest USD
// value under the transmuted prices
func (s *Scanner) largestCollateral(d types.AccountDetails, borrowAsset common.Address, prices map[common.Address]*big.Int) (common.Address, *big.Int) {
	var asset common.Address
	var largest *big.Int
	for i, a := range d.Assets {
		if a == borrowAsset && !s.config.AllowSameAsset {
			continue
		}
		price := prices[a]
		if price == nil || d.CollateralBalances[i].Sign() == 0 {
			continue
		}
		usd := new(big.Int).Mul(d.CollateralBalances[i], price)
		usd.Quo(usd, mantissa)
		if largest == nil || usd.Cmp(largest) > 0 {
			asset, largest = a, usd
		}
	}
	return asset, largest
}

// RankShortfalls drops accounts without shortfall and orders the rest by
// shortfall, largest first. Equal shortfalls keep their input order.
func RankShortfalls(accounts []types.AccountLiquidity) []types.AccountLiquidity {
	out := make([]types.AccountLiquidity, 0, len(accounts))
	for _, a := range accounts {
		if a.Shortfall != nil && a.Shortfall.Sign() > 0 {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Shortfall.Cmp(out[j].Shortfall) > 0
	})
	return out
}

// MaxRepay is the smallest of the close factor share, the liquidator's
// balance and the buffered collateral share
func MaxRepay(closeFactorShare, liquidatorBalance, collateralShare *big.Int) *big.Int {
	out := closeFactorShare
	for _, v := range []*big.Int{liquidatorBalance, collateralShare} {
		if v.Cmp(out) < 0 {
			out = v
		}
	}
	return new(big.Int).Set(out)
}
