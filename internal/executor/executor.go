// Package executor acts on an awarded bid: it re-checks the liquidation
// under the awarded update, submits update and liquidation as one
// transaction and later reports fulfillment to the auction house.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/rpc"
	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

// ErrStaleOpportunity means the liquidation no longer pays under the
// awarded update
var ErrStaleOpportunity = errors.New("opportunity no longer profitable")

// Wallet is the target chain account that executes liquidations
type Wallet interface {
	Call(ctx context.Context, call contracts.Call, value *big.Int) ([]byte, error)
	Send(ctx context.Context, call contracts.Call, value *big.Int) (*types.Receipt, error)
}

// Reporter tells the auction house an award was used
type Reporter interface {
	ReportFulfillment(ctx context.Context, topic, detailsHash, txHash common.Hash) error
}

type Config struct {
	MinProfitUSD     *big.Int
	FulfillmentDelay time.Duration
	ReportTimeout    time.Duration
}

type Executor struct {
	config     Config
	wallet     Wallet
	reporter   Reporter
	multicall  contracts.Multicall3
	server     contracts.Api3Server
	liquidator contracts.Liquidator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnReport, if set, observes each fulfillment report outcome
	OnReport func(err error)
}

func New(cfg Config, wallet Wallet, reporter Reporter, multicall contracts.Multicall3, server contracts.Api3Server, liquidator contracts.Liquidator) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		config:     cfg,
		wallet:     wallet,
		reporter:   reporter,
		multicall:  multicall,
		server:     server,
		liquidator: liquidator,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Bundle is the aggregate3Value call applying the awarded update (paying
// the bid amount) and then liquidating. Neither leg may fail.
func (e *Executor) Bundle(bid seekertypes.ActiveBid, award seekertypes.Award) (contracts.Call, *big.Int) {
	return e.multicall.Aggregate3Value([]contracts.ValueCall{
		{Call: contracts.Call{Target: e.server.Address, Data: award.AwardDetails}, Value: bid.Amount},
		{Call: e.liquidator.Liquidate(bid.Opportunity.Liquidation)},
	})
}

// Verify simulates the bundle and returns the liquidation profit, or
// ErrStaleOpportunity if it reverts or pays less than the minimum.
func (e *Executor) Verify(ctx context.Context, bid seekertypes.ActiveBid, award seekertypes.Award) (seekertypes.LiquidationProfit, error) {
	call, value := e.Bundle(bid, award)
	out, err := e.wallet.Call(ctx, call, value)
	if err != nil {
		if rpc.IsRevert(err) {
			return seekertypes.LiquidationProfit{}, fmt.Errorf("%w: bundle reverts: %v", ErrStaleOpportunity, err)
		}
		return seekertypes.LiquidationProfit{}, fmt.Errorf("verify bundle: %w", err)
	}

	results, err := contracts.DecodeAggregate3Value(out)
	if err != nil {
		return seekertypes.LiquidationProfit{}, err
	}
	if len(results) != 2 {
		return seekertypes.LiquidationProfit{}, fmt.Errorf("verify bundle: got %d results, want 2", len(results))
	}
	profit, err := contracts.DecodeLiquidate(results[1].ReturnData)
	if err != nil {
		return seekertypes.LiquidationProfit{}, err
	}
	if profit.USD.Cmp(e.config.MinProfitUSD) < 0 {
		return profit, fmt.Errorf("%w: profit %s USD below %s", ErrStaleOpportunity,
			seekertypes.FormatUnits(profit.USD), seekertypes.FormatUnits(e.config.MinProfitUSD))
	}
	return profit, nil
}

// Execute verifies and submits the bundle for an awarded bid, then
// schedules the fulfillment report. Returns the liquidation tx hash.
func (e *Executor) Execute(ctx context.Context, bid seekertypes.ActiveBid, award seekertypes.Award) (common.Hash, error) {
	profit, err := e.Verify(ctx, bid, award)
	if err != nil {
		return common.Hash{}, err
	}

	call, value := e.Bundle(bid, award)
	receipt, err := e.wallet.Send(ctx, call, value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("liquidation bundle: %w", err)
	}

	log.Info().
		Str("bidId", bid.ID.Hex()).
		Str("borrower", bid.Opportunity.Liquidation.Borrower.Hex()).
		Str("repay", seekertypes.FormatUnits(bid.Opportunity.Liquidation.RepayAmount)).
		Str("profitNative", seekertypes.FormatUnits(profit.Native)).
		Str("profitUsd", seekertypes.FormatUnits(profit.USD)).
		Str("txHash", receipt.TxHash.Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("Liquidation executed")

	e.scheduleReport(bid, receipt.TxHash)
	return receipt.TxHash, nil
}

func (e *Executor) scheduleReport(bid seekertypes.ActiveBid, txHash common.Hash) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		timer := time.NewTimer(e.config.FulfillmentDelay)
		defer timer.Stop()
		select {
		case <-e.ctx.Done():
			log.Warn().Str("bidId", bid.ID.Hex()).Str("txHash", txHash.Hex()).Msg("Shutdown before fulfillment report")
			return
		case <-timer.C:
		}

		ctx := e.ctx
		if e.config.ReportTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(e.ctx, e.config.ReportTimeout)
			defer cancel()
		}
		err := e.reporter.ReportFulfillment(ctx, bid.Topic, bid.DetailsHash, txHash)
		if err != nil {
			log.Error().Err(err).Str("bidId", bid.ID.Hex()).Str("txHash", txHash.Hex()).Msg("Fulfillment report failed")
		}
		if e.OnReport != nil {
			e.OnReport(err)
		}
	}()
}

// wait blocks until scheduled reports have run
func (e *Executor) wait() {
	e.wg.Wait()
}

// Stop abandons pending reports and waits for their goroutines
func (e *Executor) Stop() {
	e.cancel()
	e.wg.Wait()
}
