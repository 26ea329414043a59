// Package seeker runs the decision loop: with a bid in flight it waits for
// the auction outcome and liquidates on award, otherwise it scans for the
// next opportunity and bids on it. Watch list refresh and persistence run
// beside it.
package seeker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/auction"
	"github.com/mev-protocol/oev-seeker/internal/executor"
	"github.com/mev-protocol/oev-seeker/internal/metrics"
	"github.com/mev-protocol/oev-seeker/internal/pkg/retry"
	"github.com/mev-protocol/oev-seeker/internal/scanner"
	"github.com/mev-protocol/oev-seeker/internal/store"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

// Scanner finds the best opportunity among accounts
type Scanner interface {
	FindBest(ctx context.Context, accounts []common.Address) (scanner.Result, error)
}

// Bidder places and resolves bids
type Bidder interface {
	Place(ctx context.Context, opp types.Opportunity) (types.ActiveBid, error)
	Status(bid types.ActiveBid) (types.BidStatus, *types.Award, error)
	ExpediteStale(ctx context.Context) int
}

// LogSyncer refreshes the auction log cache
type LogSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// Executor acts on awards
type Executor interface {
	Execute(ctx context.Context, bid types.ActiveBid, award types.Award) (common.Hash, error)
	Stop()
}

// WatchList grows the candidate set
type WatchList interface {
	Backfill(ctx context.Context) (int, error)
	Refresh(ctx context.Context) (int, error)
}

// OracleReader reports the price oracle the lending pool consults
type OracleReader interface {
	Oracle(ctx context.Context) (common.Address, error)
}

type Config struct {
	LoopInterval    time.Duration
	RefreshInterval time.Duration
	CallTimeout     time.Duration
	Retry           retry.Config

	Persist         bool
	PersistInterval time.Duration
	WatchListPath   string
	// LoadPersisted seeds the watch list from WatchListPath at bootstrap
	LoadPersisted bool

	PriceRouter common.Address
}

// Components the seeker drives. Oracle is optional.
type Components struct {
	Store     *store.Store
	Scanner   Scanner
	Bids      Bidder
	Logs      LogSyncer
	Executor  Executor
	WatchList WatchList
	Oracle    OracleReader
	Metrics   *metrics.Metrics
}

type Seeker struct {
	config Config
	Components

	now func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ready   atomic.Bool
}

func New(cfg Config, c Components) *Seeker {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = 5 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = 5 * time.Minute
	}
	return &Seeker{config: cfg, Components: c, now: time.Now}
}

// AttemptLiquidation resolves the active bid. An expired bid is dropped
// without consulting the auction. On award the slot is freed before the
// liquidation is executed.
func (s *Seeker) AttemptLiquidation(ctx context.Context) error {
	bid := s.Store.ActiveBid()
	if bid == nil {
		return nil
	}

	if !s.now().Before(bid.Expiration) {
		s.Store.ClearActiveBid(bid.ID)
		s.Metrics.Bids.WithLabelValues(metrics.BidExpired).Inc()
		log.Info().Str("bidId", bid.ID.Hex()).Time("expiration", bid.Expiration).Msg("Bid expired")
		return nil
	}

	if err := s.bounded(ctx, s.syncLogs); err != nil {
		return err
	}
	status, award, err := s.Bids.Status(*bid)
	if err != nil {
		return err
	}

	if !status.Terminal() {
		log.Debug().Str("bidId", bid.ID.Hex()).Msg("Bid pending")
		return nil
	}
	if status != types.BidAwarded {
		s.Store.ClearActiveBid(bid.ID)
		label := metrics.BidLost
		if status == types.BidExpired {
			label = metrics.BidExpired
		}
		s.Metrics.Bids.WithLabelValues(label).Inc()
		log.Info().Str("bidId", bid.ID.Hex()).Str("status", status.String()).Msg("Bid closed")
		return nil
	}

	if award == nil {
		return fmt.Errorf("bid %s: status %s without award", bid.ID.Hex(), status)
	}
	s.Store.ClearActiveBid(bid.ID)
	s.Metrics.Bids.WithLabelValues(metrics.BidAwarded).Inc()
	log.Info().
		Str("bidId", bid.ID.Hex()).
		Str("awardedValue", award.Value.String()).
		Str("borrower", bid.Opportunity.Liquidation.Borrower.Hex()).
		Msg("Bid awarded")

	txHash, err := s.Executor.Execute(ctx, *bid, *award)
	switch {
	case errors.Is(err, executor.ErrStaleOpportunity):
		s.Metrics.Liquidations.WithLabelValues(metrics.LiquidationStale).Inc()
		log.Warn().Err(err).Str("bidId", bid.ID.Hex()).Msg("Liquidation aborted")
		return nil
	case err != nil:
		s.Metrics.Liquidations.WithLabelValues(metrics.LiquidationFailed).Inc()
		log.Error().Err(err).Str("bidId", bid.ID.Hex()).Msg("Liquidation failed")
		return nil
	}
	s.Metrics.Liquidations.WithLabelValues(metrics.LiquidationExecuted).Inc()
	log.Info().Str("bidId", bid.ID.Hex()).Str("txHash", txHash.Hex()).Msg("Award used")
	return nil
}

// FindOevLiquidation scans the watch list and bids on the best
// opportunity. Does nothing while a bid is active.
func (s *Seeker) FindOevLiquidation(ctx context.Context) error {
	if s.Store.ActiveBid() != nil {
		return nil
	}
	accounts := s.Store.Snapshot().WatchList.Accounts

	var result scanner.Result
	start := time.Now()
	err := s.bounded(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.Scanner.FindBest(ctx, accounts)
		return err
	})
	s.Metrics.ScanCycles.Inc()
	s.Metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if result.Reverted {
		s.Metrics.SimulationReverts.Inc()
		return nil
	}
	if result.Opportunity == nil {
		log.Debug().Int("scanned", result.Scanned).Int("shortfalls", result.Shortfalls).Msg("No opportunity")
		return nil
	}
	s.Metrics.Opportunities.Inc()

	opp := *result.Opportunity
	log.Info().
		Str("borrower", opp.Liquidation.Borrower.Hex()).
		Str("profitUsd", types.FormatUnits(opp.Profit.USD)).
		Str("profitNative", types.FormatUnits(opp.Profit.Native)).
		Str("shortfall", types.FormatUnits(opp.Shortfall)).
		Msg("Opportunity found")

	bid, err := s.Bids.Place(ctx, opp)
	switch {
	case errors.Is(err, auction.ErrZeroBid), errors.Is(err, auction.ErrBidActive):
		log.Warn().Err(err).Str("borrower", opp.Liquidation.Borrower.Hex()).Msg("Bid not placed")
		return nil
	case err != nil:
		return err
	}
	s.Metrics.Bids.WithLabelValues(metrics.BidPlaced).Inc()
	log.Debug().Str("bidId", bid.ID.Hex()).Msg("Waiting for auction")
	return nil
}

// Step runs one iteration of the attempt loop
func (s *Seeker) Step(ctx context.Context) error {
	if s.Store.ActiveBid() != nil {
		return s.AttemptLiquidation(ctx)
	}
	return s.FindOevLiquidation(ctx)
}

func (s *Seeker) syncLogs(ctx context.Context) error {
	size, err := s.Logs.Sync(ctx)
	if err != nil {
		return err
	}
	s.Metrics.AuctionLogEvents.Set(float64(size))
	return nil
}

func (s *Seeker) refresh(ctx context.Context) error {
	if _, err := s.WatchList.Refresh(ctx); err != nil {
		return err
	}
	s.Metrics.WatchedAccounts.Set(float64(len(s.Store.Snapshot().WatchList.Accounts)))
	return nil
}

// bounded runs fn under CallTimeout
func (s *Seeker) bounded(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.config.CallTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()
	return fn(ctx)
}

// Ready reports whether bootstrap completed
func (s *Seeker) Ready() bool {
	return s.ready.Load()
}

// Status summarises the store for the ops endpoint
func (s *Seeker) Status() metrics.Status {
	snap := s.Store.Snapshot()
	st := metrics.Status{
		Ready:           s.Ready(),
		WatchedAccounts: len(snap.WatchList.Accounts),
		WatchListBlock:  snap.WatchList.LastBlock,
		AuctionEvents:   len(snap.AuctionLogs.Events),
		AuctionBlock:    snap.AuctionLogs.LastBlock,
	}
	if b := snap.ActiveBid; b != nil {
		st.ActiveBid = &metrics.BidStatus{
			ID:         b.ID.Hex(),
			Amount:     types.FormatUnits(b.Amount),
			Borrower:   b.Opportunity.Liquidation.Borrower.Hex(),
			Expiration: b.Expiration,
		}
	}
	return st
}
