package seeker

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/internal/scanner"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

type mockScanner struct {
	FindBestFn func(ctx context.Context, accounts []common.Address) (scanner.Result, error)
	calls      atomic.Int32
}

func (m *mockScanner) FindBest(ctx context.Context, accounts []common.Address) (scanner.Result, error) {
	m.calls.Add(1)
	if m.FindBestFn != nil {
		return m.FindBestFn(ctx, accounts)
	}
	return scanner.Result{Scanned: len(accounts)}, nil
}

type mockBidder struct {
	PlaceFn         func(ctx context.Context, opp types.Opportunity) (types.ActiveBid, error)
	StatusFn        func(bid types.ActiveBid) (types.BidStatus, *types.Award, error)
	ExpediteStaleFn func(ctx context.Context) int

	placeCalls    atomic.Int32
	statusCalls   atomic.Int32
	expediteCalls atomic.Int32
}

func (m *mockBidder) Place(ctx context.Context, opp types.Opportunity) (types.ActiveBid, error) {
	m.placeCalls.Add(1)
	if m.PlaceFn != nil {
		return m.PlaceFn(ctx, opp)
	}
	return types.ActiveBid{}, nil
}

func (m *mockBidder) Status(bid types.ActiveBid) (types.BidStatus, *types.Award, error) {
	m.statusCalls.Add(1)
	if m.StatusFn != nil {
		return m.StatusFn(bid)
	}
	return types.BidActive, nil, nil
}

func (m *mockBidder) ExpediteStale(ctx context.Context) int {
	m.expediteCalls.Add(1)
	if m.ExpediteStaleFn != nil {
		return m.ExpediteStaleFn(ctx)
	}
	return 0
}

type mockLogs struct {
	SyncFn func(ctx context.Context) (int, error)
	calls  atomic.Int32
}

func (m *mockLogs) Sync(ctx context.Context) (int, error) {
	m.calls.Add(1)
	if m.SyncFn != nil {
		return m.SyncFn(ctx)
	}
	return 0, nil
}

type mockExecutor struct {
	ExecuteFn func(ctx context.Context, bid types.ActiveBid, award types.Award) (common.Hash, error)
	calls     atomic.Int32
	stopped   atomic.Bool
}

func (m *mockExecutor) Execute(ctx context.Context, bid types.ActiveBid, award types.Award) (common.Hash, error) {
	m.calls.Add(1)
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, bid, award)
	}
	return common.HexToHash("0x7e"), nil
}

func (m *mockExecutor) Stop() {
	m.stopped.Store(true)
}

type mockWatchList struct {
	BackfillFn func(ctx context.Context) (int, error)
	RefreshFn  func(ctx context.Context) (int, error)
	backfills  atomic.Int32
	refreshes  atomic.Int32
}

func (m *mockWatchList) Backfill(ctx context.Context) (int, error) {
	m.backfills.Add(1)
	if m.BackfillFn != nil {
		return m.BackfillFn(ctx)
	}
	return 0, nil
}

func (m *mockWatchList) Refresh(ctx context.Context) (int, error) {
	m.refreshes.Add(1)
	if m.RefreshFn != nil {
		return m.RefreshFn(ctx)
	}
	return 0, nil
}

type mockOracle struct {
	addr  common.Address
	calls atomic.Int32
}

func (m *mockOracle) Oracle(ctx context.Context) (common.Address, error) {
	m.calls.Add(1)
	return m.addr, nil
}
