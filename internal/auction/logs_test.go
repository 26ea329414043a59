package auction

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mev-protocol/oev-seeker/internal/store"
	"github.com/mev-protocol/oev-seeker/internal/testutil"
	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

func auctionChain(t *testing.T, head uint64, logs []types.Log) *testutil.MockChain {
	chain := testutil.NewMockChain()
	chain.BlockNumberFn = func(context.Context) (uint64, error) { return head, nil }
	chain.FilterLogsFn = func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
		if len(q.Addresses) != 1 || q.Addresses[0] != houseAddr {
			t.Errorf("addresses = %v, want auction house", q.Addresses)
		}
		var out []types.Log
		for _, l := range logs {
			if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
				out = append(out, l)
			}
		}
		return out, nil
	}
	chain.HeaderByNumberFn = func(ctx context.Context, n *big.Int) (*types.Header, error) {
		return &types.Header{Number: n, Time: uint64(baseTime.Unix()) + n.Uint64()}, nil
	}
	return chain
}

func newTestFetcher(chain *testutil.MockChain, st *store.Store, blockRange, lookback uint64) *LogFetcher {
	f := NewLogFetcher(LogConfig{
		AuctionHouse: houseAddr,
		Bidder:       testBidder,
		Topic:        testTopic,
		BlockRange:   blockRange,
		Lookback:     lookback,
		Retention:    25 * time.Hour,
	}, chain, st)
	f.now = func() time.Time { return baseTime }
	return f
}

func TestFetchPagesWindows(t *testing.T) {
	exp := baseTime.Add(30 * time.Minute)
	ev := placed(t, 0, seekertypes.ConditionGTE, 1, 1, exp)
	logs := []types.Log{
		testutil.PlacedBidLog(houseAddr, testBidder, testTopic, ev.BidID, ev.BidAmount, ev.BidDetails, exp, testutil.LogPosition{Block: 105}),
		testutil.AwardedBidLog(houseAddr, testBidder, testTopic, ev.BidID, testutil.AwardDetails(testProxy, big.NewInt(5)), testutil.LogPosition{Block: 105, Index: 1}),
		testutil.ExpeditedLog(houseAddr, testBidder, testTopic, ev.BidID, exp, testutil.LogPosition{Block: 131}),
	}
	chain := auctionChain(t, 140, logs)
	f := newTestFetcher(chain, store.New(), 10, 0)

	events, err := f.Fetch(context.Background(), 100, 135)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	wantRanges := [][2]uint64{{100, 109}, {110, 119}, {120, 129}, {130, 135}}
	if len(chain.FilterCalls) != len(wantRanges) {
		t.Fatalf("got %d FilterLogs calls, want %d", len(chain.FilterCalls), len(wantRanges))
	}
	for i, q := range chain.FilterCalls {
		if q.FromBlock.Uint64() != wantRanges[i][0] || q.ToBlock.Uint64() != wantRanges[i][1] {
			t.Errorf("window %d = %s-%s, want %v", i, q.FromBlock, q.ToBlock, wantRanges[i])
		}
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	kinds := []seekertypes.AuctionEventKind{seekertypes.PlacedBid, seekertypes.AwardedBid, seekertypes.ExpeditedBidExpiration}
	for i, e := range events {
		if e.Kind != kinds[i] {
			t.Errorf("event %d = %s, want %s", i, e.Kind, kinds[i])
		}
		if want := baseTime.Add(time.Duration(e.BlockNumber) * time.Second); !e.Timestamp.Equal(want) {
			t.Errorf("event %d timestamp = %s, want %s", i, e.Timestamp, want)
		}
		if e.BidID != ev.BidID {
			t.Errorf("event %d bid id = %s", i, e.BidID)
		}
	}
}

func TestSyncIncremental(t *testing.T) {
	exp := baseTime.Add(30 * time.Minute)
	ev := placed(t, 0, seekertypes.ConditionGTE, 1, 1, exp)
	logs := []types.Log{
		testutil.PlacedBidLog(houseAddr, testBidder, testTopic, ev.BidID, ev.BidAmount, ev.BidDetails, exp, testutil.LogPosition{Block: 950}),
	}
	chain := auctionChain(t, 1000, logs)
	st := store.New()
	f := newTestFetcher(chain, st, 5000, 100)

	size, err := f.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if size != 1 {
		t.Errorf("cache size = %d, want 1", size)
	}
	if from := chain.FilterCalls[0].FromBlock.Uint64(); from != 900 {
		t.Errorf("first sync from = %d, want head-lookback 900", from)
	}
	if last := st.Snapshot().AuctionLogs.LastBlock; last != 1000 {
		t.Errorf("LastBlock = %d, want 1000", last)
	}

	chain.BlockNumberFn = func(context.Context) (uint64, error) { return 1010, nil }
	if _, err := f.Sync(context.Background()); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if from := chain.FilterCalls[1].FromBlock.Uint64(); from != 1001 {
		t.Errorf("second sync from = %d, want 1001", from)
	}
	if n := len(st.Snapshot().AuctionLogs.Events); n != 1 {
		t.Errorf("cached %d events, want 1", n)
	}
}

func TestSyncPrunesOldEvents(t *testing.T) {
	st := store.New()
	old := placed(t, 5, seekertypes.ConditionGTE, 1, 1, baseTime)
	old.Timestamp = baseTime.Add(-26 * time.Hour)
	st.AppendAuctionEvents([]seekertypes.AuctionEvent{old}, 10, time.Time{})

	chain := auctionChain(t, 20, nil)
	f := newTestFetcher(chain, st, 100, 0)

	size, err := f.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if size != 0 {
		t.Errorf("cache size = %d, want 0 after pruning", size)
	}
}
