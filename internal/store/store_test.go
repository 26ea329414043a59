package store

import (
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/pkg/types"
)

func TestActiveBidSlot(t *testing.T) {
	s := New()
	first := types.ActiveBid{ID: common.HexToHash("0x01")}
	second := types.ActiveBid{ID: common.HexToHash("0x02")}

	if !s.SetActiveBid(first) {
		t.Fatal("first bid should be installed")
	}
	if s.SetActiveBid(second) {
		t.Fatal("second bid must not replace an active bid")
	}
	if got := s.ActiveBid(); got == nil || got.ID != first.ID {
		t.Fatalf("ActiveBid() = %v, want %s", got, first.ID)
	}

	if s.ClearActiveBid(second.ID) {
		t.Error("clearing with a different id must not free the slot")
	}
	if !s.ClearActiveBid(first.ID) {
		t.Error("clearing the active id should free the slot")
	}
	if s.ActiveBid() != nil {
		t.Error("slot should be empty")
	}
}

func TestConcurrentSetActiveBid(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.SetActiveBid(types.ActiveBid{ID: common.BigToHash(big.NewInt(int64(i + 1)))}) {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("got %d installed bids, want exactly 1", got)
	}
}

func TestAddAccountsDedupes(t *testing.T) {
	s := New()
	a, b, c := common.HexToAddress("0x0a"), common.HexToAddress("0x0b"), common.HexToAddress("0x0c")

	if got := s.AddAccounts([]common.Address{a, b, a}, 100); got != 2 {
		t.Errorf("first add = %d, want 2", got)
	}
	before := s.Snapshot()

	if got := s.AddAccounts([]common.Address{b, c}, 90); got != 1 {
		t.Errorf("second add = %d, want 1", got)
	}

	wl := s.Snapshot().WatchList
	if len(wl.Accounts) != 3 {
		t.Errorf("got %d accounts, want 3", len(wl.Accounts))
	}
	if wl.LastBlock != 100 {
		t.Errorf("LastBlock = %d, want 100 (never moves backwards)", wl.LastBlock)
	}
	if len(before.WatchList.Accounts) != 2 {
		t.Errorf("earlier snapshot changed: %d accounts", len(before.WatchList.Accounts))
	}
}

func TestAppendAuctionEvents(t *testing.T) {
	s := New()
	now := time.Unix(1_700_000_000, 0)
	old := types.AuctionEvent{Kind: types.PlacedBid, BlockNumber: 1, Timestamp: now.Add(-26 * time.Hour)}
	e2 := types.AuctionEvent{Kind: types.PlacedBid, BlockNumber: 5, LogIndex: 1, Timestamp: now}
	e1 := types.AuctionEvent{Kind: types.AwardedBid, BlockNumber: 5, LogIndex: 0, Timestamp: now}
	e3 := types.AuctionEvent{Kind: types.ExpeditedBidExpiration, BlockNumber: 7, Timestamp: now}
	cutoff := now.Add(-25 * time.Hour)

	s.AppendAuctionEvents([]types.AuctionEvent{old, e2}, 6, cutoff)
	size := s.AppendAuctionEvents([]types.AuctionEvent{e3, e1, e2}, 8, cutoff)

	if size != 3 {
		t.Fatalf("cache size = %d, want 3", size)
	}
	logs := s.Snapshot().AuctionLogs
	if logs.LastBlock != 8 {
		t.Errorf("LastBlock = %d, want 8", logs.LastBlock)
	}
	want := []types.AuctionEventKind{types.AwardedBid, types.PlacedBid, types.ExpeditedBidExpiration}
	for i, e := range logs.Events {
		if e.Kind != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Kind, want[i])
		}
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(st State) State {
				st.WatchList.LastBlock++
				return st
			})
		}()
	}
	wg.Wait()

	if got := s.Snapshot().WatchList.LastBlock; got != 100 {
		t.Errorf("LastBlock = %d, want 100", got)
	}
}
