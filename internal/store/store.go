// Package store holds the seeker's process-wide state. Every write swaps in
// a new State value; readers always see a complete snapshot and slices in a
// published State are never modified in place.
package store

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/pkg/types"
)

// WatchList is the deduplicated candidate borrower set
type WatchList struct {
	Accounts  []common.Address
	LastBlock uint64
}

// AuctionLogs is the ordered cache of our own auction events
type AuctionLogs struct {
	Events    []types.AuctionEvent
	LastBlock uint64
}

// State is one immutable snapshot
type State struct {
	ActiveBid   *types.ActiveBid
	WatchList   WatchList
	AuctionLogs AuctionLogs
}

type Store struct {
	state atomic.Pointer[State]
}

func New() *Store {
	s := &Store{}
	s.state.Store(&State{})
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	return *s.state.Load()
}

// Update applies fn until it wins the swap and returns the state it
// published. fn may run more than once and must not have side effects.
func (s *Store) Update(fn func(State) State) State {
	for {
		old := s.state.Load()
		next := fn(*old)
		if s.state.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// ActiveBid returns the in-flight bid, if any
func (s *Store) ActiveBid() *types.ActiveBid {
	return s.state.Load().ActiveBid
}

// SetActiveBid installs bid unless another bid is already active
func (s *Store) SetActiveBid(bid types.ActiveBid) bool {
	installed := false
	s.Update(func(st State) State {
		installed = st.ActiveBid == nil
		if installed {
			b := bid
			st.ActiveBid = &b
		}
		return st
	})
	return installed
}

// ClearActiveBid frees the bid slot if it still holds id
func (s *Store) ClearActiveBid(id common.Hash) bool {
	cleared := false
	s.Update(func(st State) State {
		cleared = st.ActiveBid != nil && st.ActiveBid.ID == id
		if cleared {
			st.ActiveBid = nil
		}
		return st
	})
	return cleared
}

// AddAccounts merges accounts into the watch list and advances its last
// block. The block never moves backwards. Returns how many were new.
func (s *Store) AddAccounts(accounts []common.Address, lastBlock uint64) int {
	added := 0
	s.Update(func(st State) State {
		seen := make(map[common.Address]struct{}, len(st.WatchList.Accounts))
		for _, a := range st.WatchList.Accounts {
			seen[a] = struct{}{}
		}
		merged := make([]common.Address, len(st.WatchList.Accounts), len(st.WatchList.Accounts)+len(accounts))
		copy(merged, st.WatchList.Accounts)
		added = 0
		for _, a := range accounts {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			merged = append(merged, a)
			added++
		}
		st.WatchList = WatchList{Accounts: merged, LastBlock: maxBlock(st.WatchList.LastBlock, lastBlock)}
		return st
	})
	return added
}

// AppendAuctionEvents merges events into the log cache in chain order,
// dropping duplicates and anything stamped before cutoff.
func (s *Store) AppendAuctionEvents(events []types.AuctionEvent, lastBlock uint64, cutoff time.Time) int {
	size := 0
	s.Update(func(st State) State {
		type pos struct {
			block uint64
			index uint
		}
		seen := make(map[pos]struct{}, len(st.AuctionLogs.Events)+len(events))
		merged := make([]types.AuctionEvent, 0, len(st.AuctionLogs.Events)+len(events))
		for _, group := range [][]types.AuctionEvent{st.AuctionLogs.Events, events} {
			for _, e := range group {
				if e.Timestamp.Before(cutoff) {
					continue
				}
				p := pos{e.BlockNumber, e.LogIndex}
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				merged = append(merged, e)
			}
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
		size = len(merged)
		st.AuctionLogs = AuctionLogs{Events: merged, LastBlock: maxBlock(st.AuctionLogs.LastBlock, lastBlock)}
		return st
	})
	return size
}

func maxBlock(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
