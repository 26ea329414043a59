package auction

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/store"
	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

// LogReader is the auction network access the fetcher needs
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// LogConfig scopes and pages the auction log fetch
type LogConfig struct {
	AuctionHouse common.Address
	Bidder       common.Address
	Topic        common.Hash
	BlockRange   uint64
	Lookback     uint64
	Retention    time.Duration
}

// LogFetcher keeps the store's auction log cache current
type LogFetcher struct {
	config LogConfig
	chain  LogReader
	store  *store.Store
	now    func() time.Time
}

func NewLogFetcher(cfg LogConfig, chain LogReader, st *store.Store) *LogFetcher {
	if cfg.BlockRange == 0 {
		cfg.BlockRange = 5_000
	}
	return &LogFetcher{
		config: cfg,
		chain:  chain,
		store:  st,
		now:    time.Now,
	}
}

// Sync fetches every auction event since the cache's last block, stamps it
// with its block time and merges it into the store, pruning entries older
// than the retention window. The first sync starts Lookback blocks behind
// the head. Returns the cache size.
func (f *LogFetcher) Sync(ctx context.Context) (int, error) {
	head, err := f.chain.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("auction head: %w", err)
	}

	last := f.store.Snapshot().AuctionLogs.LastBlock
	from := last + 1
	if last == 0 {
		from = 0
		if head > f.config.Lookback {
			from = head - f.config.Lookback
		}
	}
	cutoff := f.now().Add(-f.config.Retention)
	if from > head {
		return f.store.AppendAuctionEvents(nil, head, cutoff), nil
	}

	events, err := f.Fetch(ctx, from, head)
	if err != nil {
		return 0, err
	}
	size := f.store.AppendAuctionEvents(events, head, cutoff)

	log.Debug().
		Uint64("from", from).
		Uint64("to", head).
		Int("new", len(events)).
		Int("cached", size).
		Msg("Auction logs synced")
	return size, nil
}

// Fetch returns our auction events in [from, to], paged by BlockRange
func (f *LogFetcher) Fetch(ctx context.Context, from, to uint64) ([]seekertypes.AuctionEvent, error) {
	topics := contracts.AuctionLogTopics(f.config.Bidder, f.config.Topic)
	stamps := make(map[uint64]time.Time)

	var events []seekertypes.AuctionEvent
	for start := from; start <= to; start += f.config.BlockRange {
		end := start + f.config.BlockRange - 1
		if end > to {
			end = to
		}
		logs, err := f.chain.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{f.config.AuctionHouse},
			Topics:    topics,
		})
		if err != nil {
			return nil, fmt.Errorf("auction logs %d-%d: %w", start, end, err)
		}

		for _, l := range logs {
			if l.Removed {
				continue
			}
			ev, err := contracts.ParseAuctionLog(l)
			if err != nil {
				log.Warn().Err(err).Uint64("block", l.BlockNumber).Msg("Skipping auction log")
				continue
			}
			ts, ok := stamps[l.BlockNumber]
			if !ok {
				header, err := f.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
				if err != nil {
					return nil, fmt.Errorf("header %d: %w", l.BlockNumber, err)
				}
				ts = time.Unix(int64(header.Time), 0)
				stamps[l.BlockNumber] = ts
			}
			ev.Timestamp = ts
			events = append(events, ev)
		}
	}
	return events, nil
}
