package auction

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

// AwardedValue extracts the feed value the awarded update will write
func AwardedValue(awardDetails []byte) (*big.Int, error) {
	update, err := contracts.DecodeOevUpdate(awardDetails)
	if err != nil {
		return nil, err
	}
	return update.Value, nil
}

// Reconstruct replays auction events in chain order and returns every bid
// they mention keyed by ID. An award marks the winner awarded and every
// other active bid on the topic whose condition the awarded value meets as
// lost. Bids still active within window of now come back expired. The
// input is not modified.
func Reconstruct(events []types.AuctionEvent, now time.Time, window time.Duration) map[common.Hash]types.BidRecord {
	ordered := make([]types.AuctionEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	bids := make(map[common.Hash]types.BidRecord)
	for _, e := range ordered {
		switch e.Kind {
		case types.PlacedBid:
			details, err := contracts.DecodeBidDetails(e.BidDetails)
			if err != nil {
				log.Warn().Err(err).Str("bidId", e.BidID.Hex()).Msg("Ignoring bid with undecodable details")
				continue
			}
			bids[e.BidID] = types.BidRecord{
				ID:          e.BidID,
				Topic:       e.BidTopic,
				Amount:      e.BidAmount,
				Details:     details,
				DetailsHash: DetailsHash(e.BidDetails),
				Expiration:  e.Expiration,
				Status:      types.BidActive,
			}

		case types.AwardedBid:
			value, err := AwardedValue(e.AwardDetails)
			if err != nil {
				log.Warn().Err(err).Str("bidId", e.BidID.Hex()).Msg("Undecodable award details")
			}
			if rec, ok := bids[e.BidID]; ok {
				rec.Status = types.BidAwarded
				rec.AwardDetails = e.AwardDetails
				rec.AwardedValue = value
				bids[e.BidID] = rec
			}
			if value == nil {
				continue
			}
			for id, rec := range bids {
				if id == e.BidID || rec.Status != types.BidActive || rec.Topic != e.BidTopic {
					continue
				}
				if rec.Details.ConditionType.Satisfied(value, rec.Details.ConditionValue) {
					rec.Status = types.BidLost
					bids[id] = rec
				}
			}

		case types.ExpeditedBidExpiration:
			rec, ok := bids[e.BidID]
			if !ok || rec.Status != types.BidActive {
				continue
			}
			if e.Expiration.Before(rec.Expiration) {
				rec.Expiration = e.Expiration
				bids[e.BidID] = rec
			}
		}
	}

	deadline := now.Add(window)
	for id, rec := range bids {
		if rec.Status == types.BidActive && rec.Expiration.Before(deadline) {
			rec.Status = types.BidExpired
			bids[id] = rec
		}
	}
	return bids
}

// ActiveBids returns the records still active, oldest expiration first
func ActiveBids(records map[common.Hash]types.BidRecord) []types.BidRecord {
	var out []types.BidRecord
	for _, rec := range records {
		if rec.Status == types.BidActive {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Expiration.Equal(out[j].Expiration) {
			return out[i].Expiration.Before(out[j].Expiration)
		}
		return out[i].ID.Big().Cmp(out[j].ID.Big()) < 0
	})
	return out
}
