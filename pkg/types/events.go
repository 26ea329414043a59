package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionEventKind enum
type AuctionEventKind int

const (
	PlacedBid AuctionEventKind = iota
	AwardedBid
	ExpeditedBidExpiration
)

func (k AuctionEventKind) String() string {
	switch k {
	case PlacedBid:
		return "PlacedBid"
	case AwardedBid:
		return "AwardedBid"
	case ExpeditedBidExpiration:
		return "ExpeditedBidExpiration"
	default:
		return "unknown"
	}
}

// AuctionEvent is a decoded auction house log scoped to our bidder and topic.
// Only the fields relevant to Kind are set.
type AuctionEvent struct {
	Kind        AuctionEventKind
	BidID       common.Hash
	BidTopic    common.Hash
	BlockNumber uint64
	LogIndex    uint
	Timestamp   time.Time

	// PlacedBid
	BidAmount  *big.Int
	BidDetails []byte

	// PlacedBid, ExpeditedBidExpiration
	Expiration time.Time

	// AwardedBid
	AwardDetails []byte
}

// Before orders events by chain position
func (e AuctionEvent) Before(o AuctionEvent) bool {
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	return e.LogIndex < o.LogIndex
}
