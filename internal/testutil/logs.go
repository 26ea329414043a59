package testutil

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
)

// LogPosition places a log on chain
type LogPosition struct {
	Block uint64
	Index uint
}

func auctionLog(house common.Address, event common.Hash, bidder common.Address, topic, id common.Hash, pos LogPosition, data []byte) types.Log {
	return types.Log{
		Address:     house,
		Topics:      []common.Hash{event, common.BytesToHash(bidder.Bytes()), topic, id},
		Data:        data,
		BlockNumber: pos.Block,
		Index:       pos.Index,
	}
}

func must(data []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return data
}

// PlacedBidLog builds an auction house PlacedBid log
func PlacedBidLog(house, bidder common.Address, topic, id common.Hash, amount *big.Int, details []byte, expiration time.Time, pos LogPosition) types.Log {
	data := must(contracts.EncodeEventData(contracts.NameAuctionHouse, "PlacedBid",
		big.NewInt(1), amount, details, uint32(expiration.Unix()), amount, new(big.Int)))
	return auctionLog(house, contracts.PlacedBidEventID, bidder, topic, id, pos, data)
}

// AwardedBidLog builds an auction house AwardedBid log
func AwardedBidLog(house, bidder common.Address, topic, id common.Hash, awardDetails []byte, pos LogPosition) types.Log {
	data := must(contracts.EncodeEventData(contracts.NameAuctionHouse, "AwardedBid", awardDetails, new(big.Int)))
	return auctionLog(house, contracts.AwardedBidEventID, bidder, topic, id, pos, data)
}

// ExpeditedLog builds an auction house ExpeditedBidExpiration log
func ExpeditedLog(house, bidder common.Address, topic, id common.Hash, expiration time.Time, pos LogPosition) types.Log {
	data := must(contracts.EncodeEventData(contracts.NameAuctionHouse, "ExpeditedBidExpiration", uint32(expiration.Unix())))
	return auctionLog(house, contracts.ExpeditedBidExpirationEventID, bidder, topic, id, pos, data)
}

// BorrowLog builds a market Borrow log
func BorrowLog(market, borrower common.Address, amount *big.Int, pos LogPosition) types.Log {
	data := must(contracts.EncodeEventData(contracts.NameLendingPool, "Borrow", borrower, amount, amount, amount))
	return types.Log{
		Address:     market,
		Topics:      []common.Hash{contracts.BorrowEventID},
		Data:        data,
		BlockNumber: pos.Block,
		Index:       pos.Index,
	}
}

// AwardDetails encodes the OEV update calldata an award carries
func AwardDetails(proxy common.Address, value *big.Int) []byte {
	return must(contracts.EncodeOevUpdate(contracts.OevUpdate{
		OevProxy:   proxy,
		DataFeedID: common.HexToHash("0xfeed"),
		UpdateID:   common.HexToHash("0x0bad"),
		Timestamp:  big.NewInt(1_700_000_000),
		Value:      value,
		Signatures: [][]byte{{0x01}},
	}))
}
