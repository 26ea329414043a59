package contracts

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

const auctionHouseJSON = `[
	{"type":"function","name":"placeBidWithExpiration","stateMutability":"nonpayable",
	 "inputs":[{"name":"bidTopic","type":"bytes32"},{"name":"chainId","type":"uint256"},
	   {"name":"bidAmount","type":"uint256"},{"name":"bidDetails","type":"bytes"},
	   {"name":"maxCollateralAmount","type":"uint256"},{"name":"maxProtocolFeeAmount","type":"uint256"},
	   {"name":"expirationTimestamp","type":"uint32"}],
	 "outputs":[{"name":"collateralAmount","type":"uint104"},{"name":"protocolFeeAmount","type":"uint104"}]},
	{"type":"function","name":"expediteBidExpirationMaximally","stateMutability":"nonpayable",
	 "inputs":[{"name":"bidTopic","type":"bytes32"},{"name":"bidDetailsHash","type":"bytes32"}],
	 "outputs":[{"name":"expirationTimestamp","type":"uint32"}]},
	{"type":"function","name":"reportFulfillment","stateMutability":"nonpayable",
	 "inputs":[{"name":"bidTopic","type":"bytes32"},{"name":"bidDetailsHash","type":"bytes32"},
	   {"name":"fulfillmentDetails","type":"bytes"}],"outputs":[]},
	{"type":"event","name":"PlacedBid","anonymous":false,"inputs":[
	   {"name":"bidder","type":"address","indexed":true},
	   {"name":"bidTopic","type":"bytes32","indexed":true},
	   {"name":"bidId","type":"bytes32","indexed":true},
	   {"name":"chainId","type":"uint256","indexed":false},
	   {"name":"bidAmount","type":"uint256","indexed":false},
	   {"name":"bidDetails","type":"bytes","indexed":false},
	   {"name":"expirationTimestamp","type":"uint32","indexed":false},
	   {"name":"collateralAmount","type":"uint104","indexed":false},
	   {"name":"protocolFeeAmount","type":"uint104","indexed":false}]},
	{"type":"event","name":"AwardedBid","anonymous":false,"inputs":[
	   {"name":"bidder","type":"address","indexed":true},
	   {"name":"bidTopic","type":"bytes32","indexed":true},
	   {"name":"bidId","type":"bytes32","indexed":true},
	   {"name":"awardDetails","type":"bytes","indexed":false},
	   {"name":"bidderBalance","type":"uint256","indexed":false}]},
	{"type":"event","name":"ExpeditedBidExpiration","anonymous":false,"inputs":[
	   {"name":"bidder","type":"address","indexed":true},
	   {"name":"bidTopic","type":"bytes32","indexed":true},
	   {"name":"bidId","type":"bytes32","indexed":true},
	   {"name":"expirationTimestamp","type":"uint32","indexed":false}]}
]`

var auctionHouseABI = mustParseABI(auctionHouseJSON)

var (
	PlacedBidEventID              = auctionHouseABI.Events["PlacedBid"].ID
	AwardedBidEventID             = auctionHouseABI.Events["AwardedBid"].ID
	ExpeditedBidExpirationEventID = auctionHouseABI.Events["ExpeditedBidExpiration"].ID
)

var bidDetailsArgs = abi.Arguments{
	{Type: addressType},
	{Type: uint256Type},
	{Type: int224Type},
	{Type: addressType},
	{Type: bytes32Type},
}

// AuctionHouse lives on the auction network
type AuctionHouse struct {
	Address common.Address
}

// PlaceBid is the argument set of placeBidWithExpiration
type PlaceBid struct {
	Topic                common.Hash
	ChainID              *big.Int
	Amount               *big.Int
	Details              []byte
	MaxCollateralAmount  *big.Int
	MaxProtocolFeeAmount *big.Int
	Expiration           time.Time
}

func (h AuctionHouse) PlaceBidWithExpiration(p PlaceBid) Call {
	return Call{
		Target: h.Address,
		Data: mustPack(auctionHouseABI, "placeBidWithExpiration",
			[32]byte(p.Topic), p.ChainID, p.Amount, p.Details,
			p.MaxCollateralAmount, p.MaxProtocolFeeAmount, uint32(p.Expiration.Unix())),
	}
}

func (h AuctionHouse) ExpediteBidExpirationMaximally(topic, detailsHash common.Hash) Call {
	return Call{
		Target: h.Address,
		Data:   mustPack(auctionHouseABI, "expediteBidExpirationMaximally", [32]byte(topic), [32]byte(detailsHash)),
	}
}

func (h AuctionHouse) ReportFulfillment(topic, detailsHash common.Hash, proof []byte) Call {
	return Call{
		Target: h.Address,
		Data:   mustPack(auctionHouseABI, "reportFulfillment", [32]byte(topic), [32]byte(detailsHash), proof),
	}
}

// EncodeBidDetails produces the bid details blob the auction house stores
func EncodeBidDetails(d seekertypes.BidDetails) ([]byte, error) {
	return bidDetailsArgs.Pack(
		d.ProxyAddress,
		new(big.Int).SetUint64(uint64(d.ConditionType)),
		d.ConditionValue,
		d.UpdateSenderAddress,
		[32]byte(d.Nonce),
	)
}

func DecodeBidDetails(data []byte) (seekertypes.BidDetails, error) {
	values, err := bidDetailsArgs.Unpack(data)
	if err != nil {
		return seekertypes.BidDetails{}, fmt.Errorf("decode bid details: %w", err)
	}
	proxy, ok1 := values[0].(common.Address)
	cond, ok2 := values[1].(*big.Int)
	value, ok3 := values[2].(*big.Int)
	sender, ok4 := values[3].(common.Address)
	nonce, ok5 := values[4].([32]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return seekertypes.BidDetails{}, fmt.Errorf("decode bid details: unexpected value types")
	}
	if !cond.IsUint64() || cond.Uint64() > uint64(seekertypes.ConditionGTE) {
		return seekertypes.BidDetails{}, fmt.Errorf("decode bid details: unknown condition type %s", cond)
	}
	return seekertypes.BidDetails{
		ProxyAddress:        proxy,
		ConditionType:       seekertypes.BidCondition(cond.Uint64()),
		ConditionValue:      value,
		UpdateSenderAddress: sender,
		Nonce:               common.Hash(nonce),
	}, nil
}

// AuctionLogTopics filters auction house logs down to one bidder and topic
func AuctionLogTopics(bidder common.Address, topic common.Hash) [][]common.Hash {
	return [][]common.Hash{
		{PlacedBidEventID, AwardedBidEventID, ExpeditedBidExpirationEventID},
		{common.BytesToHash(bidder.Bytes())},
		{topic},
	}
}

// ParseAuctionLog decodes one auction house log. Timestamp is left for the
// caller to fill from the block header.
func ParseAuctionLog(l types.Log) (seekertypes.AuctionEvent, error) {
	if len(l.Topics) != 4 {
		return seekertypes.AuctionEvent{}, fmt.Errorf("auction log %s/%d: got %d topics, want 4", l.TxHash.Hex(), l.Index, len(l.Topics))
	}
	ev := seekertypes.AuctionEvent{
		BidTopic:    l.Topics[2],
		BidID:       l.Topics[3],
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}

	switch l.Topics[0] {
	case PlacedBidEventID:
		values, err := unpack(auctionHouseABI, "PlacedBid", l.Data, 6)
		if err != nil {
			return ev, err
		}
		amount, err := asBig(values[1], "bidAmount")
		if err != nil {
			return ev, err
		}
		details, ok := values[2].([]byte)
		if !ok {
			return ev, fmt.Errorf("bidDetails: unexpected type %T", values[2])
		}
		exp, ok := values[3].(uint32)
		if !ok {
			return ev, fmt.Errorf("expirationTimestamp: unexpected type %T", values[3])
		}
		ev.Kind = seekertypes.PlacedBid
		ev.BidAmount = amount
		ev.BidDetails = details
		ev.Expiration = time.Unix(int64(exp), 0)

	case AwardedBidEventID:
		values, err := unpack(auctionHouseABI, "AwardedBid", l.Data, 2)
		if err != nil {
			return ev, err
		}
		award, ok := values[0].([]byte)
		if !ok {
			return ev, fmt.Errorf("awardDetails: unexpected type %T", values[0])
		}
		ev.Kind = seekertypes.AwardedBid
		ev.AwardDetails = award

	case ExpeditedBidExpirationEventID:
		values, err := unpack(auctionHouseABI, "ExpeditedBidExpiration", l.Data, 1)
		if err != nil {
			return ev, err
		}
		exp, ok := values[0].(uint32)
		if !ok {
			return ev, fmt.Errorf("expirationTimestamp: unexpected type %T", values[0])
		}
		ev.Kind = seekertypes.ExpeditedBidExpiration
		ev.Expiration = time.Unix(int64(exp), 0)

	default:
		return ev, fmt.Errorf("auction log %s/%d: unknown event %s", l.TxHash.Hex(), l.Index, l.Topics[0].Hex())
	}

	return ev, nil
}
