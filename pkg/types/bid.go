package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BidCondition mirrors the auction house condition enum
type BidCondition uint8

const (
	ConditionLTE BidCondition = iota
	ConditionGTE
)

func (c BidCondition) String() string {
	switch c {
	case ConditionLTE:
		return "LTE"
	case ConditionGTE:
		return "GTE"
	default:
		return "unknown"
	}
}

// Satisfied reports whether an oracle value of v triggers the condition
// against threshold.
func (c BidCondition) Satisfied(v, threshold *big.Int) bool {
	switch c {
	case ConditionGTE:
		return v.Cmp(threshold) >= 0
	case ConditionLTE:
		return v.Cmp(threshold) <= 0
	default:
		return false
	}
}

// BidStatus is the locally reconstructed state of a bid
type BidStatus int

const (
	BidActive BidStatus = iota
	BidAwarded
	BidLost
	BidExpired
)

func (s BidStatus) String() string {
	switch s {
	case BidActive:
		return "active"
	case BidAwarded:
		return "awarded"
	case BidLost:
		return "lost"
	case BidExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible
func (s BidStatus) Terminal() bool {
	return s != BidActive
}

// BidDetails is the decoded form of the encoded bid details blob
type BidDetails struct {
	ProxyAddress        common.Address
	ConditionType       BidCondition
	ConditionValue      *big.Int
	UpdateSenderAddress common.Address
	Nonce               common.Hash
}

// BidRecord is one bid as replayed from auction network logs
type BidRecord struct {
	ID           common.Hash
	Topic        common.Hash
	Amount       *big.Int
	Details      BidDetails
	DetailsHash  common.Hash
	Expiration   time.Time
	Status       BidStatus
	AwardDetails []byte
	AwardedValue *big.Int
}

// ActiveBid is the single in-flight bid the seeker is waiting on
type ActiveBid struct {
	ID          common.Hash
	Topic       common.Hash
	Amount      *big.Int
	Details     BidDetails
	DetailsHash common.Hash
	Expiration  time.Time
	PlacedAt    time.Time
	TxHash      common.Hash
	Opportunity Opportunity
}

// Award carries what the executor needs to act on an awarded bid
type Award struct {
	BidID        common.Hash
	AwardDetails []byte
	Value        *big.Int
}
