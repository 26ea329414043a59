package auction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/store"
	"github.com/mev-protocol/oev-seeker/internal/transmute"
	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

var (
	ErrBidActive    = errors.New("a bid is already active")
	ErrZeroBid      = errors.New("bid amount rounds to zero")
	ErrNoBidDetails = errors.New("award carries no decodable update")
)

// Sender submits transactions on the auction network
type Sender interface {
	Address() common.Address
	Send(ctx context.Context, call contracts.Call, value *big.Int) (*types.Receipt, error)
	Submit(ctx context.Context, call contracts.Call, value *big.Int) (*types.Transaction, error)
	Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Config for bid placement
type Config struct {
	Topic              common.Hash
	TargetChainID      *big.Int
	OevProxy           common.Address
	UpdateSender       common.Address
	BidPercentOfProfit float64
	BidExpiration      time.Duration
	SafetyWindow       time.Duration
}

// Manager owns the bid lifecycle. The store holds at most one active bid.
type Manager struct {
	config Config
	wallet Sender
	house  contracts.AuctionHouse
	store  *store.Store
	now    func() time.Time
}

func NewManager(cfg Config, wallet Sender, house contracts.AuctionHouse, st *store.Store) *Manager {
	return &Manager{
		config: cfg,
		wallet: wallet,
		house:  house,
		store:  st,
		now:    time.Now,
	}
}

// Place bids a share of the opportunity's native profit for the right to
// push the transmutation value, and records the bid as active.
func (m *Manager) Place(ctx context.Context, opp seekertypes.Opportunity) (seekertypes.ActiveBid, error) {
	if m.store.ActiveBid() != nil {
		return seekertypes.ActiveBid{}, ErrBidActive
	}

	amount := transmute.PercentageValue(opp.Profit.Native, m.config.BidPercentOfProfit)
	if amount.Sign() <= 0 {
		return seekertypes.ActiveBid{}, ErrZeroBid
	}
	nonce, err := NewNonce()
	if err != nil {
		return seekertypes.ActiveBid{}, err
	}

	details := seekertypes.BidDetails{
		ProxyAddress:        m.config.OevProxy,
		ConditionType:       opp.Condition(),
		ConditionValue:      opp.TransmutationValue,
		UpdateSenderAddress: m.config.UpdateSender,
		Nonce:               nonce,
	}
	encoded, err := contracts.EncodeBidDetails(details)
	if err != nil {
		return seekertypes.ActiveBid{}, fmt.Errorf("encode bid details: %w", err)
	}

	now := m.now()
	bid := seekertypes.ActiveBid{
		ID:          BidID(m.wallet.Address(), m.config.Topic, encoded),
		Topic:       m.config.Topic,
		Amount:      amount,
		Details:     details,
		DetailsHash: DetailsHash(encoded),
		Expiration:  now.Add(m.config.BidExpiration).Truncate(time.Second),
		PlacedAt:    now,
		Opportunity: opp,
	}

	tx, err := m.wallet.Submit(ctx, m.house.PlaceBidWithExpiration(contracts.PlaceBid{
		Topic:                m.config.Topic,
		ChainID:              m.config.TargetChainID,
		Amount:               amount,
		Details:              encoded,
		MaxCollateralAmount:  amount,
		MaxProtocolFeeAmount: amount,
		Expiration:           bid.Expiration,
	}), nil)
	if err != nil {
		return seekertypes.ActiveBid{}, fmt.Errorf("place bid %s: %w", bid.ID.Hex(), err)
	}
	bid.TxHash = tx.Hash()

	// The bid is live once broadcast, so it takes the slot before mining.
	if !m.store.SetActiveBid(bid) {
		log.Error().Str("bidId", bid.ID.Hex()).Msg("Bid placed while another became active")
		if err := m.Expedite(ctx, bid.Topic, bid.DetailsHash); err != nil {
			log.Warn().Err(err).Str("bidId", bid.ID.Hex()).Msg("Failed to expedite displaced bid")
		}
		return bid, ErrBidActive
	}

	receipt, err := m.wallet.Wait(ctx, tx)
	switch {
	case receipt != nil && receipt.Status != types.ReceiptStatusSuccessful:
		m.store.ClearActiveBid(bid.ID)
		return seekertypes.ActiveBid{}, fmt.Errorf("place bid %s: %w", bid.ID.Hex(), err)
	case err != nil:
		// Unconfirmed but possibly mined later. The slot stays taken until
		// the logs resolve the bid or it expires.
		log.Warn().
			Err(err).
			Str("bidId", bid.ID.Hex()).
			Str("txHash", bid.TxHash.Hex()).
			Time("expiration", bid.Expiration).
			Msg("Bid transaction unconfirmed, tracking until expiration")
		return bid, nil
	}

	log.Info().
		Str("bidId", bid.ID.Hex()).
		Str("amount", seekertypes.FormatUnits(amount)).
		Str("condition", details.ConditionType.String()).
		Str("threshold", details.ConditionValue.String()).
		Time("expiration", bid.Expiration).
		Str("borrower", opp.Liquidation.Borrower.Hex()).
		Str("txHash", receipt.TxHash.Hex()).
		Msg("Bid placed")
	return bid, nil
}

// Status resolves the active bid against the cached auction logs. An
// awarded bid comes with its award. A bid the logs do not mention yet is
// still active.
func (m *Manager) Status(bid seekertypes.ActiveBid) (seekertypes.BidStatus, *seekertypes.Award, error) {
	records := Reconstruct(m.store.Snapshot().AuctionLogs.Events, m.now(), m.config.SafetyWindow)
	rec, ok := records[bid.ID]
	if !ok {
		if !m.now().Before(bid.Expiration) {
			return seekertypes.BidExpired, nil, nil
		}
		return seekertypes.BidActive, nil, nil
	}
	if rec.Status != seekertypes.BidAwarded {
		return rec.Status, nil, nil
	}
	if len(rec.AwardDetails) == 0 || rec.AwardedValue == nil {
		return rec.Status, nil, fmt.Errorf("bid %s: %w", bid.ID.Hex(), ErrNoBidDetails)
	}
	return rec.Status, &seekertypes.Award{
		BidID:        rec.ID,
		AwardDetails: rec.AwardDetails,
		Value:        rec.AwardedValue,
	}, nil
}

// Expedite asks the auction house to expire a bid as soon as possible
func (m *Manager) Expedite(ctx context.Context, topic, detailsHash common.Hash) error {
	receipt, err := m.wallet.Send(ctx, m.house.ExpediteBidExpirationMaximally(topic, detailsHash), nil)
	if err != nil {
		return fmt.Errorf("expedite %s: %w", detailsHash.Hex(), err)
	}
	log.Info().Str("detailsHash", detailsHash.Hex()).Str("txHash", receipt.TxHash.Hex()).Msg("Bid expiration expedited")
	return nil
}

// ExpediteStale cancels every bid the logs still show as active. Failures
// are logged and skipped. Returns how many were expedited.
func (m *Manager) ExpediteStale(ctx context.Context) int {
	records := Reconstruct(m.store.Snapshot().AuctionLogs.Events, m.now(), 0)
	done := 0
	for _, rec := range ActiveBids(records) {
		if err := m.Expedite(ctx, rec.Topic, rec.DetailsHash); err != nil {
			log.Warn().Err(err).Str("bidId", rec.ID.Hex()).Msg("Failed to expedite stale bid")
			continue
		}
		done++
	}
	return done
}

// ReportFulfillment proves the awarded update was used by txHash
func (m *Manager) ReportFulfillment(ctx context.Context, topic, detailsHash, txHash common.Hash) error {
	proof := txHash.Bytes()
	receipt, err := m.wallet.Send(ctx, m.house.ReportFulfillment(topic, detailsHash, proof), nil)
	if err != nil {
		return fmt.Errorf("report fulfillment %s: %w", detailsHash.Hex(), err)
	}
	log.Info().
		Str("detailsHash", detailsHash.Hex()).
		Str("proof", hexutil.Encode(proof)).
		Str("txHash", receipt.TxHash.Hex()).
		Msg("Fulfillment reported")
	return nil
}
