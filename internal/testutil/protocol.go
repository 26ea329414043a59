package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

// FakeProtocol answers calls to the lending pool, price router, liquidator
// helper and price server. Inside a simulator or aggregator batch, a
// beacon or OEV update changes the feed price seen by later calls in the
// same batch.
type FakeProtocol struct {
	mu sync.Mutex

	Pool, Router, Liquidator, Simulator, Multicall3, Api3Server common.Address
	FeedAsset                                                   common.Address

	Markets     []common.Address
	Prices      map[common.Address]*big.Int
	CloseFactor *big.Int
	Oracle      common.Address

	// ShortfallFn returns the shortfall of account given the feed price in effect
	ShortfallFn func(account common.Address, feedPrice *big.Int) *big.Int
	Details     map[common.Address]types.AccountDetails
	// DetailsErr makes getAccountDetails revert for the accounts it errors on
	DetailsErr  func(account common.Address) error
	LiquidateFn func(p types.LiquidationParams, feedPrice *big.Int) (types.LiquidationProfit, error)

	DetailsCalls   []common.Address
	LiquidateCalls []types.LiquidationParams
}

func NewFakeProtocol() *FakeProtocol {
	return &FakeProtocol{
		Pool:        common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Router:      common.HexToAddress("0x1000000000000000000000000000000000000002"),
		Liquidator:  common.HexToAddress("0x1000000000000000000000000000000000000003"),
		Simulator:   common.HexToAddress("0x1000000000000000000000000000000000000004"),
		Multicall3:  common.HexToAddress("0x1000000000000000000000000000000000000005"),
		Api3Server:  common.HexToAddress("0x1000000000000000000000000000000000000006"),
		FeedAsset:   common.HexToAddress("0x2000000000000000000000000000000000000001"),
		Prices:      map[common.Address]*big.Int{},
		CloseFactor: big.NewInt(5e17),
		Details:     map[common.Address]types.AccountDetails{},
	}
}

// Install routes chain's eth_calls to the fake
func (f *FakeProtocol) Install(chain *MockChain) {
	chain.CallContractFn = f.CallContract
}

func (f *FakeProtocol) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	var feed *big.Int
	handle := func(target common.Address, call contracts.DecodedCall) ([]byte, error) {
		return f.answer(target, call, &feed)
	}

	switch *msg.To {
	case f.Simulator:
		return SimulatorReply(msg.Data, handle)
	case f.Multicall3:
		call, err := contracts.DecodeCalldata(msg.Data)
		if err != nil {
			return nil, err
		}
		if call.Method == "aggregate3Value" {
			return Aggregate3ValueReply(msg.Data, handle)
		}
		return AggregateReply(msg.Data, handle)
	default:
		call, err := contracts.DecodeCalldata(msg.Data)
		if err != nil {
			return nil, err
		}
		ret, err := handle(*msg.To, call)
		if err != nil {
			return nil, RevertError{Reason: err.Error()}
		}
		return ret, nil
	}
}

func (f *FakeProtocol) price(asset common.Address, feed *big.Int) *big.Int {
	if asset == f.FeedAsset && feed != nil {
		return feed
	}
	if p, ok := f.Prices[asset]; ok {
		return p
	}
	return new(big.Int)
}

func (f *FakeProtocol) answer(target common.Address, call contracts.DecodedCall, feed **big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch call.Method {
	case "setDapiName":
		return nil, nil
	case "updateBeaconWithSignedData":
		v, err := contracts.DecodeFeedValue(call.Args[3].([]byte))
		if err != nil {
			return nil, err
		}
		*feed = v
		return contracts.EncodeReturn(contracts.NameApi3Server, call.Method, [32]byte{})
	case "updateOevProxyDataFeedWithSignedData":
		v, err := contracts.DecodeFeedValue(call.Args[4].([]byte))
		if err != nil {
			return nil, err
		}
		*feed = v
		return nil, nil

	case "getUnderlyingPrice":
		return contracts.EncodeReturn(contracts.NamePriceRouter, call.Method, f.price(call.Args[0].(common.Address), *feed))
	case "getAllMarkets":
		return contracts.EncodeReturn(contracts.NameLendingPool, call.Method, f.Markets)
	case "closeFactorMantissa":
		return contracts.EncodeReturn(contracts.NameLendingPool, call.Method, f.CloseFactor)
	case "oracle":
		return contracts.EncodeReturn(contracts.NameLendingPool, call.Method, f.Oracle)
	case "getAccountLiquidity":
		account := call.Args[0].(common.Address)
		shortfall := new(big.Int)
		if f.ShortfallFn != nil {
			shortfall = f.ShortfallFn(account, f.price(f.FeedAsset, *feed))
		}
		liquidity := new(big.Int)
		if shortfall.Sign() == 0 {
			liquidity.SetInt64(1e18)
		}
		return contracts.EncodeReturn(contracts.NameLendingPool, call.Method, new(big.Int), liquidity, shortfall)
	case "getAccountDetails":
		account := call.Args[0].(common.Address)
		f.DetailsCalls = append(f.DetailsCalls, account)
		if f.DetailsErr != nil {
			if err := f.DetailsErr(account); err != nil {
				return nil, err
			}
		}
		d := f.Details[account]
		if d.Assets == nil {
			d = types.AccountDetails{Assets: []common.Address{}, BorrowBalances: []*big.Int{}, CollateralBalances: []*big.Int{}}
		}
		return contracts.EncodeReturn(contracts.NameLiquidator, call.Method, d.Assets, d.BorrowBalances, d.CollateralBalances)
	case "liquidate":
		p := types.LiquidationParams{
			BorrowAsset:     call.Args[0].(common.Address),
			Borrower:        call.Args[1].(common.Address),
			CollateralAsset: call.Args[2].(common.Address),
			RepayAmount:     call.Args[3].(*big.Int),
		}
		f.LiquidateCalls = append(f.LiquidateCalls, p)
		if f.LiquidateFn == nil {
			return nil, errors.New("liquidation not configured")
		}
		profit, err := f.LiquidateFn(p, f.price(f.FeedAsset, *feed))
		if err != nil {
			return nil, err
		}
		return contracts.EncodeReturn(contracts.NameLiquidator, call.Method, profit.Native, profit.USD)
	}
	return nil, fmt.Errorf("fake protocol: unexpected call %s.%s on %s", call.Contract, call.Method, target.Hex())
}
