package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

const liquidatorJSON = `[
	{"type":"function","name":"getAccountDetails","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"assets","type":"address[]"},{"name":"borrowBalance","type":"uint256[]"},{"name":"collateralBalance","type":"uint256[]"}]},
	{"type":"function","name":"liquidate","stateMutability":"nonpayable",
	 "inputs":[{"name":"borrowAsset","type":"address"},{"name":"borrower","type":"address"},{"name":"collateralAsset","type":"address"},{"name":"repayAmount","type":"uint256"}],
	 "outputs":[{"name":"profitNative","type":"uint256"},{"name":"profitUsd","type":"uint256"}]}
]`

var liquidatorABI = mustParseABI(liquidatorJSON)

// Liquidator is the seeker's helper contract
type Liquidator struct {
	Address common.Address
}

func (l Liquidator) GetAccountDetails(account common.Address) Call {
	return Call{Target: l.Address, Data: mustPack(liquidatorABI, "getAccountDetails", account)}
}

func (l Liquidator) Liquidate(p seekertypes.LiquidationParams) Call {
	return Call{
		Target: l.Address,
		Data:   mustPack(liquidatorABI, "liquidate", p.BorrowAsset, p.Borrower, p.CollateralAsset, p.RepayAmount),
	}
}

func DecodeAccountDetails(data []byte) (seekertypes.AccountDetails, error) {
	values, err := unpack(liquidatorABI, "getAccountDetails", data, 3)
	if err != nil {
		return seekertypes.AccountDetails{}, err
	}
	assets, ok := values[0].([]common.Address)
	if !ok {
		return seekertypes.AccountDetails{}, fmt.Errorf("assets: unexpected type %T", values[0])
	}
	borrows, ok := values[1].([]*big.Int)
	if !ok {
		return seekertypes.AccountDetails{}, fmt.Errorf("borrowBalance: unexpected type %T", values[1])
	}
	collaterals, ok := values[2].([]*big.Int)
	if !ok {
		return seekertypes.AccountDetails{}, fmt.Errorf("collateralBalance: unexpected type %T", values[2])
	}
	if len(borrows) != len(assets) || len(collaterals) != len(assets) {
		return seekertypes.AccountDetails{}, fmt.Errorf("getAccountDetails: length mismatch assets=%d borrows=%d collaterals=%d",
			len(assets), len(borrows), len(collaterals))
	}
	return seekertypes.AccountDetails{
		Assets:             assets,
		BorrowBalances:     borrows,
		CollateralBalances: collaterals,
	}, nil
}

func DecodeLiquidate(data []byte) (seekertypes.LiquidationProfit, error) {
	values, err := unpack(liquidatorABI, "liquidate", data, 2)
	if err != nil {
		return seekertypes.LiquidationProfit{}, err
	}
	native, err := asBig(values[0], "profitNative")
	if err != nil {
		return seekertypes.LiquidationProfit{}, err
	}
	usd, err := asBig(values[1], "profitUsd")
	if err != nil {
		return seekertypes.LiquidationProfit{}, err
	}
	return seekertypes.LiquidationProfit{Native: native, USD: usd}, nil
}
