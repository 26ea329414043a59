package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountLiquidity is the lending pool's (error, liquidity, shortfall) view of an account
type AccountLiquidity struct {
	Account   common.Address
	ErrorCode *big.Int
	Liquidity *big.Int
	Shortfall *big.Int
}

// AccountDetails holds per-market balances reported by the liquidator helper
type AccountDetails struct {
	Assets             []common.Address
	BorrowBalances     []*big.Int
	CollateralBalances []*big.Int
}

// LiquidationParams are the arguments of a liquidator helper liquidate call
type LiquidationParams struct {
	BorrowAsset     common.Address
	Borrower        common.Address
	CollateralAsset common.Address
	RepayAmount     *big.Int
}

// LiquidationProfit is what a simulated liquidation returns
type LiquidationProfit struct {
	Native *big.Int
	USD    *big.Int
}

// Opportunity represents the best liquidation found in one scan cycle
type Opportunity struct {
	Liquidation        LiquidationParams
	Profit             LiquidationProfit
	Shortfall          *big.Int
	CurrentPrice       *big.Int
	TransmutationValue *big.Int
}

// Condition returns the bid condition that fires when the feed reaches the
// transmutation value from the current price.
func (o *Opportunity) Condition() BidCondition {
	if o.TransmutationValue.Cmp(o.CurrentPrice) >= 0 {
		return ConditionGTE
	}
	return ConditionLTE
}
