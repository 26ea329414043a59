package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders an 18-decimal fixed point amount for logs
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -18).String()
}

// ParseUnits converts a human amount (e.g. 1.5 USD) to 18-decimal fixed
// point, truncating anything past the 18th decimal.
func ParseUnits(amount float64) *big.Int {
	return decimal.NewFromFloat(amount).Shift(18).BigInt()
}
