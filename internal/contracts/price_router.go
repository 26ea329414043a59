package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const priceRouterJSON = `[
	{"type":"function","name":"getUnderlyingPrice","stateMutability":"view",
	 "inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var priceRouterABI = mustParseABI(priceRouterJSON)

// PriceRouter returns 18-decimal prices per market
type PriceRouter struct {
	Address common.Address
}

func (r PriceRouter) GetUnderlyingPrice(asset common.Address) Call {
	return Call{Target: r.Address, Data: mustPack(priceRouterABI, "getUnderlyingPrice", asset)}
}

func DecodeUnderlyingPrice(data []byte) (*big.Int, error) {
	values, err := unpack(priceRouterABI, "getUnderlyingPrice", data, 1)
	if err != nil {
		return nil, err
	}
	return asBig(values[0], "price")
}
