package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	seekertypes "github.com/mev-protocol/oev-seeker/pkg/types"
)

const lendingPoolJSON = `[
	{"type":"function","name":"getAccountLiquidity","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
	{"type":"function","name":"closeFactorMantissa","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"oracle","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getAllMarkets","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"event","name":"Borrow","anonymous":false,"inputs":[
	 {"name":"borrower","type":"address","indexed":false},
	 {"name":"borrowAmount","type":"uint256","indexed":false},
	 {"name":"accountBorrows","type":"uint256","indexed":false},
	 {"name":"totalBorrows","type":"uint256","indexed":false}]}
]`

var lendingPoolABI = mustParseABI(lendingPoolJSON)

// BorrowEventID is the topic of the market Borrow event
var BorrowEventID = lendingPoolABI.Events["Borrow"].ID

// LendingPool is the protocol comptroller
type LendingPool struct {
	Address common.Address
}

func (p LendingPool) GetAccountLiquidity(account common.Address) Call {
	return Call{Target: p.Address, Data: mustPack(lendingPoolABI, "getAccountLiquidity", account)}
}

func (p LendingPool) CloseFactorMantissa() Call {
	return Call{Target: p.Address, Data: mustPack(lendingPoolABI, "closeFactorMantissa")}
}

func (p LendingPool) Oracle() Call {
	return Call{Target: p.Address, Data: mustPack(lendingPoolABI, "oracle")}
}

func (p LendingPool) GetAllMarkets() Call {
	return Call{Target: p.Address, Data: mustPack(lendingPoolABI, "getAllMarkets")}
}

// DecodeAccountLiquidity decodes getAccountLiquidity return data for account
func DecodeAccountLiquidity(account common.Address, data []byte) (seekertypes.AccountLiquidity, error) {
	values, err := unpack(lendingPoolABI, "getAccountLiquidity", data, 3)
	if err != nil {
		return seekertypes.AccountLiquidity{}, err
	}
	var out [3]*big.Int
	for i, name := range []string{"error", "liquidity", "shortfall"} {
		if out[i], err = asBig(values[i], name); err != nil {
			return seekertypes.AccountLiquidity{}, err
		}
	}
	return seekertypes.AccountLiquidity{
		Account:   account,
		ErrorCode: out[0],
		Liquidity: out[1],
		Shortfall: out[2],
	}, nil
}

func DecodeCloseFactorMantissa(data []byte) (*big.Int, error) {
	values, err := unpack(lendingPoolABI, "closeFactorMantissa", data, 1)
	if err != nil {
		return nil, err
	}
	return asBig(values[0], "closeFactorMantissa")
}

func DecodeOracle(data []byte) (common.Address, error) {
	values, err := unpack(lendingPoolABI, "oracle", data, 1)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("oracle: unexpected type %T", values[0])
	}
	return addr, nil
}

func DecodeAllMarkets(data []byte) ([]common.Address, error) {
	values, err := unpack(lendingPoolABI, "getAllMarkets", data, 1)
	if err != nil {
		return nil, err
	}
	markets, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getAllMarkets: unexpected type %T", values[0])
	}
	return markets, nil
}

// DecodeBorrowLog extracts the borrower from a market Borrow log
func DecodeBorrowLog(l types.Log) (common.Address, error) {
	if len(l.Topics) == 0 || l.Topics[0] != BorrowEventID {
		return common.Address{}, fmt.Errorf("log %s/%d is not a Borrow event", l.TxHash.Hex(), l.Index)
	}
	values, err := unpack(lendingPoolABI, "Borrow", l.Data, 4)
	if err != nil {
		return common.Address{}, err
	}
	borrower, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("borrower: unexpected type %T", values[0])
	}
	return borrower, nil
}
