package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

type aggregate3ValueCall struct {
	Target       common.Address
	AllowFailure bool
	Value        *big.Int
	CallData     []byte
}

func abiConvertAggregate(v interface{}) *[]aggregateCall {
	return abi.ConvertType(v, new([]aggregateCall)).(*[]aggregateCall)
}

func abiConvertAggregate3Value(v interface{}) *[]aggregate3ValueCall {
	return abi.ConvertType(v, new([]aggregate3ValueCall)).(*[]aggregate3ValueCall)
}
