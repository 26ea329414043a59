package contracts

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract names accepted by EncodeReturn and reported by DecodeCalldata
const (
	NameLendingPool  = "LendingPool"
	NamePriceRouter  = "PriceRouter"
	NameLiquidator   = "Liquidator"
	NameSimulator    = "Simulator"
	NameMulticall3   = "Multicall3"
	NameApi3Server   = "Api3Server"
	NameAuctionHouse = "AuctionHouse"
)

var registry = []struct {
	name string
	abi  *abi.ABI
}{
	{NameLendingPool, &lendingPoolABI},
	{NamePriceRouter, &priceRouterABI},
	{NameLiquidator, &liquidatorABI},
	{NameSimulator, &simulatorABI},
	{NameMulticall3, &multicall3ABI},
	{NameApi3Server, &api3ServerABI},
	{NameAuctionHouse, &auctionHouseABI},
}

// DecodedCall is calldata resolved against the known ABIs
type DecodedCall struct {
	Contract string
	Method   string
	Args     []interface{}
}

// DecodeCalldata resolves calldata to one of the known contract methods.
// Selectors are unique across the ABIs in this package.
func DecodeCalldata(data []byte) (DecodedCall, error) {
	if len(data) < 4 {
		return DecodedCall{}, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	for _, entry := range registry {
		for name, m := range entry.abi.Methods {
			if !bytes.Equal(m.ID, data[:4]) {
				continue
			}
			args, err := m.Inputs.Unpack(data[4:])
			if err != nil {
				return DecodedCall{}, fmt.Errorf("unpack %s.%s: %w", entry.name, name, err)
			}
			return DecodedCall{Contract: entry.name, Method: name, Args: args}, nil
		}
	}
	return DecodedCall{}, fmt.Errorf("unknown selector %x", data[:4])
}

// EncodeReturn ABI-encodes the return values of contract.method, the way a
// node would answer an eth_call. Fakes standing in for the chain use it.
func EncodeReturn(contract, method string, values ...interface{}) ([]byte, error) {
	for _, entry := range registry {
		if entry.name != contract {
			continue
		}
		m, ok := entry.abi.Methods[method]
		if !ok {
			return nil, fmt.Errorf("%s has no method %s", contract, method)
		}
		return m.Outputs.Pack(values...)
	}
	return nil, fmt.Errorf("unknown contract %s", contract)
}

// EncodeEventData ABI-encodes the non-indexed fields of contract.event
func EncodeEventData(contract, event string, values ...interface{}) ([]byte, error) {
	for _, entry := range registry {
		if entry.name != contract {
			continue
		}
		ev, ok := entry.abi.Events[event]
		if !ok {
			return nil, fmt.Errorf("%s has no event %s", contract, event)
		}
		return ev.Inputs.NonIndexed().Pack(values...)
	}
	return nil, fmt.Errorf("unknown contract %s", contract)
}
