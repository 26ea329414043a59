package testutil

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
)

// CallHandler answers one decoded call made to target. Returning an error
// makes the enclosing batch revert.
type CallHandler func(target common.Address, call contracts.DecodedCall) ([]byte, error)

// SimulatorReply answers simulator multicall calldata the way the on-chain
// simulator would, delegating every wrapped call to handle.
func SimulatorReply(data []byte, handle CallHandler) ([]byte, error) {
	outer, err := contracts.DecodeCalldata(data)
	if err != nil {
		return nil, err
	}
	if outer.Contract != contracts.NameSimulator || outer.Method != "multicall" {
		return nil, fmt.Errorf("not a simulator multicall: %s.%s", outer.Contract, outer.Method)
	}

	inner := outer.Args[0].([][]byte)
	wrapped := make([][]byte, len(inner))
	for i, raw := range inner {
		fc, err := contracts.DecodeCalldata(raw)
		if err != nil {
			return nil, err
		}
		target := fc.Args[0].(common.Address)
		call, err := contracts.DecodeCalldata(fc.Args[1].([]byte))
		if err != nil {
			return nil, err
		}
		ret, err := handle(target, call)
		if err != nil {
			return nil, RevertError{Reason: err.Error()}
		}
		if wrapped[i], err = contracts.EncodeReturn(contracts.NameSimulator, "functionCall", ret); err != nil {
			return nil, err
		}
	}
	return contracts.EncodeReturn(contracts.NameSimulator, "multicall", wrapped)
}

// AggregateReply answers Multicall3 aggregate calldata
func AggregateReply(data []byte, handle CallHandler) ([]byte, error) {
	outer, err := contracts.DecodeCalldata(data)
	if err != nil {
		return nil, err
	}
	if outer.Contract != contracts.NameMulticall3 || outer.Method != "aggregate" {
		return nil, fmt.Errorf("not a multicall3 aggregate: %s.%s", outer.Contract, outer.Method)
	}

	calls := *abiConvertAggregate(outer.Args[0])
	returns := make([][]byte, len(calls))
	for i, c := range calls {
		call, err := contracts.DecodeCalldata(c.CallData)
		if err != nil {
			return nil, err
		}
		if returns[i], err = handle(c.Target, call); err != nil {
			return nil, RevertError{Reason: err.Error()}
		}
	}
	return contracts.EncodeReturn(contracts.NameMulticall3, "aggregate", common.Big1, returns)
}

// Aggregate3ValueReply answers Multicall3 aggregate3Value calldata
func Aggregate3ValueReply(data []byte, handle CallHandler) ([]byte, error) {
	outer, err := contracts.DecodeCalldata(data)
	if err != nil {
		return nil, err
	}
	if outer.Contract != contracts.NameMulticall3 || outer.Method != "aggregate3Value" {
		return nil, fmt.Errorf("not a multicall3 aggregate3Value: %s.%s", outer.Contract, outer.Method)
	}

	calls := *abiConvertAggregate3Value(outer.Args[0])
	results := make([]contracts.Result, len(calls))
	for i, c := range calls {
		call, err := contracts.DecodeCalldata(c.CallData)
		if err != nil {
			return nil, err
		}
		ret, err := handle(c.Target, call)
		if err != nil {
			return nil, RevertError{Reason: err.Error()}
		}
		results[i] = contracts.Result{Success: true, ReturnData: ret}
	}
	return contracts.EncodeReturn(contracts.NameMulticall3, "aggregate3Value", results)
}
