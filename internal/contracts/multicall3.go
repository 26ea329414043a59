package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicall3JSON = `[
	{"type":"function","name":"aggregate","stateMutability":"payable",
	 "inputs":[{"name":"calls","type":"tuple[]","components":[
	   {"name":"target","type":"address"},{"name":"callData","type":"bytes"}]}],
	 "outputs":[{"name":"blockNumber","type":"uint256"},{"name":"returnData","type":"bytes[]"}]},
	{"type":"function","name":"aggregate3Value","stateMutability":"payable",
	 "inputs":[{"name":"calls","type":"tuple[]","components":[
	   {"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},
	   {"name":"value","type":"uint256"},{"name":"callData","type":"bytes"}]}],
	 "outputs":[{"name":"returnData","type":"tuple[]","components":[
	   {"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
]`

var multicall3ABI = mustParseABI(multicall3JSON)

// ValueCall is a call carrying native value inside aggregate3Value
type ValueCall struct {
	Call
	Value *big.Int
}

// Result is one aggregate3Value entry
type Result struct {
	Success    bool
	ReturnData []byte
}

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

// Multicall3 is the batched-call aggregator
type Multicall3 struct {
	Address common.Address
}

// Aggregate batches calls that must all succeed
func (m Multicall3) Aggregate(calls []Call) Call {
	packed := make([]aggregateCall, len(calls))
	for i, c := range calls {
		packed[i] = aggregateCall{Target: c.Target, CallData: c.Data}
	}
	return Call{Target: m.Address, Data: mustPack(multicall3ABI, "aggregate", packed)}
}

// Aggregate3Value batches value-carrying calls; none may fail. The returned
// total is the msg.value the outer call must carry.
func (m Multicall3) Aggregate3Value(calls []ValueCall) (Call, *big.Int) {
	total := new(big.Int)
	packed := make([]aggregate3ValueCall, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		total.Add(total, value)
		packed[i] = aggregate3ValueCall{
			Target:       c.Target,
			AllowFailure: false,
			Value:        value,
			CallData:     c.Data,
		}
	}
	return Call{Target: m.Address, Data: mustPack(multicall3ABI, "aggregate3Value", packed)}, total
}

func DecodeAggregate(data []byte) (uint64, [][]byte, error) {
	values, err := unpack(multicall3ABI, "aggregate", data, 2)
	if err != nil {
		return 0, nil, err
	}
	block, err := asBig(values[0], "blockNumber")
	if err != nil {
		return 0, nil, err
	}
	returns, ok := values[1].([][]byte)
	if !ok {
		return 0, nil, fmt.Errorf("returnData: unexpected type %T", values[1])
	}
	return block.Uint64(), returns, nil
}

func DecodeAggregate3Value(data []byte) ([]Result, error) {
	values, err := unpack(multicall3ABI, "aggregate3Value", data, 1)
	if err != nil {
		return nil, err
	}
	results := *abi.ConvertType(values[0], new([]Result)).(*[]Result)
	return results, nil
}
