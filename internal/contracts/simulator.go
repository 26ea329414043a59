package contracts

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const simulatorJSON = `[
	{"type":"function","name":"functionCall","stateMutability":"nonpayable",
	 "inputs":[{"name":"target","type":"address"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"multicall","stateMutability":"nonpayable",
	 "inputs":[{"name":"data","type":"bytes[]"}],
	 "outputs":[{"name":"returndata","type":"bytes[]"}]}
]`

var simulatorABI = mustParseABI(simulatorJSON)

// Simulator is the call-simulation proxy. Its functions only succeed when
// called from the zero address at zero gas price, i.e. inside eth_call.
type Simulator struct {
	Address common.Address
}

// Multicall wraps every call in functionCall and batches them into one
// multicall on the simulator.
func (s Simulator) Multicall(calls []Call) Call {
	inner := make([][]byte, len(calls))
	for i, c := range calls {
		inner[i] = mustPack(simulatorABI, "functionCall", c.Target, c.Data)
	}
	return Call{Target: s.Address, Data: mustPack(simulatorABI, "multicall", inner)}
}

// DecodeMulticall returns the raw return data of each wrapped call, in
// submission order.
func DecodeMulticall(data []byte) ([][]byte, error) {
	values, err := unpack(simulatorABI, "multicall", data, 1)
	if err != nil {
		return nil, err
	}
	outer, ok := values[0].([][]byte)
	if !ok {
		return nil, fmt.Errorf("multicall: unexpected type %T", values[0])
	}
	results := make([][]byte, len(outer))
	for i, ret := range outer {
		fc, err := unpack(simulatorABI, "functionCall", ret, 1)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		raw, ok := fc[0].([]byte)
		if !ok {
			return nil, fmt.Errorf("call %d: unexpected type %T", i, fc[0])
		}
		results[i] = raw
	}
	return results, nil
}
