// Package contracts holds typed encoders and decoders for the external
// contracts the seeker talks to. Each contract type carries its address and
// produces Call values whose calldata targets it.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Call is a single contract call: target plus calldata
type Call struct {
	Target common.Address
	Data   []byte
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid ABI: %v", err))
	}
	return parsed
}

// mustPack packs arguments whose Go types are fixed by the caller. A failure
// here is a programming error, not a runtime condition.
func mustPack(a abi.ABI, method string, args ...interface{}) []byte {
	data, err := a.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("contracts: pack %s: %v", method, err))
	}
	return data
}

func unpack(a abi.ABI, method string, data []byte, want int) ([]interface{}, error) {
	values, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != want {
		return nil, fmt.Errorf("unpack %s: got %d values, want %d", method, len(values), want)
	}
	return values, nil
}

func asBig(v interface{}, field string) (*big.Int, error) {
	b, ok := v.(*big.Int)
	if !ok || b == nil {
		return nil, fmt.Errorf("%s: unexpected type %T", field, v)
	}
	return b, nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	addressType = mustType("address")
	uint256Type = mustType("uint256")
	int224Type  = mustType("int224")
	int256Type  = mustType("int256")
	bytes32Type = mustType("bytes32")
)
