package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const api3ServerJSON = `[
	{"type":"function","name":"setDapiName","stateMutability":"nonpayable",
	 "inputs":[{"name":"dapiName","type":"bytes32"},{"name":"dataFeedId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"updateBeaconWithSignedData","stateMutability":"nonpayable",
	 "inputs":[{"name":"airnode","type":"address"},{"name":"templateId","type":"bytes32"},
	   {"name":"timestamp","type":"uint256"},{"name":"data","type":"bytes"},{"name":"signature","type":"bytes"}],
	 "outputs":[{"name":"beaconId","type":"bytes32"}]},
	{"type":"function","name":"updateOevProxyDataFeedWithSignedData","stateMutability":"payable",
	 "inputs":[{"name":"oevProxy","type":"address"},{"name":"dataFeedId","type":"bytes32"},
	   {"name":"updateId","type":"bytes32"},{"name":"timestamp","type":"uint256"},
	   {"name":"data","type":"bytes"},{"name":"packedOevUpdateSignatures","type":"bytes[]"}],"outputs":[]}
]`

var api3ServerABI = mustParseABI(api3ServerJSON)

// Api3Server is the price-feed server behind the oracle router
type Api3Server struct {
	Address common.Address
}

// SignedBeaconUpdate is the argument set of updateBeaconWithSignedData
type SignedBeaconUpdate struct {
	Airnode    common.Address
	TemplateID common.Hash
	Timestamp  *big.Int
	Data       []byte
	Signature  []byte
}

// OevUpdate is the decoded awarded price update
type OevUpdate struct {
	OevProxy   common.Address
	DataFeedID common.Hash
	UpdateID   common.Hash
	Timestamp  *big.Int
	Value      *big.Int
	Signatures [][]byte
}

func (s Api3Server) SetDapiName(dapiName, dataFeedID common.Hash) Call {
	return Call{Target: s.Address, Data: mustPack(api3ServerABI, "setDapiName", [32]byte(dapiName), [32]byte(dataFeedID))}
}

func (s Api3Server) UpdateBeaconWithSignedData(u SignedBeaconUpdate) Call {
	return Call{
		Target: s.Address,
		Data: mustPack(api3ServerABI, "updateBeaconWithSignedData",
			u.Airnode, [32]byte(u.TemplateID), u.Timestamp, u.Data, u.Signature),
	}
}

// EncodeOevUpdate builds updateOevProxyDataFeedWithSignedData calldata, the
// form in which the auction house hands out award details.
func EncodeOevUpdate(u OevUpdate) ([]byte, error) {
	data, err := EncodeFeedValue(u.Value)
	if err != nil {
		return nil, err
	}
	sigs := u.Signatures
	if sigs == nil {
		sigs = [][]byte{}
	}
	return api3ServerABI.Pack("updateOevProxyDataFeedWithSignedData",
		u.OevProxy, [32]byte(u.DataFeedID), [32]byte(u.UpdateID), u.Timestamp, data, sigs)
}

// DecodeOevUpdate parses award details back into the update they carry
func DecodeOevUpdate(calldata []byte) (OevUpdate, error) {
	method, ok := api3ServerABI.Methods["updateOevProxyDataFeedWithSignedData"]
	if !ok {
		return OevUpdate{}, fmt.Errorf("updateOevProxyDataFeedWithSignedData not in ABI")
	}
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return OevUpdate{}, fmt.Errorf("award details do not call updateOevProxyDataFeedWithSignedData")
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return OevUpdate{}, fmt.Errorf("unpack award details: %w", err)
	}
	if len(values) != 6 {
		return OevUpdate{}, fmt.Errorf("award details: got %d values, want 6", len(values))
	}
	proxy, ok1 := values[0].(common.Address)
	feedID, ok2 := values[1].([32]byte)
	updateID, ok3 := values[2].([32]byte)
	ts, ok4 := values[3].(*big.Int)
	data, ok5 := values[4].([]byte)
	sigs, ok6 := values[5].([][]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return OevUpdate{}, fmt.Errorf("award details: unexpected argument types")
	}
	value, err := DecodeFeedValue(data)
	if err != nil {
		return OevUpdate{}, err
	}
	return OevUpdate{
		OevProxy:   proxy,
		DataFeedID: common.Hash(feedID),
		UpdateID:   common.Hash(updateID),
		Timestamp:  ts,
		Value:      value,
		Signatures: sigs,
	}, nil
}

// EncodeFeedValue encodes a beacon value as abi.encode(int256)
func EncodeFeedValue(v *big.Int) ([]byte, error) {
	return abi.Arguments{{Type: int256Type}}.Pack(v)
}

func DecodeFeedValue(data []byte) (*big.Int, error) {
	values, err := abi.Arguments{{Type: int256Type}}.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode feed value: %w", err)
	}
	return asBig(values[0], "value")
}
