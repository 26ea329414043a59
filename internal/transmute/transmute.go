// Package transmute runs read-only calls against the lending protocol under a
// substituted oracle price. A synthetic beacon signed with a throwaway key is
// registered under the feed's dAPI name and updated to the override value in
// the same simulated call that reads protocol state, so the chain itself does
// the health and profit math.
package transmute

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/rpc"
)

// The simulation signer never holds funds and never signs a real
// transaction. Its signatures are only accepted inside the simulator's
// zero-address, zero-gas-price context.
var simulationKey = mustKey(crypto.Keccak256([]byte("oev-seeker/transmutation-signer")))

var simulationTemplateID = crypto.Keccak256Hash([]byte("oev-seeker/transmutation-template"))

func mustKey(seed []byte) *ecdsa.PrivateKey {
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		panic(fmt.Sprintf("transmute: simulation key: %v", err))
	}
	return key
}

// Caller is the read access the engine needs
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Outcome is the result of one simulated batch. A revert is an outcome, not
// an error: it means nothing can be decided from this batch.
type Outcome struct {
	Returns  [][]byte
	Reverted bool
	Reason   string
}

// Engine builds and executes transmuted simulations
type Engine struct {
	caller     Caller
	simulator  contracts.Simulator
	server     contracts.Api3Server
	key        *ecdsa.PrivateKey
	airnode    common.Address
	templateID common.Hash
	now        func() time.Time
}

// NewEngine creates an engine that simulates through simulator against the
// price server
func NewEngine(caller Caller, simulator contracts.Simulator, server contracts.Api3Server) *Engine {
	return &Engine{
		caller:     caller,
		simulator:  simulator,
		server:     server,
		key:        simulationKey,
		airnode:    crypto.PubkeyToAddress(simulationKey.PublicKey),
		templateID: simulationTemplateID,
		now:        time.Now,
	}
}

// BuildTransmutationCalls returns the two calls that point dapiName at a
// freshly signed synthetic beacon reporting value.
func (e *Engine) BuildTransmutationCalls(dapiName string, value *big.Int) ([]contracts.Call, error) {
	data, err := contracts.EncodeFeedValue(value)
	if err != nil {
		return nil, fmt.Errorf("encode value %s: %w", value, err)
	}
	timestamp := big.NewInt(e.now().Unix())

	signature, err := e.sign(timestamp, data)
	if err != nil {
		return nil, err
	}

	return []contracts.Call{
		e.server.SetDapiName(EncodeDapiName(dapiName), BeaconID(e.airnode, e.templateID)),
		e.server.UpdateBeaconWithSignedData(contracts.SignedBeaconUpdate{
			Airnode:    e.airnode,
			TemplateID: e.templateID,
			Timestamp:  timestamp,
			Data:       data,
			Signature:  signature,
		}),
	}, nil
}

func (e *Engine) sign(timestamp *big.Int, data []byte) ([]byte, error) {
	message := crypto.Keccak256(e.templateID.Bytes(), common.LeftPadBytes(timestamp.Bytes(), 32), data)
	sig, err := crypto.Sign(accounts.TextHash(message), e.key)
	if err != nil {
		return nil, fmt.Errorf("sign beacon data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Simulate executes calls as one all-or-nothing multicall on the simulator.
// Returns are in submission order.
func (e *Engine) Simulate(ctx context.Context, calls []contracts.Call) (Outcome, error) {
	batch := e.simulator.Multicall(calls)
	out, err := e.caller.CallContract(ctx, ethereum.CallMsg{
		From:     common.Address{},
		To:       &batch.Target,
		GasPrice: new(big.Int),
		Data:     batch.Data,
	}, nil)
	if err != nil {
		if rpc.IsRevert(err) {
			return Outcome{Reverted: true, Reason: err.Error()}, nil
		}
		return Outcome{}, fmt.Errorf("simulate %d calls: %w", len(calls), err)
	}

	returns, err := contracts.DecodeMulticall(out)
	if err != nil {
		return Outcome{}, fmt.Errorf("decode simulation: %w", err)
	}
	if len(returns) != len(calls) {
		return Outcome{}, fmt.Errorf("simulation returned %d results for %d calls", len(returns), len(calls))
	}
	return Outcome{Returns: returns}, nil
}

// Transmuted simulates calls with dapiName reporting value. The returned
// outcome only carries the returns of calls, not of the transmutation.
func (e *Engine) Transmuted(ctx context.Context, dapiName string, value *big.Int, calls []contracts.Call) (Outcome, error) {
	transmutation, err := e.BuildTransmutationCalls(dapiName, value)
	if err != nil {
		return Outcome{}, err
	}
	outcome, err := e.Simulate(ctx, append(transmutation, calls...))
	if err != nil || outcome.Reverted {
		return outcome, err
	}
	outcome.Returns = outcome.Returns[len(transmutation):]
	return outcome, nil
}

// EncodeDapiName right-pads name into a bytes32
func EncodeDapiName(name string) common.Hash {
	var out common.Hash
	copy(out[:], name)
	return out
}

// BeaconID is keccak256(abi.encodePacked(airnode, templateId))
func BeaconID(airnode common.Address, templateID common.Hash) common.Hash {
	return crypto.Keccak256Hash(airnode.Bytes(), templateID.Bytes())
}

// PercentageValue scales v by percent (e.g. 100.2) in integer arithmetic,
// rounding toward zero. percent is resolved to three decimals.
func PercentageValue(v *big.Int, percent float64) *big.Int {
	scaled := big.NewInt(int64(math.Round(percent * 1000)))
	out := new(big.Int).Mul(v, scaled)
	return out.Quo(out, big.NewInt(100_000))
}
