package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RevertError is what a node returns for a reverted eth_call
type RevertError struct {
	Reason string
}

func (e RevertError) Error() string  { return "execution reverted: " + e.Reason }
func (e RevertError) ErrorCode() int { return 3 }

// MockChain implements the chain access used across the seeker. Unset
// function fields fall back to benign defaults; sent transactions are
// recorded and receive successful receipts.
type MockChain struct {
	mu sync.Mutex

	CallContractFn       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumberFn        func(ctx context.Context) (uint64, error)
	FilterLogsFn         func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BalanceAtFn          func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumberFn     func(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGasFn        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	TransactionReceiptFn func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	ChainIDValue *big.Int

	Calls       []ethereum.CallMsg
	FilterCalls []ethereum.FilterQuery
	Sent        []*types.Transaction
}

func NewMockChain() *MockChain {
	return &MockChain{ChainIDValue: big.NewInt(1)}
}

func (m *MockChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, msg)
	m.mu.Unlock()
	if m.CallContractFn != nil {
		return m.CallContractFn(ctx, msg, blockNumber)
	}
	return nil, errors.New("CallContract not mocked")
}

func (m *MockChain) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFn != nil {
		return m.BlockNumberFn(ctx)
	}
	return 0, nil
}

func (m *MockChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	m.mu.Lock()
	m.FilterCalls = append(m.FilterCalls, q)
	m.mu.Unlock()
	if m.FilterLogsFn != nil {
		return m.FilterLogsFn(ctx, q)
	}
	return nil, nil
}

func (m *MockChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if m.BalanceAtFn != nil {
		return m.BalanceAtFn(ctx, account, blockNumber)
	}
	return new(big.Int), nil
}

func (m *MockChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if m.HeaderByNumberFn != nil {
		return m.HeaderByNumberFn(ctx, number)
	}
	h := &types.Header{Number: new(big.Int)}
	if number != nil {
		h.Number.Set(number)
	}
	return h, nil
}

func (m *MockChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.ChainIDValue), nil
}

func (m *MockChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.Sent)), nil
}

func (m *MockChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *MockChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.EstimateGasFn != nil {
		return m.EstimateGasFn(ctx, msg)
	}
	return 100_000, nil
}

func (m *MockChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, tx)
	return nil
}

func (m *MockChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if m.TransactionReceiptFn != nil {
		return m.TransactionReceiptFn(ctx, txHash)
	}
	return &types.Receipt{TxHash: txHash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func (m *MockChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

// SentTxs returns a snapshot of submitted transactions
func (m *MockChain) SentTxs() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Transaction, len(m.Sent))
	copy(out, m.Sent)
	return out
}
