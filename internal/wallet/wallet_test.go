package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/testutil"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func startedWallet(t *testing.T, chain *testutil.MockChain) *Wallet {
	t.Helper()
	w := New(Config{Name: "test", PrivateKey: testKey, GasLimitBufferBp: 2_000}, chain)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return w
}

func TestStartDerivesAddress(t *testing.T) {
	w := startedWallet(t, testutil.NewMockChain())

	key, _ := crypto.HexToECDSA(testKey[2:])
	if want := crypto.PubkeyToAddress(key.PublicKey); w.Address() != want {
		t.Errorf("Address() = %s, want %s", w.Address(), want)
	}
	if w.ChainID().Int64() != 1 {
		t.Errorf("ChainID() = %s, want 1", w.ChainID())
	}
}

func TestStartRejectsBadKey(t *testing.T) {
	w := New(Config{Name: "test", PrivateKey: "not-a-key"}, testutil.NewMockChain())
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestSendSignsAndWaits(t *testing.T) {
	chain := testutil.NewMockChain()
	chain.ChainIDValue = big.NewInt(42161)
	w := startedWallet(t, chain)

	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	receipt, err := w.Send(context.Background(), contracts.Call{Target: target, Data: []byte{0xde, 0xad}}, big.NewInt(7))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := chain.SentTxs()
	if len(sent) != 1 {
		t.Fatalf("sent %d txs, want 1", len(sent))
	}
	tx := sent[0]
	if receipt.TxHash != tx.Hash() {
		t.Errorf("receipt hash = %s, want %s", receipt.TxHash, tx.Hash())
	}
	if *tx.To() != target || tx.Value().Int64() != 7 {
		t.Errorf("tx to=%s value=%s, want %s 7", tx.To(), tx.Value(), target)
	}
	if tx.Gas() != 120_000 {
		t.Errorf("gas = %d, want 120000 (20%% buffer)", tx.Gas())
	}

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(42161)), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != w.Address() {
		t.Errorf("sender = %s, want %s", from, w.Address())
	}
}

func TestSendReverted(t *testing.T) {
	chain := testutil.NewMockChain()
	chain.TransactionReceiptFn = func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		return &types.Receipt{TxHash: h, Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}, nil
	}
	w := startedWallet(t, chain)

	receipt, err := w.Send(context.Background(), contracts.Call{Target: common.Address{1}}, nil)
	if !errors.Is(err, ErrTxReverted) {
		t.Fatalf("Send() error = %v, want ErrTxReverted", err)
	}
	if receipt == nil {
		t.Error("expected receipt alongside revert")
	}
}

func TestSubmitThenWaitTimesOut(t *testing.T) {
	chain := testutil.NewMockChain()
	chain.TransactionReceiptFn = func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		return nil, ethereum.NotFound
	}
	w := New(Config{Name: "test", PrivateKey: testKey, TxTimeout: 50 * time.Millisecond}, chain)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tx, err := w.Submit(context.Background(), contracts.Call{Target: common.Address{1}}, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sent := chain.SentTxs(); len(sent) != 1 || sent[0].Hash() != tx.Hash() {
		t.Fatalf("broadcast %d transactions, want the submitted one", len(sent))
	}

	receipt, err := w.Wait(context.Background(), tx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
	if receipt != nil {
		t.Error("expected no receipt for an unmined transaction")
	}
}

func TestSendWithoutStart(t *testing.T) {
	w := New(Config{Name: "test"}, testutil.NewMockChain())
	if _, err := w.Send(context.Background(), contracts.Call{}, nil); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestCallUsesWalletAddress(t *testing.T) {
	chain := testutil.NewMockChain()
	chain.CallContractFn = func(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return msg.From.Bytes(), nil
	}
	w := startedWallet(t, chain)

	out, err := w.Call(context.Background(), contracts.Call{Target: common.Address{2}}, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if common.BytesToAddress(out) != w.Address() {
		t.Errorf("from = %x, want %s", out, w.Address())
	}
}
