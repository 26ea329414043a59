package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
)

// Config for a signing wallet on one chain
type Config struct {
	Name             string
	PrivateKey       string
	TxTimeout        time.Duration
	GasLimitBufferBp uint64
}

// Backend is the chain access a wallet needs
type Backend interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var ErrTxReverted = errors.New("transaction reverted")

// Wallet signs and submits transactions for one chain
type Wallet struct {
	config  Config
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	sendMu  sync.Mutex
}

// New creates a wallet; Start must be called before use
func New(cfg Config, backend Backend) *Wallet {
	return &Wallet{
		config:  cfg,
		backend: backend,
	}
}

// Start parses the signing key and resolves the chain ID
func (w *Wallet) Start(ctx context.Context) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(w.config.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("invalid signing key: %w", err)
	}
	w.key = key
	w.address = crypto.PubkeyToAddress(key.PublicKey)

	chainID, err := w.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	w.chainID = chainID

	log.Info().
		Str("wallet", w.config.Name).
		Str("address", w.address.Hex()).
		Str("chainId", chainID.String()).
		Msg("Signing key loaded")
	return nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) ChainID() *big.Int {
	return w.chainID
}

// Call runs a non-committing eth_call from the wallet address
func (w *Wallet) Call(ctx context.Context, call contracts.Call, value *big.Int) ([]byte, error) {
	to := call.Target
	return w.backend.CallContract(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  call.Data,
	}, nil)
}

// Send signs and submits call, then waits for it to be mined. A mined but
// reverted transaction returns ErrTxReverted along with its receipt.
func (w *Wallet) Send(ctx context.Context, call contracts.Call, value *big.Int) (*types.Receipt, error) {
	tx, err := w.Submit(ctx, call, value)
	if err != nil {
		return nil, err
	}
	return w.Wait(ctx, tx)
}

// Submit signs and broadcasts call without waiting for it to be mined
func (w *Wallet) Submit(ctx context.Context, call contracts.Call, value *big.Int) (*types.Transaction, error) {
	if w.key == nil {
		return nil, fmt.Errorf("signing key not configured")
	}
	if value == nil {
		value = new(big.Int)
	}

	tx, err := w.submit(ctx, call, value)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("wallet", w.config.Name).
		Str("txHash", tx.Hash().Hex()).
		Uint64("nonce", tx.Nonce()).
		Msg("Transaction submitted")
	return tx, nil
}

// Wait blocks until tx is mined or TxTimeout passes. A reverted receipt is
// returned together with ErrTxReverted.
func (w *Wallet) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx := ctx
	if w.config.TxTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.config.TxTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, w.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

func (w *Wallet) submit(ctx context.Context, call contracts.Call, value *big.Int) (*types.Transaction, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	to := call.Target
	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * w.config.GasLimitBufferBp / 10_000

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return signed, nil
}
