package rpc

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config for RPC pool
type Config struct {
	Name                string
	Endpoints           []string
	RequestTimeout      time.Duration
	HealthCheckInterval time.Duration
	RequestsPerSecond   float64
}

// Client wraps an eth client with metadata
type Client struct {
	*ethclient.Client
	endpoint string
	healthy  bool
}

// Pool serves chain requests from the healthiest endpoint and falls back to
// the others when a request fails for transport reasons. Endpoints are
// ordered: the first is the primary.
type Pool struct {
	config  Config
	clients []*Client
	limiter *rate.Limiter
	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// NewPool creates a new RPC pool
func NewPool(cfg Config) *Pool {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Pool{
		config:  cfg,
		clients: make([]*Client, 0, len(cfg.Endpoints)),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Start dials every endpoint and starts the health checker
func (p *Pool) Start(ctx context.Context) error {
	log.Info().Str("pool", p.config.Name).Int("endpoints", len(p.config.Endpoints)).Msg("Starting RPC pool")

	p.mu.Lock()
	p.running = true
	for _, endpoint := range p.config.Endpoints {
		client, err := p.connect(ctx, endpoint)
		if err != nil {
			log.Warn().Err(err).Str("pool", p.config.Name).Msg("Failed to connect")
			continue
		}
		p.clients = append(p.clients, client)
	}
	connected := len(p.clients)
	p.mu.Unlock()

	if connected == 0 {
		return ErrNoClients
	}

	if p.config.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.healthCheckLoop(ctx)
	}

	return nil
}

// Stop closes all connections
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	log.Info().Str("pool", p.config.Name).Msg("Stopping RPC pool")

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, client := range p.clients {
		client.Close()
	}
}

// ordered returns healthy clients first, primary before fallback
func (p *Pool) ordered() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Client, len(p.clients))
	copy(out, p.clients)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].healthy && !out[j].healthy
	})
	return out
}

// do runs fn against each client in order until one succeeds. Reverts are
// returned immediately: another endpoint would revert the same way.
func do[T any](ctx context.Context, p *Pool, op string, fn func(ctx context.Context, c *Client) (T, error)) (T, error) {
	var zero T
	clients := p.ordered()
	if len(clients) == 0 {
		return zero, ErrNoClients
	}

	var lastErr error
	for i, c := range clients {
		if err := p.limiter.Wait(ctx); err != nil {
			return zero, err
		}

		reqCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		result, err := fn(reqCtx, c)
		cancel()
		if err == nil {
			return result, nil
		}
		if IsRevert(err) || ctx.Err() != nil {
			return zero, err
		}

		lastErr = err
		if i < len(clients)-1 {
			log.Warn().
				Err(err).
				Str("pool", p.config.Name).
				Str("op", op).
				Msg("RPC request failed, trying fallback")
		}
	}
	return zero, lastErr
}

func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return do(ctx, p, "eth_call", func(ctx context.Context, c *Client) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	return do(ctx, p, "eth_blockNumber", func(ctx context.Context, c *Client) (uint64, error) {
		return c.Client.BlockNumber(ctx)
	})
}

func (p *Pool) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return do(ctx, p, "eth_getLogs", func(ctx context.Context, c *Client) ([]types.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

func (p *Pool) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return do(ctx, p, "eth_getBalance", func(ctx context.Context, c *Client) (*big.Int, error) {
		return c.Client.BalanceAt(ctx, account, blockNumber)
	})
}

func (p *Pool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return do(ctx, p, "eth_getBlockByNumber", func(ctx context.Context, c *Client) (*types.Header, error) {
		return c.Client.HeaderByNumber(ctx, number)
	})
}

func (p *Pool) ChainID(ctx context.Context) (*big.Int, error) {
	return do(ctx, p, "eth_chainId", func(ctx context.Context, c *Client) (*big.Int, error) {
		return c.Client.ChainID(ctx)
	})
}

func (p *Pool) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return do(ctx, p, "eth_getTransactionCount", func(ctx context.Context, c *Client) (uint64, error) {
		return c.Client.PendingNonceAt(ctx, account)
	})
}

func (p *Pool) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return do(ctx, p, "eth_gasPrice", func(ctx context.Context, c *Client) (*big.Int, error) {
		return c.Client.SuggestGasPrice(ctx)
	})
}

func (p *Pool) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return do(ctx, p, "eth_estimateGas", func(ctx context.Context, c *Client) (uint64, error) {
		return c.Client.EstimateGas(ctx, msg)
	})
}

func (p *Pool) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := do(ctx, p, "eth_sendRawTransaction", func(ctx context.Context, c *Client) (struct{}, error) {
		return struct{}{}, c.Client.SendTransaction(ctx, tx)
	})
	return err
}

func (p *Pool) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return do(ctx, p, "eth_getTransactionReceipt", func(ctx context.Context, c *Client) (*types.Receipt, error) {
		return c.Client.TransactionReceipt(ctx, txHash)
	})
}

func (p *Pool) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return do(ctx, p, "eth_getCode", func(ctx context.Context, c *Client) ([]byte, error) {
		return c.Client.CodeAt(ctx, account, blockNumber)
	})
}

func (p *Pool) connect(ctx context.Context, endpoint string) (*Client, error) {
	start := time.Now()

	dialCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool", p.config.Name).
		Dur("latency", time.Since(start)).
		Msg("Connected to RPC")

	return &Client{
		Client:   client,
		endpoint: endpoint,
		healthy:  true,
	}, nil
}

func (p *Pool) healthCheckLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			p.mu.RLock()
			running := p.running
			p.mu.RUnlock()
			if !running {
				return
			}
			p.checkHealth(ctx)
		}
	}
}

func (p *Pool) checkHealth(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		_, err := client.Client.BlockNumber(checkCtx)
		cancel()

		if err != nil {
			client.healthy = false
			log.Warn().
				Str("pool", p.config.Name).
				Int("endpoint", i).
				Err(err).
				Msg("RPC health check failed")
		} else {
			client.healthy = true
			log.Debug().
				Str("pool", p.config.Name).
				Int("endpoint", i).
				Dur("latency", time.Since(start)).
				Msg("RPC health check")
		}
	}
}

// IsRevert reports whether err is an execution revert returned by the node
// rather than a transport failure.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// Custom errors
type PoolError string

func (e PoolError) Error() string { return string(e) }

const (
	ErrNoClients PoolError = "no RPC clients available"
)
