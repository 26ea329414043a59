// Package protocol reads lending pool parameters that rarely change and
// keeps them in a TTL cache so scan cycles do not re-read them.
package protocol

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
)

const (
	keyMarkets     = "markets"
	keyCloseFactor = "closeFactor"
	keyOracle      = "oracle"
)

// Caller is the read access the cache needs
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Params serves cached lending pool parameters
type Params struct {
	caller Caller
	pool   contracts.LendingPool
	cache  *cache.Cache
}

func NewParams(caller Caller, pool contracts.LendingPool, ttl time.Duration) *Params {
	return &Params{
		caller: caller,
		pool:   pool,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Markets returns every market listed on the pool
func (p *Params) Markets(ctx context.Context) ([]common.Address, error) {
	if v, ok := p.cache.Get(keyMarkets); ok {
		return append([]common.Address(nil), v.([]common.Address)...), nil
	}
	out, err := p.call(ctx, p.pool.GetAllMarkets())
	if err != nil {
		return nil, fmt.Errorf("getAllMarkets: %w", err)
	}
	markets, err := contracts.DecodeAllMarkets(out)
	if err != nil {
		return nil, err
	}
	p.cache.Set(keyMarkets, markets, cache.DefaultExpiration)
	log.Debug().Int("markets", len(markets)).Msg("Refreshed market list")
	return append([]common.Address(nil), markets...), nil
}

// CloseFactor returns the close factor mantissa (1e18 = 100%)
func (p *Params) CloseFactor(ctx context.Context) (*big.Int, error) {
	if v, ok := p.cache.Get(keyCloseFactor); ok {
		return new(big.Int).Set(v.(*big.Int)), nil
	}
	out, err := p.call(ctx, p.pool.CloseFactorMantissa())
	if err != nil {
		return nil, fmt.Errorf("closeFactorMantissa: %w", err)
	}
	factor, err := contracts.DecodeCloseFactorMantissa(out)
	if err != nil {
		return nil, err
	}
	p.cache.Set(keyCloseFactor, factor, cache.DefaultExpiration)
	return new(big.Int).Set(factor), nil
}

// Oracle returns the price router the pool currently reads from
func (p *Params) Oracle(ctx context.Context) (common.Address, error) {
	if v, ok := p.cache.Get(keyOracle); ok {
		return v.(common.Address), nil
	}
	out, err := p.call(ctx, p.pool.Oracle())
	if err != nil {
		return common.Address{}, fmt.Errorf("oracle: %w", err)
	}
	oracle, err := contracts.DecodeOracle(out)
	if err != nil {
		return common.Address{}, err
	}
	p.cache.Set(keyOracle, oracle, cache.DefaultExpiration)
	return oracle, nil
}

func (p *Params) call(ctx context.Context, call contracts.Call) ([]byte, error) {
	return p.caller.CallContract(ctx, ethereum.CallMsg{To: &call.Target, Data: call.Data}, nil)
}
