package scanner

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/internal/contracts"
	"github.com/mev-protocol/oev-seeker/internal/protocol"
	"github.com/mev-protocol/oev-seeker/internal/testutil"
	"github.com/mev-protocol/oev-seeker/internal/transmute"
	"github.com/mev-protocol/oev-seeker/pkg/types"
)

var (
	accountA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	accountB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	accountC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	usdc     = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func liquidity(account common.Address, shortfall int64) types.AccountLiquidity {
	return types.AccountLiquidity{Account: account, ErrorCode: new(big.Int), Liquidity: new(big.Int), Shortfall: big.NewInt(shortfall)}
}

// fixture: ETH at 2000, three accounts whose shortfall only appears under
// the transmuted price
func fixture() (*testutil.FakeProtocol, *testutil.MockChain) {
	fp := testutil.NewFakeProtocol()
	fp.Markets = []common.Address{fp.FeedAsset, usdc}
	fp.Prices[fp.FeedAsset] = ether(2000)
	fp.Prices[usdc] = ether(1)

	shortfalls := map[common.Address]int64{accountA: 100, accountB: 50, accountC: 0}
	fp.ShortfallFn = func(account common.Address, feed *big.Int) *big.Int {
		if feed.Cmp(ether(2000)) == 0 {
			return new(big.Int)
		}
		return big.NewInt(shortfalls[account])
	}
	for _, a := range []common.Address{accountA, accountB, accountC} {
		fp.Details[a] = types.AccountDetails{
			Assets:             []common.Address{fp.FeedAsset, usdc},
			BorrowBalances:     []*big.Int{ether(10), new(big.Int)},
			CollateralBalances: []*big.Int{new(big.Int), ether(30000)},
		}
	}

	chain := testutil.NewMockChain()
	fp.Install(chain)
	chain.BalanceAtFn = func(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
		return ether(100), nil
	}
	return fp, chain
}

func newTestScanner(fp *testutil.FakeProtocol, chain *testutil.MockChain, mutate func(*Config)) *Scanner {
	cfg := Config{
		DapiName:                  "ETH/USD",
		FeedAsset:                 fp.FeedAsset,
		EthMarkets:                []common.Address{fp.FeedAsset},
		TransmutationPercent:      100.2,
		MinProfitUSD:              ether(5),
		MaxRepayCollateralPercent: 95,
		AllowSameAsset:            true,
		ChunkSize:                 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	engine := transmute.NewEngine(chain, contracts.Simulator{Address: fp.Simulator}, contracts.Api3Server{Address: fp.Api3Server})
	params := protocol.NewParams(chain, contracts.LendingPool{Address: fp.Pool}, time.Minute)
	return New(cfg, engine, chain, params,
		contracts.LendingPool{Address: fp.Pool},
		contracts.PriceRouter{Address: fp.Router},
		contracts.Liquidator{Address: fp.Liquidator})
}

func TestRankShortfalls(t *testing.T) {
	in := []types.AccountLiquidity{
		liquidity(accountC, 0),
		liquidity(accountB, 50),
		liquidity(accountA, 100),
		{Account: common.HexToAddress("0xd"), Shortfall: nil},
		liquidity(common.HexToAddress("0xe"), 50),
		liquidity(common.HexToAddress("0xf"), 1),
	}

	got := RankShortfalls(in)
	want := []common.Address{accountA, accountB, common.HexToAddress("0xe"), common.HexToAddress("0xf")}
	if len(got) != len(want) {
		t.Fatalf("got %d accounts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Account != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].Account, want[i])
		}
	}
}

func TestRankShortfallsBoundary(t *testing.T) {
	got := RankShortfalls([]types.AccountLiquidity{liquidity(accountA, 0), liquidity(accountB, 1)})
	if len(got) != 1 || got[0].Account != accountB {
		t.Errorf("got %v, want only the account with shortfall 1", got)
	}
}

func TestMaxRepay(t *testing.T) {
	tests := []struct {
		a, b, c int64
		want    int64
	}{
		{10, 20, 30, 10},
		{20, 10, 30, 10},
		{30, 20, 10, 10},
		{5, 5, 5, 5},
		{0, 7, 9, 0},
		{7, 9, 0, 0},
	}
	for _, tt := range tests {
		a, b, c := big.NewInt(tt.a), big.NewInt(tt.b), big.NewInt(tt.c)
		got := MaxRepay(a, b, c)
		if got.Int64() != tt.want {
			t.Errorf("MaxRepay(%d, %d, %d) = %s, want %d", tt.a, tt.b, tt.c, got, tt.want)
		}
		for _, bound := range []*big.Int{a, b, c} {
			if got.Cmp(bound) > 0 {
				t.Errorf("MaxRepay(%d, %d, %d) = %s exceeds bound %s", tt.a, tt.b, tt.c, got, bound)
			}
		}
		got.SetInt64(-1)
		if a.Int64() != tt.a || b.Int64() != tt.b || c.Int64() != tt.c {
			t.Error("MaxRepay result aliases an input")
		}
	}
}

func TestFindBestEvaluatesByShortfall(t *testing.T) {
	fp, chain := fixture()
	fp.LiquidateFn = func(p types.LiquidationParams, feed *big.Int) (types.LiquidationProfit, error) {
		usd := ether(50)
		if p.Borrower == accountB {
			usd = ether(80)
		}
		return types.LiquidationProfit{Native: ether(1), USD: usd}, nil
	}
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), []common.Address{accountC, accountB, accountA})
	if err != nil {
		t.Fatalf("FindBest() error = %v", err)
	}

	if len(fp.DetailsCalls) != 2 || fp.DetailsCalls[0] != accountA || fp.DetailsCalls[1] != accountB {
		t.Fatalf("evaluation order = %v, want [A B]", fp.DetailsCalls)
	}
	if result.Shortfalls != 2 {
		t.Errorf("Shortfalls = %d, want 2", result.Shortfalls)
	}

	opp := result.Opportunity
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if opp.Liquidation.Borrower != accountB {
		t.Errorf("best borrower = %s, want B (highest profit)", opp.Liquidation.Borrower)
	}
	wantValue := transmute.PercentageValue(ether(2000), 100.2)
	if opp.TransmutationValue.Cmp(wantValue) != 0 {
		t.Errorf("transmutation value = %s, want %s", opp.TransmutationValue, wantValue)
	}
	if opp.CurrentPrice.Cmp(ether(2000)) != 0 {
		t.Errorf("current price = %s, want %s", opp.CurrentPrice, ether(2000))
	}
	if opp.Condition() != types.ConditionGTE {
		t.Errorf("condition = %s, want GTE", opp.Condition())
	}
	if opp.Liquidation.BorrowAsset != fp.FeedAsset || opp.Liquidation.CollateralAsset != usdc {
		t.Errorf("legs = %s/%s, want ETH/USDC", opp.Liquidation.BorrowAsset, opp.Liquidation.CollateralAsset)
	}
	if opp.Liquidation.RepayAmount.Cmp(ether(5)) != 0 {
		t.Errorf("repay = %s, want close factor share 5 ETH", opp.Liquidation.RepayAmount)
	}
}

func TestFindBestTieKeepsFirst(t *testing.T) {
	fp, chain := fixture()
	fp.LiquidateFn = func(p types.LiquidationParams, _ *big.Int) (types.LiquidationProfit, error) {
		return types.LiquidationProfit{Native: ether(1), USD: ether(20)}, nil
	}
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), []common.Address{accountB, accountA})
	if err != nil {
		t.Fatalf("FindBest() error = %v", err)
	}
	if result.Opportunity == nil || result.Opportunity.Liquidation.Borrower != accountA {
		t.Errorf("got %+v, want A (larger shortfall, evaluated first)", result.Opportunity)
	}
}

func TestFindBestRevertAbortsCycle(t *testing.T) {
	fp, chain := fixture()
	fp.LiquidateFn = func(p types.LiquidationParams, _ *big.Int) (types.LiquidationProfit, error) {
		return types.LiquidationProfit{}, errors.New("insufficient collateral")
	}
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), []common.Address{accountA, accountB})
	if err != nil {
		t.Fatalf("FindBest() error = %v, want nil for a revert", err)
	}
	if result.Opportunity != nil {
		t.Error("expected no opportunity after a reverted liquidation")
	}
	if !result.Reverted {
		t.Error("expected Reverted")
	}
	if len(fp.LiquidateCalls) != 1 {
		t.Errorf("got %d liquidation simulations, want 1 (cycle abandoned)", len(fp.LiquidateCalls))
	}
}

func TestFindBestDetailsRevertAbortsCycle(t *testing.T) {
	fp, chain := fixture()
	fp.DetailsErr = func(account common.Address) error {
		if account == accountA {
			return errors.New("market not listed")
		}
		return nil
	}
	fp.LiquidateFn = func(p types.LiquidationParams, _ *big.Int) (types.LiquidationProfit, error) {
		return types.LiquidationProfit{Native: ether(1), USD: ether(30)}, nil
	}
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), []common.Address{accountA, accountB})
	if err != nil {
		t.Fatalf("FindBest() error = %v, want nil for a revert", err)
	}
	if !result.Reverted {
		t.Error("expected Reverted")
	}
	if result.Opportunity != nil {
		t.Errorf("got opportunity for %s, want none after a details revert", result.Opportunity.Liquidation.Borrower)
	}
	if len(fp.DetailsCalls) != 1 {
		t.Errorf("got %d details calls, want 1 (cycle abandoned)", len(fp.DetailsCalls))
	}
	if len(fp.LiquidateCalls) != 0 {
		t.Errorf("got %d liquidation simulations, want 0", len(fp.LiquidateCalls))
	}
}

func TestFindBestBelowThreshold(t *testing.T) {
	fp, chain := fixture()
	fp.LiquidateFn = func(p types.LiquidationParams, _ *big.Int) (types.LiquidationProfit, error) {
		return types.LiquidationProfit{Native: big.NewInt(1), USD: ether(4)}, nil
	}
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), []common.Address{accountA, accountB})
	if err != nil {
		t.Fatalf("FindBest() error = %v", err)
	}
	if result.Opportunity != nil {
		t.Error("expected no opportunity below the profit threshold")
	}
}

func TestFindBestSkipsAccountsWithoutEthBorrow(t *testing.T) {
	fp, chain := fixture()
	fp.Details[accountA] = types.AccountDetails{
		Assets:             []common.Address{fp.FeedAsset, usdc},
		BorrowBalances:     []*big.Int{new(big.Int), ether(500)},
		CollateralBalances: []*big.Int{ether(3), new(big.Int)},
	}
	fp.LiquidateFn = func(p types.LiquidationParams, _ *big.Int) (types.LiquidationProfit, error) {
		return types.LiquidationProfit{Native: ether(1), USD: ether(30)}, nil
	}
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), []common.Address{accountA, accountB})
	if err != nil {
		t.Fatalf("FindBest() error = %v", err)
	}
	if len(fp.LiquidateCalls) != 1 || fp.LiquidateCalls[0].Borrower != accountB {
		t.Errorf("liquidations simulated = %v, want only B", fp.LiquidateCalls)
	}
	if result.Opportunity == nil || result.Opportunity.Liquidation.Borrower != accountB {
		t.Error("expected B as the opportunity")
	}
}

func TestFindBestSameAssetPolicy(t *testing.T) {
	fp, chain := fixture()
	fp.Details[accountA] = types.AccountDetails{
		Assets:             []common.Address{fp.FeedAsset},
		BorrowBalances:     []*big.Int{ether(2)},
		CollateralBalances: []*big.Int{ether(3)},
	}
	fp.LiquidateFn = func(p types.LiquidationParams, _ *big.Int) (types.LiquidationProfit, error) {
		return types.LiquidationProfit{Native: ether(1), USD: ether(30)}, nil
	}

	s := newTestScanner(fp, chain, func(c *Config) { c.AllowSameAsset = false })
	result, err := s.FindBest(context.Background(), []common.Address{accountA})
	if err != nil {
		t.Fatalf("FindBest() error = %v", err)
	}
	if result.Opportunity != nil {
		t.Error("same-asset liquidation should be skipped when disallowed")
	}

	s = newTestScanner(fp, chain, nil)
	result, err = s.FindBest(context.Background(), []common.Address{accountA})
	if err != nil {
		t.Fatalf("FindBest() error = %v", err)
	}
	if result.Opportunity == nil || result.Opportunity.Liquidation.CollateralAsset != fp.FeedAsset {
		t.Error("same-asset liquidation should be planned when allowed")
	}
}

func TestLargestEthBorrowTakesMaximum(t *testing.T) {
	eth1 := common.HexToAddress("0xe1")
	eth2 := common.HexToAddress("0xe2")
	s := New(Config{EthMarkets: []common.Address{eth1, eth2}}, nil, nil, nil,
		contracts.LendingPool{}, contracts.PriceRouter{}, contracts.Liquidator{})

	asset, amount := s.largestEthBorrow(types.AccountDetails{
		Assets:             []common.Address{eth1, usdc, eth2},
		BorrowBalances:     []*big.Int{ether(1), ether(900), ether(3)},
		CollateralBalances: []*big.Int{new(big.Int), new(big.Int), new(big.Int)},
	})
	if asset != eth2 || amount.Cmp(ether(3)) != 0 {
		t.Errorf("got %s %s, want %s 3 ETH", asset, amount, eth2)
	}
}

func TestFindBestEmptyWatchList(t *testing.T) {
	fp, chain := fixture()
	s := newTestScanner(fp, chain, nil)

	result, err := s.FindBest(context.Background(), nil)
	if err != nil || result.Opportunity != nil {
		t.Errorf("FindBest(nil) = %+v, %v; want empty result", result, err)
	}
	if len(chain.Calls) != 0 {
		t.Errorf("made %d calls for an empty watch list", len(chain.Calls))
	}
}
