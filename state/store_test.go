package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fusiond/native/escrow"
	"fusiond/native/pool"
	"fusiond/native/solver"
	"fusiond/native/swap"
	"fusiond/storage"
)

var (
	_ escrow.State = (*Store)(nil)
	_ swap.State   = (*Store)(nil)
	_ pool.State   = (*Store)(nil)
	_ solver.State = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func TestEscrowRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.EscrowGet("missing")
	require.NoError(t, err)
	require.False(t, found)

	order := &escrow.Order{
		ID:         "0xabc",
		Maker:      "alice",
		Taker:      "bob",
		FromToken:  "USDC",
		ToToken:    "WNEAR",
		FromAmount: big.NewInt(1000),
		ToAmount:   big.NewInt(500),
		Hashlock:   "00ff",
		Timelock:   7200,
		Status:     escrow.OrderFunded,
	}
	require.NoError(t, store.EscrowPut(order))
	require.NoError(t, store.EscrowIndexAdd("alice", order.ID))

	got, found, err := store.EscrowGet(order.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, order.Maker, got.Maker)
	require.Zero(t, got.FromAmount.Cmp(big.NewInt(1000)))
	require.Equal(t, escrow.OrderFunded, got.Status)

	ids, err := store.EscrowOrdersByAccount("alice")
	require.NoError(t, err)
	require.Equal(t, []string{order.ID}, ids)

	ids, err = store.EscrowOrdersByAccount("nobody")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestEscrowIntentLifecycle(t *testing.T) {
	store := newTestStore(t)

	intent := &escrow.TransferIntent{
		OrderID: "0xabc",
		Kind:    escrow.IntentClaim,
		Amount:  big.NewInt(997),
		Fee:     big.NewInt(3),
	}
	require.NoError(t, store.EscrowIntentPut(intent))

	got, found, err := store.EscrowIntentGet("0xabc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, escrow.IntentClaim, got.Kind)
	require.Zero(t, got.Fee.Cmp(big.NewInt(3)))

	require.NoError(t, store.EscrowIntentDelete("0xabc"))
	_, found, err = store.EscrowIntentGet("0xabc")
	require.NoError(t, err)
	require.False(t, found)
}

func TestEscrowTokenAllowList(t *testing.T) {
	store := newTestStore(t)

	allowed, err := store.EscrowTokenAllowed("USDC")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, store.EscrowTokenPut("USDC", true))
	allowed, err = store.EscrowTokenAllowed("USDC")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, store.EscrowTokenPut("USDC", false))
	allowed, err = store.EscrowTokenAllowed("USDC")
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestEscrowStatsDefaultsToZero(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.EscrowStatsGet()
	require.NoError(t, err)
	require.Zero(t, stats.TotalSwaps)
	require.NotNil(t, stats.TotalVolume)

	stats.TotalSwaps = 7
	stats.TotalVolume = big.NewInt(12345)
	require.NoError(t, store.EscrowStatsPut(stats))

	got, err := store.EscrowStatsGet()
	require.NoError(t, err)
	require.EqualValues(t, 7, got.TotalSwaps)
	require.Zero(t, got.TotalVolume.Cmp(big.NewInt(12345)))
}

func TestSwapRoundTrip(t *testing.T) {
	store := newTestStore(t)

	record := &swap.CrossChainSwap{
		ID:        "swap-1",
		Initiator: "alice",
		Hashlock:  "00ff",
		TimelockA: 7200,
		TimelockB: 3600,
		Status:    swap.StatusLegAFilled,
	}
	require.NoError(t, store.SwapPut(record))
	require.NoError(t, store.SwapIndexAdd("alice", record.ID))

	got, found, err := store.SwapGet(record.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, swap.StatusLegAFilled, got.Status)

	ids, err := store.SwapsByAccount("alice")
	require.NoError(t, err)
	require.Equal(t, []string{record.ID}, ids)
}

func TestProviderCompositeKey(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.ProviderPut(&pool.Provider{
		Account: "lp", PoolID: "pool-1",
		Shares: big.NewInt(10), DepositedAmount: big.NewInt(10), ClaimedRewards: big.NewInt(0),
	}))
	require.NoError(t, store.ProviderPut(&pool.Provider{
		Account: "lp", PoolID: "pool-2",
		Shares: big.NewInt(20), DepositedAmount: big.NewInt(20), ClaimedRewards: big.NewInt(0),
	}))

	got, found, err := store.ProviderGet("pool-1", "lp")
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, got.Shares.Cmp(big.NewInt(10)))

	got, found, err = store.ProviderGet("pool-2", "lp")
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, got.Shares.Cmp(big.NewInt(20)))

	_, found, err = store.ProviderGet("pool-3", "lp")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRequestDeleteConsumesOnce(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.RequestPut(&solver.QuoteRequest{
		ID: "req-1", Requester: "alice",
		FromAmount: big.NewInt(1), MinToAmount: big.NewInt(1),
	}))

	deleted, err := store.RequestDelete("req-1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.RequestDelete("req-1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestPoolAndRewardRoundTrip(t *testing.T) {
	store := newTestStore(t)

	record := &pool.Pool{
		ID:                 "pool-1",
		Solver:             "solver-1",
		Token:              "USDC",
		TotalLiquidity:     big.NewInt(100),
		AvailableLiquidity: big.NewInt(60),
		TotalShares:        big.NewInt(100),
		FeeRateBps:         30,
		MinDeposit:         big.NewInt(1),
		MaxDeposit:         big.NewInt(1000),
		IsActive:           true,
	}
	require.NoError(t, store.PoolPut(record))
	require.NoError(t, store.PoolIndexAdd("solver-1", record.ID))
	require.NoError(t, store.RewardPut(&pool.Reward{
		PoolID: record.ID, TotalRewards: big.NewInt(50), DistributedRewards: big.NewInt(20),
	}))

	got, found, err := store.PoolGet(record.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, got.AvailableLiquidity.Cmp(big.NewInt(60)))

	reward, found, err := store.RewardGet(record.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, reward.TotalRewards.Cmp(big.NewInt(50)))

	ids, err := store.PoolsBySolver("solver-1")
	require.NoError(t, err)
	require.Equal(t, []string{record.ID}, ids)
}
