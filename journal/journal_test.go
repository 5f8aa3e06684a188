package journal

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fusiond/native/pool"
	"fusiond/native/solver"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.True(t, errors.Is(err, ErrPathRequired))
}

func TestPoolTransactionRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordPoolTransaction(ctx, pool.Transaction{
		ID: "tx-1", PoolID: "pool-1", Account: "lp", Kind: "deposit",
		Amount: big.NewInt(1000), Shares: big.NewInt(1000), CreatedAt: 100,
	}))
	require.NoError(t, j.RecordPoolTransaction(ctx, pool.Transaction{
		ID: "tx-2", PoolID: "pool-1", Account: "lp", Kind: "withdraw",
		Amount: big.NewInt(400), Shares: big.NewInt(400), CreatedAt: 200,
	}))
	require.NoError(t, j.RecordPoolTransaction(ctx, pool.Transaction{
		ID: "tx-3", PoolID: "pool-2", Account: "solver-1", Kind: "add_rewards",
		Amount: big.NewInt(50), CreatedAt: 300,
	}))

	entries, err := j.PoolTransactions(ctx, "pool-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "tx-2", entries[0].ID)
	require.Zero(t, entries[0].Amount.Cmp(big.NewInt(400)))
	require.Equal(t, "tx-1", entries[1].ID)

	entries, err = j.PoolTransactions(ctx, "pool-2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].Shares)
}

func TestFillRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordFill(ctx, solver.Order{
		ID: "order-1", QuoteID: "quote-1", Requester: "alice", Solver: "solver-1",
		PoolID: "pool-1", FromToken: "USDC", ToToken: "WNEAR",
		FromAmount: big.NewInt(1000), MinToAmount: big.NewInt(0), ToAmount: big.NewInt(1950),
		FeeBps: 50, Proof: "0xproof", UpdatedAt: 123,
	}))

	fills, err := j.FillsBySolver(ctx, "solver-1", 10)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	require.Equal(t, "order-1", fills[0].ID)
	require.Equal(t, "0xproof", fills[0].Proof)
	require.Zero(t, fills[0].ToAmount.Cmp(big.NewInt(1950)))
	require.Equal(t, solver.OrderFilled, fills[0].Status)

	fills, err = j.FillsBySolver(ctx, "nobody", 10)
	require.NoError(t, err)
	require.Empty(t, fills)
}
