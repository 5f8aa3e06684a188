package escrow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"fusiond/core/events"
	"fusiond/crypto/hashlock"
	"fusiond/native/token"
)

type mockState struct {
	orders  map[string]*Order
	index   map[string][]string
	tokens  map[string]bool
	intents map[string]*TransferIntent
	stats   *Stats
}

func newMockState() *mockState {
	return &mockState{
		orders:  make(map[string]*Order),
		index:   make(map[string][]string),
		tokens:  make(map[string]bool),
		intents: make(map[string]*TransferIntent),
		stats:   (&Stats{}).Clone(),
	}
}

func (m *mockState) EscrowPut(o *Order) error {
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockState) EscrowGet(id string) (*Order, bool, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) EscrowIndexAdd(account, id string) error {
	m.index[account] = append(m.index[account], id)
	return nil
}

func (m *mockState) EscrowOrdersByAccount(account string) ([]string, error) {
	return append([]string(nil), m.index[account]...), nil
}

func (m *mockState) EscrowTokenPut(symbol string, allowed bool) error {
	m.tokens[symbol] = allowed
	return nil
}

func (m *mockState) EscrowTokenAllowed(symbol string) (bool, error) {
	return m.tokens[symbol], nil
}

func (m *mockState) EscrowStatsGet() (*Stats, error) { return m.stats.Clone(), nil }

func (m *mockState) EscrowStatsPut(s *Stats) error {
	m.stats = s.Clone()
	return nil
}

func (m *mockState) EscrowIntentPut(i *TransferIntent) error {
	m.intents[i.OrderID] = i.Clone()
	return nil
}

func (m *mockState) EscrowIntentGet(orderID string) (*TransferIntent, bool, error) {
	i, ok := m.intents[orderID]
	if !ok {
		return nil, false, nil
	}
	return i.Clone(), true, nil
}

func (m *mockState) EscrowIntentDelete(orderID string) error {
	delete(m.intents, orderID)
	return nil
}

// manualTransferer captures transfers and lets the test resolve them later,
// modelling an asset bridge that confirms asynchronously.
type manualTransferer struct {
	transfers []token.Transfer
	callbacks []token.Callback
}

func (m *manualTransferer) Transfer(_ context.Context, tr token.Transfer, done token.Callback) {
	m.transfers = append(m.transfers, tr)
	m.callbacks = append(m.callbacks, done)
}

func (m *manualTransferer) resolveLast(t *testing.T, err error) {
	t.Helper()
	if len(m.callbacks) == 0 {
		t.Fatal("no transfer pending")
	}
	cb := m.callbacks[len(m.callbacks)-1]
	m.callbacks = m.callbacks[:len(m.callbacks)-1]
	cb(err)
}

const (
	vaultAccount    = "escrow-vault"
	treasuryAccount = "fee-treasury"
)

func newTestEngine(t *testing.T) (*Engine, *mockState, *token.Ledger, *events.MemoryEmitter) {
	t.Helper()
	state := newMockState()
	ledger := token.NewLedger()
	engine := NewEngine(state, ledger, vaultAccount, treasuryAccount)
	emitter := &events.MemoryEmitter{}
	engine.SetEmitter(emitter)
	if err := engine.AllowToken("USDC"); err != nil {
		t.Fatalf("allow USDC: %v", err)
	}
	if err := engine.AllowToken("WNEAR"); err != nil {
		t.Fatalf("allow WNEAR: %v", err)
	}
	return engine, state, ledger, emitter
}

func newFundedOrder(t *testing.T, engine *Engine, ledger *token.Ledger, secret []byte) *Order {
	t.Helper()
	ledger.Mint("alice", "USDC", big.NewInt(1_000_000))
	order, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(500), hashlock.Compute(secret), 7200)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	funded, err := engine.Fund(context.Background(), order.ID, "alice")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if funded.Status != OrderFunded {
		t.Fatalf("status after fund = %s, want funded", funded.Status)
	}
	return funded
}

func TestCreateValidation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	lock := hashlock.Compute([]byte("s"))

	if _, err := engine.Create("alice", "alice", "USDC", "WNEAR", big.NewInt(1), big.NewInt(1), lock, 7200); !errors.Is(err, ErrInvalidParty) {
		t.Fatalf("same party: %v", err)
	}
	if _, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(0), big.NewInt(1), lock, 7200); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1), big.NewInt(1), lock, 60); !errors.Is(err, ErrInvalidTimelock) {
		t.Fatalf("short timelock: %v", err)
	}
	if _, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1), big.NewInt(1), lock, 100_000); !errors.Is(err, ErrInvalidTimelock) {
		t.Fatalf("long timelock: %v", err)
	}
	if _, err := engine.Create("alice", "bob", "DOGE", "WNEAR", big.NewInt(1), big.NewInt(1), lock, 7200); !errors.Is(err, ErrTokenNotAllowed) {
		t.Fatalf("disallowed token: %v", err)
	}
	if _, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1), big.NewInt(1), "zz", 7200); !errors.Is(err, hashlock.ErrInvalidHashlock) {
		t.Fatalf("malformed hashlock: %v", err)
	}
}

func TestCreateDerivesUniqueIDs(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	lock := hashlock.Compute([]byte("s"))

	first, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(10), big.NewInt(5), lock, 7200)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(10), big.NewInt(5), lock, 7200)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("identical orders share id %s", first.ID)
	}
	ids, err := engine.OrdersByAccount("alice")
	if err != nil {
		t.Fatalf("orders by account: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("maker index has %d entries, want 2", len(ids))
	}
}

func TestFundMovesAmountIntoVault(t *testing.T) {
	engine, _, ledger, emitter := newTestEngine(t)
	newFundedOrder(t, engine, ledger, []byte("secret"))

	if got := ledger.BalanceOf(vaultAccount, "USDC"); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("vault balance = %s, want 1000", got)
	}
	if got := ledger.BalanceOf("alice", "USDC"); got.Cmp(big.NewInt(999_000)) != 0 {
		t.Fatalf("maker balance = %s, want 999000", got)
	}
	last := emitter.Events[len(emitter.Events)-1]
	if last.Type != EventTypeOrderFunded {
		t.Fatalf("last event = %s, want %s", last.Type, EventTypeOrderFunded)
	}
}

func TestFundAuthorization(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	ledger.Mint("alice", "USDC", big.NewInt(1000))
	order, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(500), hashlock.Compute([]byte("s")), 7200)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Fund(context.Background(), order.ID, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("taker funding: %v", err)
	}
	if _, err := engine.Fund(context.Background(), "0xmissing", "alice"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("missing order: %v", err)
	}
}

func TestFundFailureLeavesOrderPending(t *testing.T) {
	engine, state, ledger, emitter := newTestEngine(t)
	// Maker holds nothing, so the vault transfer fails.
	order, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(500), hashlock.Compute([]byte("s")), 7200)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := engine.Fund(context.Background(), order.ID, "alice")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got.Status != OrderPending {
		t.Fatalf("status after failed fund = %s, want pending", got.Status)
	}
	if got := ledger.BalanceOf(vaultAccount, "USDC"); got.Sign() != 0 {
		t.Fatalf("vault credited despite failure: %s", got)
	}
	if len(state.intents) != 0 {
		t.Fatal("intent not cleared after failed transfer")
	}
	last := emitter.Events[len(emitter.Events)-1]
	if last.Type != EventTypeFundFailed {
		t.Fatalf("last event = %s, want %s", last.Type, EventTypeFundFailed)
	}
}

func TestClaimPaysTakerMinusFee(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	secret := []byte("the preimage")
	order := newFundedOrder(t, engine, ledger, secret)

	claimed, err := engine.Claim(context.Background(), order.ID, "bob", secret)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != OrderClaimed {
		t.Fatalf("status = %s, want claimed", claimed.Status)
	}
	// 1000 at 30 bps: fee 3, payout 997.
	if got := ledger.BalanceOf("bob", "USDC"); got.Cmp(big.NewInt(997)) != 0 {
		t.Fatalf("taker payout = %s, want 997", got)
	}
	if got := ledger.BalanceOf(treasuryAccount, "USDC"); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("treasury fee = %s, want 3", got)
	}
	if got := ledger.BalanceOf(vaultAccount, "USDC"); got.Sign() != 0 {
		t.Fatalf("vault residue = %s, want 0", got)
	}
	stats, err := engine.Statistics()
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalSwaps != 1 || stats.TotalVolume.Cmp(big.NewInt(1000)) != 0 || stats.TotalFees.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("stats = %d/%s/%s", stats.TotalSwaps, stats.TotalVolume, stats.TotalFees)
	}
}

func TestClaimRecordsSecret(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	secret := []byte("reveal me")
	order := newFundedOrder(t, engine, ledger, secret)

	claimed, err := engine.Claim(context.Background(), order.ID, "bob", secret)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Secret == "" {
		t.Fatal("claimed order does not expose the revealed secret")
	}
	if err := hashlock.Verify(claimed.Hashlock, secret); err != nil {
		t.Fatalf("recorded hashlock no longer matches: %v", err)
	}
}

func TestClaimRejectsWrongSecret(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	order := newFundedOrder(t, engine, ledger, []byte("right"))

	if _, err := engine.Claim(context.Background(), order.ID, "bob", []byte("wrong")); !errors.Is(err, ErrSecretMismatch) {
		t.Fatalf("wrong secret: %v", err)
	}
	got, err := engine.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderFunded {
		t.Fatalf("status after rejected claim = %s, want funded", got.Status)
	}
}

func TestClaimRejectsNonTaker(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	secret := []byte("s")
	order := newFundedOrder(t, engine, ledger, secret)

	if _, err := engine.Claim(context.Background(), order.ID, "mallory", secret); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-taker claim: %v", err)
	}
}

func TestClaimAfterExpiryRejected(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	secret := []byte("s")
	order := newFundedOrder(t, engine, ledger, secret)

	now += order.Timelock + 1
	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); !errors.Is(err, ErrTimelockExpired) {
		t.Fatalf("late claim: %v", err)
	}
}

func TestDoubleClaimRejected(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	secret := []byte("s")
	order := newFundedOrder(t, engine, ledger, secret)

	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second claim: %v", err)
	}
}

func TestRefundAfterExpiry(t *testing.T) {
	engine, _, ledger, emitter := newTestEngine(t)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	order := newFundedOrder(t, engine, ledger, []byte("s"))

	if _, err := engine.Refund(context.Background(), order.ID, "alice"); !errors.Is(err, ErrTimelockNotExpired) {
		t.Fatalf("early refund: %v", err)
	}

	now += order.Timelock
	refunded, err := engine.Refund(context.Background(), order.ID, "alice")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != OrderRefunded {
		t.Fatalf("status = %s, want refunded", refunded.Status)
	}
	if got := ledger.BalanceOf("alice", "USDC"); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("maker balance after refund = %s, want 1000000", got)
	}
	last := emitter.Events[len(emitter.Events)-1]
	if last.Type != EventTypeOrderRefunded {
		t.Fatalf("last event = %s, want %s", last.Type, EventTypeOrderRefunded)
	}
}

func TestClaimAfterRefundRejected(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	secret := []byte("s")
	order := newFundedOrder(t, engine, ledger, secret)

	now += order.Timelock
	if _, err := engine.Refund(context.Background(), order.ID, "alice"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("claim after refund: %v", err)
	}
}

func TestPendingTransferBlocksConcurrentTransition(t *testing.T) {
	state := newMockState()
	bridge := &manualTransferer{}
	engine := NewEngine(state, bridge, vaultAccount, treasuryAccount)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	if err := engine.AllowToken("USDC"); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	if err := engine.AllowToken("WNEAR"); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	secret := []byte("s")
	order, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(500), hashlock.Compute(secret), 7200)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Fund(context.Background(), order.ID, "alice"); err != nil {
		t.Fatalf("fund: %v", err)
	}
	bridge.resolveLast(t, nil)

	// Start a claim but leave its transfer unresolved.
	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); err != nil {
		t.Fatalf("claim: %v", err)
	}
	now += order.Timelock
	if _, err := engine.Refund(context.Background(), order.ID, "alice"); !errors.Is(err, ErrTransferPending) {
		t.Fatalf("refund during in-flight claim: %v", err)
	}
	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); !errors.Is(err, ErrTransferPending) {
		t.Fatalf("second claim during in-flight claim: %v", err)
	}

	bridge.resolveLast(t, nil)
	got, err := engine.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderClaimed {
		t.Fatalf("status after resolution = %s, want claimed", got.Status)
	}
}

func TestClaimTransferFailureRollsBack(t *testing.T) {
	state := newMockState()
	bridge := &manualTransferer{}
	engine := NewEngine(state, bridge, vaultAccount, treasuryAccount)
	if err := engine.AllowToken("USDC"); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	if err := engine.AllowToken("WNEAR"); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	secret := []byte("s")
	order, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(500), hashlock.Compute(secret), 7200)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Fund(context.Background(), order.ID, "alice"); err != nil {
		t.Fatalf("fund: %v", err)
	}
	bridge.resolveLast(t, nil)

	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); err != nil {
		t.Fatalf("claim: %v", err)
	}
	bridge.resolveLast(t, errors.New("bridge unavailable"))

	got, err := engine.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderFunded {
		t.Fatalf("status after failed payout = %s, want funded", got.Status)
	}
	stats, err := engine.Statistics()
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalSwaps != 0 {
		t.Fatalf("stats advanced despite failed payout: %d", stats.TotalSwaps)
	}
	// The order remains claimable once the bridge recovers.
	if _, err := engine.Claim(context.Background(), order.ID, "bob", secret); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	bridge.resolveLast(t, nil)
	got, err = engine.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderClaimed {
		t.Fatalf("status after retry = %s, want claimed", got.Status)
	}
}

func TestPendingOrderReadsExpired(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	order, err := engine.Create("alice", "bob", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(500), hashlock.Compute([]byte("s")), 3600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	now += 3601
	got, err := engine.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if _, err := engine.Fund(context.Background(), order.ID, "alice"); !errors.Is(err, ErrTimelockExpired) {
		t.Fatalf("fund expired order: %v", err)
	}
}

func TestSetFeeRateBounds(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if err := engine.SetFeeRate(MaxFeeRateBps + 1); !errors.Is(err, ErrFeeRateTooHigh) {
		t.Fatalf("oversized fee rate: %v", err)
	}
	if err := engine.SetFeeRate(100); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
}

func TestFeeOnRoundsDown(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint32
		want   int64
	}{
		{1000, 30, 3},
		{999, 30, 2},
		{1, 30, 0},
		{10_000, 1000, 1000},
	}
	for _, tc := range cases {
		if got := feeOn(big.NewInt(tc.amount), tc.bps); got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("feeOn(%d, %d) = %s, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}
