package solver

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"testing"

	"fusiond/native/pool"
	"fusiond/oracle"
)

type mockState struct {
	solvers  map[string]*Solver
	requests map[string]*QuoteRequest
	quotes   map[string]*QuoteResponse
	orders   map[string]*Order
	index    map[string][]string
	stats    *Stats
}

func newMockState() *mockState {
	return &mockState{
		solvers:  make(map[string]*Solver),
		requests: make(map[string]*QuoteRequest),
		quotes:   make(map[string]*QuoteResponse),
		orders:   make(map[string]*Order),
		index:    make(map[string][]string),
		stats:    (&Stats{}).Clone(),
	}
}

func (m *mockState) SolverPut(s *Solver) error {
	m.solvers[s.Account] = s.Clone()
	return nil
}

func (m *mockState) SolverGet(account string) (*Solver, bool, error) {
	s, ok := m.solvers[account]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) RequestPut(r *QuoteRequest) error {
	m.requests[r.ID] = r.Clone()
	return nil
}

func (m *mockState) RequestGet(id string) (*QuoteRequest, bool, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *mockState) RequestDelete(id string) (bool, error) {
	if _, ok := m.requests[id]; !ok {
		return false, nil
	}
	delete(m.requests, id)
	return true, nil
}

func (m *mockState) QuotePut(q *QuoteResponse) error {
	m.quotes[q.ID] = q.Clone()
	return nil
}

func (m *mockState) QuoteGet(id string) (*QuoteResponse, bool, error) {
	q, ok := m.quotes[id]
	if !ok {
		return nil, false, nil
	}
	return q.Clone(), true, nil
}

func (m *mockState) SolverOrderPut(o *Order) error {
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockState) SolverOrderGet(id string) (*Order, bool, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) SolverOrderIndexAdd(account, id string) error {
	m.index[account] = append(m.index[account], id)
	return nil
}

func (m *mockState) SolverOrdersByAccount(account string) ([]string, error) {
	return append([]string(nil), m.index[account]...), nil
}

func (m *mockState) SolverStatsGet() (*Stats, error) { return m.stats.Clone(), nil }

func (m *mockState) SolverStatsPut(s *Stats) error {
	m.stats = s.Clone()
	return nil
}

// fakeLiquidity models the pool engine's locking surface with plain maps.
type fakeLiquidity struct {
	pools    map[string]*pool.Pool
	locked   map[string]*big.Int
	nextID   int
	released []*big.Int
	consumed []*big.Int
}

func newFakeLiquidity() *fakeLiquidity {
	return &fakeLiquidity{pools: make(map[string]*pool.Pool), locked: make(map[string]*big.Int)}
}

func (f *fakeLiquidity) CreatePool(solver, token string, feeRateBps uint32, minDeposit, maxDeposit *big.Int) (*pool.Pool, error) {
	if feeRateBps < pool.MinFeeRateBps || feeRateBps > pool.MaxFeeRateBps {
		return nil, pool.ErrInvalidFeeRate
	}
	f.nextID++
	record := &pool.Pool{
		ID:                 "pool-" + strconv.Itoa(f.nextID),
		Solver:             solver,
		Token:              token,
		TotalLiquidity:     big.NewInt(0),
		AvailableLiquidity: big.NewInt(0),
		TotalShares:        big.NewInt(0),
		FeeRateBps:         feeRateBps,
		MinDeposit:         minDeposit,
		MaxDeposit:         maxDeposit,
		IsActive:           true,
	}
	f.pools[record.ID] = record
	f.locked[record.ID] = big.NewInt(0)
	return record.Clone(), nil
}

func (f *fakeLiquidity) fund(poolID string, amount int64) {
	p := f.pools[poolID]
	p.TotalLiquidity.Add(p.TotalLiquidity, big.NewInt(amount))
	p.AvailableLiquidity.Add(p.AvailableLiquidity, big.NewInt(amount))
}

func (f *fakeLiquidity) GetPool(poolID string) (*pool.Pool, error) {
	p, ok := f.pools[poolID]
	if !ok {
		return nil, pool.ErrPoolNotFound
	}
	return p.Clone(), nil
}

func (f *fakeLiquidity) Lock(poolID string, amount *big.Int) error {
	p, ok := f.pools[poolID]
	if !ok {
		return pool.ErrPoolNotFound
	}
	if amount.Cmp(p.AvailableLiquidity) > 0 {
		return pool.ErrInsufficientLiquidity
	}
	p.AvailableLiquidity.Sub(p.AvailableLiquidity, amount)
	f.locked[poolID].Add(f.locked[poolID], amount)
	return nil
}

func (f *fakeLiquidity) Release(poolID string, amount *big.Int) error {
	p, ok := f.pools[poolID]
	if !ok {
		return pool.ErrPoolNotFound
	}
	p.AvailableLiquidity.Add(p.AvailableLiquidity, amount)
	f.locked[poolID].Sub(f.locked[poolID], amount)
	f.released = append(f.released, new(big.Int).Set(amount))
	return nil
}

func (f *fakeLiquidity) Consume(poolID string, amount *big.Int) error {
	p, ok := f.pools[poolID]
	if !ok {
		return pool.ErrPoolNotFound
	}
	if amount.Cmp(f.locked[poolID]) > 0 {
		return pool.ErrInsufficientLiquidity
	}
	p.TotalLiquidity.Sub(p.TotalLiquidity, amount)
	f.locked[poolID].Sub(f.locked[poolID], amount)
	f.consumed = append(f.consumed, new(big.Int).Set(amount))
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeLiquidity, *int64) {
	t.Helper()
	now := int64(1_700_000_000)
	liquidity := newFakeLiquidity()
	prices := oracle.NewStatic(0)
	prices.SetRate("USDC", "WNEAR", big.NewInt(2_000_000))
	engine := NewEngine(newMockState(), liquidity, prices)
	engine.SetNowFunc(func() int64 { return now })
	return engine, liquidity, &now
}

func registerAndPool(t *testing.T, engine *Engine, liquidity *fakeLiquidity) *pool.Pool {
	t.Helper()
	if _, err := engine.RegisterSolver("solver-1", "Acme Fills", "", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	record, err := engine.CreatePool("solver-1", "WNEAR", 50, big.NewInt(100), big.NewInt(10_000_000))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	liquidity.fund(record.ID, 5_000_000)
	return record
}

func openRequest(t *testing.T, engine *Engine, now int64) *QuoteRequest {
	t.Helper()
	request, err := engine.RequestQuote(context.Background(), "alice", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(1900), now+600)
	if err != nil {
		t.Fatalf("request quote: %v", err)
	}
	return request
}

func TestRegisterSolverRejectsDuplicates(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.RegisterSolver("solver-1", "Acme", "", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.RegisterSolver("solver-1", "Acme Again", "", nil); !errors.Is(err, ErrSolverExists) {
		t.Fatalf("duplicate register: %v", err)
	}
}

func TestRegisterSolverMinStake(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.SetMinStake(big.NewInt(1_000))
	if _, err := engine.RegisterSolver("solver-1", "Acme", "", big.NewInt(999)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("underfunded register: %v", err)
	}
	record, err := engine.RegisterSolver("solver-1", "Acme", "", big.NewInt(1_000))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if record.Stake.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("stake = %s, want 1000", record.Stake)
	}
	if _, err := engine.RegisterSolver("solver-2", "Rival", "", big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative stake: %v", err)
	}
}

func TestCreatePoolRequiresActiveSolver(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.CreatePool("ghost", "WNEAR", 50, big.NewInt(1), big.NewInt(10)); !errors.Is(err, ErrSolverNotFound) {
		t.Fatalf("unregistered solver: %v", err)
	}
	if _, err := engine.RegisterSolver("solver-1", "Acme", "", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.CreatePool("solver-1", "WNEAR", MaxSolverFeeBps+1, big.NewInt(1), big.NewInt(10)); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("oversized fee: %v", err)
	}
	if err := engine.SetSolverActive("solver-1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := engine.CreatePool("solver-1", "WNEAR", 50, big.NewInt(1), big.NewInt(10)); !errors.Is(err, ErrSolverInactive) {
		t.Fatalf("inactive solver: %v", err)
	}
}

func TestRequestQuoteCarriesIndicativeAmount(t *testing.T) {
	engine, _, now := newTestEngine(t)
	request := openRequest(t, engine, *now)
	if request.IndicativeToAmount == nil || request.IndicativeToAmount.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("indicative amount = %v, want 2000", request.IndicativeToAmount)
	}
	if _, err := engine.RequestQuote(context.Background(), "alice", "USDC", "WNEAR", big.NewInt(1000), big.NewInt(0), *now); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("past deadline: %v", err)
	}
}

func TestProvideQuoteConsumesRequest(t *testing.T) {
	engine, liquidity, now := newTestEngine(t)
	record := registerAndPool(t, engine, liquidity)
	request := openRequest(t, engine, *now)

	quote, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1950), 50)
	if err != nil {
		t.Fatalf("provide quote: %v", err)
	}
	if quote.RequestID != request.ID || quote.Solver != "solver-1" {
		t.Fatalf("quote = %+v", quote)
	}
	// The pending request is consumed: a second quote for it loses.
	if _, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1960), 50); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("second quote: %v", err)
	}
}

func TestProvideQuoteValidation(t *testing.T) {
	engine, liquidity, now := newTestEngine(t)
	record := registerAndPool(t, engine, liquidity)
	request := openRequest(t, engine, *now)

	if _, err := engine.ProvideQuote("ghost", request.ID, record.ID, big.NewInt(1950), 50); !errors.Is(err, ErrSolverNotFound) {
		t.Fatalf("unregistered solver: %v", err)
	}
	if _, err := engine.RegisterSolver("solver-2", "Rival", "", nil); err != nil {
		t.Fatalf("register rival: %v", err)
	}
	if _, err := engine.ProvideQuote("solver-2", request.ID, record.ID, big.NewInt(1950), 50); !errors.Is(err, ErrPoolNotOwned) {
		t.Fatalf("foreign pool: %v", err)
	}
	if _, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1800), 50); !errors.Is(err, ErrQuoteBelowMinimum) {
		t.Fatalf("below minimum: %v", err)
	}
	*now = request.Deadline + 1
	if _, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1950), 50); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("late quote: %v", err)
	}
}

func TestOrderLifecycleFill(t *testing.T) {
	engine, liquidity, now := newTestEngine(t)
	record := registerAndPool(t, engine, liquidity)
	request := openRequest(t, engine, *now)
	quote, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1950), 50)
	if err != nil {
		t.Fatalf("provide quote: %v", err)
	}

	if _, err := engine.CreateOrder("mallory", quote.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign accept: %v", err)
	}
	order, err := engine.CreateOrder("alice", quote.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != OrderPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
	// The quoted output is committed in the pool.
	got, _ := liquidity.GetPool(record.ID)
	if got.AvailableLiquidity.Cmp(big.NewInt(4_998_050)) != 0 {
		t.Fatalf("available after lock = %s", got.AvailableLiquidity)
	}
	// A quote binds to at most one order.
	if _, err := engine.CreateOrder("alice", quote.ID); !errors.Is(err, ErrQuoteConsumed) {
		t.Fatalf("re-accept quote: %v", err)
	}

	if _, err := engine.ExecuteOrder(context.Background(), "alice", order.ID, "tx"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("requester execute: %v", err)
	}
	filled, err := engine.ExecuteOrder(context.Background(), "solver-1", order.ID, "0xproof")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if filled.Status != OrderFilled || filled.Proof != "0xproof" {
		t.Fatalf("filled = %+v", filled)
	}
	if len(liquidity.consumed) != 1 || liquidity.consumed[0].Cmp(big.NewInt(1950)) != 0 {
		t.Fatalf("consumed = %v", liquidity.consumed)
	}
	if _, err := engine.ExecuteOrder(context.Background(), "solver-1", order.ID, "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("re-execute: %v", err)
	}

	solver, err := engine.GetSolver("solver-1")
	if err != nil {
		t.Fatalf("get solver: %v", err)
	}
	if solver.TotalSolves != 1 || solver.TotalVolume.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("solver stats = %+v", solver)
	}
	if solver.SuccessRate != 1.0 {
		t.Fatalf("success rate = %f", solver.SuccessRate)
	}
	stats, err := engine.Statistics()
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	// Fee on 1950 at 50 bps rounds down to 9.
	if stats.TotalOrders != 1 || stats.TotalFees.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("global stats = %+v", stats)
	}
}

func TestCancelReleasesLiquidity(t *testing.T) {
	engine, liquidity, now := newTestEngine(t)
	record := registerAndPool(t, engine, liquidity)
	request := openRequest(t, engine, *now)
	quote, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1950), 50)
	if err != nil {
		t.Fatalf("provide quote: %v", err)
	}
	order, err := engine.CreateOrder("alice", quote.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := engine.CancelOrder("mallory", order.ID, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign cancel: %v", err)
	}
	cancelled, err := engine.CancelOrder("alice", order.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != OrderCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	got, _ := liquidity.GetPool(record.ID)
	if got.AvailableLiquidity.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("liquidity not released: %s", got.AvailableLiquidity)
	}
	if _, err := engine.ExecuteOrder(context.Background(), "solver-1", order.ID, "tx"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("execute cancelled order: %v", err)
	}
}

func TestFailOrderCountsAgainstSuccessRate(t *testing.T) {
	engine, liquidity, now := newTestEngine(t)
	record := registerAndPool(t, engine, liquidity)
	request := openRequest(t, engine, *now)
	quote, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1950), 50)
	if err != nil {
		t.Fatalf("provide quote: %v", err)
	}
	order, err := engine.CreateOrder("alice", quote.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := engine.FailOrder("alice", order.ID, "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("requester fail: %v", err)
	}
	if _, err := engine.FailOrder("solver-1", order.ID, "bridge down"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	solver, err := engine.GetSolver("solver-1")
	if err != nil {
		t.Fatalf("get solver: %v", err)
	}
	if solver.FailedSolves != 1 || solver.SuccessRate != 0 {
		t.Fatalf("solver stats = %+v", solver)
	}
}

func TestExpiredOrderReadsExpired(t *testing.T) {
	engine, liquidity, now := newTestEngine(t)
	record := registerAndPool(t, engine, liquidity)
	request := openRequest(t, engine, *now)
	quote, err := engine.ProvideQuote("solver-1", request.ID, record.ID, big.NewInt(1950), 50)
	if err != nil {
		t.Fatalf("provide quote: %v", err)
	}
	order, err := engine.CreateOrder("alice", quote.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	*now = order.Deadline + 1
	got, err := engine.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if _, err := engine.ExecuteOrder(context.Background(), "solver-1", order.ID, "tx"); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("late execute: %v", err)
	}
	// Cancelling the expired order reclaims its liquidity.
	if _, err := engine.CancelOrder("solver-1", order.ID, "deadline passed"); err != nil {
		t.Fatalf("cancel expired: %v", err)
	}
}
