package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fusiond/core/events"
	"fusiond/native/pool"
	"fusiond/oracle"
)

const (
	EventTypeSolverRegistered = "solver.registered"
	EventTypeQuoteRequested   = "solver.quote.requested"
	EventTypeQuoteProvided    = "solver.quote.provided"
	EventTypeOrderCreated     = "solver.order.created"
	EventTypeOrderFilled      = "solver.order.filled"
	EventTypeOrderCancelled   = "solver.order.cancelled"
	EventTypeOrderFailed      = "solver.order.failed"
)

// State is the persistence boundary for the solver registry and matcher.
// RequestDelete is the consumption primitive for first-committed-wins quote
// acceptance: it must report whether the record was present.
type State interface {
	SolverPut(*Solver) error
	SolverGet(account string) (*Solver, bool, error)
	RequestPut(*QuoteRequest) error
	RequestGet(id string) (*QuoteRequest, bool, error)
	RequestDelete(id string) (bool, error)
	QuotePut(*QuoteResponse) error
	QuoteGet(id string) (*QuoteResponse, bool, error)
	SolverOrderPut(*Order) error
	SolverOrderGet(id string) (*Order, bool, error)
	SolverOrderIndexAdd(account, id string) error
	SolverOrdersByAccount(account string) ([]string, error)
	SolverStatsGet() (*Stats, error)
	SolverStatsPut(*Stats) error
}

// Liquidity is the slice of the pool engine the matcher drives: quote-time
// ownership checks, inventory commitment at order creation, and release or
// consumption at settlement.
type Liquidity interface {
	CreatePool(solver, token string, feeRateBps uint32, minDeposit, maxDeposit *big.Int) (*pool.Pool, error)
	GetPool(poolID string) (*pool.Pool, error)
	Lock(poolID string, amount *big.Int) error
	Release(poolID string, amount *big.Int) error
	Consume(poolID string, amount *big.Int) error
}

// Journal receives settled fills for durable audit history.
type Journal interface {
	RecordFill(ctx context.Context, order Order) error
}

type noopJournal struct{}

func (noopJournal) RecordFill(context.Context, Order) error { return nil }

// Engine is the solver registry plus the quote/order matching layer. One
// mutex serializes matching, which makes quote consumption first-committed-
// wins: the first ProvideQuote to delete the pending request claims it and
// every later call observes NotFound.
type Engine struct {
	mu        sync.Mutex
	state     State
	liquidity Liquidity
	prices    oracle.Source
	emitter   events.Emitter
	journal   Journal
	minStake  *big.Int
	nowFn     func() int64
}

// NewEngine creates a solver engine. The oracle source may be nil, in which
// case requests carry no indicative amount.
func NewEngine(state State, liquidity Liquidity, prices oracle.Source) *Engine {
	return &Engine{
		state:     state,
		liquidity: liquidity,
		prices:    prices,
		emitter:   events.NoopEmitter{},
		journal:   noopJournal{},
		minStake:  big.NewInt(0),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetMinStake sets the stake a new registration must declare. Nil or negative
// resets the gate to zero.
func (e *Engine) SetMinStake(minStake *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if minStake == nil || minStake.Sign() < 0 {
		e.minStake = big.NewInt(0)
		return
	}
	e.minStake = new(big.Int).Set(minStake)
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetJournal configures the fill journal. Passing nil resets it to a no-op.
func (e *Engine) SetJournal(journal Journal) {
	if journal == nil {
		e.journal = noopJournal{}
		return
	}
	e.journal = journal
}

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) emit(eventType string, attrs map[string]string) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(&events.Event{Type: eventType, Attributes: attrs})
}

// RegisterSolver creates a registry entry. Duplicate registrations are
// rejected, as are registrations declaring less than the configured minimum
// stake. The stake is a declared bond; custody of it is the fronting ledger's
// concern, not this registry's.
func (e *Engine) RegisterSolver(account, name, metadata string, stake *big.Int) (*Solver, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	account = strings.TrimSpace(account)
	name = strings.TrimSpace(name)
	if account == "" || name == "" {
		return nil, fmt.Errorf("%w: account and name required", ErrUnauthorized)
	}
	if stake == nil {
		stake = big.NewInt(0)
	}
	if stake.Sign() < 0 {
		return nil, fmt.Errorf("%w: stake must not be negative", ErrInvalidAmount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if stake.Cmp(e.minStake) < 0 {
		return nil, fmt.Errorf("%w: minimum is %s", ErrInsufficientStake, e.minStake)
	}
	if _, exists, err := e.state.SolverGet(account); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrSolverExists
	}
	record := &Solver{
		Account:      account,
		Name:         name,
		Metadata:     strings.TrimSpace(metadata),
		Stake:        new(big.Int).Set(stake),
		IsActive:     true,
		TotalVolume:  big.NewInt(0),
		TotalFees:    big.NewInt(0),
		RegisteredAt: e.now(),
	}
	if err := e.state.SolverPut(record); err != nil {
		return nil, err
	}
	e.emit(EventTypeSolverRegistered, map[string]string{"solver": account, "name": name})
	return record.Clone(), nil
}

// SetSolverActive toggles the solver's own registry entry.
func (e *Engine) SetSolverActive(account string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	record, err := e.loadSolver(account)
	if err != nil {
		return err
	}
	record.IsActive = active
	return e.state.SolverPut(record)
}

// GetSolver returns a copy of the registry entry.
func (e *Engine) GetSolver(account string) (*Solver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadSolver(account)
}

// CreatePool binds a liquidity pool to a registered, active solver. The fee
// cap here is tighter than the pool layer's own bounds.
func (e *Engine) CreatePool(caller, tokenSymbol string, feeRateBps uint32, minDeposit, maxDeposit *big.Int) (*pool.Pool, error) {
	if e.liquidity == nil {
		return nil, ErrNilLiquidity
	}
	if feeRateBps > MaxSolverFeeBps {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, feeRateBps)
	}
	e.mu.Lock()
	record, err := e.loadSolver(caller)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !record.IsActive {
		e.mu.Unlock()
		return nil, ErrSolverInactive
	}
	e.mu.Unlock()
	return e.liquidity.CreatePool(caller, tokenSymbol, feeRateBps, minDeposit, maxDeposit)
}

// RequestQuote opens a pending request. When an oracle is configured its
// indicative amount is recorded on the request for solvers to price against.
func (e *Engine) RequestQuote(ctx context.Context, requester, fromToken, toToken string, fromAmount, minToAmount *big.Int, deadline int64) (*QuoteRequest, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return nil, fmt.Errorf("%w: requester required", ErrUnauthorized)
	}
	if fromAmount == nil || fromAmount.Sign() <= 0 || minToAmount == nil || minToAmount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if deadline <= e.now() {
		return nil, ErrDeadlinePassed
	}
	request := &QuoteRequest{
		ID:          uuid.NewString(),
		Requester:   requester,
		FromToken:   strings.ToUpper(strings.TrimSpace(fromToken)),
		ToToken:     strings.ToUpper(strings.TrimSpace(toToken)),
		FromAmount:  new(big.Int).Set(fromAmount),
		MinToAmount: new(big.Int).Set(minToAmount),
		Deadline:    deadline,
		CreatedAt:   e.now(),
	}
	if e.prices != nil {
		if quote, err := e.prices.Quote(ctx, request.FromToken, request.ToToken, request.FromAmount); err == nil {
			request.IndicativeToAmount = quote.ToAmount
		} else {
			slog.Debug("solver: no indicative quote", "pair", request.FromToken+"/"+request.ToToken, "error", err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.RequestPut(request); err != nil {
		return nil, err
	}
	e.emit(EventTypeQuoteRequested, map[string]string{
		"requestId":  request.ID,
		"requester":  requester,
		"fromToken":  request.FromToken,
		"toToken":    request.ToToken,
		"fromAmount": request.FromAmount.String(),
	})
	return request.Clone(), nil
}

// ProvideQuote prices a pending request. The request is consumed atomically
// under the engine lock, so exactly one quote wins; later calls fail with
// ErrRequestNotFound.
func (e *Engine) ProvideQuote(caller, requestID, poolID string, toAmount *big.Int, feeBps uint32) (*QuoteResponse, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.liquidity == nil {
		return nil, ErrNilLiquidity
	}
	if toAmount == nil || toAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if feeBps > MaxSolverFeeBps {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, feeBps)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record, err := e.loadSolver(caller)
	if err != nil {
		return nil, err
	}
	if !record.IsActive {
		return nil, ErrSolverInactive
	}
	poolRecord, err := e.liquidity.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if poolRecord.Solver != record.Account {
		return nil, ErrPoolNotOwned
	}
	if !poolRecord.IsActive {
		return nil, pool.ErrPoolInactive
	}
	request, found, err := e.state.RequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrRequestNotFound
	}
	if e.now() > request.Deadline {
		return nil, ErrDeadlinePassed
	}
	if toAmount.Cmp(request.MinToAmount) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrQuoteBelowMinimum, toAmount, request.MinToAmount)
	}
	deleted, err := e.state.RequestDelete(requestID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, ErrRequestNotFound
	}
	quote := &QuoteResponse{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Requester:  request.Requester,
		Solver:     record.Account,
		PoolID:     poolID,
		FromToken:  request.FromToken,
		ToToken:    request.ToToken,
		FromAmount: copyBigInt(request.FromAmount),
		ToAmount:   new(big.Int).Set(toAmount),
		FeeBps:     feeBps,
		Deadline:   request.Deadline,
		CreatedAt:  e.now(),
	}
	if err := e.state.QuotePut(quote); err != nil {
		return nil, err
	}
	e.emit(EventTypeQuoteProvided, map[string]string{
		"quoteId":   quote.ID,
		"requestId": requestID,
		"solver":    record.Account,
		"poolId":    poolID,
		"toAmount":  toAmount.String(),
	})
	return quote.Clone(), nil
}

// CreateOrder binds an accepted quote to a pending order and commits the
// quoted output in the solver's pool.
func (e *Engine) CreateOrder(caller, quoteID string) (*Order, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.liquidity == nil {
		return nil, ErrNilLiquidity
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	quote, found, err := e.state.QuoteGet(quoteID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrQuoteNotFound
	}
	if quote.Consumed {
		return nil, ErrQuoteConsumed
	}
	if caller != quote.Requester {
		return nil, fmt.Errorf("%w: only the requester may accept a quote", ErrUnauthorized)
	}
	if e.now() > quote.Deadline {
		return nil, ErrDeadlinePassed
	}
	if err := e.liquidity.Lock(quote.PoolID, quote.ToAmount); err != nil {
		return nil, err
	}
	now := e.now()
	order := &Order{
		ID:          uuid.NewString(),
		QuoteID:     quote.ID,
		Requester:   quote.Requester,
		Solver:      quote.Solver,
		PoolID:      quote.PoolID,
		FromToken:   quote.FromToken,
		ToToken:     quote.ToToken,
		FromAmount:  copyBigInt(quote.FromAmount),
		MinToAmount: big.NewInt(0),
		ToAmount:    copyBigInt(quote.ToAmount),
		FeeBps:      quote.FeeBps,
		Deadline:    quote.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      OrderPending,
	}
	quote = quote.Clone()
	quote.Consumed = true
	if err := e.state.QuotePut(quote); err != nil {
		return nil, err
	}
	if err := e.state.SolverOrderPut(order); err != nil {
		return nil, err
	}
	if err := e.state.SolverOrderIndexAdd(order.Requester, order.ID); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderCreated, map[string]string{
		"orderId": order.ID,
		"quoteId": quote.ID,
		"solver":  order.Solver,
		"poolId":  order.PoolID,
	})
	return order.Clone(), nil
}

// ExecuteOrder settles a pending order: the locked output leaves the pool,
// the order is marked filled, and solver plus global statistics advance.
func (e *Engine) ExecuteOrder(ctx context.Context, caller, orderID, proof string) (*Order, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.liquidity == nil {
		return nil, ErrNilLiquidity
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderPending {
		return nil, fmt.Errorf("%w: cannot execute %s order", ErrInvalidState, order.Status)
	}
	if caller != order.Solver {
		return nil, fmt.Errorf("%w: only the assigned solver may execute", ErrUnauthorized)
	}
	if e.now() > order.Deadline {
		return nil, ErrDeadlinePassed
	}
	if err := e.liquidity.Consume(order.PoolID, order.ToAmount); err != nil {
		return nil, err
	}
	order.Status = OrderFilled
	order.Proof = strings.TrimSpace(proof)
	order.UpdatedAt = e.now()
	if err := e.state.SolverOrderPut(order); err != nil {
		return nil, err
	}
	fee := feeOn(order.ToAmount, order.FeeBps)
	record, err := e.loadSolver(order.Solver)
	if err == nil {
		record.TotalSolves++
		record.TotalVolume.Add(record.TotalVolume, copyBigInt(order.FromAmount))
		record.TotalFees.Add(record.TotalFees, fee)
		record.recomputeSuccessRate()
		if err := e.state.SolverPut(record); err != nil {
			slog.Error("solver: persist solver stats", "solver", order.Solver, "error", err)
		}
	}
	stats, err := e.state.SolverStatsGet()
	if err == nil {
		stats = stats.Clone()
		stats.TotalOrders++
		stats.TotalVolume.Add(stats.TotalVolume, copyBigInt(order.FromAmount))
		stats.TotalFees.Add(stats.TotalFees, fee)
		if err := e.state.SolverStatsPut(stats); err != nil {
			slog.Error("solver: persist global stats", "error", err)
		}
	}
	if err := e.journal.RecordFill(ctx, *order.Clone()); err != nil {
		slog.Warn("solver: journal fill failed", "order", order.ID, "error", err)
	}
	e.emit(EventTypeOrderFilled, map[string]string{
		"orderId":  order.ID,
		"solver":   order.Solver,
		"toToken":  order.ToToken,
		"toAmount": order.ToAmount.String(),
		"fee":      fee.String(),
	})
	return order.Clone(), nil
}

// CancelOrder releases the committed liquidity and closes a pending order.
// Either side may cancel.
func (e *Engine) CancelOrder(caller, orderID, reason string) (*Order, error) {
	return e.abort(caller, orderID, reason, OrderCancelled, EventTypeOrderCancelled, false)
}

// FailOrder marks a pending order failed, releasing liquidity and counting
// against the solver's success rate. Only the assigned solver may report
// failure.
func (e *Engine) FailOrder(caller, orderID, reason string) (*Order, error) {
	return e.abort(caller, orderID, reason, OrderFailed, EventTypeOrderFailed, true)
}

func (e *Engine) abort(caller, orderID, reason string, status OrderStatus, eventType string, solverOnly bool) (*Order, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.liquidity == nil {
		return nil, ErrNilLiquidity
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderPending {
		return nil, fmt.Errorf("%w: cannot close %s order", ErrInvalidState, order.Status)
	}
	if solverOnly {
		if caller != order.Solver {
			return nil, fmt.Errorf("%w: only the assigned solver may report failure", ErrUnauthorized)
		}
	} else if caller != order.Requester && caller != order.Solver {
		return nil, fmt.Errorf("%w: only requester or solver may cancel", ErrUnauthorized)
	}
	if err := e.liquidity.Release(order.PoolID, order.ToAmount); err != nil {
		return nil, err
	}
	order.Status = status
	order.Reason = strings.TrimSpace(reason)
	order.UpdatedAt = e.now()
	if err := e.state.SolverOrderPut(order); err != nil {
		return nil, err
	}
	if status == OrderFailed {
		if record, err := e.loadSolver(order.Solver); err == nil {
			record.FailedSolves++
			record.recomputeSuccessRate()
			if err := e.state.SolverPut(record); err != nil {
				slog.Error("solver: persist solver stats", "solver", order.Solver, "error", err)
			}
		}
	}
	e.emit(eventType, map[string]string{"orderId": order.ID, "reason": order.Reason})
	return order.Clone(), nil
}

// GetOrder returns a copy of the order. A pending order past its deadline
// reads as expired; the stored record is not rewritten and its liquidity is
// reclaimed when the order is cancelled or failed.
func (e *Engine) GetOrder(orderID string) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == OrderPending && e.now() > order.Deadline {
		order.Status = OrderExpired
	}
	return order, nil
}

// GetQuote returns a copy of a stored quote.
func (e *Engine) GetQuote(quoteID string) (*QuoteResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	quote, found, err := e.state.QuoteGet(quoteID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrQuoteNotFound
	}
	return quote.Clone(), nil
}

// OrdersByAccount returns the ids of orders requested by the account.
func (e *Engine) OrdersByAccount(account string) ([]string, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.SolverOrdersByAccount(strings.TrimSpace(account))
}

// Statistics returns the aggregate matching activity.
func (e *Engine) Statistics() (*Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	stats, err := e.state.SolverStatsGet()
	if err != nil {
		return nil, err
	}
	return stats.Clone(), nil
}

func (e *Engine) loadSolver(account string) (*Solver, error) {
	record, ok, err := e.state.SolverGet(strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSolverNotFound
	}
	return record.Clone(), nil
}

func (e *Engine) loadOrder(orderID string) (*Order, error) {
	record, ok, err := e.state.SolverOrderGet(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return record.Clone(), nil
}

func feeOn(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(copyBigInt(amount), new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}
