package pool

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
	"fusiond/native/token"
)

const (
	EventTypePoolCreated       = "pool.created"
	EventTypePoolDeposit       = "pool.deposit"
	EventTypePoolWithdraw      = "pool.withdraw"
	EventTypeRewardsAdded      = "pool.rewards_added"
	EventTypeRewardsClaimed    = "pool.rewards_claimed"
	EventTypeLiquidityLocked   = "pool.liquidity_locked"
	EventTypeLiquidityReleased = "pool.liquidity_released"
	EventTypeLiquidityConsumed = "pool.liquidity_consumed"
	EventTypeTransferFailed    = "pool.transfer_failed"
)

// State is the persistence boundary for the pool engine. Provider records are
// keyed by (pool, account).
type State interface {
	PoolPut(*Pool) error
	PoolGet(id string) (*Pool, bool, error)
	PoolIndexAdd(solver, id string) error
	PoolsBySolver(solver string) ([]string, error)
	ProviderPut(*Provider) error
	ProviderGet(poolID, account string) (*Provider, bool, error)
	RewardPut(*Reward) error
	RewardGet(poolID string) (*Reward, bool, error)
	PoolIntentPut(*TransferIntent) error
	PoolIntentGet(poolID string) (*TransferIntent, bool, error)
	PoolIntentDelete(poolID string) error
}

// Journal receives settled pool transactions for durable audit history.
type Journal interface {
	RecordPoolTransaction(ctx context.Context, tx Transaction) error
}

type noopJournal struct{}

func (noopJournal) RecordPoolTransaction(context.Context, Transaction) error { return nil }

// Engine owns share-based liquidity pool accounting. Deposits, withdrawals
// and reward flows follow the same staged-transfer protocol as the escrow
// engine: bookkeeping commits only in the transfer's resolution callback, and
// a pending transfer blocks every other mutation of the same pool so amounts
// computed at stage time stay valid through resolution.
type Engine struct {
	mu        sync.Mutex
	state     State
	transfers token.Transferer
	emitter   events.Emitter
	journal   Journal
	vault     string
	nowFn     func() int64
}

// NewEngine creates a pool engine with a no-op journal and event emitter.
func NewEngine(state State, transfers token.Transferer, vault string) *Engine {
	return &Engine{
		state:     state,
		transfers: transfers,
		emitter:   events.NoopEmitter{},
		journal:   noopJournal{},
		vault:     strings.TrimSpace(vault),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetJournal configures the transaction journal. Passing nil resets it to a
// no-op. Journal failures are logged, never propagated: the journal is an
// audit trail, not the source of truth.
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

func (e *Engine) emit(eventType, poolID string, attrs map[string]string) {
	if e.emitter == nil {
		return
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["poolId"] = poolID
	e.emitter.Emit(&events.Event{Type: eventType, Attributes: attrs})
}

func (e *Engine) record(ctx context.Context, kind, poolID, account string, amount, shares *big.Int) {
	tx := Transaction{
		ID:        uuid.NewString(),
		PoolID:    poolID,
		Account:   account,
		Kind:      kind,
		Amount:    copyBigInt(amount),
		CreatedAt: e.now(),
	}
	if shares != nil {
		tx.Shares = new(big.Int).Set(shares)
	}
	if err := e.journal.RecordPoolTransaction(ctx, tx); err != nil {
		slog.Warn("pool: journal write failed", "pool", poolID, "kind", kind, "error", err)
	}
}

// CreatePool registers a new pool for a solver. Solver-registry checks live
// in the solver engine; this layer only validates the pool parameters.
func (e *Engine) CreatePool(solver, tokenSymbol string, feeRateBps uint32, minDeposit, maxDeposit *big.Int) (*Pool, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	solver = strings.TrimSpace(solver)
	tokenSymbol = strings.ToUpper(strings.TrimSpace(tokenSymbol))
	if solver == "" || tokenSymbol == "" {
		return nil, ErrInvalidDepositBounds
	}
	if feeRateBps < MinFeeRateBps || feeRateBps > MaxFeeRateBps {
		return nil, fmt.Errorf("%w: %d bps", ErrInvalidFeeRate, feeRateBps)
	}
	if minDeposit == nil || minDeposit.Sign() <= 0 || maxDeposit == nil || minDeposit.Cmp(maxDeposit) > 0 {
		return nil, ErrInvalidDepositBounds
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record := &Pool{
		ID:                 uuid.NewString(),
		Solver:             solver,
		Token:              tokenSymbol,
		TotalLiquidity:     big.NewInt(0),
		AvailableLiquidity: big.NewInt(0),
		TotalShares:        big.NewInt(0),
		FeeRateBps:         feeRateBps,
		MinDeposit:         new(big.Int).Set(minDeposit),
		MaxDeposit:         new(big.Int).Set(maxDeposit),
		IsActive:           true,
		CreatedAt:          e.now(),
	}
	if err := e.state.PoolPut(record); err != nil {
		return nil, err
	}
	if err := e.state.PoolIndexAdd(solver, record.ID); err != nil {
		return nil, err
	}
	if err := e.state.RewardPut(&Reward{PoolID: record.ID, TotalRewards: big.NewInt(0), DistributedRewards: big.NewInt(0)}); err != nil {
		return nil, err
	}
	e.emit(EventTypePoolCreated, record.ID, map[string]string{"solver": solver, "token": tokenSymbol})
	return record.Clone(), nil
}

// SetActive toggles a pool. Only the owning solver may do so.
func (e *Engine) SetActive(caller, poolID string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if caller != record.Solver {
		return ErrUnauthorized
	}
	record.IsActive = active
	return e.state.PoolPut(record)
}

// Deposit stages a liquidity deposit: the provider's funds move into the
// vault and shares are minted in the resolution callback at the exchange
// ratio captured here.
func (e *Engine) Deposit(ctx context.Context, poolID, account string, amount *big.Int) error {
	transfer, err := e.stageDeposit(poolID, account, amount)
	if err != nil {
		return err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveDeposit(ctx, poolID, terr) })
	return nil
}

func (e *Engine) stageDeposit(poolID, account string, amount *big.Int) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	account = strings.TrimSpace(account)
	if account == "" || amount == nil || amount.Sign() <= 0 {
		return token.Transfer{}, ErrInvalidAmount
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return token.Transfer{}, err
	}
	if !record.IsActive {
		return token.Transfer{}, ErrPoolInactive
	}
	if amount.Cmp(record.MinDeposit) < 0 || amount.Cmp(record.MaxDeposit) > 0 {
		return token.Transfer{}, fmt.Errorf("%w: [%s, %s]", ErrDepositOutOfBounds, record.MinDeposit, record.MaxDeposit)
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return token.Transfer{}, err
	}
	shares := sharesForDeposit(amount, record.TotalShares, record.TotalLiquidity)
	if shares.Sign() <= 0 {
		// Truncation would mint nothing; the deposit would be donated to
		// existing share holders.
		return token.Transfer{}, ErrInvalidAmount
	}
	intent := &TransferIntent{
		PoolID:    poolID,
		Account:   account,
		Kind:      IntentDeposit,
		Amount:    new(big.Int).Set(amount),
		Shares:    shares,
		CreatedAt: e.now(),
	}
	if err := e.state.PoolIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   account,
		To:     e.vault,
		Token:  record.Token,
		Amount: new(big.Int).Set(amount),
		Memo:   "pool deposit " + poolID,
	}, nil
}

func (e *Engine) resolveDeposit(ctx context.Context, poolID string, terr error) {
	e.mu.Lock()
	intent, ok := e.takeIntent(poolID)
	if !ok {
		e.mu.Unlock()
		return
	}
	if terr != nil {
		e.mu.Unlock()
		slog.Warn("pool: deposit transfer failed", "pool", poolID, "error", terr)
		e.emit(EventTypeTransferFailed, poolID, map[string]string{"kind": intent.Kind.String(), "error": terr.Error()})
		return
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		e.mu.Unlock()
		slog.Error("pool: resolve deposit", "pool", poolID, "error", err)
		return
	}
	record.TotalLiquidity.Add(record.TotalLiquidity, intent.Amount)
	record.AvailableLiquidity.Add(record.AvailableLiquidity, intent.Amount)
	record.TotalShares.Add(record.TotalShares, intent.Shares)
	provider, found, err := e.state.ProviderGet(poolID, intent.Account)
	if err != nil {
		e.mu.Unlock()
		slog.Error("pool: load provider", "pool", poolID, "error", err)
		return
	}
	now := e.now()
	if !found {
		provider = &Provider{
			Account:         intent.Account,
			PoolID:          poolID,
			Shares:          big.NewInt(0),
			DepositedAmount: big.NewInt(0),
			ClaimedRewards:  big.NewInt(0),
			JoinedAt:        now,
		}
	} else {
		provider = provider.Clone()
	}
	provider.Shares.Add(provider.Shares, intent.Shares)
	provider.DepositedAmount.Add(provider.DepositedAmount, intent.Amount)
	provider.UpdatedAt = now
	if err := e.state.PoolPut(record); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist pool", "pool", poolID, "error", err)
		return
	}
	if err := e.state.ProviderPut(provider); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist provider", "pool", poolID, "error", err)
		return
	}
	e.mu.Unlock()
	e.emit(EventTypePoolDeposit, poolID, map[string]string{
		"account":            intent.Account,
		"amount":             intent.Amount.String(),
		"shares":             intent.Shares.String(),
		"totalLiquidity":     record.TotalLiquidity.String(),
		"availableLiquidity": record.AvailableLiquidity.String(),
	})
	e.record(ctx, "deposit", poolID, intent.Account, intent.Amount, intent.Shares)
}

// Withdraw burns shares for their proportional claim on the pool. The payout
// is bounded by available liquidity so inventory committed to unsettled fills
// can never be withdrawn out from under an order.
func (e *Engine) Withdraw(ctx context.Context, poolID, account string, shares *big.Int) error {
	transfer, err := e.stageWithdraw(poolID, account, shares)
	if err != nil {
		return err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveWithdraw(ctx, poolID, terr) })
	return nil
}

func (e *Engine) stageWithdraw(poolID, account string, shares *big.Int) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	if shares == nil || shares.Sign() <= 0 {
		return token.Transfer{}, ErrInvalidAmount
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return token.Transfer{}, err
	}
	provider, found, err := e.state.ProviderGet(poolID, strings.TrimSpace(account))
	if err != nil {
		return token.Transfer{}, err
	}
	if !found {
		return token.Transfer{}, ErrProviderNotFound
	}
	if shares.Cmp(provider.Shares) > 0 {
		return token.Transfer{}, ErrInsufficientShares
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return token.Transfer{}, err
	}
	amount := amountForShares(shares, record.TotalShares, record.TotalLiquidity)
	if amount.Sign() <= 0 {
		return token.Transfer{}, ErrInvalidAmount
	}
	if amount.Cmp(record.AvailableLiquidity) > 0 {
		return token.Transfer{}, ErrInsufficientLiquidity
	}
	intent := &TransferIntent{
		PoolID:    poolID,
		Account:   provider.Account,
		Kind:      IntentWithdraw,
		Amount:    amount,
		Shares:    new(big.Int).Set(shares),
		CreatedAt: e.now(),
	}
	if err := e.state.PoolIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   e.vault,
		To:     provider.Account,
		Token:  record.Token,
		Amount: new(big.Int).Set(amount),
		Memo:   "pool withdraw " + poolID,
	}, nil
}

func (e *Engine) resolveWithdraw(ctx context.Context, poolID string, terr error) {
	e.mu.Lock()
	intent, ok := e.takeIntent(poolID)
	if !ok {
		e.mu.Unlock()
		return
	}
	if terr != nil {
		e.mu.Unlock()
		slog.Warn("pool: withdraw transfer failed", "pool", poolID, "error", terr)
		e.emit(EventTypeTransferFailed, poolID, map[string]string{"kind": intent.Kind.String(), "error": terr.Error()})
		return
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		e.mu.Unlock()
		slog.Error("pool: resolve withdraw", "pool", poolID, "error", err)
		return
	}
	provider, found, err := e.state.ProviderGet(poolID, intent.Account)
	if err != nil || !found {
		e.mu.Unlock()
		slog.Error("pool: resolve withdraw provider", "pool", poolID, "error", err)
		return
	}
	provider = provider.Clone()
	record.TotalLiquidity.Sub(record.TotalLiquidity, intent.Amount)
	record.AvailableLiquidity.Sub(record.AvailableLiquidity, intent.Amount)
	record.TotalShares.Sub(record.TotalShares, intent.Shares)
	provider.Shares.Sub(provider.Shares, intent.Shares)
	if provider.DepositedAmount.Cmp(intent.Amount) > 0 {
		provider.DepositedAmount.Sub(provider.DepositedAmount, intent.Amount)
	} else {
		provider.DepositedAmount.SetInt64(0)
	}
	provider.UpdatedAt = e.now()
	if err := e.state.PoolPut(record); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist pool", "pool", poolID, "error", err)
		return
	}
	if err := e.state.ProviderPut(provider); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist provider", "pool", poolID, "error", err)
		return
	}
	e.mu.Unlock()
	e.emit(EventTypePoolWithdraw, poolID, map[string]string{
		"account":            intent.Account,
		"amount":             intent.Amount.String(),
		"shares":             intent.Shares.String(),
		"totalLiquidity":     record.TotalLiquidity.String(),
		"availableLiquidity": record.AvailableLiquidity.String(),
	})
	e.record(ctx, "withdraw", poolID, intent.Account, intent.Amount, intent.Shares)
}

// AddRewards credits the reward ledger. The solver must move the funds in
// with the same call: bookkeeping without backing assets would let a solver
// promise rewards it cannot pay.
func (e *Engine) AddRewards(ctx context.Context, poolID, caller string, amount *big.Int) error {
	transfer, err := e.stageAddRewards(poolID, caller, amount)
	if err != nil {
		return err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveAddRewards(ctx, poolID, terr) })
	return nil
}

func (e *Engine) stageAddRewards(poolID, caller string, amount *big.Int) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	if amount == nil || amount.Sign() <= 0 {
		return token.Transfer{}, ErrInvalidAmount
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return token.Transfer{}, err
	}
	if caller != record.Solver {
		return token.Transfer{}, ErrUnauthorized
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return token.Transfer{}, err
	}
	intent := &TransferIntent{
		PoolID:    poolID,
		Account:   caller,
		Kind:      IntentAddRewards,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: e.now(),
	}
	if err := e.state.PoolIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   caller,
		To:     e.vault,
		Token:  record.Token,
		Amount: new(big.Int).Set(amount),
		Memo:   "pool rewards " + poolID,
	}, nil
}

func (e *Engine) resolveAddRewards(ctx context.Context, poolID string, terr error) {
	e.mu.Lock()
	intent, ok := e.takeIntent(poolID)
	if !ok {
		e.mu.Unlock()
		return
	}
	if terr != nil {
		e.mu.Unlock()
		slog.Warn("pool: reward transfer failed", "pool", poolID, "error", terr)
		e.emit(EventTypeTransferFailed, poolID, map[string]string{"kind": intent.Kind.String(), "error": terr.Error()})
		return
	}
	reward, err := e.loadReward(poolID)
	if err != nil {
		e.mu.Unlock()
		slog.Error("pool: resolve rewards", "pool", poolID, "error", err)
		return
	}
	reward.TotalRewards.Add(reward.TotalRewards, intent.Amount)
	if err := e.state.RewardPut(reward); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist reward", "pool", poolID, "error", err)
		return
	}
	e.mu.Unlock()
	e.emit(EventTypeRewardsAdded, poolID, map[string]string{"amount": intent.Amount.String()})
	e.record(ctx, "add_rewards", poolID, intent.Account, intent.Amount, nil)
}

// ClaimRewards pays the provider their pro-rata slice of undistributed
// rewards, rounded down. A zero claim is rejected, not silently accepted.
func (e *Engine) ClaimRewards(ctx context.Context, poolID, account string) error {
	transfer, err := e.stageClaimRewards(poolID, account)
	if err != nil {
		return err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveClaimRewards(ctx, poolID, terr) })
	return nil
}

func (e *Engine) stageClaimRewards(poolID, account string) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return token.Transfer{}, err
	}
	provider, found, err := e.state.ProviderGet(poolID, strings.TrimSpace(account))
	if err != nil {
		return token.Transfer{}, err
	}
	if !found {
		return token.Transfer{}, ErrProviderNotFound
	}
	reward, err := e.loadReward(poolID)
	if err != nil {
		return token.Transfer{}, err
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return token.Transfer{}, err
	}
	amount := rewardShare(provider.Shares, record.TotalShares, reward.TotalRewards, reward.DistributedRewards)
	if amount.Sign() <= 0 {
		return token.Transfer{}, ErrNothingToClaim
	}
	intent := &TransferIntent{
		PoolID:    poolID,
		Account:   provider.Account,
		Kind:      IntentClaimRewards,
		Amount:    amount,
		CreatedAt: e.now(),
	}
	if err := e.state.PoolIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   e.vault,
		To:     provider.Account,
		Token:  record.Token,
		Amount: new(big.Int).Set(amount),
		Memo:   "pool reward claim " + poolID,
	}, nil
}

func (e *Engine) resolveClaimRewards(ctx context.Context, poolID string, terr error) {
	e.mu.Lock()
	intent, ok := e.takeIntent(poolID)
	if !ok {
		e.mu.Unlock()
		return
	}
	if terr != nil {
		e.mu.Unlock()
		slog.Warn("pool: reward claim transfer failed", "pool", poolID, "error", terr)
		e.emit(EventTypeTransferFailed, poolID, map[string]string{"kind": intent.Kind.String(), "error": terr.Error()})
		return
	}
	reward, err := e.loadReward(poolID)
	if err != nil {
		e.mu.Unlock()
		slog.Error("pool: resolve reward claim", "pool", poolID, "error", err)
		return
	}
	provider, found, err := e.state.ProviderGet(poolID, intent.Account)
	if err != nil || !found {
		e.mu.Unlock()
		slog.Error("pool: resolve reward claim provider", "pool", poolID, "error", err)
		return
	}
	provider = provider.Clone()
	reward.DistributedRewards.Add(reward.DistributedRewards, intent.Amount)
	provider.ClaimedRewards.Add(provider.ClaimedRewards, intent.Amount)
	provider.UpdatedAt = e.now()
	if err := e.state.RewardPut(reward); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist reward", "pool", poolID, "error", err)
		return
	}
	if err := e.state.ProviderPut(provider); err != nil {
		e.mu.Unlock()
		slog.Error("pool: persist provider", "pool", poolID, "error", err)
		return
	}
	e.mu.Unlock()
	e.emit(EventTypeRewardsClaimed, poolID, map[string]string{
		"account": intent.Account,
		"amount":  intent.Amount.String(),
	})
	e.record(ctx, "claim_rewards", poolID, intent.Account, intent.Amount, nil)
}

// Lock commits available liquidity to an in-flight fill.
func (e *Engine) Lock(poolID string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if !record.IsActive {
		return ErrPoolInactive
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return err
	}
	if amount.Cmp(record.AvailableLiquidity) > 0 {
		return ErrInsufficientLiquidity
	}
	record.AvailableLiquidity.Sub(record.AvailableLiquidity, amount)
	if err := e.state.PoolPut(record); err != nil {
		return err
	}
	e.emit(EventTypeLiquidityLocked, poolID, map[string]string{
		"amount":             amount.String(),
		"totalLiquidity":     record.TotalLiquidity.String(),
		"availableLiquidity": record.AvailableLiquidity.String(),
	})
	return nil
}

// Release returns previously locked liquidity after a cancelled or failed
// fill.
func (e *Engine) Release(poolID string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return err
	}
	record.AvailableLiquidity.Add(record.AvailableLiquidity, amount)
	if record.AvailableLiquidity.Cmp(record.TotalLiquidity) > 0 {
		record.AvailableLiquidity.Set(record.TotalLiquidity)
	}
	if err := e.state.PoolPut(record); err != nil {
		return err
	}
	e.emit(EventTypeLiquidityReleased, poolID, map[string]string{
		"amount":             amount.String(),
		"totalLiquidity":     record.TotalLiquidity.String(),
		"availableLiquidity": record.AvailableLiquidity.String(),
	})
	return nil
}

// Consume settles a filled order against previously locked liquidity: the
// inventory leaves the pool for good.
func (e *Engine) Consume(poolID string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	record, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if err := e.ensureNoIntent(poolID); err != nil {
		return err
	}
	locked := new(big.Int).Sub(record.TotalLiquidity, record.AvailableLiquidity)
	if amount.Cmp(locked) > 0 {
		return fmt.Errorf("%w: %s exceeds locked %s", ErrInsufficientLiquidity, amount, locked)
	}
	record.TotalLiquidity.Sub(record.TotalLiquidity, amount)
	if err := e.state.PoolPut(record); err != nil {
		return err
	}
	e.emit(EventTypeLiquidityConsumed, poolID, map[string]string{
		"amount":             amount.String(),
		"totalLiquidity":     record.TotalLiquidity.String(),
		"availableLiquidity": record.AvailableLiquidity.String(),
	})
	return nil
}

// GetPool returns a copy of the pool record.
func (e *Engine) GetPool(poolID string) (*Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadPool(poolID)
}

// GetProvider returns a copy of one account's position in a pool.
func (e *Engine) GetProvider(poolID, account string) (*Provider, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	provider, found, err := e.state.ProviderGet(poolID, strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrProviderNotFound
	}
	return provider.Clone(), nil
}

// GetReward returns a copy of the pool's reward ledger.
func (e *Engine) GetReward(poolID string) (*Reward, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadReward(poolID)
}

// PoolsBySolver returns the ids of pools owned by the solver.
func (e *Engine) PoolsBySolver(solver string) ([]string, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.PoolsBySolver(strings.TrimSpace(solver))
}

func (e *Engine) loadPool(poolID string) (*Pool, error) {
	record, ok, err := e.state.PoolGet(poolID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return record.Clone(), nil
}

func (e *Engine) loadReward(poolID string) (*Reward, error) {
	record, ok, err := e.state.RewardGet(poolID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return record.Clone(), nil
}

func (e *Engine) ensureNoIntent(poolID string) error {
	_, pending, err := e.state.PoolIntentGet(poolID)
	if err != nil {
		return err
	}
	if pending {
		return ErrTransferPending
	}
	return nil
}

// takeIntent removes and returns the pending intent. Callers hold e.mu.
func (e *Engine) takeIntent(poolID string) (*TransferIntent, bool) {
	intent, ok, err := e.state.PoolIntentGet(poolID)
	if err != nil || !ok {
		slog.Error("pool: resolve without intent", "pool", poolID, "error", err)
		return nil, false
	}
	if err := e.state.PoolIntentDelete(poolID); err != nil {
		slog.Error("pool: delete intent", "pool", poolID, "error", err)
	}
	return intent, true
}

// sharesForDeposit mints 1:1 into an empty pool and at the current
// shares/liquidity ratio otherwise. Integer truncation rounds in the pool's
// favor, never the depositor's.
func sharesForDeposit(amount, totalShares, totalLiquidity *big.Int) *big.Int {
	if totalShares.Sign() == 0 || totalLiquidity.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	shares := new(big.Int).Mul(amount, totalShares)
	return shares.Div(shares, totalLiquidity)
}

// amountForShares is the inverse ratio, also truncating.
func amountForShares(shares, totalShares, totalLiquidity *big.Int) *big.Int {
	if totalShares.Sign() == 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(shares, totalLiquidity)
	return amount.Div(amount, totalShares)
}

// rewardShare pays shares/totalShares of the undistributed balance, rounded
// down.
func rewardShare(shares, totalShares, totalRewards, distributed *big.Int) *big.Int {
	if totalShares.Sign() == 0 || shares.Sign() == 0 {
		return big.NewInt(0)
	}
	undistributed := new(big.Int).Sub(copyBigInt(totalRewards), distributed)
	if undistributed.Sign() <= 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(shares, undistributed)
	return amount.Div(amount, totalShares)
}
