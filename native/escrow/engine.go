package escrow

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fusiond/core/events"
	"fusiond/crypto/hashlock"
	"fusiond/native/token"
)

// State is the persistence boundary for the escrow engine. Implementations
// must keep the per-account index consistent with the forward records.
type State interface {
	EscrowPut(*Order) error
	EscrowGet(id string) (*Order, bool, error)
	EscrowIndexAdd(account, id string) error
	EscrowOrdersByAccount(account string) ([]string, error)
	EscrowTokenPut(tokenSymbol string, allowed bool) error
	EscrowTokenAllowed(tokenSymbol string) (bool, error)
	EscrowStatsGet() (*Stats, error)
	EscrowStatsPut(*Stats) error
	EscrowIntentPut(*TransferIntent) error
	EscrowIntentGet(orderID string) (*TransferIntent, bool, error)
	EscrowIntentDelete(orderID string) error
}

// Engine owns the HTLC escrow state machine. All mutating operations are
// serialized behind a single mutex, reproducing the single-writer semantics a
// ledger would enforce per contract. Transfers resolve through completion
// callbacks: the terminal state transition commits only once the asset
// movement is confirmed, and rolls back to the pre-operation status otherwise.
type Engine struct {
	mu        sync.Mutex
	state     State
	transfers token.Transferer
	emitter   events.Emitter
	params    Params
	vault     string
	treasury  string
	nowFn     func() int64
	seq       uint64
}

// NewEngine creates an escrow engine with default parameters and a no-op
// event emitter.
func NewEngine(state State, transfers token.Transferer, vault, treasury string) *Engine {
	return &Engine{
		state:     state,
		transfers: transfers,
		emitter:   events.NoopEmitter{},
		params:    DefaultParams(),
		vault:     strings.TrimSpace(vault),
		treasury:  strings.TrimSpace(treasury),
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

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetFeeRate updates the claim fee. Rates above MaxFeeRateBps are rejected.
func (e *Engine) SetFeeRate(bps uint32) error {
	if bps > MaxFeeRateBps {
		return ErrFeeRateTooHigh
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.FeeRateBps = bps
	return nil
}

// SetTimelockBounds updates the accepted timelock window.
func (e *Engine) SetTimelockBounds(min, max int64) error {
	if min <= 0 || min >= max {
		return ErrInvalidTimelock
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.MinTimelock = min
	e.params.MaxTimelock = max
	return nil
}

// AllowToken adds a token to the allow-list.
func (e *Engine) AllowToken(tokenSymbol string) error {
	if e.state == nil {
		return ErrNilState
	}
	symbol := normalizeToken(tokenSymbol)
	if symbol == "" {
		return ErrTokenNotAllowed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.EscrowTokenPut(symbol, true)
}

// DisallowToken removes a token from the allow-list. Existing orders are
// unaffected.
func (e *Engine) DisallowToken(tokenSymbol string) error {
	if e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.EscrowTokenPut(normalizeToken(tokenSymbol), false)
}

func normalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Create registers a new escrow order in Pending. The id is derived from the
// parties, the hashlock and a monotonically increasing sequence, and is
// collision-checked against stored orders so same-second submissions cannot
// alias each other.
func (e *Engine) Create(maker, taker, fromToken, toToken string, fromAmount, toAmount *big.Int, lock string, timelock int64) (*Order, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	maker = strings.TrimSpace(maker)
	taker = strings.TrimSpace(taker)
	if maker == "" || taker == "" || maker == taker {
		return nil, ErrInvalidParty
	}
	if fromAmount == nil || fromAmount.Sign() <= 0 || toAmount == nil || toAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	normalizedLock, err := hashlock.Normalize(lock)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if timelock < e.params.MinTimelock || timelock > e.params.MaxTimelock {
		return nil, ErrInvalidTimelock
	}
	from := normalizeToken(fromToken)
	to := normalizeToken(toToken)
	for _, symbol := range []string{from, to} {
		allowed, err := e.state.EscrowTokenAllowed(symbol)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotAllowed, symbol)
		}
	}
	id, err := e.nextOrderID(maker, taker, normalizedLock)
	if err != nil {
		return nil, err
	}
	now := e.now()
	order := &Order{
		ID:         id,
		Maker:      maker,
		Taker:      taker,
		FromToken:  from,
		ToToken:    to,
		FromAmount: new(big.Int).Set(fromAmount),
		ToAmount:   new(big.Int).Set(toAmount),
		Hashlock:   normalizedLock,
		Timelock:   timelock,
		CreatedAt:  now,
		ExpiresAt:  now + timelock,
		Status:     OrderPending,
	}
	if err := e.state.EscrowPut(order); err != nil {
		return nil, err
	}
	if err := e.state.EscrowIndexAdd(maker, id); err != nil {
		return nil, err
	}
	e.emit(newOrderEvent(EventTypeOrderCreated, order))
	return order.Clone(), nil
}

func (e *Engine) nextOrderID(maker, taker, lock string) (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		e.seq++
		var seqBytes [8]byte
		binary.BigEndian.PutUint64(seqBytes[:], e.seq)
		id := ethcrypto.Keccak256Hash([]byte(maker), []byte(taker), []byte(lock), seqBytes[:]).Hex()
		_, exists, err := e.state.EscrowGet(id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("escrow: unable to derive unique order id")
}

// Fund locks the maker's from_amount by issuing a transfer into the escrow
// vault. The order advances to Funded only in the resolution callback, after
// the transfer is confirmed; a failed transfer leaves it Pending.
func (e *Engine) Fund(ctx context.Context, orderID, caller string) (*Order, error) {
	transfer, err := e.stageFund(orderID, caller)
	if err != nil {
		return nil, err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveFund(orderID, terr) })
	return e.GetOrder(orderID)
}

func (e *Engine) stageFund(orderID, caller string) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return token.Transfer{}, err
	}
	if order.Status != OrderPending {
		return token.Transfer{}, fmt.Errorf("%w: cannot fund %s order", ErrInvalidState, order.Status)
	}
	if caller != order.Maker {
		return token.Transfer{}, fmt.Errorf("%w: only maker may fund", ErrUnauthorized)
	}
	if e.now() >= order.ExpiresAt {
		return token.Transfer{}, ErrTimelockExpired
	}
	if err := e.ensureNoIntent(orderID); err != nil {
		return token.Transfer{}, err
	}
	intent := &TransferIntent{
		OrderID:   orderID,
		Kind:      IntentFund,
		Amount:    copyBigInt(order.FromAmount),
		CreatedAt: e.now(),
	}
	if err := e.state.EscrowIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   order.Maker,
		To:     e.vault,
		Token:  order.FromToken,
		Amount: copyBigInt(order.FromAmount),
		Memo:   "fund " + orderID,
	}, nil
}

func (e *Engine) resolveFund(orderID string, terr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.EscrowIntentDelete(orderID); err != nil {
		slog.Error("escrow: delete fund intent", "order", orderID, "error", err)
	}
	if terr != nil {
		slog.Warn("escrow: fund transfer failed", "order", orderID, "error", terr)
		e.emit(newTransferFailedEvent(EventTypeFundFailed, orderID, terr))
		return
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		slog.Error("escrow: resolve fund", "order", orderID, "error", err)
		return
	}
	if order.Status != OrderPending {
		return
	}
	order.Status = OrderFunded
	if err := e.state.EscrowPut(order); err != nil {
		slog.Error("escrow: persist funded order", "order", orderID, "error", err)
		return
	}
	e.emit(newOrderEvent(EventTypeOrderFunded, order))
}

// Claim releases the escrowed funds to the taker against the preimage of the
// stored hashlock. The payout transfer (from_amount minus fee) is issued
// first; the order transitions to Claimed and the statistics advance only in
// the resolution callback. Claims after expiry are rejected so claim and
// refund can never race past the deadline.
func (e *Engine) Claim(ctx context.Context, orderID, caller string, secret []byte) (*Order, error) {
	transfer, err := e.stageClaim(orderID, caller, secret)
	if err != nil {
		return nil, err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveClaim(ctx, orderID, terr) })
	return e.GetOrder(orderID)
}

func (e *Engine) stageClaim(orderID, caller string, secret []byte) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return token.Transfer{}, err
	}
	if order.Status != OrderFunded {
		return token.Transfer{}, fmt.Errorf("%w: cannot claim %s order", ErrInvalidState, order.Status)
	}
	if caller != order.Taker {
		return token.Transfer{}, fmt.Errorf("%w: only taker may claim", ErrUnauthorized)
	}
	if e.now() >= order.ExpiresAt {
		return token.Transfer{}, ErrTimelockExpired
	}
	if err := hashlock.Verify(order.Hashlock, secret); err != nil {
		return token.Transfer{}, fmt.Errorf("%w: %v", ErrSecretMismatch, err)
	}
	if err := e.ensureNoIntent(orderID); err != nil {
		return token.Transfer{}, err
	}
	fee := feeOn(order.FromAmount, e.params.FeeRateBps)
	payout := new(big.Int).Sub(copyBigInt(order.FromAmount), fee)
	intent := &TransferIntent{
		OrderID: orderID,
		Kind:    IntentClaim,
		Amount:  payout,
		Fee:     fee,
		// The revealed preimage is carried on the intent so the resolution
		// callback can record it on the claimed order.
		Secret:    fmt.Sprintf("%x", secret),
		CreatedAt: e.now(),
	}
	if err := e.state.EscrowIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   e.vault,
		To:     order.Taker,
		Token:  order.FromToken,
		Amount: new(big.Int).Set(payout),
		Memo:   "claim " + orderID,
	}, nil
}

func (e *Engine) resolveClaim(ctx context.Context, orderID string, terr error) {
	e.mu.Lock()
	intent, ok, err := e.state.EscrowIntentGet(orderID)
	if err != nil || !ok {
		e.mu.Unlock()
		slog.Error("escrow: resolve claim without intent", "order", orderID, "error", err)
		return
	}
	if err := e.state.EscrowIntentDelete(orderID); err != nil {
		slog.Error("escrow: delete claim intent", "order", orderID, "error", err)
	}
	if terr != nil {
		e.mu.Unlock()
		slog.Warn("escrow: claim transfer failed", "order", orderID, "error", terr)
		e.emit(newTransferFailedEvent(EventTypeClaimFailed, orderID, terr))
		return
	}
	order, err := e.loadOrder(orderID)
	if err != nil || order.Status != OrderFunded {
		e.mu.Unlock()
		slog.Error("escrow: resolve claim", "order", orderID, "error", err)
		return
	}
	order.Status = OrderClaimed
	order.Secret = intent.Secret
	if err := e.state.EscrowPut(order); err != nil {
		e.mu.Unlock()
		slog.Error("escrow: persist claimed order", "order", orderID, "error", err)
		return
	}
	stats, err := e.state.EscrowStatsGet()
	if err == nil {
		stats = stats.Clone()
		stats.TotalSwaps++
		stats.TotalVolume.Add(stats.TotalVolume, copyBigInt(order.FromAmount))
		stats.TotalFees.Add(stats.TotalFees, copyBigInt(intent.Fee))
		if err := e.state.EscrowStatsPut(stats); err != nil {
			slog.Error("escrow: persist stats", "order", orderID, "error", err)
		}
	}
	fee := copyBigInt(intent.Fee)
	fromToken := order.FromToken
	e.mu.Unlock()
	e.emit(newOrderEvent(EventTypeOrderClaimed, order))
	if fee.Sign() > 0 && e.treasury != "" {
		e.transfers.Transfer(ctx, token.Transfer{
			From:   e.vault,
			To:     e.treasury,
			Token:  fromToken,
			Amount: fee,
			Memo:   "fee " + orderID,
		}, func(feeErr error) {
			if feeErr != nil {
				slog.Error("escrow: fee sweep failed", "order", orderID, "error", feeErr)
			}
		})
	}
}

// Refund returns the escrowed amount to the maker once the timelock has
// lapsed. Like claim, the terminal transition commits in the resolution
// callback.
func (e *Engine) Refund(ctx context.Context, orderID, caller string) (*Order, error) {
	transfer, err := e.stageRefund(orderID, caller)
	if err != nil {
		return nil, err
	}
	e.transfers.Transfer(ctx, transfer, func(terr error) { e.resolveRefund(orderID, terr) })
	return e.GetOrder(orderID)
}

func (e *Engine) stageRefund(orderID, caller string) (token.Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return token.Transfer{}, ErrNilState
	}
	if e.transfers == nil {
		return token.Transfer{}, ErrNilTransferer
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return token.Transfer{}, err
	}
	if order.Status != OrderFunded {
		return token.Transfer{}, fmt.Errorf("%w: cannot refund %s order", ErrInvalidState, order.Status)
	}
	if caller != order.Maker {
		return token.Transfer{}, fmt.Errorf("%w: only maker may refund", ErrUnauthorized)
	}
	if e.now() < order.ExpiresAt {
		return token.Transfer{}, ErrTimelockNotExpired
	}
	if err := e.ensureNoIntent(orderID); err != nil {
		return token.Transfer{}, err
	}
	intent := &TransferIntent{
		OrderID:   orderID,
		Kind:      IntentRefund,
		Amount:    copyBigInt(order.FromAmount),
		CreatedAt: e.now(),
	}
	if err := e.state.EscrowIntentPut(intent); err != nil {
		return token.Transfer{}, err
	}
	return token.Transfer{
		From:   e.vault,
		To:     order.Maker,
		Token:  order.FromToken,
		Amount: copyBigInt(order.FromAmount),
		Memo:   "refund " + orderID,
	}, nil
}

func (e *Engine) resolveRefund(orderID string, terr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.EscrowIntentDelete(orderID); err != nil {
		slog.Error("escrow: delete refund intent", "order", orderID, "error", err)
	}
	if terr != nil {
		slog.Warn("escrow: refund transfer failed", "order", orderID, "error", terr)
		e.emit(newTransferFailedEvent(EventTypeRefundFailed, orderID, terr))
		return
	}
	order, err := e.loadOrder(orderID)
	if err != nil || order.Status != OrderFunded {
		slog.Error("escrow: resolve refund", "order", orderID, "error", err)
		return
	}
	order.Status = OrderRefunded
	if err := e.state.EscrowPut(order); err != nil {
		slog.Error("escrow: persist refunded order", "order", orderID, "error", err)
		return
	}
	e.emit(newOrderEvent(EventTypeOrderRefunded, order))
}

// GetOrder returns a copy of the order. A Pending order whose timelock has
// lapsed reads as Expired; the stored record is not rewritten.
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
	if order.Status == OrderPending && e.now() >= order.ExpiresAt {
		order.Status = OrderExpired
	}
	return order, nil
}

// OrdersByAccount returns the ids of orders created by the account.
func (e *Engine) OrdersByAccount(account string) ([]string, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.EscrowOrdersByAccount(strings.TrimSpace(account))
}

// Statistics returns the aggregate settled volume and fees.
func (e *Engine) Statistics() (*Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	stats, err := e.state.EscrowStatsGet()
	if err != nil {
		return nil, err
	}
	return stats.Clone(), nil
}

func (e *Engine) loadOrder(orderID string) (*Order, error) {
	order, ok, err := e.state.EscrowGet(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (e *Engine) ensureNoIntent(orderID string) error {
	_, pending, err := e.state.EscrowIntentGet(orderID)
	if err != nil {
		return err
	}
	if pending {
		return ErrTransferPending
	}
	return nil
}

// feeOn computes amount * bps / 10000 with truncating integer division, so
// fee + payout always reconstructs the original amount exactly.
func feeOn(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(copyBigInt(amount), new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}
