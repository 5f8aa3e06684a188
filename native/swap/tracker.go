package swap

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fusiond/core/events"
	"fusiond/crypto/hashlock"
)

const (
	EventTypeSwapInitiated = "swap.initiated"
	EventTypeSwapUpdated   = "swap.updated"
	EventTypeSwapCompleted = "swap.completed"
	EventTypeSwapFailed    = "swap.failed"
)

// State is the persistence boundary for the swap tracker.
type State interface {
	SwapPut(*CrossChainSwap) error
	SwapGet(id string) (*CrossChainSwap, bool, error)
	SwapIndexAdd(account, id string) error
	SwapsByAccount(account string) ([]string, error)
}

// Tracker links pairs of escrow legs into logical cross-ledger swaps. Status
// updates come from registered operators relaying foreign-ledger events; the
// tracker enforces monotonic forward progress and the timelock asymmetry
// between the two legs.
type Tracker struct {
	mu        sync.Mutex
	state     State
	emitter   events.Emitter
	operators map[string]struct{}
	nowFn     func() int64
}

// NewTracker creates a tracker with no registered operators.
func NewTracker(state State) *Tracker {
	return &Tracker{
		state:     state,
		emitter:   events.NoopEmitter{},
		operators: make(map[string]struct{}),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (t *Tracker) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (t *Tracker) SetNowFunc(now func() int64) {
	if now == nil {
		t.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	t.nowFn = now
}

// AddOperator authorizes an account to report cross-ledger progress.
func (t *Tracker) AddOperator(account string) {
	account = strings.TrimSpace(account)
	if account == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operators[account] = struct{}{}
}

// RemoveOperator revokes an operator.
func (t *Tracker) RemoveOperator(account string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.operators, account)
}

func (t *Tracker) isOperator(account string) bool {
	_, ok := t.operators[account]
	return ok
}

func (t *Tracker) now() int64 { return t.nowFn() }

func (t *Tracker) emit(eventType string, s *CrossChainSwap) {
	if t.emitter == nil || s == nil {
		return
	}
	attrs := map[string]string{
		"swapId":    s.ID,
		"initiator": s.Initiator,
		"status":    s.Status.String(),
		"expiresAt": strconv.FormatInt(s.ExpiresAt, 10),
	}
	if s.LegA != "" {
		attrs["legA"] = s.LegA
	}
	if s.LegB != "" {
		attrs["legB"] = s.LegB
	}
	if s.Reason != "" {
		attrs["reason"] = s.Reason
	}
	t.emitter.Emit(&events.Event{Type: eventType, Attributes: attrs})
}

// Initiate opens a swap in Initiated. The counter-leg timelock must be
// strictly shorter than the originating leg's; the swap as a whole expires
// with the originating leg.
func (t *Tracker) Initiate(initiator, counterpartyA, counterpartyB, legA, lock string, timelockA, timelockB int64) (*CrossChainSwap, error) {
	if t.state == nil {
		return nil, ErrNilState
	}
	initiator = strings.TrimSpace(initiator)
	counterpartyA = strings.TrimSpace(counterpartyA)
	counterpartyB = strings.TrimSpace(counterpartyB)
	if initiator == "" || counterpartyA == "" || counterpartyB == "" {
		return nil, ErrInvalidParty
	}
	if timelockA <= 0 || timelockB <= 0 {
		return nil, ErrInvalidTimelock
	}
	if timelockB >= timelockA {
		return nil, fmt.Errorf("%w: %ds >= %ds", ErrTimelockAsymmetry, timelockB, timelockA)
	}
	normalizedLock, err := hashlock.Normalize(lock)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	record := &CrossChainSwap{
		ID:            uuid.NewString(),
		Initiator:     initiator,
		CounterpartyA: counterpartyA,
		CounterpartyB: counterpartyB,
		LegA:          strings.TrimSpace(legA),
		Hashlock:      normalizedLock,
		TimelockA:     timelockA,
		TimelockB:     timelockB,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now + timelockA,
		Status:        StatusInitiated,
	}
	if err := t.state.SwapPut(record); err != nil {
		return nil, err
	}
	if err := t.state.SwapIndexAdd(initiator, record.ID); err != nil {
		return nil, err
	}
	t.emit(EventTypeSwapInitiated, record)
	return record.Clone(), nil
}

// MarkLegAFilled records that the originating leg's HTLC is funded.
func (t *Tracker) MarkLegAFilled(operator, swapID string) (*CrossChainSwap, error) {
	return t.advance(operator, swapID, StatusLegAFilled, func(*CrossChainSwap) error { return nil })
}

// AttachLegB records the counter-leg escrow id and marks it funded.
func (t *Tracker) AttachLegB(operator, swapID, legB string) (*CrossChainSwap, error) {
	legB = strings.TrimSpace(legB)
	return t.advance(operator, swapID, StatusLegBFunded, func(s *CrossChainSwap) error {
		if s.LegB != "" && s.LegB != legB {
			return ErrLegAlreadyAttached
		}
		s.LegB = legB
		return nil
	})
}

// Complete records the revealed secret and closes the swap. The preimage must
// match the shared hashlock.
func (t *Tracker) Complete(operator, swapID string, secret []byte) (*CrossChainSwap, error) {
	return t.advance(operator, swapID, StatusCompleted, func(s *CrossChainSwap) error {
		if err := hashlock.Verify(s.Hashlock, secret); err != nil {
			return fmt.Errorf("%w: %v", ErrSecretMismatch, err)
		}
		s.Secret = fmt.Sprintf("%x", secret)
		return nil
	})
}

// Fail marks the swap failed with a reason. Unlike forward progress, failure
// is reachable from any non-terminal status.
func (t *Tracker) Fail(operator, swapID, reason string) (*CrossChainSwap, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		return nil, ErrNilState
	}
	if !t.isOperator(operator) {
		return nil, ErrNotOperator
	}
	record, err := t.load(swapID)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		return nil, fmt.Errorf("%w: swap already %s", ErrInvalidTransition, record.Status)
	}
	record.Status = StatusFailed
	record.Reason = strings.TrimSpace(reason)
	record.UpdatedAt = t.now()
	if err := t.state.SwapPut(record); err != nil {
		return nil, err
	}
	t.emit(EventTypeSwapFailed, record)
	return record.Clone(), nil
}

func (t *Tracker) advance(operator, swapID string, next Status, apply func(*CrossChainSwap) error) (*CrossChainSwap, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		return nil, ErrNilState
	}
	if !t.isOperator(operator) {
		return nil, ErrNotOperator
	}
	record, err := t.load(swapID)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		return nil, fmt.Errorf("%w: swap already %s", ErrInvalidTransition, record.Status)
	}
	if t.now() >= record.ExpiresAt {
		return nil, ErrSwapExpired
	}
	if next.rank() != record.Status.rank()+1 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, next)
	}
	if err := apply(record); err != nil {
		return nil, err
	}
	record.Status = next
	record.UpdatedAt = t.now()
	if err := t.state.SwapPut(record); err != nil {
		return nil, err
	}
	if next == StatusCompleted {
		t.emit(EventTypeSwapCompleted, record)
	} else {
		t.emit(EventTypeSwapUpdated, record)
	}
	return record.Clone(), nil
}

// Get returns a copy of the swap. A non-terminal swap past its expiry reads
// as Expired; the stored record is not rewritten.
func (t *Tracker) Get(swapID string) (*CrossChainSwap, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		return nil, ErrNilState
	}
	record, err := t.load(swapID)
	if err != nil {
		return nil, err
	}
	if !record.Status.Terminal() && t.now() >= record.ExpiresAt {
		record.Status = StatusExpired
	}
	return record, nil
}

// SwapsByAccount returns the ids of swaps initiated by the account.
func (t *Tracker) SwapsByAccount(account string) ([]string, error) {
	if t.state == nil {
		return nil, ErrNilState
	}
	return t.state.SwapsByAccount(strings.TrimSpace(account))
}

func (t *Tracker) load(swapID string) (*CrossChainSwap, error) {
	record, ok, err := t.state.SwapGet(swapID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSwapNotFound
	}
	return record.Clone(), nil
}
