package token

import (
	"context"
	"math/big"
	"strings"
	"sync"
)

// Ledger is an in-process Transferer backed by per-account balances. The dev
// server and tests run against it; production deployments swap in an adapter
// for the external asset ledger.
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]*big.Int
}

type balanceKey struct {
	account string
	token   string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]*big.Int)}
}

func normalizeKey(account, token string) balanceKey {
	return balanceKey{
		account: strings.TrimSpace(account),
		token:   strings.ToUpper(strings.TrimSpace(token)),
	}
}

// Mint credits an account balance out of thin air. Dev and test helper.
func (l *Ledger) Mint(account, token string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := normalizeKey(account, token)
	balance, ok := l.balances[key]
	if !ok {
		balance = big.NewInt(0)
		l.balances[key] = balance
	}
	balance.Add(balance, amount)
}

// BalanceOf returns a copy of the account's balance for the token.
func (l *Ledger) BalanceOf(account, token string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[normalizeKey(account, token)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// Transfer moves the amount between accounts and resolves the callback
// synchronously. The debit and credit are applied atomically under the ledger
// lock; the callback runs outside it.
func (l *Ledger) Transfer(ctx context.Context, t Transfer, done Callback) {
	err := l.apply(t)
	if done != nil {
		done(err)
	}
}

func (l *Ledger) apply(t Transfer) error {
	if err := t.validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromKey := normalizeKey(t.From, t.Token)
	from, ok := l.balances[fromKey]
	if !ok || from.Cmp(t.Amount) < 0 {
		return ErrInsufficientBalance
	}
	toKey := normalizeKey(t.To, t.Token)
	to, ok := l.balances[toKey]
	if !ok {
		to = big.NewInt(0)
		l.balances[toKey] = to
	}
	from.Sub(from, t.Amount)
	to.Add(to, t.Amount)
	return nil
}
