// Package token defines the fungible-asset transfer collaborator consumed by
// the settlement engines. Engines never move balances directly: they issue a
// Transfer and commit or roll back their state transition in the completion
// callback once the outcome is known.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrInvalidTransfer      = errors.New("token: transfer accounts and token required")
	ErrInvalidAmount        = errors.New("token: amount must be positive")
	ErrInsufficientBalance  = errors.New("token: insufficient balance")
	ErrTransferUnavailable  = errors.New("token: transfer backend unavailable")
)

// Transfer describes a single fungible-asset movement between two accounts.
type Transfer struct {
	From   string
	To     string
	Token  string
	Amount *big.Int
	Memo   string
}

// Callback receives the asynchronous outcome of a transfer: nil on success,
// the failure otherwise. It is invoked exactly once.
type Callback func(error)

// Transferer issues asset transfers whose outcome is observed through the
// completion callback. Implementations may resolve synchronously (in-process
// ledger) or after an arbitrary delay (remote asset ledger).
type Transferer interface {
	Transfer(ctx context.Context, t Transfer, done Callback)
}

func (t Transfer) validate() error {
	if strings.TrimSpace(t.From) == "" || strings.TrimSpace(t.To) == "" || strings.TrimSpace(t.Token) == "" {
		return ErrInvalidTransfer
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transfer) String() string {
	amount := "0"
	if t.Amount != nil {
		amount = t.Amount.String()
	}
	return fmt.Sprintf("%s %s: %s -> %s", amount, t.Token, t.From, t.To)
}
