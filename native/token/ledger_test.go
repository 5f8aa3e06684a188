package token

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func transferResult(t *testing.T, l *Ledger, tr Transfer) error {
	t.Helper()
	var got error
	resolved := false
	l.Transfer(context.Background(), tr, func(err error) {
		got = err
		resolved = true
	})
	if !resolved {
		t.Fatal("transfer callback never resolved")
	}
	return got
}

func TestLedgerTransferMovesBalance(t *testing.T) {
	ledger := NewLedger()
	ledger.Mint("alice", "USDC", big.NewInt(1000))

	err := transferResult(t, ledger, Transfer{From: "alice", To: "bob", Token: "USDC", Amount: big.NewInt(400)})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := ledger.BalanceOf("alice", "USDC"); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("alice balance = %s, want 600", got)
	}
	if got := ledger.BalanceOf("bob", "USDC"); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("bob balance = %s, want 400", got)
	}
}

func TestLedgerTransferInsufficientBalance(t *testing.T) {
	ledger := NewLedger()
	ledger.Mint("alice", "USDC", big.NewInt(10))

	err := transferResult(t, ledger, Transfer{From: "alice", To: "bob", Token: "USDC", Amount: big.NewInt(11)})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := ledger.BalanceOf("alice", "USDC"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer mutated balance: %s", got)
	}
}

func TestLedgerTransferValidation(t *testing.T) {
	ledger := NewLedger()
	if err := transferResult(t, ledger, Transfer{From: "", To: "bob", Token: "USDC", Amount: big.NewInt(1)}); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer, got %v", err)
	}
	if err := transferResult(t, ledger, Transfer{From: "alice", To: "bob", Token: "USDC", Amount: big.NewInt(0)}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
