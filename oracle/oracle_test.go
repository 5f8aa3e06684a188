package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestStaticQuote(t *testing.T) {
	source := NewStatic(100) // 1% spread
	source.SetRate("USDC", "WNEAR", big.NewInt(2_000_000))

	quote, err := source.Quote(context.Background(), "usdc", "wnear", big.NewInt(1000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 1000 * 2.0 = 2000, minus 1% spread = 1980.
	if quote.ToAmount.Cmp(big.NewInt(1980)) != 0 {
		t.Fatalf("toAmount = %s, want 1980", quote.ToAmount)
	}
	if len(quote.Route) != 1 || quote.Route[0] != "USDC/WNEAR" {
		t.Fatalf("route = %v", quote.Route)
	}
}

func TestStaticQuoteErrors(t *testing.T) {
	source := NewStatic(0)
	if _, err := source.Quote(context.Background(), "USDC", "WNEAR", big.NewInt(1)); !errors.Is(err, ErrPairNotSupported) {
		t.Fatalf("unknown pair: %v", err)
	}
	source.SetRate("USDC", "WNEAR", big.NewInt(1_000_000))
	if _, err := source.Quote(context.Background(), "USDC", "WNEAR", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}
}
