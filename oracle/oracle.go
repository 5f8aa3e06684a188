// Package oracle abstracts the price source the matching layer consults for
// indicative quotes. Implementations return the expected output amount for a
// requested pair along with the route taken.
package oracle

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
)

var (
	ErrPairNotSupported = errors.New("oracle: pair not supported")
	ErrInvalidAmount    = errors.New("oracle: amount must be positive")
)

// Quote is one indicative price for a pair at a given size.
type Quote struct {
	ToAmount *big.Int `json:"toAmount"`
	// Price is the quoted rate in output units per 1e6 input units.
	Price *big.Int `json:"price"`
	Route []string `json:"route"`
}

// Source produces indicative quotes for (fromToken, toToken, amount).
type Source interface {
	Quote(ctx context.Context, fromToken, toToken string, amount *big.Int) (Quote, error)
}

const priceScale = 1_000_000

// Static is a table-driven Source: fixed per-pair rates with a haircut
// applied in basis points. It backs tests and single-operator deployments
// where prices are configured rather than discovered.
type Static struct {
	mu        sync.RWMutex
	rates     map[string]*big.Int
	spreadBps uint32
}

// NewStatic creates an empty static source with the given spread haircut.
func NewStatic(spreadBps uint32) *Static {
	return &Static{rates: make(map[string]*big.Int), spreadBps: spreadBps}
}

func pairKey(fromToken, toToken string) string {
	return strings.ToUpper(strings.TrimSpace(fromToken)) + "/" + strings.ToUpper(strings.TrimSpace(toToken))
}

// SetRate fixes the rate for a pair, scaled by 1e6: a rate of 2_000_000 turns
// 100 input units into 200 output units before spread.
func (s *Static) SetRate(fromToken, toToken string, rate *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pairKey(fromToken, toToken)] = new(big.Int).Set(rate)
}

// Quote implements Source.
func (s *Static) Quote(_ context.Context, fromToken, toToken string, amount *big.Int) (Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, ErrInvalidAmount
	}
	s.mu.RLock()
	rate, ok := s.rates[pairKey(fromToken, toToken)]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, ErrPairNotSupported
	}
	out := new(big.Int).Mul(amount, rate)
	out.Div(out, big.NewInt(priceScale))
	if s.spreadBps > 0 {
		haircut := new(big.Int).Mul(out, new(big.Int).SetUint64(uint64(s.spreadBps)))
		haircut.Div(haircut, big.NewInt(10_000))
		out.Sub(out, haircut)
	}
	return Quote{
		ToAmount: out,
		Price:    new(big.Int).Set(rate),
		Route:    []string{pairKey(fromToken, toToken)},
	}, nil
}
