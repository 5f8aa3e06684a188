package escrow

import (
	"math/big"
)

// OrderStatus tracks the lifecycle of a single HTLC escrow leg.
type OrderStatus uint8

const (
	OrderPending OrderStatus = iota
	OrderFunded
	OrderClaimed
	OrderRefunded
	OrderExpired
)

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderFunded, OrderClaimed, OrderRefunded, OrderExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transition.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderClaimed, OrderRefunded, OrderExpired:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderFunded:
		return "funded"
	case OrderClaimed:
		return "claimed"
	case OrderRefunded:
		return "refunded"
	case OrderExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Order is one escrow leg of a cross-ledger swap. The engine holding the
// escrowed funds owns the record exclusively; every mutation goes through the
// state-machine operations on Engine.
type Order struct {
	ID         string      `json:"id"`
	Maker      string      `json:"maker"`
	Taker      string      `json:"taker"`
	FromToken  string      `json:"fromToken"`
	ToToken    string      `json:"toToken"`
	FromAmount *big.Int    `json:"fromAmount"`
	ToAmount   *big.Int    `json:"toAmount"`
	Hashlock   string      `json:"hashlock"`
	Secret     string      `json:"secret,omitempty"`
	Timelock   int64       `json:"timelock"`
	CreatedAt  int64       `json:"createdAt"`
	ExpiresAt  int64       `json:"expiresAt"`
	Status     OrderStatus `json:"status"`
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.FromAmount = copyBigInt(o.FromAmount)
	clone.ToAmount = copyBigInt(o.ToAmount)
	return &clone
}

// Stats aggregates settled escrow activity.
type Stats struct {
	TotalSwaps  uint64   `json:"totalSwaps"`
	TotalVolume *big.Int `json:"totalVolume"`
	TotalFees   *big.Int `json:"totalFees"`
}

// Clone returns a deep copy of the stats record.
func (s *Stats) Clone() *Stats {
	if s == nil {
		return &Stats{TotalVolume: big.NewInt(0), TotalFees: big.NewInt(0)}
	}
	return &Stats{
		TotalSwaps:  s.TotalSwaps,
		TotalVolume: copyBigInt(s.TotalVolume),
		TotalFees:   copyBigInt(s.TotalFees),
	}
}

// IntentKind identifies which transition a pending transfer will commit.
type IntentKind uint8

const (
	IntentFund IntentKind = iota
	IntentClaim
	IntentRefund
)

func (k IntentKind) String() string {
	switch k {
	case IntentFund:
		return "fund"
	case IntentClaim:
		return "claim"
	case IntentRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// TransferIntent marks an order whose asset transfer is in flight. The order
// keeps its pre-operation status until the transfer resolves; the intent
// blocks concurrent transitions on the same order in the meantime.
type TransferIntent struct {
	OrderID   string     `json:"orderId"`
	Kind      IntentKind `json:"kind"`
	Amount    *big.Int   `json:"amount"`
	Fee       *big.Int   `json:"fee,omitempty"`
	Secret    string     `json:"secret,omitempty"`
	CreatedAt int64      `json:"createdAt"`
}

// Clone returns a deep copy of the intent.
func (i *TransferIntent) Clone() *TransferIntent {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Amount = copyBigInt(i.Amount)
	if i.Fee != nil {
		clone.Fee = new(big.Int).Set(i.Fee)
	}
	return &clone
}

// Params bound the orders the engine accepts.
type Params struct {
	FeeRateBps  uint32
	MinTimelock int64
	MaxTimelock int64
}

const (
	// MaxFeeRateBps caps the escrow fee at 10%.
	MaxFeeRateBps = 1000

	feeDenominator = 10_000
)

// DefaultParams mirrors the production defaults: 0.3% fee, timelocks between
// one hour and one day.
func DefaultParams() Params {
	return Params{
		FeeRateBps:  30,
		MinTimelock: 3600,
		MaxTimelock: 86400,
	}
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
