package solver

import "math/big"

// Solver is one registry entry. Volume and fee counters accumulate over the
// solver's lifetime; SuccessRate is advisory telemetry derived from the solve
// counters and never feeds financial computation.
type Solver struct {
	Account      string   `json:"account"`
	Name         string   `json:"name"`
	Metadata     string   `json:"metadata,omitempty"`
	Stake        *big.Int `json:"stake"`
	IsActive     bool     `json:"isActive"`
	TotalSolves  uint64   `json:"totalSolves"`
	FailedSolves uint64   `json:"failedSolves"`
	TotalVolume  *big.Int `json:"totalVolume"`
	TotalFees    *big.Int `json:"totalFees"`
	SuccessRate  float64  `json:"successRate"`
	RegisteredAt int64    `json:"registeredAt"`
}

// Clone returns a deep copy.
func (s *Solver) Clone() *Solver {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Stake = copyBigInt(s.Stake)
	clone.TotalVolume = copyBigInt(s.TotalVolume)
	clone.TotalFees = copyBigInt(s.TotalFees)
	return &clone
}

func (s *Solver) recomputeSuccessRate() {
	attempts := s.TotalSolves + s.FailedSolves
	if attempts == 0 {
		s.SuccessRate = 0
		return
	}
	s.SuccessRate = float64(s.TotalSolves) / float64(attempts)
}

// QuoteRequest is a user's open swap intent, pending until a solver prices
// it. Exactly one quote consumes a request.
type QuoteRequest struct {
	ID          string   `json:"id"`
	Requester   string   `json:"requester"`
	FromToken   string   `json:"fromToken"`
	ToToken     string   `json:"toToken"`
	FromAmount  *big.Int `json:"fromAmount"`
	MinToAmount *big.Int `json:"minToAmount"`
	// IndicativeToAmount is the oracle's estimate at request time, recorded
	// for observability only.
	IndicativeToAmount *big.Int `json:"indicativeToAmount,omitempty"`
	Deadline           int64    `json:"deadline"`
	CreatedAt          int64    `json:"createdAt"`
}

// Clone returns a deep copy.
func (r *QuoteRequest) Clone() *QuoteRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.FromAmount = copyBigInt(r.FromAmount)
	clone.MinToAmount = copyBigInt(r.MinToAmount)
	if r.IndicativeToAmount != nil {
		clone.IndicativeToAmount = new(big.Int).Set(r.IndicativeToAmount)
	}
	return &clone
}

// QuoteResponse is a solver's accepted price for a request, bound to one of
// the solver's pools.
type QuoteResponse struct {
	ID          string   `json:"id"`
	RequestID   string   `json:"requestId"`
	Requester   string   `json:"requester"`
	Solver      string   `json:"solver"`
	PoolID      string   `json:"poolId"`
	FromToken   string   `json:"fromToken"`
	ToToken     string   `json:"toToken"`
	FromAmount  *big.Int `json:"fromAmount"`
	ToAmount    *big.Int `json:"toAmount"`
	FeeBps      uint32   `json:"feeBps"`
	Deadline    int64    `json:"deadline"`
	CreatedAt   int64    `json:"createdAt"`
	Consumed    bool     `json:"consumed"`
}

// Clone returns a deep copy.
func (q *QuoteResponse) Clone() *QuoteResponse {
	if q == nil {
		return nil
	}
	clone := *q
	clone.FromAmount = copyBigInt(q.FromAmount)
	clone.ToAmount = copyBigInt(q.ToAmount)
	return &clone
}

// OrderStatus tracks a fusion order from acceptance to settlement.
type OrderStatus uint8

const (
	OrderPending OrderStatus = iota
	OrderFilled
	OrderCancelled
	OrderExpired
	OrderFailed
)

// Terminal reports whether the status admits no further transition.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderExpired, OrderFailed:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	case OrderExpired:
		return "expired"
	case OrderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Order is an accepted quote bound to a solver and pool, with the quoted
// output locked in the pool until settlement.
type Order struct {
	ID          string      `json:"id"`
	QuoteID     string      `json:"quoteId"`
	Requester   string      `json:"requester"`
	Solver      string      `json:"solver"`
	PoolID      string      `json:"poolId"`
	FromToken   string      `json:"fromToken"`
	ToToken     string      `json:"toToken"`
	FromAmount  *big.Int    `json:"fromAmount"`
	MinToAmount *big.Int    `json:"minToAmount"`
	ToAmount    *big.Int    `json:"toAmount"`
	FeeBps      uint32      `json:"feeBps"`
	Deadline    int64       `json:"deadline"`
	Proof       string      `json:"proof,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   int64       `json:"createdAt"`
	UpdatedAt   int64       `json:"updatedAt"`
	Status      OrderStatus `json:"status"`
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.FromAmount = copyBigInt(o.FromAmount)
	clone.MinToAmount = copyBigInt(o.MinToAmount)
	clone.ToAmount = copyBigInt(o.ToAmount)
	return &clone
}

// Stats aggregates matching activity across all solvers.
type Stats struct {
	TotalOrders uint64   `json:"totalOrders"`
	TotalVolume *big.Int `json:"totalVolume"`
	TotalFees   *big.Int `json:"totalFees"`
}

// Clone returns a deep copy.
func (s *Stats) Clone() *Stats {
	if s == nil {
		return &Stats{TotalVolume: big.NewInt(0), TotalFees: big.NewInt(0)}
	}
	return &Stats{
		TotalOrders: s.TotalOrders,
		TotalVolume: copyBigInt(s.TotalVolume),
		TotalFees:   copyBigInt(s.TotalFees),
	}
}

// MaxSolverFeeBps caps the fee a solver may attach to a quote or pool at 5%.
const MaxSolverFeeBps = 500

const feeDenominator = 10_000

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
