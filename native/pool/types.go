package pool

import "math/big"

// Pool is one solver-owned liquidity pool in a single token. The delta
// between total and available liquidity is inventory committed to in-flight
// fills.
type Pool struct {
	ID                 string   `json:"id"`
	Solver             string   `json:"solver"`
	Token              string   `json:"token"`
	TotalLiquidity     *big.Int `json:"totalLiquidity"`
	AvailableLiquidity *big.Int `json:"availableLiquidity"`
	TotalShares        *big.Int `json:"totalShares"`
	FeeRateBps         uint32   `json:"feeRateBps"`
	MinDeposit         *big.Int `json:"minDeposit"`
	MaxDeposit         *big.Int `json:"maxDeposit"`
	IsActive           bool     `json:"isActive"`
	CreatedAt          int64    `json:"createdAt"`
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalLiquidity = copyBigInt(p.TotalLiquidity)
	clone.AvailableLiquidity = copyBigInt(p.AvailableLiquidity)
	clone.TotalShares = copyBigInt(p.TotalShares)
	clone.MinDeposit = copyBigInt(p.MinDeposit)
	clone.MaxDeposit = copyBigInt(p.MaxDeposit)
	return &clone
}

// Provider is one account's position in one pool. Shares are a proportional
// claim on the pool's total liquidity.
type Provider struct {
	Account         string   `json:"account"`
	PoolID          string   `json:"poolId"`
	Shares          *big.Int `json:"shares"`
	DepositedAmount *big.Int `json:"depositedAmount"`
	ClaimedRewards  *big.Int `json:"claimedRewards"`
	JoinedAt        int64    `json:"joinedAt"`
	UpdatedAt       int64    `json:"updatedAt"`
}

// Clone returns a deep copy.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Shares = copyBigInt(p.Shares)
	clone.DepositedAmount = copyBigInt(p.DepositedAmount)
	clone.ClaimedRewards = copyBigInt(p.ClaimedRewards)
	return &clone
}

// Reward is the per-pool reward ledger. DistributedRewards never exceeds
// TotalRewards.
type Reward struct {
	PoolID             string   `json:"poolId"`
	TotalRewards       *big.Int `json:"totalRewards"`
	DistributedRewards *big.Int `json:"distributedRewards"`
}

// Clone returns a deep copy.
func (r *Reward) Clone() *Reward {
	if r == nil {
		return nil
	}
	return &Reward{
		PoolID:             r.PoolID,
		TotalRewards:       copyBigInt(r.TotalRewards),
		DistributedRewards: copyBigInt(r.DistributedRewards),
	}
}

// IntentKind identifies which pool mutation a pending transfer will commit.
type IntentKind uint8

const (
	IntentDeposit IntentKind = iota
	IntentWithdraw
	IntentClaimRewards
	IntentAddRewards
)

func (k IntentKind) String() string {
	switch k {
	case IntentDeposit:
		return "deposit"
	case IntentWithdraw:
		return "withdraw"
	case IntentClaimRewards:
		return "claim_rewards"
	case IntentAddRewards:
		return "add_rewards"
	default:
		return "unknown"
	}
}

// TransferIntent marks a pool whose asset transfer is in flight. While one is
// pending, every other mutation of the same pool is rejected so the amounts
// computed at stage time stay valid through resolution.
type TransferIntent struct {
	PoolID    string     `json:"poolId"`
	Account   string     `json:"account"`
	Kind      IntentKind `json:"kind"`
	Amount    *big.Int   `json:"amount"`
	Shares    *big.Int   `json:"shares,omitempty"`
	CreatedAt int64      `json:"createdAt"`
}

// Clone returns a deep copy.
func (i *TransferIntent) Clone() *TransferIntent {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Amount = copyBigInt(i.Amount)
	if i.Shares != nil {
		clone.Shares = new(big.Int).Set(i.Shares)
	}
	return &clone
}

// Transaction is a journal entry describing one settled pool mutation.
type Transaction struct {
	ID        string   `json:"id"`
	PoolID    string   `json:"poolId"`
	Account   string   `json:"account"`
	Kind      string   `json:"kind"`
	Amount    *big.Int `json:"amount"`
	Shares    *big.Int `json:"shares,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

const (
	// MinFeeRateBps and MaxFeeRateBps bound the pool fee at [0.1%, 10%].
	MinFeeRateBps = 10
	MaxFeeRateBps = 1000
)

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
