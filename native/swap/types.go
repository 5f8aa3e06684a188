package swap

// Status tracks joint progress of the two HTLC legs of a cross-ledger swap.
// Transitions only move forward: Initiated -> LegAFilled -> LegBFunded ->
// Completed, with Failed and Expired as terminal exits.
type Status uint8

const (
	StatusInitiated Status = iota
	StatusLegAFilled
	StatusLegBFunded
	StatusCompleted
	StatusFailed
	StatusExpired
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusInitiated:
		return "initiated"
	case StatusLegAFilled:
		return "leg_a_filled"
	case StatusLegBFunded:
		return "leg_b_funded"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// rank orders the forward progression so updates can be checked monotonic.
func (s Status) rank() int {
	switch s {
	case StatusInitiated:
		return 0
	case StatusLegAFilled:
		return 1
	case StatusLegBFunded:
		return 2
	case StatusCompleted:
		return 3
	default:
		return -1
	}
}

// CrossChainSwap links the two escrow legs of one logical swap. The tracker
// cannot observe the foreign ledger directly; leg references are opaque
// identifiers reported by the operator relaying cross-ledger events.
type CrossChainSwap struct {
	ID        string `json:"id"`
	Initiator string `json:"initiator"`
	// CounterpartyA and CounterpartyB are the account the initiator deals
	// with on the originating and destination ledgers respectively.
	CounterpartyA string `json:"counterpartyA"`
	CounterpartyB string `json:"counterpartyB"`
	// LegA is the originating leg's escrow id; LegB the counter-leg's,
	// attached once the relayer observes it funded.
	LegA string `json:"legA,omitempty"`
	LegB string `json:"legB,omitempty"`
	// Hashlock is shared across both legs; Secret is recorded when the
	// preimage is revealed on either ledger.
	Hashlock string `json:"hashlock"`
	Secret   string `json:"secret,omitempty"`
	// TimelockA governs the originating leg, TimelockB the counter-leg.
	// TimelockB is strictly shorter so the secret-revealing party always
	// has time to claim the other leg before their refund window opens.
	TimelockA int64  `json:"timelockA"`
	TimelockB int64  `json:"timelockB"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Status    Status `json:"status"`
}

// Clone returns a copy callers may mutate freely.
func (s *CrossChainSwap) Clone() *CrossChainSwap {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
