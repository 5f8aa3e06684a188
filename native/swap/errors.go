package swap

import "errors"

var (
	ErrNilState           = errors.New("swap: state not configured")
	ErrSwapNotFound       = errors.New("swap: swap not found")
	ErrNotOperator        = errors.New("swap: caller is not a registered operator")
	ErrInvalidParty       = errors.New("swap: initiator and counterparty accounts required")
	ErrInvalidTimelock    = errors.New("swap: timelock must be positive")
	ErrTimelockAsymmetry  = errors.New("swap: counter-leg timelock must be strictly shorter than originating leg")
	ErrInvalidTransition  = errors.New("swap: status transition not permitted")
	ErrSwapExpired        = errors.New("swap: timelock already expired")
	ErrSecretMismatch     = errors.New("swap: secret does not match shared hashlock")
	ErrLegAlreadyAttached = errors.New("swap: counter-leg already attached")
)
