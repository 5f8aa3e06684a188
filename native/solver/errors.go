package solver

import "errors"

var (
	ErrNilState          = errors.New("solver: state not configured")
	ErrNilLiquidity      = errors.New("solver: liquidity backend not configured")
	ErrSolverExists      = errors.New("solver: account already registered")
	ErrInsufficientStake = errors.New("solver: stake below registration minimum")
	ErrSolverNotFound    = errors.New("solver: solver not registered")
	ErrSolverInactive    = errors.New("solver: solver is not active")
	ErrRequestNotFound   = errors.New("solver: quote request not found or already consumed")
	ErrQuoteNotFound     = errors.New("solver: quote not found")
	ErrQuoteConsumed     = errors.New("solver: quote already bound to an order")
	ErrOrderNotFound     = errors.New("solver: order not found")
	ErrUnauthorized      = errors.New("solver: caller not permitted")
	ErrInvalidState      = errors.New("solver: operation not valid for current status")
	ErrDeadlinePassed    = errors.New("solver: deadline already passed")
	ErrFeeTooHigh        = errors.New("solver: fee exceeds maximum")
	ErrInvalidAmount     = errors.New("solver: amount must be positive")
	ErrQuoteBelowMinimum = errors.New("solver: quoted amount below requested minimum")
	ErrPoolNotOwned      = errors.New("solver: pool not owned by solver")
)
