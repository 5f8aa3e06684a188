package pool

import "errors"

var (
	ErrNilState              = errors.New("pool: state not configured")
	ErrNilTransferer         = errors.New("pool: transferer not configured")
	ErrPoolNotFound          = errors.New("pool: pool not found")
	ErrProviderNotFound      = errors.New("pool: provider has no position in pool")
	ErrUnauthorized          = errors.New("pool: caller does not own pool")
	ErrPoolInactive          = errors.New("pool: pool is not active")
	ErrInvalidFeeRate        = errors.New("pool: fee rate outside allowed bounds")
	ErrInvalidDepositBounds  = errors.New("pool: min deposit must be positive and not exceed max deposit")
	ErrInvalidAmount         = errors.New("pool: amount must be positive")
	ErrDepositOutOfBounds    = errors.New("pool: deposit outside pool bounds")
	ErrInsufficientShares    = errors.New("pool: provider holds fewer shares than requested")
	ErrInsufficientLiquidity = errors.New("pool: amount exceeds available liquidity")
	ErrNothingToClaim        = errors.New("pool: no rewards claimable")
	ErrTransferPending       = errors.New("pool: transfer already in flight for pool")
)
