package escrow

import "errors"

var (
	ErrNilState           = errors.New("escrow: state not configured")
	ErrNilTransferer      = errors.New("escrow: transferer not configured")
	ErrOrderNotFound      = errors.New("escrow: order not found")
	ErrUnauthorized       = errors.New("escrow: unauthorized caller")
	ErrInvalidState       = errors.New("escrow: operation not valid for current status")
	ErrInvalidParty       = errors.New("escrow: maker and taker accounts required")
	ErrInvalidAmount      = errors.New("escrow: amount must be positive")
	ErrTokenNotAllowed    = errors.New("escrow: token not on allow-list")
	ErrInvalidTimelock    = errors.New("escrow: timelock outside allowed window")
	ErrSecretMismatch     = errors.New("escrow: secret does not match hashlock")
	ErrTimelockExpired    = errors.New("escrow: timelock already expired")
	ErrTimelockNotExpired = errors.New("escrow: timelock not yet expired")
	ErrTransferPending    = errors.New("escrow: transfer already in flight for order")
	ErrFeeRateTooHigh     = errors.New("escrow: fee rate exceeds maximum")
)
