package server

import (
	"errors"
	"net/http"

	"fusiond/crypto/hashlock"
	"fusiond/native/escrow"
	"fusiond/native/pool"
	"fusiond/native/solver"
	"fusiond/native/swap"
	"fusiond/oracle"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps engine sentinel errors onto HTTP status codes and stable
// machine-readable codes.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrOrderNotFound),
		errors.Is(err, swap.ErrSwapNotFound),
		errors.Is(err, pool.ErrPoolNotFound),
		errors.Is(err, pool.ErrProviderNotFound),
		errors.Is(err, solver.ErrSolverNotFound),
		errors.Is(err, solver.ErrRequestNotFound),
		errors.Is(err, solver.ErrQuoteNotFound),
		errors.Is(err, solver.ErrOrderNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, swap.ErrNotOperator),
		errors.Is(err, pool.ErrUnauthorized),
		errors.Is(err, solver.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, swap.ErrInvalidTransition),
		errors.Is(err, solver.ErrInvalidState),
		errors.Is(err, solver.ErrQuoteConsumed),
		errors.Is(err, solver.ErrSolverExists):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, escrow.ErrTransferPending),
		errors.Is(err, pool.ErrTransferPending):
		return http.StatusConflict, "transfer_pending"
	case errors.Is(err, escrow.ErrSecretMismatch),
		errors.Is(err, swap.ErrSecretMismatch),
		errors.Is(err, hashlock.ErrMismatch),
		errors.Is(err, hashlock.ErrInvalidHashlock):
		return http.StatusBadRequest, "crypto_mismatch"
	case errors.Is(err, escrow.ErrTimelockExpired),
		errors.Is(err, escrow.ErrTimelockNotExpired),
		errors.Is(err, swap.ErrSwapExpired),
		errors.Is(err, solver.ErrDeadlinePassed):
		return http.StatusConflict, "timelock_violation"
	case errors.Is(err, pool.ErrInsufficientShares),
		errors.Is(err, pool.ErrInsufficientLiquidity):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, escrow.ErrInvalidParty),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrTokenNotAllowed),
		errors.Is(err, escrow.ErrInvalidTimelock),
		errors.Is(err, escrow.ErrFeeRateTooHigh),
		errors.Is(err, swap.ErrInvalidParty),
		errors.Is(err, swap.ErrInvalidTimelock),
		errors.Is(err, swap.ErrTimelockAsymmetry),
		errors.Is(err, swap.ErrLegAlreadyAttached),
		errors.Is(err, pool.ErrInvalidFeeRate),
		errors.Is(err, pool.ErrInvalidDepositBounds),
		errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, pool.ErrDepositOutOfBounds),
		errors.Is(err, pool.ErrPoolInactive),
		errors.Is(err, pool.ErrNothingToClaim),
		errors.Is(err, solver.ErrSolverInactive),
		errors.Is(err, solver.ErrInsufficientStake),
		errors.Is(err, solver.ErrFeeTooHigh),
		errors.Is(err, solver.ErrInvalidAmount),
		errors.Is(err, solver.ErrQuoteBelowMinimum),
		errors.Is(err, solver.ErrPoolNotOwned),
		errors.Is(err, oracle.ErrPairNotSupported),
		errors.Is(err, oracle.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "precondition_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, apiError{Code: code, Message: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: message})
}

func (s *Server) unavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, apiError{Code: "unavailable", Message: "engine not configured"})
}
