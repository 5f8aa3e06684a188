package server

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fusiond/native/solver"
)

// --- escrow ---

type escrowCreateRequest struct {
	Taker      string `json:"taker"`
	FromToken  string `json:"fromToken"`
	ToToken    string `json:"toToken"`
	FromAmount string `json:"fromAmount"`
	ToAmount   string `json:"toAmount"`
	Hashlock   string `json:"hashlock"`
	Timelock   int64  `json:"timelock"`
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	var req escrowCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	fromAmount, ok := parseAmount(req.FromAmount)
	if !ok {
		s.badRequest(w, "fromAmount must be a decimal string")
		return
	}
	toAmount, ok := parseAmount(req.ToAmount)
	if !ok {
		s.badRequest(w, "toAmount must be a decimal string")
		return
	}
	order, err := s.escrow.Create(caller(r), req.Taker, req.FromToken, req.ToToken, fromAmount, toAmount, req.Hashlock, req.Timelock)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	order, err := s.escrow.GetOrder(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleEscrowFund(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	order, err := s.escrow.Fund(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type secretRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleEscrowClaim(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	var req secretRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	secret, err := hex.DecodeString(req.Secret)
	if err != nil {
		s.badRequest(w, "secret must be hex encoded")
		return
	}
	order, err := s.escrow.Claim(r.Context(), chi.URLParam(r, "id"), caller(r), secret)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleEscrowRefund(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	order, err := s.escrow.Refund(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleEscrowStats(w http.ResponseWriter, _ *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	stats, err := s.escrow.Statistics()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleOrdersByAccount(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.unavailable(w)
		return
	}
	ids, err := s.escrow.OrdersByAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"orders": ids})
}

// --- swaps ---

type swapInitiateRequest struct {
	CounterpartyA string `json:"counterpartyA"`
	CounterpartyB string `json:"counterpartyB"`
	LegA          string `json:"legA"`
	Hashlock      string `json:"hashlock"`
	TimelockA     int64  `json:"timelockA"`
	TimelockB     int64  `json:"timelockB"`
}

func (s *Server) handleSwapInitiate(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	var req swapInitiateRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	record, err := s.swaps.Initiate(caller(r), req.CounterpartyA, req.CounterpartyB, req.LegA, req.Hashlock, req.TimelockA, req.TimelockB)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleSwapGet(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	record, err := s.swaps.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSwapLegAFilled(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	record, err := s.swaps.MarkLegAFilled(caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type swapLegBRequest struct {
	LegB string `json:"legB"`
}

func (s *Server) handleSwapAttachLegB(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	var req swapLegBRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	record, err := s.swaps.AttachLegB(caller(r), chi.URLParam(r, "id"), req.LegB)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSwapComplete(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	var req secretRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	secret, err := hex.DecodeString(req.Secret)
	if err != nil {
		s.badRequest(w, "secret must be hex encoded")
		return
	}
	record, err := s.swaps.Complete(caller(r), chi.URLParam(r, "id"), secret)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleSwapFail(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	var req reasonRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	record, err := s.swaps.Fail(caller(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSwapsByAccount(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		s.unavailable(w)
		return
	}
	ids, err := s.swaps.SwapsByAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"swaps": ids})
}

// --- pools ---

type poolCreateRequest struct {
	Token      string `json:"token"`
	FeeRateBps uint32 `json:"feeRateBps"`
	MinDeposit string `json:"minDeposit"`
	MaxDeposit string `json:"maxDeposit"`
}

func (s *Server) handlePoolCreate(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req poolCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	minDeposit, ok := parseAmount(req.MinDeposit)
	if !ok {
		s.badRequest(w, "minDeposit must be a decimal string")
		return
	}
	maxDeposit, ok := parseAmount(req.MaxDeposit)
	if !ok {
		s.badRequest(w, "maxDeposit must be a decimal string")
		return
	}
	record, err := s.solvers.CreatePool(caller(r), req.Token, req.FeeRateBps, minDeposit, maxDeposit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handlePoolGet(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	record, err := s.pools.GetPool(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handlePoolDeposit(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badRequest(w, "amount must be a decimal string")
		return
	}
	if err := s.pools.Deposit(r.Context(), chi.URLParam(r, "id"), caller(r), amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "settling"})
}

type sharesRequest struct {
	Shares string `json:"shares"`
}

func (s *Server) handlePoolWithdraw(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	var req sharesRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		s.badRequest(w, "shares must be a decimal string")
		return
	}
	if err := s.pools.Withdraw(r.Context(), chi.URLParam(r, "id"), caller(r), shares); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "settling"})
}

func (s *Server) handlePoolAddRewards(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badRequest(w, "amount must be a decimal string")
		return
	}
	if err := s.pools.AddRewards(r.Context(), chi.URLParam(r, "id"), caller(r), amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "settling"})
}

func (s *Server) handlePoolClaimRewards(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	if err := s.pools.ClaimRewards(r.Context(), chi.URLParam(r, "id"), caller(r)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "settling"})
}

func (s *Server) handlePoolRewards(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	record, err := s.pools.GetReward(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handlePoolProvider(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	record, err := s.pools.GetProvider(chi.URLParam(r, "id"), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handlePoolSetActive toggles a pool; only the owning solver passes the
// engine's ownership check.
func (s *Server) handlePoolSetActive(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		s.unavailable(w)
		return
	}
	var req activeRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	if err := s.pools.SetActive(caller(r), chi.URLParam(r, "id"), req.Active); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// --- solvers & matching ---

type solverRegisterRequest struct {
	Name     string `json:"name"`
	Metadata string `json:"metadata"`
	Stake    string `json:"stake"`
}

func (s *Server) handleSolverRegister(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req solverRegisterRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	stake := big.NewInt(0)
	if strings.TrimSpace(req.Stake) != "" {
		parsed, ok := parseAmount(req.Stake)
		if !ok {
			s.badRequest(w, "stake must be a decimal string")
			return
		}
		stake = parsed
	}
	record, err := s.solvers.RegisterSolver(caller(r), req.Name, req.Metadata, stake)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type activeRequest struct {
	Active bool `json:"active"`
}

// handleSolverSetActive toggles the caller's own registry entry.
func (s *Server) handleSolverSetActive(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	account := chi.URLParam(r, "account")
	if caller(r) != account {
		s.writeError(w, solver.ErrUnauthorized)
		return
	}
	var req activeRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	if err := s.solvers.SetSolverActive(account, req.Active); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (s *Server) handleSolverGet(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	record, err := s.solvers.GetSolver(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type quoteRequestBody struct {
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	FromAmount  string `json:"fromAmount"`
	MinToAmount string `json:"minToAmount"`
	Deadline    int64  `json:"deadline"`
}

func (s *Server) handleQuoteRequest(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req quoteRequestBody
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	fromAmount, ok := parseAmount(req.FromAmount)
	if !ok {
		s.badRequest(w, "fromAmount must be a decimal string")
		return
	}
	minToAmount, ok := parseAmount(req.MinToAmount)
	if !ok {
		s.badRequest(w, "minToAmount must be a decimal string")
		return
	}
	record, err := s.solvers.RequestQuote(r.Context(), caller(r), req.FromToken, req.ToToken, fromAmount, minToAmount, req.Deadline)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type quoteProvideRequest struct {
	RequestID string `json:"requestId"`
	PoolID    string `json:"poolId"`
	ToAmount  string `json:"toAmount"`
	FeeBps    uint32 `json:"feeBps"`
}

func (s *Server) handleQuoteProvide(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req quoteProvideRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	toAmount, ok := parseAmount(req.ToAmount)
	if !ok {
		s.badRequest(w, "toAmount must be a decimal string")
		return
	}
	record, err := s.solvers.ProvideQuote(caller(r), req.RequestID, req.PoolID, toAmount, req.FeeBps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleQuoteGet(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	record, err := s.solvers.GetQuote(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type orderCreateRequest struct {
	QuoteID string `json:"quoteId"`
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req orderCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	record, err := s.solvers.CreateOrder(caller(r), req.QuoteID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	record, err := s.solvers.GetOrder(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type orderExecuteRequest struct {
	Proof string `json:"proof"`
}

func (s *Server) handleOrderExecute(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req orderExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	record, err := s.solvers.ExecuteOrder(r.Context(), caller(r), chi.URLParam(r, "id"), req.Proof)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	var req reasonRequest
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, "malformed body: "+err.Error())
		return
	}
	record, err := s.solvers.CancelOrder(caller(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleOrdersForAccount lists fusion order ids for an account; with no query
// parameter it lists the caller's own orders.
func (s *Server) handleOrdersForAccount(w http.ResponseWriter, r *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	account := r.URL.Query().Get("account")
	if account == "" {
		account = caller(r)
	}
	ids, err := s.solvers.OrdersByAccount(account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"orders": ids})
}

func (s *Server) handleMatcherStats(w http.ResponseWriter, _ *http.Request) {
	if s.solvers == nil {
		s.unavailable(w)
		return
	}
	stats, err := s.solvers.Statistics()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
