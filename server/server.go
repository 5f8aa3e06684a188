// Package server exposes the settlement engines over an HTTP JSON API. The
// caller's account is taken from the X-Fusion-Account header; in deployments
// an authenticating gateway sits in front and is responsible for binding that
// header to a verified identity.
package server

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fusiond/native/escrow"
	"fusiond/native/pool"
	"fusiond/native/solver"
	"fusiond/native/swap"
	"fusiond/observability"
	"fusiond/observability/logging"
)

const accountHeader = "X-Fusion-Account"

// Server wires the four engines behind one router.
type Server struct {
	escrow  *escrow.Engine
	swaps   *swap.Tracker
	pools   *pool.Engine
	solvers *solver.Engine
	logger  *slog.Logger
}

// New creates a server. Any engine may be nil, in which case its routes
// return 503.
func New(escrowEngine *escrow.Engine, tracker *swap.Tracker, poolEngine *pool.Engine, solverEngine *solver.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		escrow:  escrowEngine,
		swaps:   tracker,
		pools:   poolEngine,
		solvers: solverEngine,
		logger:  logger,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/escrow", func(r chi.Router) {
			r.Post("/orders", s.handleEscrowCreate)
			r.Get("/orders/{id}", s.handleEscrowGet)
			r.Post("/orders/{id}/fund", s.handleEscrowFund)
			r.Post("/orders/{id}/claim", s.handleEscrowClaim)
			r.Post("/orders/{id}/refund", s.handleEscrowRefund)
			r.Get("/stats", s.handleEscrowStats)
		})
		r.Get("/accounts/{account}/orders", s.handleOrdersByAccount)
		r.Get("/accounts/{account}/swaps", s.handleSwapsByAccount)

		r.Route("/swaps", func(r chi.Router) {
			r.Post("/", s.handleSwapInitiate)
			r.Get("/{id}", s.handleSwapGet)
			r.Post("/{id}/leg-a-filled", s.handleSwapLegAFilled)
			r.Post("/{id}/leg-b", s.handleSwapAttachLegB)
			r.Post("/{id}/complete", s.handleSwapComplete)
			r.Post("/{id}/fail", s.handleSwapFail)
		})

		r.Route("/pools", func(r chi.Router) {
			r.Post("/", s.handlePoolCreate)
			r.Get("/{id}", s.handlePoolGet)
			r.Post("/{id}/deposits", s.handlePoolDeposit)
			r.Post("/{id}/withdrawals", s.handlePoolWithdraw)
			r.Post("/{id}/rewards", s.handlePoolAddRewards)
			r.Post("/{id}/rewards/claim", s.handlePoolClaimRewards)
			r.Get("/{id}/rewards", s.handlePoolRewards)
			r.Get("/{id}/providers/{account}", s.handlePoolProvider)
			r.Post("/{id}/active", s.handlePoolSetActive)
		})

		r.Route("/solvers", func(r chi.Router) {
			r.Post("/", s.handleSolverRegister)
			r.Get("/{account}", s.handleSolverGet)
			r.Post("/{account}/active", s.handleSolverSetActive)
		})

		r.Route("/quotes", func(r chi.Router) {
			r.Post("/requests", s.handleQuoteRequest)
			r.Post("/", s.handleQuoteProvide)
			r.Get("/{id}", s.handleQuoteGet)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.handleOrderCreate)
			r.Get("/", s.handleOrdersForAccount)
			r.Get("/{id}", s.handleOrderGet)
			r.Post("/{id}/execute", s.handleOrderExecute)
			r.Post("/{id}/cancel", s.handleOrderCancel)
		})

		r.Get("/stats", s.handleMatcherStats)
	})

	return otelhttp.NewHandler(r, "fusiond.api")
}

// instrument records per-route metrics and an access log line with account
// material masked.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observability.APIMetrics().Observe(route, recorder.status, time.Since(start))
		s.logger.Info("request",
			slog.String("route", route),
			slog.String("method", r.Method),
			slog.Int("status", recorder.status),
			slog.Duration("elapsed", time.Since(start)),
			logging.MaskField("account", r.Header.Get(accountHeader)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func caller(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(accountHeader))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseAmount accepts decimal strings; amounts travel as strings so callers
// never lose precision to JSON numbers.
func parseAmount(raw string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}
