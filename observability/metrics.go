package observability

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// SettlementMetrics captures the engine-level counters the dashboards and
// alerts key on: order transitions, transfer outcomes, and pool inventory.
type SettlementMetrics struct {
	escrowTransitions *prometheus.CounterVec
	transferFailures  *prometheus.CounterVec
	poolLiquidity     *prometheus.GaugeVec
	orderFills        *prometheus.CounterVec
	fillVolume        *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// APIMetrics returns the lazily-initialised registry used to record HTTP API
// activity.
func APIMetrics() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fusiond",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total HTTP API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fusiond",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total HTTP API errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fusiond",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			escrowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fusiond",
				Subsystem: "escrow",
				Name:      "transitions_total",
				Help:      "Escrow order transitions segmented by resulting status.",
			}, []string{"status"}),
			transferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fusiond",
				Subsystem: "transfers",
				Name:      "failures_total",
				Help:      "Asset transfers rejected by the ledger collaborator, segmented by operation.",
			}, []string{"operation"}),
			poolLiquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fusiond",
				Subsystem: "pool",
				Name:      "liquidity",
				Help:      "Pool liquidity by pool id and kind (total or available).",
			}, []string{"pool", "kind"}),
			orderFills: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fusiond",
				Subsystem: "matcher",
				Name:      "fills_total",
				Help:      "Fusion orders settled, segmented by solver.",
			}, []string{"solver"}),
			fillVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fusiond",
				Subsystem: "matcher",
				Name:      "fill_volume",
				Help:      "Cumulative filled output volume in token base units, segmented by token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			settlementReg.escrowTransitions,
			settlementReg.transferFailures,
			settlementReg.poolLiquidity,
			settlementReg.orderFills,
			settlementReg.fillVolume,
		)
	})
	return settlementReg
}

// RecordEscrowTransition increments the transition counter for a status.
func (m *SettlementMetrics) RecordEscrowTransition(status string) {
	if m == nil {
		return
	}
	m.escrowTransitions.WithLabelValues(status).Inc()
}

// RecordTransferFailure counts a failed asset transfer by operation name.
func (m *SettlementMetrics) RecordTransferFailure(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.transferFailures.WithLabelValues(operation).Inc()
}

// SetPoolLiquidity publishes a pool's current balances. big.Int values beyond
// float64 precision degrade gracefully; the gauge is for trend dashboards,
// not accounting.
func (m *SettlementMetrics) SetPoolLiquidity(poolID string, total, available *big.Int) {
	if m == nil {
		return
	}
	if total != nil {
		value, _ := new(big.Float).SetInt(total).Float64()
		m.poolLiquidity.WithLabelValues(poolID, "total").Set(value)
	}
	if available != nil {
		value, _ := new(big.Float).SetInt(available).Float64()
		m.poolLiquidity.WithLabelValues(poolID, "available").Set(value)
	}
}

// RecordFill counts a settled order and its output volume.
func (m *SettlementMetrics) RecordFill(solver, token string, toAmount *big.Int) {
	if m == nil {
		return
	}
	if solver == "" {
		solver = "unknown"
	}
	m.orderFills.WithLabelValues(solver).Inc()
	if toAmount != nil {
		value, _ := new(big.Float).SetInt(toAmount).Float64()
		m.fillVolume.WithLabelValues(token).Add(value)
	}
}
