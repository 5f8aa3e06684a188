package observability

import (
	"math/big"
	"strings"

	"fusiond/core/events"
)

// MetricsEmitter mirrors engine events into the settlement Prometheus
// registry before forwarding them to the wrapped emitter. It keys purely on
// event type and attributes, so the engines stay free of metrics plumbing.
type MetricsEmitter struct {
	next events.Emitter
}

// NewMetricsEmitter wraps next with metrics recording. A nil next discards
// events after recording.
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MetricsEmitter{next: next}
}

func (m *MetricsEmitter) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	m.observe(evt)
	m.next.Emit(evt)
}

func (m *MetricsEmitter) observe(evt *events.Event) {
	reg := Settlement()
	switch {
	case strings.HasPrefix(evt.Type, "escrow.order."):
		op := strings.TrimPrefix(evt.Type, "escrow.order.")
		if failed, ok := strings.CutSuffix(op, "_failed"); ok {
			reg.RecordTransferFailure("escrow." + failed)
			return
		}
		if status := evt.Attributes["status"]; status != "" {
			reg.RecordEscrowTransition(status)
		}
	case evt.Type == "pool.transfer_failed":
		reg.RecordTransferFailure("pool." + evt.Attributes["kind"])
	case strings.HasPrefix(evt.Type, "pool."):
		total, okTotal := new(big.Int).SetString(evt.Attributes["totalLiquidity"], 10)
		available, okAvail := new(big.Int).SetString(evt.Attributes["availableLiquidity"], 10)
		if okTotal || okAvail {
			if !okTotal {
				total = nil
			}
			if !okAvail {
				available = nil
			}
			reg.SetPoolLiquidity(evt.Attributes["poolId"], total, available)
		}
	case evt.Type == "solver.order.filled":
		amount, ok := new(big.Int).SetString(evt.Attributes["toAmount"], 10)
		if !ok {
			amount = nil
		}
		reg.RecordFill(evt.Attributes["solver"], evt.Attributes["toToken"], amount)
	}
}
