package escrow

import (
	"strconv"

	"fusiond/core/events"
)

const (
	EventTypeOrderCreated  = "escrow.order.created"
	EventTypeOrderFunded   = "escrow.order.funded"
	EventTypeOrderClaimed  = "escrow.order.claimed"
	EventTypeOrderRefunded = "escrow.order.refunded"
	EventTypeFundFailed    = "escrow.order.fund_failed"
	EventTypeClaimFailed   = "escrow.order.claim_failed"
	EventTypeRefundFailed  = "escrow.order.refund_failed"
)

func newOrderEvent(eventType string, o *Order) *events.Event {
	if o == nil {
		return &events.Event{Type: eventType, Attributes: map[string]string{}}
	}
	return &events.Event{
		Type: eventType,
		Attributes: map[string]string{
			"orderId":    o.ID,
			"maker":      o.Maker,
			"taker":      o.Taker,
			"fromToken":  o.FromToken,
			"toToken":    o.ToToken,
			"fromAmount": copyBigInt(o.FromAmount).String(),
			"status":     o.Status.String(),
			"expiresAt":  strconv.FormatInt(o.ExpiresAt, 10),
		},
	}
}

func newTransferFailedEvent(eventType, orderID string, cause error) *events.Event {
	attrs := map[string]string{"orderId": orderID}
	if cause != nil {
		attrs["error"] = cause.Error()
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}
