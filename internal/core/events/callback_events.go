package events

import (
	"time"

	"github.com/google/uuid"

	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
)

const (
	EventTypePaymentCallback = "swish.payment.callback"
	EventTypeRefundCallback  = "swish.refund.callback"
)

// CallbackReceivedEvent wraps one authorized gateway callback.
type CallbackReceivedEvent struct {
	BaseEvent
	Callback *swishtypes.Callback `json:"callback"`
}

func NewCallbackReceivedEvent(cb *swishtypes.Callback) *CallbackReceivedEvent {
	eventType := EventTypePaymentCallback
	if cb.IsRefund() {
		eventType = EventTypeRefundCallback
	}
	return &CallbackReceivedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"swish_id":                   cb.ID,
				"payment_reference":          cb.PaymentReference,
				"original_payment_reference": cb.OriginalPaymentReference,
				"status":                     string(cb.Status),
				"amount":                     cb.Amount.String(),
			},
		},
		Callback: cb,
	}
}
