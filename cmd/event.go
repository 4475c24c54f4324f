package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
	"github.com/frahmantamala/swish-payments/internal/core/events"
	"github.com/frahmantamala/swish-payments/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Callback event commands",
	Long:  `Inspect how received gateway callbacks are dispatched to subscribers`,
}

var replayEventCmd = &cobra.Command{
	Use:   "replay [callback.json]",
	Short: "Replay a stored callback body",
	Long:  `Decode a callback body saved from the gateway and run it through the subscribers the server registers`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replayCallback(cmd.Context(), args[0])
	},
}

// registerCallbackSubscribers wires the subscribers the server runs for every
// authorized callback.
func registerCallbackSubscribers(bus *events.EventBus, lg *slog.Logger) {
	bus.Subscribe(events.EventTypePaymentCallback, func(ctx context.Context, event events.Event) error {
		cb, err := callbackFrom(event)
		if err != nil {
			return err
		}
		elg := logger.FromOr(ctx, lg)
		if cb.Status.Final() {
			elg.Info("swish payment settled",
				"event_id", event.EventID(),
				"swish_id", cb.ID,
				"payee_payment_reference", cb.PayeePaymentReference,
				"payment_reference", cb.PaymentReference,
				"status", cb.Status,
				"amount", cb.Amount.String(),
				"error_code", cb.ErrorCode)
			return nil
		}
		elg.Info("swish payment updated",
			"event_id", event.EventID(),
			"swish_id", cb.ID,
			"status", cb.Status)
		return nil
	})

	bus.Subscribe(events.EventTypeRefundCallback, func(ctx context.Context, event events.Event) error {
		cb, err := callbackFrom(event)
		if err != nil {
			return err
		}
		logger.FromOr(ctx, lg).Info("swish refund updated",
			"event_id", event.EventID(),
			"swish_id", cb.ID,
			"original_payment_reference", cb.OriginalPaymentReference,
			"payer_payment_reference", cb.PayerPaymentReference,
			"status", cb.Status,
			"amount", cb.Amount.String(),
			"error_code", cb.ErrorCode)
		return nil
	})
}

func callbackFrom(event events.Event) (*swishtypes.Callback, error) {
	received, ok := event.(*events.CallbackReceivedEvent)
	if !ok || received.Callback == nil {
		return nil, fmt.Errorf("unexpected event %T for %s", event, event.EventType())
	}
	return received.Callback, nil
}

func replayCallback(ctx context.Context, path string) error {
	lg := logger.LoggerWrapper()

	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read callback: %w", err)
	}

	var cb swishtypes.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return fmt.Errorf("failed to decode callback: %w", err)
	}
	cb.Raw = json.RawMessage(body)

	bus := events.NewEventBus(lg)
	registerCallbackSubscribers(bus, lg)

	event := events.NewCallbackReceivedEvent(&cb)
	lg.Info("replaying callback", "event_type", event.EventType(), "event_id", event.EventID())
	return bus.PublishSync(ctx, event)
}

func init() {
	eventCmd.AddCommand(replayEventCmd)
}
