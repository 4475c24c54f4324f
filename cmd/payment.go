package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/swish-payments/internal"
	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Payment request commands",
}

var refundCmd = &cobra.Command{
	Use:   "refund",
	Short: "Refund request commands",
}

var (
	paymentFlags swishtypes.PaymentRequest
	refundFlags  swishtypes.RefundRequest
)

var createPaymentCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a payment request",
	Long:  `Create a payment request and print the Swish id and, for m-commerce, the token that opens the app`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		lg := setupLogger(cfg)
		client, err := newSwishClient(cfg, lg)
		if err != nil {
			return err
		}

		req := paymentFlags
		req.PayeeAlias = getStringFlag(req.PayeeAlias, cfg.Swish.PayeeAlias)
		req.CallbackURL = getStringFlag(req.CallbackURL, cfg.Swish.CallbackURL)
		if req.PayeePaymentReference == "" {
			req.PayeePaymentReference = newPaymentReference()
		}

		ctx, cancel := internal.WithTimeout(cmd.Context(), cfg.Swish.Timeout)
		defer cancel()

		result, err := client.CreatePaymentRequest(ctx, req)
		if err != nil {
			return err
		}
		if !result.OK() {
			if err := writeJSON(cmd.OutOrStdout(), result.Rejected); err != nil {
				return err
			}
			return result.Rejected
		}
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"swishId":               result.Created.SwishID,
			"paymentRequestToken":   result.Created.PaymentRequestToken,
			"location":              result.Created.Location,
			"payeePaymentReference": req.PayeePaymentReference,
		})
	},
}

var getPaymentCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Fetch the state of a payment request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		client, err := newSwishClient(cfg, setupLogger(cfg))
		if err != nil {
			return err
		}

		ctx, cancel := internal.WithTimeout(cmd.Context(), cfg.Swish.Timeout)
		defer cancel()

		payment, err := client.GetPayment(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), payment)
	},
}

var createRefundCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a refund request",
	Long:  `Post a refund request and print the gateway status and body as received`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		client, err := newSwishClient(cfg, setupLogger(cfg))
		if err != nil {
			return err
		}

		req := refundFlags
		req.CallbackURL = getStringFlag(req.CallbackURL, cfg.Swish.CallbackURL)
		if req.PayerPaymentReference == "" {
			req.PayerPaymentReference = newPaymentReference()
		}

		ctx, cancel := internal.WithTimeout(cmd.Context(), cfg.Swish.Timeout)
		defer cancel()

		resp, err := client.CreateRefundRequest(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read refund response: %w", err)
		}
		out := map[string]interface{}{
			"status":   resp.StatusCode,
			"location": resp.Header.Get("Location"),
		}
		if len(body) > 0 {
			if json.Valid(body) {
				out["body"] = json.RawMessage(body)
			} else {
				out["body"] = string(body)
			}
		}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("refund request answered %d", resp.StatusCode)
		}
		return nil
	},
}

// newPaymentReference returns a 32 character reference accepted by the gateway.
func newPaymentReference() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	f := createPaymentCmd.Flags()
	f.StringVar(&paymentFlags.Amount, "amount", "", "Amount in SEK, e.g. 100.00")
	f.StringVar(&paymentFlags.Message, "message", "", "Message shown to the payer")
	f.StringVar(&paymentFlags.PayerAlias, "payer-alias", "", "Payer phone number; leave empty for m-commerce")
	f.StringVar(&paymentFlags.PayeeAlias, "payee-alias", "", "Swish number receiving the payment (overrides config)")
	f.StringVar(&paymentFlags.CallbackURL, "callback-url", "", "Callback URL (overrides config)")
	f.StringVar(&paymentFlags.PayeePaymentReference, "reference", "", "Payee payment reference (generated when empty)")
	_ = createPaymentCmd.MarkFlagRequired("amount")

	f = createRefundCmd.Flags()
	f.StringVar(&refundFlags.OriginalPaymentReference, "original-reference", "", "Payment reference of the payment to refund")
	f.StringVar(&refundFlags.PaymentReference, "payment-reference", "", "Payment reference for the refund")
	f.StringVar(&refundFlags.PayerAlias, "payer-alias", "", "Swish number paying back the refund")
	f.StringVar(&refundFlags.CallbackURL, "callback-url", "", "Callback URL (overrides config)")
	f.StringVar(&refundFlags.PayerPaymentReference, "reference", "", "Payer payment reference (generated when empty)")
	_ = createRefundCmd.MarkFlagRequired("original-reference")

	paymentCmd.AddCommand(createPaymentCmd)
	paymentCmd.AddCommand(getPaymentCmd)
	refundCmd.AddCommand(createRefundCmd)
}
