package swish

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/swish-payments/internal"
	"github.com/frahmantamala/swish-payments/internal/core/common/validation"
)

// Currency is the only currency the gateway settles in.
const Currency = "SEK"

const (
	MaxMessageLength   = 50
	MaxReferenceLength = 35
)

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "CREATED"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusDeclined  PaymentStatus = "DECLINED"
	PaymentStatusError     PaymentStatus = "ERROR"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Final reports whether the gateway will not change the status any more.
func (s PaymentStatus) Final() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusDeclined, PaymentStatusError, PaymentStatusCancelled:
		return true
	}
	return false
}

type PaymentRequest struct {
	PayeePaymentReference string `json:"payeePaymentReference,omitempty"`
	CallbackURL           string `json:"callbackUrl"`
	PayerAlias            string `json:"payerAlias,omitempty"`
	PayeeAlias            string `json:"payeeAlias"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Message               string `json:"message"`
}

func (r *PaymentRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("callbackUrl", r.CallbackURL).Required().AbsoluteURL()
	v.Field("payeeAlias", r.PayeeAlias).Required()
	v.Field("amount", r.Amount).Required().Amount()
	v.Field("message", r.Message).MaxLength(MaxMessageLength, errors.ErrCodeInvalidMessage)
	v.Field("payeePaymentReference", r.PayeePaymentReference).MaxLength(MaxReferenceLength, errors.ErrCodeInvalidReference)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type PaymentResponse struct {
	ID                    string        `json:"id"`
	PayeePaymentReference string        `json:"payeePaymentReference,omitempty"`
	PaymentReference      string        `json:"paymentReference"`
	CallbackURL           string        `json:"callbackUrl"`
	PayerAlias            string        `json:"payerAlias,omitempty"`
	PayeeAlias            string        `json:"payeeAlias"`
	Amount                Amount        `json:"amount"`
	Currency              string        `json:"currency"`
	Message               string        `json:"message"`
	Status                PaymentStatus `json:"status"`
	DateCreated           string        `json:"dateCreated"`
	DatePaid              string        `json:"datePaid,omitempty"`
	ErrorCode             string        `json:"errorCode,omitempty"`
	ErrorMessage          string        `json:"errorMessage,omitempty"`
	AdditionalInformation string        `json:"additionalInformation,omitempty"`
}

type RefundRequest struct {
	PayerPaymentReference    string `json:"payerPaymentReference,omitempty"`
	OriginalPaymentReference string `json:"originalPaymentReference"`
	PaymentReference         string `json:"paymentReference,omitempty"`
	CallbackURL              string `json:"callbackUrl"`
	PayerAlias               string `json:"payerAlias,omitempty"`
}

func (r *RefundRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("originalPaymentReference", r.OriginalPaymentReference).Required()
	v.Field("callbackUrl", r.CallbackURL).Required().AbsoluteURL()
	v.Field("payerPaymentReference", r.PayerPaymentReference).MaxLength(MaxReferenceLength, errors.ErrCodeInvalidReference)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// Callback is the body the gateway posts to a callbackUrl. Payment and refund
// callbacks share the payment fields; refunds add the original reference.
type Callback struct {
	PaymentResponse
	OriginalPaymentReference string `json:"originalPaymentReference,omitempty"`
	PayerPaymentReference    string `json:"payerPaymentReference,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (c *Callback) IsRefund() bool {
	return c.OriginalPaymentReference != ""
}

func (c *Callback) Kind() string {
	if c.IsRefund() {
		return "refund"
	}
	return "payment"
}

// PaymentRequestCreated is what a device needs to open the Swish app.
type PaymentRequestCreated struct {
	SwishID             string `json:"swishId"`
	PaymentRequestToken string `json:"paymentRequestToken"`
	Location            string `json:"-"`
}

// GatewayError is one entry of an error body returned by the gateway.
type GatewayError struct {
	ErrorCode             string `json:"errorCode"`
	ErrorMessage          string `json:"errorMessage"`
	AdditionalInformation string `json:"additionalInformation,omitempty"`
}

func (e GatewayError) Error() string {
	if e.AdditionalInformation != "" {
		return fmt.Sprintf("swish %s: %s (%s)", e.ErrorCode, e.ErrorMessage, e.AdditionalInformation)
	}
	return fmt.Sprintf("swish %s: %s", e.ErrorCode, e.ErrorMessage)
}

// Rejection is a non-201 answer to a payment request.
type Rejection struct {
	StatusCode int             `json:"statusCode"`
	Errors     []GatewayError  `json:"errors,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

func (r *Rejection) Error() string {
	if len(r.Errors) == 0 {
		return fmt.Sprintf("swish rejected payment request with status %d", r.StatusCode)
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Code returns the first gateway error code, or "" when the body had none.
func (r *Rejection) Code() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].ErrorCode
}

// PaymentRequestResult holds exactly one of Created or Rejected.
type PaymentRequestResult struct {
	Created  *PaymentRequestCreated
	Rejected *Rejection
}

func (r *PaymentRequestResult) OK() bool {
	return r.Created != nil
}

// DecodeGatewayErrors accepts a single error object or an array of them.
func DecodeGatewayErrors(body []byte) ([]GatewayError, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var errs []GatewayError
		if err := json.Unmarshal(body, &errs); err != nil {
			return nil, err
		}
		return errs, nil
	}
	var single GatewayError
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []GatewayError{single}, nil
}

func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
