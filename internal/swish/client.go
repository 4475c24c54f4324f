package swish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/frahmantamala/swish-payments/internal"
	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
	"github.com/frahmantamala/swish-payments/internal/observability/metrics"
	"github.com/frahmantamala/swish-payments/internal/observability/tracing"
	"github.com/frahmantamala/swish-payments/pkg/logger"
)

const (
	paymentRequestsPath = "/paymentrequests"

	// HeaderPaymentRequestToken carries the one-time token used to launch the app.
	HeaderPaymentRequestToken = "PaymentRequestToken"

	opGetPayment     = "get_payment"
	opPaymentRequest = "payment_request"
	opRefundRequest  = "refund_request"
)

type Config struct {
	Endpoint    string            `mapstructure:"endpoint"`
	ServerIP    string            `mapstructure:"server_ip"`
	Certificate CertificateConfig `mapstructure:"certificate"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

func (c Config) Validate() error {
	if c.Endpoint == "" {
		return internal.NewConfigError("swish endpoint is required", internal.ErrCodeInvalidURL)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return internal.NewConfigError("swish endpoint must be an absolute URL", internal.ErrCodeInvalidURL)
	}
	if _, err := NewCallerAuthorizer(c.ServerIP); err != nil {
		return err
	}
	return c.Certificate.Validate()
}

// Client talks to the payment request API of the gateway and builds the
// handler the gateway calls back. It holds no mutable state and is safe for
// concurrent use.
type Client struct {
	endpoint    string
	authorizer  *CallerAuthorizer
	httpClient  *http.Client
	certificate certificateInfo
	logger      *slog.Logger
}

type certificateInfo struct {
	expiresAt time.Time
	loaded    bool
}

// NewClient builds a client whose transport presents the configured client
// certificate. Only local files are read; no connection is made.
func NewClient(config Config, lg *slog.Logger) (*Client, error) {
	tlsConfig, err := LoadTLSConfig(config.Certificate)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	client, err := NewClientWithHTTPClient(config, &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}, lg)
	if err != nil {
		return nil, err
	}

	if expiresAt, ok := CertificateExpiry(tlsConfig); ok {
		client.certificate = certificateInfo{expiresAt: expiresAt, loaded: true}
	}
	return client, nil
}

// NewClientWithHTTPClient uses httpClient as is, TLS included.
func NewClientWithHTTPClient(config Config, httpClient *http.Client, lg *slog.Logger) (*Client, error) {
	authorizer, err := NewCallerAuthorizer(config.ServerIP)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if lg == nil {
		lg = logger.LoggerWrapper()
	}

	return &Client{
		endpoint:   strings.TrimRight(config.Endpoint, "/"),
		authorizer: authorizer,
		httpClient: httpClient,
		logger:     lg,
	}, nil
}

// CertificateExpiresAt reports when the client certificate stops being valid.
func (c *Client) CertificateExpiresAt() (time.Time, bool) {
	return c.certificate.expiresAt, c.certificate.loaded
}

// GetPayment fetches the current state of the payment request identified by
// token. A status of 400 or above returns a nil payment and the decoded
// *swishtypes.Rejection as the error; an error body is never decoded into a
// PaymentResponse.
func (c *Client) GetPayment(ctx context.Context, token string) (*swishtypes.PaymentResponse, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "swish.GetPayment", attribute.String("swish.token", token))
	lg := logger.FromOr(ctx, c.logger)

	resp, err := c.send(ctx, http.MethodGet, paymentRequestsPath+"/"+url.PathEscape(token), nil)
	if err != nil {
		lg.Error("swish: get payment failed", "token", token, "error", err)
		c.finish(span, opGetPayment, metrics.OutcomeError, start, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		rejection, err := readRejection(resp)
		if err != nil {
			c.finish(span, opGetPayment, metrics.OutcomeError, start, resp.StatusCode, err)
			return nil, err
		}
		lg.Warn("swish: get payment rejected",
			"token", token,
			"status_code", resp.StatusCode,
			"error_code", rejection.Code())
		c.finish(span, opGetPayment, metrics.OutcomeRejected, start, resp.StatusCode, nil)
		return nil, rejection
	}

	var payment swishtypes.PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		lg.Error("swish: failed to decode payment", "token", token, "error", err)
		c.finish(span, opGetPayment, metrics.OutcomeError, start, resp.StatusCode, err)
		return nil, err
	}

	lg.Debug("swish: payment fetched",
		"token", token,
		"swish_id", payment.ID,
		"status", payment.Status)
	c.finish(span, opGetPayment, metrics.OutcomeSuccess, start, resp.StatusCode, nil)
	return &payment, nil
}

// CreatePaymentRequest registers a payment request. The currency is always
// SEK whatever the caller set. A gateway refusal is returned as
// PaymentRequestResult.Rejected with a nil error; the error return is kept for
// validation, transport and decoding failures.
func (c *Client) CreatePaymentRequest(ctx context.Context, data swishtypes.PaymentRequest) (*swishtypes.PaymentRequestResult, error) {
	data.Currency = swishtypes.Currency
	if err := data.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := tracing.Start(ctx, "swish.CreatePaymentRequest",
		attribute.String("swish.payee_payment_reference", data.PayeePaymentReference),
		attribute.String("swish.amount", data.Amount))
	lg := logger.FromOr(ctx, c.logger)

	lg.Info("swish: creating payment request",
		"payee_payment_reference", data.PayeePaymentReference,
		"amount", data.Amount,
		"currency", data.Currency,
		"m_commerce", data.PayerAlias == "")

	resp, err := c.send(ctx, http.MethodPost, paymentRequestsPath, data)
	if err != nil {
		lg.Error("swish: payment request failed", "error", err)
		c.finish(span, opPaymentRequest, metrics.OutcomeError, start, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		rejection, err := readRejection(resp)
		if err != nil {
			lg.Error("swish: failed to decode payment request error body",
				"status_code", resp.StatusCode,
				"error", err)
			c.finish(span, opPaymentRequest, metrics.OutcomeError, start, resp.StatusCode, err)
			return nil, err
		}
		lg.Warn("swish: payment request rejected",
			"status_code", resp.StatusCode,
			"error_code", rejection.Code(),
			"error", rejection.Error())
		c.finish(span, opPaymentRequest, metrics.OutcomeRejected, start, resp.StatusCode, nil)
		return &swishtypes.PaymentRequestResult{Rejected: rejection}, nil
	}

	location := resp.Header.Get("Location")
	swishID := SwishIDFromLocation(location)
	if swishID == "" {
		err := internal.ErrMissingLocation.WithCause(&locationError{location: location})
		c.finish(span, opPaymentRequest, metrics.OutcomeError, start, resp.StatusCode, err)
		return nil, err
	}

	created := &swishtypes.PaymentRequestCreated{
		SwishID:             swishID,
		PaymentRequestToken: resp.Header.Get(HeaderPaymentRequestToken),
		Location:            location,
	}

	lg.Info("swish: payment request created",
		"swish_id", created.SwishID,
		"has_token", created.PaymentRequestToken != "")
	c.finish(span, opPaymentRequest, metrics.OutcomeSuccess, start, resp.StatusCode, nil)
	return &swishtypes.PaymentRequestResult{Created: created}, nil
}

// CreateRefundRequest posts the refund and hands back the raw response. The
// status is not checked and the body is not read; the caller must close it.
func (c *Client) CreateRefundRequest(ctx context.Context, data swishtypes.RefundRequest) (*http.Response, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "swish.CreateRefundRequest",
		attribute.String("swish.original_payment_reference", data.OriginalPaymentReference))
	lg := logger.FromOr(ctx, c.logger)

	lg.Info("swish: creating refund request",
		"original_payment_reference", data.OriginalPaymentReference,
		"payer_payment_reference", data.PayerPaymentReference)

	resp, err := c.send(ctx, http.MethodPost, paymentRequestsPath, data)
	if err != nil {
		lg.Error("swish: refund request failed", "error", err)
		c.finish(span, opRefundRequest, metrics.OutcomeError, start, 0, err)
		return nil, err
	}

	lg.Info("swish: refund request sent", "status_code", resp.StatusCode)
	c.finish(span, opRefundRequest, metrics.OutcomeSuccess, start, resp.StatusCode, nil)
	return resp, nil
}

// send returns transport errors exactly as the http.Client produced them.
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) finish(span trace.Span, operation, outcome string, start time.Time, status int, err error) {
	metrics.ObserveRequest(operation, outcome, time.Since(start))
	tracing.End(span, status, err)
}

func readRejection(resp *http.Response) (*swishtypes.Rejection, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	rejection := &swishtypes.Rejection{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(body)) == 0 {
		return rejection, nil
	}
	rejection.Body = json.RawMessage(body)
	errs, err := swishtypes.DecodeGatewayErrors(body)
	if err != nil {
		return nil, err
	}
	rejection.Errors = errs
	return rejection, nil
}

// SwishIDFromLocation extracts {id} from a .../paymentrequests/{id} URL.
func SwishIDFromLocation(location string) string {
	const marker = "paymentrequests/"
	idx := strings.LastIndex(location, marker)
	if idx < 0 {
		return ""
	}
	id := location[idx+len(marker):]
	if cut := strings.IndexAny(id, "?#"); cut >= 0 {
		id = id[:cut]
	}
	return strings.Trim(id, "/")
}

type locationError struct {
	location string
}

func (e *locationError) Error() string {
	if e.location == "" {
		return "Location header is empty"
	}
	return "unexpected Location header " + e.location
}
