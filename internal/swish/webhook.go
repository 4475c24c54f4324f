package swish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/frahmantamala/swish-payments/internal"
	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
	"github.com/frahmantamala/swish-payments/internal/observability/metrics"
	"github.com/frahmantamala/swish-payments/internal/observability/tracing"
	"github.com/frahmantamala/swish-payments/pkg/logger"
)

const maxCallbackBytes = 1 << 20

// CallbackFunc receives every authorized callback. It runs on the request
// goroutine before the gateway gets its response.
type CallbackFunc func(ctx context.Context, callback *swishtypes.Callback)

// CreateHook returns the handler to mount at the callbackUrl given to the
// gateway. Callers outside the trusted server IP get 401 "not authorized";
// authorized callbacks are passed to callback once and answered with 201.
// Every path writes its status so the connection is never left open.
func (c *Client) CreateHook(callback CallbackFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.Start(r.Context(), "swish.Callback",
			attribute.String("net.peer.addr", r.RemoteAddr))
		lg := logger.FromOr(ctx, c.logger).With("remote_addr", r.RemoteAddr)

		if !c.authorizer.Allow(r.RemoteAddr) {
			lg.Warn("swish: callback from untrusted address", "trusted", c.authorizer.String())
			metrics.IncCallback("", metrics.OutcomeRejected)
			writePlain(w, http.StatusUnauthorized, internal.ErrUntrustedCaller.Message)
			tracing.End(span, http.StatusUnauthorized, nil)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
		if err != nil {
			lg.Error("swish: failed to read callback body", "error", err)
			metrics.IncCallback("", metrics.OutcomeError)
			writePlain(w, http.StatusBadRequest, internal.ErrInvalidCallback.Message)
			tracing.End(span, http.StatusBadRequest, err)
			return
		}

		var payload swishtypes.Callback
		if err := json.Unmarshal(body, &payload); err != nil {
			lg.Error("swish: invalid callback payload", "error", err)
			metrics.IncCallback("", metrics.OutcomeError)
			writePlain(w, http.StatusBadRequest, internal.ErrInvalidCallback.Message)
			tracing.End(span, http.StatusBadRequest, err)
			return
		}
		payload.Raw = json.RawMessage(body)

		lg.Info("swish: callback received",
			"kind", payload.Kind(),
			"swish_id", payload.ID,
			"payment_reference", payload.PaymentReference,
			"status", payload.Status)

		if callback != nil {
			callback(ctx, &payload)
		}

		metrics.IncCallback(payload.Kind(), metrics.OutcomeSuccess)
		w.WriteHeader(http.StatusCreated)
		tracing.End(span, http.StatusCreated, nil)
	}
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
