package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/swish-payments/internal"
	"github.com/frahmantamala/swish-payments/pkg/logger"
)

// MaxLoggedBodyBytes bounds how much of a request or response body is held
// for logging. The request is never read further than this before the
// handler runs.
const MaxLoggedBodyBytes = 4 << 10

const masked = "[FILTERED]"

// maskedNames are matched as substrings of header and JSON field names.
// Payer and payee aliases are phone numbers.
var maskedNames = []string{
	"passphrase",
	"password",
	"token",
	"authorization",
	"secret",
	"key",
	"credential",
	"alias",
}

// LoggingMiddleware logs a masked preview of each request and its response.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			reqID := internal.RequestIDFromContext(ctx)
			if reqID == "" {
				reqID = middleware.GetReqID(ctx)
			}
			lg := logger.FromOr(ctx, base).With("request_id", reqID)

			preview, truncated := peekBody(r)
			lg.Info("incoming request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", maskHeaders(r.Header),
				"body", maskBody(preview, truncated),
				"body_truncated", truncated,
			)

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			lg.Log(ctx, level, "response",
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", rec.size,
				"body", maskBody(rec.head.Bytes(), rec.size > int64(rec.head.Len())),
			)
		})
	}
}

// peekBody reads at most MaxLoggedBodyBytes+1 bytes and puts them back in
// front of the unread remainder, so the handler still sees the whole stream
// and applies its own limits.
func peekBody(r *http.Request) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false
	}
	head, _ := io.ReadAll(io.LimitReader(r.Body, MaxLoggedBodyBytes+1))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if len(head) > MaxLoggedBodyBytes {
		return head[:MaxLoggedBodyBytes], true
	}
	return head, false
}

type replayBody struct {
	io.Reader
	io.Closer
}

// recorder keeps the first status and the first MaxLoggedBodyBytes of the
// response. size counts every byte written.
type recorder struct {
	http.ResponseWriter
	status int
	size   int64
	head   bytes.Buffer
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if room := MaxLoggedBodyBytes - rw.head.Len(); room > 0 {
		rw.head.Write(b[:min(room, len(b))])
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func isMaskedName(name string) bool {
	name = strings.ToLower(name)
	for _, m := range maskedNames {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if isMaskedName(name) {
			out[name] = masked
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// maskBody renders body for a log line. A cut-off or non-JSON body is only
// logged when it mentions none of the masked names.
func maskBody(body []byte, truncated bool) string {
	if len(body) == 0 {
		return ""
	}

	var doc any
	if truncated || json.Unmarshal(body, &doc) != nil {
		if isMaskedName(string(body)) {
			return "[FILTERED - contains sensitive data]"
		}
		if truncated {
			return string(body) + "...(truncated)"
		}
		return string(body)
	}

	out, err := json.Marshal(maskValue(doc))
	if err != nil {
		return "[ERROR - failed to encode masked body]"
	}
	return string(out)
}

func maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isMaskedName(k) {
				out[k] = masked
			} else {
				out[k] = maskValue(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = maskValue(val)
		}
		return out
	default:
		return v
	}
}
