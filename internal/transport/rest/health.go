package rest

import (
	"net/http"
	"time"

	"github.com/frahmantamala/swish-payments/internal/transport"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// certificateExpiryWarning is how close to expiry the client certificate gets
// reported in the health message.
const certificateExpiryWarning = 30 * 24 * time.Hour

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// CertificateSource reports when the gateway client certificate expires.
type CertificateSource interface {
	CertificateExpiresAt() (time.Time, bool)
}

type HealthHandler struct {
	*transport.BaseHandler
	certificates CertificateSource
	now          func() time.Time
}

func NewHealthHandler(base *transport.BaseHandler, certificates CertificateSource) *HealthHandler {
	return &HealthHandler{BaseHandler: base, certificates: certificates, now: time.Now}
}

// pingHandler just says the service is up
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// healthCheckHandler checks the gateway client certificate
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	entry := h.checkCertificate(start)
	entry.DurationMs = h.now().Sub(start).Milliseconds()

	resp := HealthResponse{
		Status:     entry.Status,
		CheckedAt:  start,
		Components: map[string]CheckEntry{"swish_certificate": entry},
	}

	statusCode := http.StatusOK
	if entry.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	h.WriteJSON(w, statusCode, resp)
}

func (h *HealthHandler) checkCertificate(now time.Time) CheckEntry {
	entry := CheckEntry{Status: HealthHealthy, CheckedAt: now}
	if h.certificates == nil {
		entry.Details = map[string]any{"configured": false}
		return entry
	}

	expiresAt, ok := h.certificates.CertificateExpiresAt()
	if !ok {
		entry.Details = map[string]any{"configured": false}
		return entry
	}

	remaining := expiresAt.Sub(now)
	entry.Details = map[string]any{
		"configured": true,
		"expires_at": expiresAt.UTC(),
		"days_left":  int(remaining.Hours() / 24),
	}
	switch {
	case remaining <= 0:
		entry.Status = HealthUnhealthy
		entry.Message = "client certificate has expired"
	case remaining < certificateExpiryWarning:
		entry.Message = "client certificate expires soon"
	}
	return entry
}
