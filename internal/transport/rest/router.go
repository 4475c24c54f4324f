package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/swish-payments/internal/observability/metrics"
	"github.com/frahmantamala/swish-payments/internal/observability/tracing"
	"github.com/frahmantamala/swish-payments/internal/transport"
	"github.com/frahmantamala/swish-payments/internal/transport/middleware"
	"github.com/frahmantamala/swish-payments/internal/transport/swagger"
)

type RouteConfig struct {
	// CallbackPath is mounted under /api/v1 and receives gateway callbacks.
	CallbackPath string
	// MetricsPath serves the Prometheus registry when not empty.
	MetricsPath string
	// Docs serves the OpenAPI document and Swagger UI.
	Docs bool
}

func RegisterAllRoutes(router *chi.Mux, cfg RouteConfig, certificates CertificateSource, callbackHandler http.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(transport.NewBaseHandler(logger), certificates)

	// Apply global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(tracing.Middleware)
	if cfg.MetricsPath != "" {
		router.Use(metrics.Middleware(cfg.MetricsPath))
		router.Method(http.MethodGet, cfg.MetricsPath, metrics.Handler())
	}

	if cfg.Docs {
		router.Method(http.MethodGet, swagger.DocPath, swagger.DocHandler())
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if callbackHandler != nil {
			r.Group(func(cr chi.Router) {
				cr.Use(middleware.LoggingMiddleware(logger))
				cr.Method(http.MethodPost, cfg.CallbackPath, callbackHandler)
			})
		}
	})
}
