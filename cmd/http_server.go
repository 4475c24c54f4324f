package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/swish-payments/internal"
	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
	"github.com/frahmantamala/swish-payments/internal/core/events"
	"github.com/frahmantamala/swish-payments/internal/observability/metrics"
	"github.com/frahmantamala/swish-payments/internal/observability/tracing"
	"github.com/frahmantamala/swish-payments/internal/swish"
	"github.com/frahmantamala/swish-payments/internal/transport/rest"
	"github.com/frahmantamala/swish-payments/internal/transport/swagger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server receiving Swish callbacks and serving health and metrics`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	},
}

type Dependencies struct {
	Config          *internal.Config
	Client          *swish.Client
	EventBus        *events.EventBus
	Router          *chi.Mux
	Logger          *slog.Logger
	shutdownTracing func(context.Context) error
}

func startHTTPServer() error {
	deps, err := initializeDependencies()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server",
		"address", addr,
		"callback_path", "/api/v1"+deps.Config.Server.CallbackPath,
		"swish_endpoint", deps.Config.Swish.Endpoint)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		deps.Logger.Error("Server shutdown error", "error", err)
	}
	if err := deps.EventBus.Wait(ctx); err != nil {
		deps.Logger.Warn("Callback handlers still running at shutdown", "error", err)
	}
	if err := deps.shutdownTracing(ctx); err != nil {
		deps.Logger.Error("Tracer shutdown error", "error", err)
	}

	deps.Logger.Info("Server stopped")
	return serveErr
}

func setupRoutes(deps *Dependencies) {
	metricsPath := ""
	if deps.Config.Observability.Metrics.Enabled {
		metrics.MustRegister()
		metricsPath = deps.Config.Observability.Metrics.Path
	}

	hook := deps.Client.CreateHook(func(ctx context.Context, cb *swishtypes.Callback) {
		deps.EventBus.Publish(ctx, events.NewCallbackReceivedEvent(cb))
	})

	rest.RegisterAllRoutes(deps.Router, rest.RouteConfig{
		CallbackPath: deps.Config.Server.CallbackPath,
		MetricsPath:  metricsPath,
		Docs:         deps.Config.Server.Docs.Enabled,
	}, deps.Client, hook, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := setupLogger(config)

	shutdownTracing := func(context.Context) error { return nil }
	if config.Observability.Tracing.Enabled {
		shutdownTracing, err = tracing.Init(context.Background(), tracing.Config{
			ServiceName:  config.Observability.Tracing.ServiceName,
			Endpoint:     config.Observability.Tracing.Endpoint,
			SamplingRate: config.Observability.Tracing.SamplingRate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	client, err := newSwishClient(config, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to create swish client: %w", err)
	}
	if expiresAt, ok := client.CertificateExpiresAt(); ok {
		lg.Info("swish client certificate loaded", "expires_at", expiresAt)
	} else {
		lg.Warn("no swish client certificate configured")
	}
	if config.Swish.ServerIP == "" {
		lg.Warn("SWISH_SERVER_IP is empty, every callback will be refused")
	}

	if config.Server.Docs.Enabled {
		if _, err := swagger.Load(context.Background()); err != nil {
			return nil, err
		}
	}

	eventBus := events.NewEventBus(lg)
	registerCallbackSubscribers(eventBus, lg)

	return &Dependencies{
		Config:          config,
		Client:          client,
		EventBus:        eventBus,
		Router:          chi.NewRouter(),
		Logger:          lg,
		shutdownTracing: shutdownTracing,
	}, nil
}
