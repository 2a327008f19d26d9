package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/calendis/calendis-edge/pkg/backend"
	"github.com/calendis/calendis-edge/pkg/backend/firebase"
	"github.com/calendis/calendis-edge/pkg/config"
	"github.com/calendis/calendis-edge/pkg/edge"
	"github.com/calendis/calendis-edge/pkg/logging"
	"github.com/calendis/calendis-edge/pkg/routing"
	"github.com/calendis/calendis-edge/pkg/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

// runServe orchestrates the application lifecycle.
func runServe(parent context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Environment:  os.Getenv("NEXT_PUBLIC_ENVIRONMENT"),
		ResourceTags: map[string]string{"log.level": cfg.Logging.Level},
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	defer shutdownTelemetry(telemetryShutdown, logger)

	metrics := edge.NewMetrics()

	store, closeProvider, err := startRouting(ctx, opts.ConfigPath, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	svc, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if svc != nil {
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Warn("backend close error", "error", err)
			}
		}()
	}

	dataHandler, err := newDataHandler(cfg, store, svc, metrics, logger)
	if err != nil {
		return err
	}

	adminOpts := edge.AdminOptions{Store: store, Metrics: metrics}
	if svc != nil {
		adminOpts.Ready = svc.Ready
	}

	dataSrv := &http.Server{
		Addr:              cfg.Server.DataAddress,
		Handler:           dataHandler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}
	tlsConfig, err := cfg.Server.TLS.ServerTLS()
	if err != nil {
		return fmt.Errorf("data plane tls: %w", err)
	}
	dataSrv.TLSConfig = tlsConfig

	adminSrv := &http.Server{
		Addr:              cfg.Server.AdminAddress,
		Handler:           edge.NewAdminHandler(adminOpts),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 2)
	go serveListener(dataSrv, "data plane", logger, errCh)
	go serveListener(adminSrv, "admin", logger, errCh)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := dataSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("data plane server shutdown error", "error", serr)
	}
	if serr := adminSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("admin server shutdown error", "error", serr)
	}

	return err
}

// startRouting installs the initial routing table. With a config file the
// table follows the file; each valid change swaps the router atomically.
func startRouting(ctx context.Context, path string, cfg *config.Config, metrics *edge.Metrics, logger *slog.Logger) (*routing.Store, func(), error) {
	if path == "" {
		router, err := cfg.Routing.NewRouter()
		if err != nil {
			return nil, nil, err
		}
		store := routing.NewStore(router)
		metrics.SetRoutingGeneration(store.Generation())
		return store, func() {}, nil
	}

	provider, err := config.NewFileConfigProvider(path, logger, config.WithReloadHook(func(err error) {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.RecordConfigReload(status)
		telemetry.RecordReload(ctx, err == nil)
	}))
	if err != nil {
		return nil, nil, err
	}

	initial := provider.CurrentSnapshot()
	store := routing.NewStore(initial.Router)
	metrics.SetRoutingGeneration(store.Generation())

	updates := provider.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				if snap.Generation <= initial.Generation {
					continue
				}
				gen := store.Swap(snap.Router)
				metrics.SetRoutingGeneration(gen)
				logger.Info("routing table swapped",
					"generation", gen,
					"config_generation", snap.Generation,
					"rules", len(snap.Router.Table()),
				)
			}
		}
	}()

	return store, func() {
		if err := provider.Close(); err != nil {
			logger.Warn("config watcher close error", "error", err)
		}
	}, nil
}

// newBackend builds the backend service when enabled. Missing credentials
// fail startup.
func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend.Service, error) {
	if !cfg.Backend.Enabled {
		return nil, nil
	}
	mode, err := backend.ParseMode(cfg.Backend.Mode)
	if err != nil {
		return nil, err
	}
	svc, err := backend.New(ctx, mode, firebase.NewProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("backend initialization failed: %w", err)
	}
	logger.Info("backend initialised", "mode", mode, "project_id", svc.PublicConfig().ProjectID)
	return svc, nil
}

func newDataHandler(cfg *config.Config, store *routing.Store, svc *backend.Service, metrics *edge.Metrics, logger *slog.Logger) (http.Handler, error) {
	upstream, err := cfg.Upstream.ParsedURL()
	if err != nil {
		return nil, err
	}
	transport, err := edge.NewTransport(cfg.Upstream)
	if err != nil {
		return nil, err
	}
	manifest, err := edge.NewManifest(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	opts := edge.Options{
		Router:              store,
		Upstream:            upstream,
		PreserveHost:        cfg.Upstream.PreserveHost,
		Transport:           transport,
		TrustForwardedHost:  cfg.Server.TrustForwardedHost,
		TrustForwardedProto: cfg.Server.TrustForwardedProto,
		Security:            edge.NewSecurityPolicy(cfg.Security),
		Manifest:            manifest,
		Metrics:             metrics,
		Logger:              logger.With("component", "edge"),
	}
	if cfg.Routing.VerifySessions && svc != nil {
		opts.Verifier = svc
	}

	handler, err := edge.NewHandler(opts)
	if err != nil {
		return nil, err
	}
	return otelhttp.NewHandler(edge.RequestID(handler), "calendis.edge"), nil
}

// serveListener runs srv until it is shut down and reports unexpected errors.
func serveListener(srv *http.Server, name string, logger *slog.Logger, errCh chan<- error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		errCh <- fmt.Errorf("%s server listen error: %w", name, err)
		return
	}
	useTLS := srv.TLSConfig != nil
	logger.Info("server listening", "server", name, "address", ln.Addr().String(), "tls", useTLS)

	if useTLS {
		// Certificates come from TLSConfig.
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server error: %w", name, err)
	}
}

// shutdownTelemetry gracefully shuts down the telemetry provider.
func shutdownTelemetry(shutdown func(context.Context) error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown error", "error", err)
	}
}
