package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"widgetcore/internal/adapters/httpapi"
	"widgetcore/internal/config"
	"widgetcore/internal/core"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr      string
	tracePath string
	// ready is called with the bound address once the listener is up.
	ready func(net.Addr)
}

func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the widget HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return c.serve(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.tracePath, "trace", "", "append JSON trace spans to this file")
	return cmd
}

func (c *CLI) serve(ctx context.Context, cfg config.Config, opts serveOptions) error {
	logger := loggerFromContext(ctx)
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	var svcOpts []core.Option
	var metricsHandler, varsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return err
		}
		vars := core.NewExpvarMetricsRecorder("")
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, vars}))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		varsHandler = expvar.Handler()
	}
	if opts.tracePath != "" {
		f, err := os.OpenFile(opts.tracePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(f)))
	}

	svc, closeStore, err := c.openService(ctx, cfg, svcOpts...)
	if err != nil {
		return err
	}
	defer closeStore()

	handler := httpapi.NewHandler(svc, logger)
	handler.Metrics = metricsHandler
	handler.Vars = varsHandler

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	srv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("listening", "addr", ln.Addr().String(), "storage", cfg.Storage.Driver, "metrics", cfg.Metrics.Enabled)
	if opts.ready != nil {
		opts.ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
