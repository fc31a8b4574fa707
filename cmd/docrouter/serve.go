package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/itsneelabh/docrouter"
	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/router"
	"github.com/itsneelabh/docrouter/telemetry"
)

type serveOptions struct {
	port              int
	address           string
	telemetryExporter string
	telemetryEndpoint string
}

func newServeCmd(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Starts the HTTP service:

  POST   /process                      classify and extract {content, metadata}
  POST   /process/file                 classify and extract an uploaded file
  GET    /memory/entries/{id}          read a memory entry
  PATCH  /memory/entries/{id}          patch a memory entry
  DELETE /memory/entries/{id}          delete a memory entry
  GET    /memory/threads/{thread_id}   list a thread's entries
  DELETE /memory/threads/{thread_id}   clear a thread
  GET    /health                       health check

The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []core.Option
			if cmd.Flags().Changed("port") {
				extra = append(extra, core.WithPort(opts.port))
			}
			if cmd.Flags().Changed("address") {
				extra = append(extra, core.WithAddress(opts.address))
			}
			if cmd.Flags().Changed("telemetry-exporter") || cmd.Flags().Changed("telemetry-endpoint") {
				extra = append(extra, core.WithTelemetry(opts.telemetryExporter, opts.telemetryEndpoint))
			}

			cfg, logger, err := setup(cmd, g, extra...)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l, err := net.Listen("tcp", net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port)))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(ctx, cmd, cfg, logger, l)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.port, "port", "p", 8000, "listen port")
	f.StringVar(&opts.address, "address", "0.0.0.0", "listen address")
	f.StringVar(&opts.telemetryExporter, "telemetry-exporter", "otlp", "trace exporter when telemetry is enabled: otlp or stdout")
	f.StringVar(&opts.telemetryEndpoint, "telemetry-endpoint", "", "OTLP collector endpoint (host:port)")
	return cmd
}

// serve wires memory, agents and handlers into a service and runs it on l
// until ctx is cancelled.
func serve(ctx context.Context, cmd *cobra.Command, cfg *core.Config, logger *core.ProductionLogger, l net.Listener) error {
	svc := core.NewService(cfg)
	svc.Logger = logger

	provider, err := telemetry.Enable(ctx, svc, docrouter.Version)
	if err != nil {
		_ = l.Close()
		return err
	}
	if provider != nil {
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn("Telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	mem, err := openMemory(cmd, cfg, logger, svc.Telemetry)
	if err != nil {
		_ = l.Close()
		return err
	}
	defer func() {
		if err := mem.Close(); err != nil {
			logger.Warn("Memory backend close failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	pipeline := router.NewPipeline(mem, router.WithLogger(logger), router.WithTelemetry(svc.Telemetry))
	if err := router.NewHandlers(pipeline, logger).Register(svc); err != nil {
		_ = l.Close()
		return err
	}

	logger.Info("docrouter starting", map[string]interface{}{
		"version": docrouter.Version,
		"address": l.Addr().String(),
		"memory":  cfg.Memory.Provider,
		"id":      svc.ID,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := svc.Serve(l)
		if errors.Is(err, net.ErrClosed) && gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		// Serve may not have installed its server yet
		_ = l.Close()
		return svc.Stop(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Error("docrouter stopped with error", map[string]interface{}{"error": err.Error()})
		return err
	}
	logger.Info("docrouter stopped", nil)
	return nil
}
