package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/function-starlark/pkg/config"
	"github.com/openfroyo/function-starlark/pkg/function"
	"github.com/openfroyo/function-starlark/pkg/loader"
	"github.com/openfroyo/function-starlark/pkg/packages"
	"github.com/openfroyo/function-starlark/pkg/server"
	"github.com/openfroyo/function-starlark/pkg/telemetry"
)

// serve runs the gRPC server, the metrics endpoint, the module watcher and
// the package controller until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, version string) error {
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry(version))
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			tel.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()
	logger := tel.Logger

	l := loader.New(logger,
		loader.WithSearchPath(cfg.SearchPath()...),
		loader.WithMetrics(tel.Metrics),
	)
	runner := function.NewRunner(l, logger,
		function.WithTelemetry(tel),
		function.WithTTL(cfg.TTL),
		function.WithComposeTimeout(cfg.ComposeTimeout),
	)

	var controller *packages.Controller
	if cfg.Packages.Enabled {
		client, err := packages.NewClient(cfg.Packages.Kubeconfig)
		if err != nil {
			return fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		// the watcher only sees directories that exist when it starts
		if err := os.MkdirAll(cfg.Packages.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create packages directory: %w", err)
		}
		controller = packages.NewController(client, l, logger, packages.Options{
			Label:        cfg.Packages.Label,
			Namespace:    cfg.Packages.Namespace,
			Dir:          cfg.Packages.Dir,
			ResyncPeriod: cfg.Packages.ResyncPeriod,
		})
	}

	srv, err := server.New(runner, logger, server.Options{
		Insecure:            cfg.Insecure,
		TLSCertsDir:         cfg.TLSCertsDir,
		AllowOversizeProtos: cfg.AllowOversizeProtos,
	})
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
	}

	logger.Info().
		Str("version", version).
		Strs("search_path", l.SearchPath()).
		Bool("insecure", cfg.Insecure).
		Bool("packages", cfg.Packages.Enabled).
		Msg("Starting function")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx, ln) })
	g.Go(func() error { return tel.Metrics.ServeMetrics(ctx, logger) })
	if cfg.Modules.Watch {
		g.Go(func() error { return l.Watch(ctx) })
	}
	if controller != nil {
		g.Go(func() error { return controller.Run(ctx) })
	}
	return g.Wait()
}
