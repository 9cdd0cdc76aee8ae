package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	internalhttp "github.com/jmylchreest/proofreel/internal/http"
	"github.com/jmylchreest/proofreel/internal/http/handlers"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/supervisor"
	"github.com/jmylchreest/proofreel/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the media pipeline",
	Long: `Start the worker pools and maintenance schedule.

serve resolves the resource plan, connects to the queue store, reaps temp
files left behind by a previous run and starts the transcode, asset,
clean-preview and notification pools. With ops enabled it also serves:
- /health, /livez and /readyz
- /api/v1/plan
- /api/v1/jobs for inspecting and retrying jobs
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("ops", false, "serve the ops HTTP API")
	serveCmd.Flags().String("ops-host", "127.0.0.1", "ops API host to bind to")
	serveCmd.Flags().Int("ops-port", 9090, "ops API port to listen on")

	mustBindPFlag("ops.enabled", serveCmd.Flags().Lookup("ops"))
	mustBindPFlag("ops.host", serveCmd.Flags().Lookup("ops-host"))
	mustBindPFlag("ops.port", serveCmd.Flags().Lookup("ops-port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting proofreel",
		slog.String("version", version.Version),
		slog.String("database", cfg.Database.Driver),
		slog.String("storage", cfg.Storage.Backend),
	)

	sup := supervisor.New(cfg, queue.NewFactory(cfg, logger), logger)

	if !cfg.Ops.Enabled {
		return sup.Run(ctx)
	}

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	server := internalhttp.NewServer(internalhttp.ServerConfigFromOps(cfg.Ops), logger, version.Version)
	handlers.NewHealthHandler(version.Version).WithDB(sup.Connection().DB()).Register(server.API())
	handlers.NewPlanHandler(sup.Plan).Register(server.API())
	handlers.NewJobHandler(queue.NewAdmin(sup.Connection())).Register(server.API())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := sup.DrainContext(ctx)
		defer cancel()
		return sup.Shutdown(drainCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
