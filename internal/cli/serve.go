package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := opts.logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := opts.cfg
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	deps, err := Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, deps, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Warn("Shutdown cleanup failed", "error", err)
		}
	}()

	if err := app.Store.BuildIndices(ctx); err != nil {
		log.Warn("Failed to build graph indices", "error", err)
	}
	go app.Coordinator.RunSweeper(ctx, sweepInterval)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
