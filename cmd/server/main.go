package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tugquiz-backend/internal/config"
	"github.com/DoyleJ11/tugquiz-backend/internal/httpapi"
	"github.com/DoyleJ11/tugquiz-backend/internal/hub"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := config.Default()
	cobra.CheckErr(newCmd(&cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tugquiz-server",
		Short:   "Relay server for two-player tug-of-war quiz rooms.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnv(cmd.Flags(), cfg.EnvFile); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	config.AddServerFlags(cmd.Flags(), cfg)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.Verbose)
	defer func() { _ = logger.Sync() }()
	ctx = logging.WithLogger(ctx, logger)

	h := hub.NewHub(ctx, hub.Options{AutoStart: cfg.AutoStart, IdleTimeout: cfg.RoomIdleTimeout})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			Rules:          cfg.Rules(),
			PublicURL:      cfg.PublicURL,
			OriginPatterns: cfg.Origins,
			Logger:         logger,
		}),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("listening", "addr", srv.Addr, "mode", cfg.Mode, "version", releaseVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		<-h.Done()
		return err
	})
	return g.Wait()
}
