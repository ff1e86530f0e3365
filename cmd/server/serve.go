package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongminglow/passgate/internal/logging"
	"github.com/hongminglow/passgate/internal/server"
)

const shutdownTimeout = 15 * time.Second

const serveLong = `Run the HTTP API.

With the postgres driver, pending migrations are applied on startup unless
--auto-migrate=false is given, in which case run "passgate migrate up" first.`

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  serveLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := server.OpenStore(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.Close(closeCtx); err != nil {
					logging.LogError(closeCtx, logger, "close store", err)
				}
			}()

			mailer, err := server.NewMailer(cfg.Mail, logger)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, store, mailer, logger)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("passgate listening",
					"addr", srv.Addr(),
					"mount_path", cfg.Server.MountPath,
					"database", cfg.Database.Driver,
				)
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				logger.Info("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.LogError(shutdownCtx, logger, "graceful shutdown error", err)
			}
			return nil
		},
	}
}
