package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/antoniostano/thicket/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.BindAddr = addr
			}

			api := httpapi.New(ctx, a.cfg, httpapi.Deps{
				Store:    a.store,
				Ledger:   a.ledger,
				Memories: a.memories,
				Turns:    a.turns,
				History:  a.history(),
				Oracle:   a.oracle,
				Hub:      a.hub,
				Metrics:  a.metrics,
				Logger:   a.logger,
			})
			srv := &http.Server{
				Addr:    a.cfg.BindAddr,
				Handler: api.Router(),
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", a.cfg.BindAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
				a.logger.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("graceful shutdown failed", "err", err)
				_ = srv.Close()
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides APP_BIND_ADDR)")
	return cmd
}
