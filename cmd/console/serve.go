package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcnelson/autoreply-console/internal/auth"
	"github.com/bcnelson/autoreply-console/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the web console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.cfg.SessionSecretBytes()
			if err != nil {
				return err
			}
			if key == nil {
				a.logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
			}
			sessions, err := auth.NewSessionManager(key, a.cfg.SessionTTL, a.cfg.SecureCookies)
			if err != nil {
				return err
			}

			srv, err := web.NewServer(web.Options{
				APIURL:   a.cfg.APIURL,
				Timeout:  a.cfg.APITimeout,
				PageSize: a.cfg.LogPageSize,
			}, sessions, a.logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			server := &http.Server{
				Addr:         a.cfg.Addr(),
				Handler:      srv.Router(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 2*a.cfg.APITimeout + 5*time.Second,
				IdleTimeout:  120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("Starting console", "addr", "http://"+a.cfg.Addr(), "api", a.cfg.APIURL)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down console...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
