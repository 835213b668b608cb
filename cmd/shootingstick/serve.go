package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shootingstick/ss/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve databases over a CouchDB-compatible HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:     env.catalog,
		Logger:      env.logger,
		CORSOrigins: env.cfg.CORSOrigins,
		Version:     version,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    env.cfg.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		env.logger.Info("server starting", zap.String("address", env.cfg.HTTPAddress), zap.String("data_dir", env.cfg.DataDir))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
