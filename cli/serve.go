package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bq-operator/api"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runServe(a)
		},
	}
}

func runServe(a *app) error {
	ctx := context.Background()

	bq, err := a.bigQuery(ctx)
	if err != nil {
		return err
	}
	driver, err := a.exportDriver(ctx, true)
	if err != nil {
		return err
	}

	// Release mode is better for production performance
	if a.cfg.GinMode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(bq, driver, a.cfg.APIKey)

	srv := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "port", a.cfg.Port, "driver", a.cfg.ExportDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case err := <-errCh:
		slog.Error("Failed to start server", "error", err)
		return err
	case <-quit:
	}
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
	return nil
}
