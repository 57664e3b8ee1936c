package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pricing API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(context.Background(), func(a *app.App, log *zap.Logger) error {
		server, err := a.Server()
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		if a.AutoSync() {
			go func() {
				if err := a.Scheduler.Start(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("scheduler error", zap.Error(err))
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- err
			}
		}()

		// Wait for shutdown signal
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			log.Error("server error", zap.Error(err))
		}

		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		a.Scheduler.Stop()
		return server.Shutdown(ctx)
	})
}
