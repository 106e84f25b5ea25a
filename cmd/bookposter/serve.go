package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayakin/bookposter/internal/app"
	"github.com/ayakin/bookposter/internal/config"
	"github.com/ayakin/bookposter/internal/notify"
	"github.com/ayakin/bookposter/internal/scheduler"
)

var serveAt string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the posting daemon",
	Long: `Run the BookPoster daemon that posts one book from the catalog on a
schedule. By default a post goes out every POST_INTERVAL; pass --at (or set
POST_AT) to post once a day at a fixed time instead.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAt, "at", "", "post daily at this time of day (HH:MM), overriding the interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAt != "" {
		if _, err := time.Parse("15:04", serveAt); err != nil {
			return fmt.Errorf("invalid --at (want HH:MM): %w", err)
		}
		cfg.PostAt = serveAt
	}

	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	catalog, err := application.Catalog()
	if err != nil {
		return err
	}
	slog.Info("catalog loaded", "path", cfg.CatalogPath, "books", catalog.Len())

	sched := scheduler.New(scheduler.Config{
		Cfg:       cfg,
		History:   application.Store,
		Source:    catalog,
		Renderer:  application.Renderer,
		Publisher: application.Publisher,
		Notifier:  notify.NewLogNotifier(cfg.NotifyTarget),
	})

	// Run scheduler in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Run(ctx)
	}()

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		// Wait for the scheduler to drain: an in-flight cycle must finish
		// recording before the store is closed.
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("scheduler error: %w", err)
		}
	}

	slog.Info("shutting down...")
	return nil
}
