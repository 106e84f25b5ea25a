package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayakin/bookposter/internal/config"
	"github.com/ayakin/bookposter/internal/db"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show posting history",
	Long: `Display the post history: totals by status, the most recent entries,
and books excluded from automatic posting that need manual review.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "How many recent entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	succeeded, err := store.CountByStatus(ctx, db.StatusSuccess)
	if err != nil {
		return fmt.Errorf("count successes: %w", err)
	}
	failed, err := store.CountByStatus(ctx, db.StatusFailed)
	if err != nil {
		return fmt.Errorf("count failures: %w", err)
	}

	fmt.Println("=== BookPoster History ===")
	fmt.Println()
	fmt.Printf("Posted:          %d\n", succeeded)
	fmt.Printf("Failed attempts: %d\n", failed)
	fmt.Println()

	recent, err := store.RecentEntries(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list recent entries: %w", err)
	}
	if len(recent) > 0 {
		fmt.Println("Recent entries:")
		for _, e := range recent {
			marker := "ok"
			if e.Status == db.StatusFailed {
				marker = string(e.Status)
				if e.ErrorKind != "" {
					marker = e.ErrorKind
				}
			}
			fmt.Printf("  %s  %-10s attempt %d  %s (%s)\n",
				e.PostedAt.Format("2006-01-02 15:04"), marker, e.AttemptCount, e.Title, e.BookID)
		}
		fmt.Println()
	}

	terminal, err := store.TerminalEntries(ctx)
	if err != nil {
		return fmt.Errorf("list terminal entries: %w", err)
	}
	if len(terminal) > 0 {
		fmt.Println("Needs manual review (excluded from automatic posting):")
		for _, e := range terminal {
			fmt.Printf("  %s (%s) — %s after %d attempt(s)\n",
				e.Title, e.BookID, e.ErrorKind, e.AttemptCount)
		}
	}

	return nil
}
