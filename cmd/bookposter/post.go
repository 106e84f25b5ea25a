package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ayakin/bookposter/internal/app"
	"github.com/ayakin/bookposter/internal/books"
	"github.com/ayakin/bookposter/internal/config"
	"github.com/ayakin/bookposter/internal/db"
	"github.com/ayakin/bookposter/internal/publisher"
)

var (
	postDryRun bool
	postAuthor string
)

var postCmd = &cobra.Command{
	Use:   "post [title]",
	Short: "Post one book now",
	Long: `Post a single book to Instagram immediately.

With a title argument the book is looked up directly; without one the next
unposted catalog entry is used.

Examples:
  bookposter post                  # Post the next catalog candidate
  bookposter post "こころ"          # Post a specific book
  bookposter post --dry-run        # Show what would be posted`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPost,
}

func init() {
	postCmd.Flags().BoolVar(&postDryRun, "dry-run", false, "Show what would be posted without actually posting")
	postCmd.Flags().StringVar(&postAuthor, "author", "", "Author name to narrow the title lookup")
	rootCmd.AddCommand(postCmd)
}

func runPost(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !postDryRun {
		if err := cfg.ValidateForPosting(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	book, err := selectBook(ctx, application, args)
	if err != nil {
		return err
	}

	succeeded, err := application.Store.HasSucceeded(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("check history: %w", err)
	}
	if succeeded {
		return fmt.Errorf("book %q (%s) was already posted", book.Title, book.ID)
	}

	caption := publisher.FormatCaption(book)

	fmt.Println()
	fmt.Println("=== Post Content ===")
	fmt.Println()
	fmt.Println(caption)
	fmt.Println()

	if postDryRun {
		fmt.Println("=== DRY RUN - Not posting ===")
		return nil
	}

	image, err := application.Renderer.Render(ctx, book)
	if err != nil {
		return fmt.Errorf("render cover: %w", err)
	}

	outcome, err := application.Publisher.Publish(ctx, image, caption)
	if err != nil {
		return fmt.Errorf("post to Instagram: %w", err)
	}

	fmt.Printf("Posted successfully!\nURL: %s\n", outcome.PostURL)

	failed, err := application.Store.FailedAttempts(ctx, book.ID)
	if err != nil {
		slog.Warn("failed to count prior attempts", "error", err)
	}
	err = application.Store.AppendEntry(ctx, db.Entry{
		BookID:         book.ID,
		Title:          book.Title,
		Status:         db.StatusSuccess,
		AttemptCount:   failed + 1,
		PlatformPostID: outcome.PostID,
	})
	if err != nil {
		slog.Warn("failed to record post", "error", err)
	}

	return nil
}

// selectBook resolves what to post: a named title or the next catalog entry.
func selectBook(ctx context.Context, application *app.App, args []string) (*books.Book, error) {
	if len(args) == 1 {
		book, err := application.Google.Lookup(ctx, args[0], postAuthor)
		if err != nil {
			return nil, fmt.Errorf("look up %q: %w", args[0], err)
		}
		return book, nil
	}

	catalog, err := application.Catalog()
	if err != nil {
		return nil, err
	}

	excluded, err := application.Store.ExcludedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	book, err := catalog.NextUnposted(ctx, excluded)
	if err != nil {
		return nil, fmt.Errorf("select candidate: %w", err)
	}
	return book, nil
}
