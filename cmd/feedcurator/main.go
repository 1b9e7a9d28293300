// Package main provides the feedcurator CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"FeedCurator/internal/app"
	"FeedCurator/internal/config"
	"FeedCurator/internal/domain"
	"FeedCurator/internal/infrastructure/parser"
	"FeedCurator/internal/logging"
	"FeedCurator/internal/usecase"
)

var version = "0.1.0"

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command for the feedcurator CLI.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "feedcurator",
		Short:        "Curate football news from feeds and social accounts",
		Long:         "Feedcurator fetches RSS/Atom feeds and social timelines, scores and stores them, and serves a ranked feed per user.",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate("feedcurator version {{.Version}}\n")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCurateCmd())
	rootCmd.AddCommand(newFeedCmd())
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSourcesCmd())

	return rootCmd
}

// buildApp loads configuration and wires the application.
func buildApp(ctx context.Context) (*app.Application, error) {
	cfg := config.Load()
	return app.New(ctx, cfg, logging.New(cfg.Logging))
}

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Run(ctx)
		},
	}
}

// newCurateCmd creates the curate subcommand.
func newCurateCmd() *cobra.Command {
	var userID string
	var priority int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Run one curation for a user and print progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if priority < 0 || priority > domain.PriorityLow {
				return fmt.Errorf("invalid priority %d: must be 1, 2 or 3", priority)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			out := cmd.OutOrStdout()
			summary, err := application.Service().CurateNow(ctx, usecase.Request{UserID: userID, Priority: priority}, func(msg string) {
				fmt.Fprintln(out, msg)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "saved=%d updated=%d fetched=%d failed=%d\n", summary.Saved, summary.Updated, summary.Fetched, summary.Failed)
			if summary.SocialNote != "" {
				fmt.Fprintln(out, summary.SocialNote)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose sources are curated")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Restrict to one priority tier (1-3)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long")

	return cmd
}

// newFeedCmd creates the feed subcommand.
func newFeedCmd() *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print a user's ranked feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			application, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			items, err := application.Service().Feed(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items.")
				return nil
			}
			for _, item := range items {
				flag := " "
				if item.IsBreaking {
					flag = "!"
				}
				fmt.Fprintf(out, "%s [%s] %5d  %s\n", flag, item.Category, item.Engagement, item.Text)
				fmt.Fprintf(out, "    %s  %s\n", item.PostedAt.Format(time.RFC3339), item.ExternalURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose feed is printed")
	cmd.Flags().IntVarP(&limit, "limit", "l", usecase.DefaultFeedLimit, "Maximum number of items to display")

	return cmd
}

// newParseCmd creates the parse subcommand.
func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a local RSS/Atom document and print its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			feed, err := parser.Parse(string(raw))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			dialect := "rss"
			if feed.Atom {
				dialect = "atom"
			}
			fmt.Fprintf(out, "%s (%s, %d items)\n", feed.Title, dialect, len(feed.Items))
			for _, item := range feed.Items {
				fmt.Fprintf(out, "- %s\n  %s %s\n", item.Title, item.PublishedAt, item.Link)
			}
			return nil
		},
	}
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// app.New migrates SQL backends before returning
			application, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

// newSourcesCmd groups source management subcommands.
func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage user sources",
	}
	cmd.AddCommand(newSourcesAddCmd())
	return cmd
}

func newSourcesAddCmd() *cobra.Command {
	var src domain.Source
	var kind string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a feed or social source for a user",
		Long: "Register a feed or social source for a user. The default store is the sqlite file feedcurator.db; " +
			"with database.driver=memory the source only lives as long as this command.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if src.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			src.Kind = domain.SourceKind(kind)
			if src.ID == "" {
				src.ID = uuid.NewString()
			}
			src.Active = true
			src.UpdatedAt = time.Now().UTC()
			if err := src.Validate(); err != nil {
				return err
			}

			application, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Sources().SaveSource(cmd.Context(), src); err != nil {
				return fmt.Errorf("save source: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %s (%s)\n", src.Kind, src.ID, src.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&src.ID, "id", "", "Source ID (generated when empty)")
	cmd.Flags().StringVarP(&src.UserID, "user", "u", "", "Owning user")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(domain.SourceKindFeed), "Source kind (feed or social)")
	cmd.Flags().StringVar(&src.Handle, "handle", "", "Social handle without @")
	cmd.Flags().StringVar(&src.FeedURL, "feed-url", "", "RSS/Atom URL")
	cmd.Flags().StringVar(&src.DisplayName, "name", "", "Display name")
	cmd.Flags().IntVarP(&src.Priority, "priority", "p", domain.PriorityMedium, "Priority tier (1-3)")

	return cmd
}
