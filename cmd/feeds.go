package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/store"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage and import RSS feeds",
}

// -- feeds list --

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered feeds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		activeOnly, _ := cmd.Flags().GetBool("active")
		feeds, err := st.ListFeeds(ctx, activeOnly)
		if err != nil {
			return eris.Wrap(err, "feeds list")
		}
		if len(feeds) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No feeds registered.")
			return nil
		}
		formatFeeds(cmd.OutOrStdout(), feeds)
		return nil
	},
}

// -- feeds add --

var feedsAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Validate a feed and register it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		info, items, err := newAggregator(env).Validate(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "validate feed %s", args[0])
		}

		category, _ := cmd.Flags().GetString("category")
		interval, _ := cmd.Flags().GetString("interval")
		priority, _ := cmd.Flags().GetInt("priority")
		f := &model.Feed{
			URL:           args[0],
			Title:         info.Title,
			Category:      category,
			Language:      info.Language,
			FetchInterval: model.FetchInterval(interval),
			IsActive:      true,
			Priority:      priority,
		}
		if err := env.Store.CreateFeed(ctx, f); err != nil {
			return eris.Wrap(err, "feeds add")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered feed %d: %s (%d items pass the filters)\n", f.ID, f.Title, items)
		return nil
	},
}

// -- feeds import --

var feedsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import one feed or every due feed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		feedID, _ := cmd.Flags().GetInt64("feed")
		due, _ := cmd.Flags().GetBool("due")
		if (feedID == 0) == !due {
			return eris.New("exactly one of --feed or --due is required")
		}

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		imp, err := initImporter(ctx, env)
		if err != nil {
			return err
		}

		var feeds []model.Feed
		if due {
			feeds, err = store.ListDueFeeds(ctx, env.Store, time.Now())
			if err != nil {
				return eris.Wrap(err, "list due feeds")
			}
		} else {
			f, err := env.Store.GetFeed(ctx, feedID)
			if err != nil {
				return eris.Wrapf(err, "get feed %d", feedID)
			}
			if f == nil {
				return eris.Errorf("feed %d not found", feedID)
			}
			feeds = []model.Feed{*f}
		}

		if len(feeds) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No feeds due.")
			return nil
		}

		var failed int
		for i := range feeds {
			rec, err := imp.ImportFeed(ctx, &feeds[i])
			if rec != nil {
				formatImport(cmd.OutOrStdout(), rec)
			}
			if err != nil {
				failed++
				zap.L().Error("feed import failed", zap.Int64("feed_id", feeds[i].ID), zap.Error(err))
			}
		}
		if failed > 0 {
			return eris.Errorf("%d of %d feed imports failed", failed, len(feeds))
		}
		return nil
	},
}

// -- feeds discover --

var feedsDiscoverCmd = &cobra.Command{
	Use:   "discover <page-url>",
	Short: "Find the feeds advertised by a web page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		found, err := newAggregator(env).Discover(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "discover %s", args[0])
		}
		if len(found) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No feeds found.")
			return nil
		}
		for _, f := range found {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", f.Type, f.URL, f.Title)
		}
		return nil
	},
}

func init() {
	feedsListCmd.Flags().Bool("active", false, "only list active feeds")

	feedsAddCmd.Flags().String("category", "", "category slug for imported items")
	feedsAddCmd.Flags().String("interval", string(model.FetchHourly), "fetch interval: 15min, hourly, or daily")
	feedsAddCmd.Flags().Int("priority", 0, "higher priority feeds import first")

	feedsImportCmd.Flags().Int64("feed", 0, "feed id to import")
	feedsImportCmd.Flags().Bool("due", false, "import every active feed that is due")

	feedsCmd.AddCommand(feedsListCmd, feedsAddCmd, feedsImportCmd, feedsDiscoverCmd)
	rootCmd.AddCommand(feedsCmd)
}
