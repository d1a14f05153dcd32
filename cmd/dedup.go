package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hubizz/hubizz/internal/dedup"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Duplicate content detection",
}

var dedupCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a title and body against stored content",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "dedup")
		if err != nil {
			return err
		}
		defer env.Close()

		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		v, err := env.Detector.CheckDuplicate(ctx, title, body)
		if err != nil {
			return eris.Wrap(err, "dedup check")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), v)
		}
		formatVerdict(cmd.OutOrStdout(), v)
		return nil
	},
}

var dedupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fingerprint statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "dedup")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := dedup.Statistics(ctx, env.Store)
		if err != nil {
			return err
		}
		formatStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var dedupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete fingerprints whose content no longer exists",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "dedup")
		if err != nil {
			return err
		}
		defer env.Close()

		days, _ := cmd.Flags().GetInt("days")
		n, err := env.Detector.CleanupOrphaned(ctx, env.Store, days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d orphaned fingerprints.\n", n)
		return nil
	},
}

var dedupSimilarCmd = &cobra.Command{
	Use:   "similar <title>",
	Short: "List recent content with a similar title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "dedup")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		hits, err := env.Detector.FindSimilarTitles(ctx, args[0], limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No similar titles.")
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.2f%%\t%s\n", h.ContentID, h.Similarity, h.Title)
		}
		return nil
	},
}

func init() {
	dedupCheckCmd.Flags().String("title", "", "candidate title")
	dedupCheckCmd.Flags().String("body", "", "candidate body (HTML allowed)")
	dedupCheckCmd.Flags().Bool("json", false, "print the verdict as JSON")
	_ = dedupCheckCmd.MarkFlagRequired("title")
	_ = dedupCheckCmd.MarkFlagRequired("body")

	dedupCleanupCmd.Flags().Int("days", 90, "only delete fingerprints older than this many days")
	dedupSimilarCmd.Flags().Int("limit", 5, "maximum number of titles")

	dedupCmd.AddCommand(dedupCheckCmd, dedupStatsCmd, dedupCleanupCmd, dedupSimilarCmd)
	rootCmd.AddCommand(dedupCmd)
}
