package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hubizz/hubizz/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry dead-lettered jobs",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		errType, _ := cmd.Flags().GetString("type")
		due, _ := cmd.Flags().GetBool("due")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := st.ListDLQ(ctx, resilience.DLQFilter{ErrorType: errType, DueOnly: due, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "Dead letter queue is empty.")
			return nil
		}
		formatDLQ(cmd.OutOrStdout(), entries)
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Run every due dead-lettered job once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		pool, err := newPool(ctx, env)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		res, err := pool.RetryDLQ(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Retried %d: %d succeeded, %d failed.\n", res.Retried, res.Succeeded, res.Failed)
		return nil
	},
}

func init() {
	dlqListCmd.Flags().String("type", "", "filter by error type (transient or permanent)")
	dlqListCmd.Flags().Bool("due", false, "only entries due for a retry")
	dlqListCmd.Flags().Int("limit", 50, "maximum entries")

	dlqRetryCmd.Flags().Int("limit", 50, "maximum entries to retry")

	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
