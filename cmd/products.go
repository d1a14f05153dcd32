package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hubizz/hubizz/internal/affiliate"
	"github.com/hubizz/hubizz/internal/jobs"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Affiliate product matching",
}

var productsFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Find products mentioned in text",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "products")
		if err != nil {
			return err
		}
		defer env.Close()

		text, _ := cmd.Flags().GetString("text")
		var opts []affiliate.FindOption
		if c, _ := cmd.Flags().GetString("category"); c != "" {
			opts = append(opts, affiliate.WithCategory(c))
		}
		if cmd.Flags().Changed("min-confidence") {
			v, _ := cmd.Flags().GetFloat64("min-confidence")
			opts = append(opts, affiliate.WithMinConfidence(v))
		}
		if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
			opts = append(opts, affiliate.WithMaxResults(n))
		}

		matches, err := env.Matcher.FindProducts(ctx, text, opts...)
		if err != nil {
			return eris.Wrap(err, "products find")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"matches": matches,
				"stats":   affiliate.Stats(matches),
			})
		}
		formatMatches(cmd.OutOrStdout(), matches)
		return nil
	},
}

var productsProcessCmd = &cobra.Command{
	Use:   "process <content-id>",
	Short: "Match and store the products of a content item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("invalid content id %q", args[0])
		}

		env, err := initEnv(ctx, "products")
		if err != nil {
			return err
		}
		defer env.Close()

		handler := jobs.ProcessProducts(env.Products, env.Store,
			cfg.Matcher.JobMinConfidence, cfg.Matcher.JobMaxProducts)
		if err := handler(ctx, jobs.ProcessProductsJob(id).Payload); err != nil {
			return eris.Wrapf(err, "process products for content %d", id)
		}

		saved, err := env.Store.ListProductMatches(ctx, id)
		if err != nil {
			return eris.Wrap(err, "list product matches")
		}
		formatMatches(cmd.OutOrStdout(), saved)
		return nil
	},
}

func init() {
	productsFindCmd.Flags().String("text", "", "text to scan (HTML allowed)")
	productsFindCmd.Flags().String("category", "", "restrict pattern and keyword rules to one category")
	productsFindCmd.Flags().Float64("min-confidence", 0, "minimum confidence (default from config)")
	productsFindCmd.Flags().Int("max-results", 0, "maximum matches (default from config)")
	productsFindCmd.Flags().Bool("json", false, "print matches and detection stats as JSON")
	_ = productsFindCmd.MarkFlagRequired("text")

	productsCmd.AddCommand(productsFindCmd, productsProcessCmd)
	rootCmd.AddCommand(productsCmd)
}
