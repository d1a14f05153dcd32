package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hubizz/hubizz/internal/generate"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate content with the configured AI provider",
}

var generateArticleCmd = &cobra.Command{
	Use:   "article",
	Short: "Write, deduplicate, and store an article",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		gen, err := initGenerator()
		if err != nil {
			return err
		}

		var req generate.ArticleRequest
		req.Topic, _ = cmd.Flags().GetString("topic")
		req.Words, _ = cmd.Flags().GetInt("words")
		req.Category, _ = cmd.Flags().GetString("category")
		req.Publish, _ = cmd.Flags().GetBool("publish")
		req.AllowDuplicates, _ = cmd.Flags().GetBool("allow-duplicates")

		c, err := generate.NewService(gen, env.Store, env.Detector).GenerateArticle(ctx, req)
		if err != nil {
			return eris.Wrap(err, "generate article")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created content %d (%s): %s\n", c.ID, c.Status, c.Title)
		return nil
	},
}

func init() {
	generateArticleCmd.Flags().String("topic", "", "article topic")
	generateArticleCmd.Flags().Int("words", 0, "approximate length in words (default 800)")
	generateArticleCmd.Flags().String("category", "", "category slug")
	generateArticleCmd.Flags().Bool("publish", false, "publish immediately instead of saving a draft")
	generateArticleCmd.Flags().Bool("allow-duplicates", false, "store the article even when it duplicates existing content")
	_ = generateArticleCmd.MarkFlagRequired("topic")

	generateCmd.AddCommand(generateArticleCmd)
	rootCmd.AddCommand(generateCmd)
}
