package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the affiliate product catalog",
}

var catalogLoadCmd = &cobra.Command{
	Use:   "load <path-or-url>",
	Short: "Load catalog entries from CSV, XLSX, or JSON",
	Long:  "Reads a local file or an http(s) or ftp URL and upserts its rows by id. Columns: id, name, category, keywords, is_active.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "catalog")
		if err != nil {
			return err
		}
		defer env.Close()

		format, _ := cmd.Flags().GetString("format")
		n, err := newCatalogLoader(env).LoadFormat(ctx, args[0], format)
		if err != nil {
			return eris.Wrapf(err, "catalog load %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d catalog entries.\n", n)
		return nil
	},
}

func init() {
	catalogLoadCmd.Flags().String("format", "", "csv, xlsx, or json (default from the file extension)")
	catalogCmd.AddCommand(catalogLoadCmd)
	rootCmd.AddCommand(catalogCmd)
}
