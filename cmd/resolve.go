package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <reason>",
	Short: "Resolve one limit-up reason to concept names",
	Long:  "Runs the cached reason resolver on a single reason text and prints the concepts it maps to. Useful for spot-checking the classifier before a batch run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		graph, err := loadGraph()
		if err != nil {
			return err
		}
		cat, err := loadCatalog(ctx, st)
		if err != nil {
			return err
		}
		res, err := newResolver(ctx, st, graph, cat)
		if err != nil {
			return err
		}

		concepts, err := res.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if concepts == nil {
			concepts = []string{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"reason":   args[0],
			"concepts": concepts,
		})
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
