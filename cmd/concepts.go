package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "Inspect the concept hierarchy",
}

var conceptsChainCmd = &cobra.Command{
	Use:   "chain <concept>",
	Short: "Show a concept's ancestor chain, nearest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph()
		if err != nil {
			return err
		}
		chain := graph.AncestorChain(args[0])
		if len(chain) == 0 {
			fmt.Fprintln(os.Stderr, "No ancestors.")
			return nil
		}
		fmt.Println(strings.Join(chain, " -> "))
		return nil
	},
}

var conceptsRelatedCmd = &cobra.Command{
	Use:   "related <concept>",
	Short: "List every concept above or below the given one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph()
		if err != nil {
			return err
		}
		for _, name := range graph.Related(args[0]) {
			fmt.Println(name)
		}
		return nil
	},
}

var conceptsDescendantsCmd = &cobra.Command{
	Use:   "descendants <concept>",
	Short: "List everything below the given concept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph()
		if err != nil {
			return err
		}
		for _, name := range graph.Descendants(args[0]) {
			fmt.Println(name)
		}
		return nil
	},
}

var conceptsLCACmd = &cobra.Command{
	Use:   "lca <concept>...",
	Short: "Find the lowest common ancestor of several concepts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph()
		if err != nil {
			return err
		}
		anc, ok := graph.LowestCommonAncestor(args)
		if !ok {
			fmt.Fprintln(os.Stderr, "No common ancestor.")
			return nil
		}
		fmt.Println(anc)
		return nil
	},
}

var conceptsCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Report cycles in the hierarchy file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		graph, err := loadGraph()
		if err != nil {
			return err
		}
		cycles := graph.Cycles()
		if len(cycles) == 0 {
			fmt.Println("No cycles.")
			return nil
		}
		for _, c := range cycles {
			fmt.Println(strings.Join(c, " -> "))
		}
		return nil
	},
}

func init() {
	conceptsCmd.AddCommand(conceptsChainCmd)
	conceptsCmd.AddCommand(conceptsRelatedCmd)
	conceptsCmd.AddCommand(conceptsDescendantsCmd)
	conceptsCmd.AddCommand(conceptsLCACmd)
	conceptsCmd.AddCommand(conceptsCyclesCmd)
	rootCmd.AddCommand(conceptsCmd)
}
