package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/optimizer"
	"github.com/spf13/cobra"
)

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List solver back ends and optimizers",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ALGORITHM\tDESCRIPTION")
		for _, a := range nlco.Algorithms() {
			fmt.Fprintf(w, "%s\t%s\n", a, a.Description())
		}
		w.Flush()

		fmt.Fprintln(cmd.OutOrStdout())
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OPTIMIZER\tOBJECTIVE")
		for _, k := range optimizer.Kinds() {
			fmt.Fprintf(w, "%s\t%s\n", k, optimizerObjectives[k])
		}
		w.Flush()
	},
}

var optimizerObjectives = map[optimizer.Kind]string{
	optimizer.Strain: "minimize the stiffness-weighted strain of the stretchy edges",
	optimizer.Scale:  "maximize the tree scale",
	optimizer.Edge:   "maximize the common strain of the selected edges",
}

func init() {
	rootCmd.AddCommand(algorithmsCmd)
}
