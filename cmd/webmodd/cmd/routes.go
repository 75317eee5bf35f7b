package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/GoCodeAlone/webmod"
	"github.com/spf13/cobra"
)

func newRoutesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List routes in match order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := demoModule(opts, webmod.NopLogger{})
			if err != nil {
				return err
			}
			if err := webmod.ValidateTree(root, webmod.MaxModuleDepth); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tPATH\tMODULE")
			for _, r := range root.Routes() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Method, r.Path, r.Module)
			}
			return w.Flush()
		},
	}
}
