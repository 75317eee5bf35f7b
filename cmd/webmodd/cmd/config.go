package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/GoCodeAlone/webmod"
	"github.com/spf13/cobra"
)

func newConfigCommand(opts *globalOptions) *cobra.Command {
	var format string
	var describe bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if describe {
				fields, err := webmod.DescribeConfig(&webmod.Config{})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tDEFAULT\tDESCRIPTION")
				for _, f := range fields {
					fmt.Fprintf(w, "%s\t%s\t%s\n", f.Key, f.Default, f.Description)
				}
				return w.Flush()
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			data, err := webmod.MarshalConfig(cfg, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml, json or toml")
	cmd.Flags().BoolVar(&describe, "describe", false, "list keys with defaults and descriptions")
	return cmd
}
