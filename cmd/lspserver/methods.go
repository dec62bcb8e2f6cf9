package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ggoodman/lsp-server-go/lspservice"
	"github.com/spf13/cobra"
)

func newMethodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the methods handlers can be registered for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tKIND\tMODE\tCAPABILITY")
			for _, d := range lspservice.DefaultCatalog().Descriptors() {
				capability := d.ClientCapability()
				if capability == "" {
					capability = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Method(), d.Kind(), d.Mode(), capability)
			}
			return tw.Flush()
		},
	}
}
