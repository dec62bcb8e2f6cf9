package main

import (
	"encoding/json"
	"fmt"

	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/ggoodman/lsp-server-go/lspservice"
	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	var result bool
	cmd := &cobra.Command{
		Use:   "schema METHOD",
		Short: "Print the JSON Schema of a method's params or result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := lspservice.DefaultCatalog().Lookup(lsp.Method(args[0]))
			if !ok {
				return fmt.Errorf("unknown method %q", args[0])
			}
			schema := d.ParamsSchema()
			if result {
				if d.IsNotification() {
					return fmt.Errorf("%s is a notification and has no result", d.Method())
				}
				schema = d.ResultSchema()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		},
	}
	cmd.Flags().BoolVar(&result, "result", false, "Print the result schema instead of the params schema")
	return cmd
}
