package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "lspserver",
		Short: "A Language Server Protocol server for plain text",
		Long: `lspserver speaks the Language Server Protocol over stdin and stdout.

The bundled handlers index the words of open documents and watched workspace
files, answering hover and completion from that index.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCommand(flags))
	cmd.AddCommand(newMethodsCommand())
	cmd.AddCommand(newSchemaCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
