package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Materialidad admin CLI. Subcommands
// (migrate, tenant, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "materialidad",
	Short:         "Materialidad admin CLI",
	Long:          "Administrative utilities for Materialidad (schema migrations, tenant provisioning).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
