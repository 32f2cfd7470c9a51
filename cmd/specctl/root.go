package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// getenv is swapped in tests.
var getenv = os.Getenv

// NewRoot builds the specctl command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "specctl",
		Short:         "Operate the window quote conversation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.AddCommand(
		ChatCmd(),
		TokenCmd(),
		MigrateCmd(),
		FieldsCmd(),
		SmokeCmd(),
	)
	return root
}
