// Package commands implements the arecko operator CLI.
package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...commands.Version=...".
var Version = "dev"

var databaseURL string

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arecko",
		Short:         "Operator tools for the Arecko referral service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
		},
	}

	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (default $DATABASE_URL)")

	root.AddCommand(tierCmd(), classifyCmd(), migrateCmd(), statusCmd(), versionCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
