package commands

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/arecko/backend/internal/database"
)

var errNoDatabase = errors.New("no database configured: pass --database-url or set DATABASE_URL")

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errNoDatabase
			}
			db, err := sql.Open("postgres", databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Schema up to date")
			return nil
		},
	}
}
