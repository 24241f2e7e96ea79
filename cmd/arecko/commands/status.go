package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/reputation"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <username>",
		Short: "Print a user's reputation badges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errNoDatabase
			}
			store, err := database.NewPostgresStore(cmd.Context(), databaseURL, false)
			if err != nil {
				return err
			}
			defer store.Close()

			u, err := store.GetUserByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			statuses, err := reputation.NewEngine(store).Profile(cmd.Context(), u.ID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"username": u.Username,
				"statuses": statuses,
			})
		},
	}
}
