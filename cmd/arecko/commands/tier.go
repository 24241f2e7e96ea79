package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arecko/backend/internal/reputation"
)

func tierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tier <verified-count>",
		Short: "Print the badge tier for a verified referral count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("count must be an integer: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d verified → %s\n", n, reputation.Compute(n))
			return nil
		},
	}
}
