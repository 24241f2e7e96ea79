package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arecko/backend/internal/media"
)

func classifyCmd() *cobra.Command {
	var baseURL, cloud string
	cmd := &cobra.Command{
		Use:   "classify <name>...",
		Short: "Show resource type, save path and delivery URL of stored media names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := media.NewResolver(baseURL, cloud)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tSAVE PATH\tURL")
			for _, name := range args {
				url, ok := resolver.BuildDeliveryURL(name)
				if !ok {
					url = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, media.Classify(name), media.ResolveSavePath(name), url)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "delivery base URL (default /media/files)")
	cmd.Flags().StringVar(&cloud, "cloud", "", "cloud name segment")
	return cmd
}
