package cmd

import (
	"fmt"
	"strings"

	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/spf13/cobra"
)

func newURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "url <post-urn>",
		Short: "Print the public links for a post URN",
		Example: `  lipost url urn:li:share:7123456789012345678
  lipost url urn:li:ugcPost:7123456789012345678`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urn := strings.TrimSpace(args[0])
			if !strings.HasPrefix(urn, "urn:li:") {
				return fmt.Errorf("not a LinkedIn URN: %q", urn)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, linkedin.FeedURL(urn))
			if activity := linkedin.ActivityURL(urn); activity != "" {
				fmt.Fprintln(out, activity)
			}
			return nil
		},
	}
}
