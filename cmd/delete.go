package cmd

import (
	"fmt"

	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/spf13/cobra"
)

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <post-urn>",
		Aliases: []string{"rm"},
		Short:   "Delete a LinkedIn post",
		Example: `  lipost delete urn:li:share:7123456789012345678`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			token, err := resolveToken(cmd, cfg)
			if err != nil {
				return err
			}
			if err := newCoordinator(cfg).Delete(ctx, publish.NewSession(token), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
