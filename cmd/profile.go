package cmd

import (
	"fmt"

	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/spf13/cobra"
)

func newProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the LinkedIn account behind the access token",
		Args:  cobra.NoArgs,
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

			session := publish.NewSession(token)
			profile, err := newCoordinator(cfg).Connect(ctx, session)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", profile.Name)
			if profile.Email != "" {
				fmt.Fprintf(out, "email:   %s\n", profile.Email)
			}
			fmt.Fprintf(out, "author:  %s\n", session.Author())
			fmt.Fprintf(out, "profile: %s\n", profile.URL())
			return nil
		},
	}
}
