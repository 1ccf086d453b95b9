package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/blacktop/lipost/internal/config"
	"github.com/spf13/cobra"
)

var initPath string

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the lipost config file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := initPath
			if path == "" {
				path = configPath
			}
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.CreateConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPath, "path", "", "Where to write the file (default: user config dir)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			masked := *cfg
			masked.LinkedIn.AccessToken = mask(masked.LinkedIn.AccessToken)
			masked.LLM.APIKey = mask(masked.LLM.APIKey)
			masked.Server.APIKey = mask(masked.Server.APIKey)
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(masked)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "********"
	default:
		return secret[:4] + "********"
	}
}
