package cmd

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/blacktop/lipost/internal/llm"
	"github.com/blacktop/lipost/internal/retry"
	"github.com/spf13/cobra"
)

var generatePublish bool

func newGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Draft a post with the configured language model",
		Example: `  lipost generate "announce our Go 1.25 upgrade"
  lipost generate --publish "thank the team for the launch"`,
		RunE: runGenerate,
	}
	cmd.Flags().BoolVar(&generatePublish, "publish", false, "Publish the generated text to LinkedIn")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		data, err := readPiped(cmd.InOrStdin())
		if err != nil {
			return err
		}
		prompt = strings.TrimSpace(data)
	}
	if prompt == "" {
		return errors.New("prompt is required")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	agent, err := newAgent(cfg)
	if err != nil {
		return err
	}

	text, err := llm.GenerateWithRetry(ctx, agent, prompt, retry.Policy{MaxAttempts: cfg.LLM.MaxAttempts})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	if n := utf8.RuneCountInString(text); n > lipost.MaxCommentaryRunes {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d characters exceeds LinkedIn's %d character limit\n", n, lipost.MaxCommentaryRunes)
	}

	if !generatePublish {
		return nil
	}
	token, err := resolveToken(cmd, cfg)
	if err != nil {
		return err
	}
	res := newCoordinator(cfg).Publish(ctx, publish.NewSession(token), lipost.Draft{Text: text})
	return report(out, res)
}
