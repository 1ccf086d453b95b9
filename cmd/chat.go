package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/blacktop/lipost/internal/config"
	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/blacktop/lipost/internal/llm"
	"github.com/blacktop/lipost/internal/retry"
	"github.com/spf13/cobra"
)

const chatHelp = `commands:
  /publish  post the last draft to LinkedIn
  /reset    forget the conversation
  /quit     exit`

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Iterate on a draft with the language model",
		Long:  "Start an interactive conversation with the configured model. Each reply refines the previous one.\n\n" + chatHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			agent, err := newAgent(cfg)
			if err != nil {
				return err
			}
			return chat(cmd, cfg, agent, cmd.InOrStdin())
		},
	}
}

func chat(cmd *cobra.Command, cfg *config.Config, agent llm.Agent, in io.Reader) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	policy := retry.Policy{MaxAttempts: cfg.LLM.MaxAttempts}

	var (
		draft   string
		session *publish.Session
		coord   *publish.Coordinator
	)

	fmt.Fprintf(out, "chatting with %s\n%s\n", agent.Name(), chatHelp)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			agent.Reset()
			draft = ""
			fmt.Fprintln(out, "conversation cleared")
			continue
		case "/publish":
			if draft == "" {
				fmt.Fprintln(out, "nothing to publish yet")
				continue
			}
			if session == nil {
				token, err := resolveToken(cmd, cfg)
				if err != nil {
					return err
				}
				session = publish.NewSession(token)
				coord = newCoordinator(cfg)
			}
			res := coord.Publish(ctx, session, lipost.Draft{Text: draft})
			if err := report(out, res); err != nil {
				fmt.Fprintf(out, "publish failed: %v\n", err)
			}
			continue
		}

		text, err := llm.GenerateWithRetry(ctx, agent, line, policy)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		draft = text
		fmt.Fprintf(out, "\n%s\n\n", text)
	}
}
