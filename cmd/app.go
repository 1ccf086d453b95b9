package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/blacktop/lipost/internal/config"
	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/bluesky"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/blacktop/lipost/internal/lipost/mastodon"
	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/blacktop/lipost/internal/lipost/twitter"
	"github.com/blacktop/lipost/internal/lipost/upload"
	"github.com/blacktop/lipost/internal/llm"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var mirrorOrder = []string{"twitter", "mastodon", "bluesky"}

func loadConfig(ctx context.Context) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	logutil.Debugf("loaded config from %s", path)
	return cfg, nil
}

// resolveToken returns the configured access token, prompting for one when
// running interactively.
func resolveToken(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if token := strings.TrimSpace(cfg.LinkedIn.AccessToken); token != "" {
		return token, nil
	}

	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(stdin.Fd())) {
		return "", fmt.Errorf("%w: set %sLINKEDIN_ACCESS_TOKEN", publish.ErrMissingToken, config.EnvPrefix)
	}

	fmt.Fprint(cmd.ErrOrStderr(), "LinkedIn access token: ")
	raw, err := term.ReadPassword(int(stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", publish.ErrMissingToken
	}
	return token, nil
}

func newCoordinator(cfg *config.Config, mirrors ...lipost.Poster) *publish.Coordinator {
	client := linkedin.New(linkedin.Config{
		APIBase:  cfg.LinkedIn.APIBase,
		RetryMax: cfg.LinkedIn.RetryMax,
	})
	return publish.New(client, upload.New(client),
		publish.WithMirrors(mirrors...),
		publish.WithMaxWait(cfg.LinkedIn.ProcessingWait),
	)
}

func normalizeMirrors(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	selected := make(map[string]struct{}, len(mirrorOrder))
	for _, raw := range values {
		for part := range strings.SplitSeq(raw, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			switch name {
			case "":
				continue
			case "all":
				for _, n := range mirrorOrder {
					selected[n] = struct{}{}
				}
			case "x":
				selected["twitter"] = struct{}{}
			default:
				if !slices.Contains(mirrorOrder, name) {
					return nil, fmt.Errorf("unknown mirror %q (valid: %s, all)", part, strings.Join(mirrorOrder, ", "))
				}
				selected[name] = struct{}{}
			}
		}
	}

	var out []string
	for _, name := range mirrorOrder {
		if _, ok := selected[name]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// buildMirrors constructs a poster for every named network from the
// LIPOST_<NETWORK>_* environment.
func buildMirrors(ctx context.Context, names []string) ([]lipost.Poster, error) {
	lookuper := envconfig.OsLookuper()

	var (
		posters []lipost.Poster
		errs    []error
	)
	for _, name := range names {
		poster, err := buildMirror(ctx, name, lookuper)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logutil.Debugf("mirror %s enabled", name)
		posters = append(posters, poster)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return posters, nil
}

func buildMirror(ctx context.Context, name string, lookuper envconfig.Lookuper) (lipost.Poster, error) {
	switch name {
	case "twitter":
		cfg, err := twitter.LoadConfig(ctx, lookuper)
		if err != nil {
			return nil, err
		}
		client, err := twitter.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("twitter: %w", err)
		}
		return client, nil
	case "bluesky":
		cfg, err := bluesky.LoadConfig(ctx, lookuper)
		if err != nil {
			return nil, err
		}
		client, err := bluesky.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bluesky: %w", err)
		}
		return client, nil
	case "mastodon":
		cfg, err := mastodon.LoadConfig(ctx, lookuper)
		if err != nil {
			return nil, err
		}
		return mastodon.New(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported mirror %q", name)
	}
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:      cfg.LLM.Provider,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		BaseURL:       cfg.LLM.BaseURL,
		SystemMessage: cfg.LLM.SystemMessage,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		SDKRetries:    cfg.LLM.SDKRetries,
	}
}

// newAgent returns a rate-limited conversational agent.
func newAgent(cfg *config.Config) (llm.Agent, error) {
	agent, err := llm.New(llmConfig(cfg))
	if err != nil {
		return nil, err
	}
	agent = llm.Throttle(agent, cfg.LLM.RequestsPerMinute)
	logutil.Debugf("using %s for text generation", agent.Name())
	return agent, nil
}
