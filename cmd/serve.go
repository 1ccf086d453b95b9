package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blacktop/lipost/internal/config"
	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/blacktop/lipost/internal/llm"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/retry"
	"github.com/blacktop/lipost/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve sessions, publishing and text generation over HTTP. Set server.api_key " +
			"(or LIPOST_SERVER_API_KEY) to require an X-API-Key header.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mirrors, err := buildMirrors(ctx, cfg.Mirrors.Enabled)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr(),
		APIKey:    cfg.Server.APIKey,
		Publisher: newCoordinator(cfg, mirrors...),
		Generate:  generator(cfg),
		Store:     publish.NewStore(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logutil.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// generator returns nil when no model key is configured, which the server
// reports as 503. Every request gets a fresh agent; the rate limit is shared.
func generator(cfg *config.Config) server.GenerateFunc {
	if cfg.LLM.APIKey == "" {
		logutil.Warnf("no %s API key configured, /api/generate disabled", cfg.LLM.Provider)
		return nil
	}
	limiter := llm.NewLimiter(cfg.LLM.RequestsPerMinute)
	return func(ctx context.Context, prompt string) (string, error) {
		agent, err := llm.New(llmConfig(cfg))
		if err != nil {
			return "", err
		}
		agent = llm.WithLimiter(agent, limiter)
		return llm.GenerateWithRetry(ctx, agent, prompt, retry.Policy{MaxAttempts: cfg.LLM.MaxAttempts})
	}
}
