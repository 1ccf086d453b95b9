// Package mastodon mirrors LinkedIn posts to a Mastodon instance.
package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/lipost"
	mastodonapi "github.com/mattn/go-mastodon"
	"github.com/sethvargo/go-envconfig"
)

const (
	envPrefix = "LIPOST_MASTODON_"

	providerName   = "mastodon"
	requestTimeout = 30 * time.Second
)

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string `env:"SERVER"`
	AccessToken  string `env:"ACCESS_TOKEN"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// LoadConfig reads LIPOST_MASTODON_* variables from lookuper.
func LoadConfig(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, envconfig.PrefixLookuper(envPrefix, lookuper)); err != nil {
		return Config{}, fmt.Errorf("%s config: %w", providerName, err)
	}
	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)

	var missing []string
	if cfg.Server == "" {
		missing = append(missing, envPrefix+"SERVER")
	}
	if cfg.AccessToken == "" {
		missing = append(missing, envPrefix+"ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return Config{}, lipost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

// Client wraps the Mastodon API client.
type Client struct {
	client *mastodonapi.Client
}

// New constructs a Mastodon poster.
func New(cfg Config) *Client {
	mastodonClient := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	mastodonClient.Timeout = requestTimeout

	return &Client{client: mastodonClient}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes a new status, attaching the draft's image or video.
func (c *Client) Post(ctx context.Context, draft lipost.Draft) (lipost.Receipt, error) {
	kind := lipost.MediaNone

	var mediaIDs []mastodonapi.ID
	if draft.HasMedia() {
		attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
			File:        bytes.NewReader(draft.Media.Data),
			Description: draft.AltText,
		})
		if err != nil {
			return lipost.Receipt{}, fmt.Errorf("upload media: %w", err)
		}
		mediaIDs = append(mediaIDs, attachment.ID)
		kind = draft.Media.Kind
	}

	status, err := c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   draft.Text,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return lipost.Receipt{}, fmt.Errorf("post status: %w", err)
	}

	return lipost.Receipt{
		Network: providerName,
		PostID:  string(status.ID),
		URL:     status.URL,
		Kind:    kind,
	}, nil
}
