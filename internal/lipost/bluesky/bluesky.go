// Package bluesky mirrors LinkedIn posts to Bluesky.
package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/sethvargo/go-envconfig"
)

const (
	envPrefix = "LIPOST_BLUESKY_"

	providerName   = "bluesky"
	requestTimeout = 30 * time.Second

	defaultPDSURL = "https://bsky.social"

	// MaxBlobBytes is the largest image the app view accepts in a post embed.
	MaxBlobBytes = 1_000_000
)

// Config holds the account credentials and PDS endpoint.
type Config struct {
	Handle      string `env:"HANDLE"`
	AppPassword string `env:"APP_PASSWORD"`
	PDSURL      string `env:"PDS_URL"`
}

// LoadConfig reads LIPOST_BLUESKY_* variables from lookuper.
func LoadConfig(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, envconfig.PrefixLookuper(envPrefix, lookuper)); err != nil {
		return Config{}, fmt.Errorf("%s config: %w", providerName, err)
	}

	cfg.Handle = strings.TrimSpace(cfg.Handle)
	cfg.AppPassword = strings.TrimSpace(cfg.AppPassword)
	cfg.PDSURL = strings.TrimSpace(cfg.PDSURL)
	if cfg.PDSURL == "" {
		cfg.PDSURL = defaultPDSURL
	}

	var missing []string
	if cfg.Handle == "" {
		missing = append(missing, envPrefix+"HANDLE")
	}
	if cfg.AppPassword == "" {
		missing = append(missing, envPrefix+"APP_PASSWORD")
	}
	if len(missing) > 0 {
		return Config{}, lipost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

// Client implements the lipost.Poster interface for Bluesky.
type Client struct {
	client *xrpc.Client
}

// New logs in and returns a Bluesky poster.
func New(ctx context.Context, cfg Config) (*Client, error) {
	userAgent := "lipost/1"
	xrpcClient := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      cfg.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, xrpcClient, &atproto.ServerCreateSession_Input{
		Identifier: cfg.Handle,
		Password:   cfg.AppPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	xrpcClient.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}

	return &Client{client: xrpcClient}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post creates a Bluesky post. Images up to MaxBlobBytes are embedded;
// anything else is posted as text.
func (c *Client) Post(ctx context.Context, draft lipost.Draft) (lipost.Receipt, error) {
	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      draft.Text,
	}
	kind := lipost.MediaNone

	if draft.HasMedia() {
		switch {
		case draft.Media.Kind != lipost.MediaImage:
			logutil.Warnf("%s: %s attachments are not mirrored, posting text only", providerName, draft.Media.Kind)
		case draft.Media.Size() > MaxBlobBytes:
			logutil.Warnf("%s: image is larger than %d bytes, posting text only", providerName, MaxBlobBytes)
		default:
			blob, err := c.uploadImage(ctx, draft.Media.Data)
			if err != nil {
				return lipost.Receipt{}, err
			}
			post.Embed = &bsky.FeedPost_Embed{
				EmbedImages: &bsky.EmbedImages{
					Images: []*bsky.EmbedImages_Image{
						{
							Alt:   draft.AltText,
							Image: blob,
						},
					},
				},
			}
			kind = lipost.MediaImage
		}
	}

	out, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return lipost.Receipt{}, fmt.Errorf("create record: %w", err)
	}

	return lipost.Receipt{
		Network: providerName,
		PostID:  out.Uri,
		URL:     PostURL(out.Uri),
		Kind:    kind,
	}, nil
}

func (c *Client) uploadImage(ctx context.Context, data []byte) (*util.LexBlob, error) {
	resp, err := atproto.RepoUploadBlob(ctx, c.client, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}
	return resp.Blob, nil
}

// PostURL converts an at://<did>/app.bsky.feed.post/<rkey> record URI to
// its bsky.app web address. Other URIs yield "".
func PostURL(uri string) string {
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if !strings.HasPrefix(uri, "at://") || len(parts) != 3 || parts[1] != "app.bsky.feed.post" {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", parts[0], parts[2])
}
