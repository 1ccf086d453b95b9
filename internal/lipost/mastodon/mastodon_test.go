package mastodon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := LoadConfig(ctx, envconfig.MapLookuper(map[string]string{
		"LIPOST_MASTODON_SERVER": "https://mastodon.social/",
	}))
	var missing lipost.MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"LIPOST_MASTODON_ACCESS_TOKEN"}, missing.Variables)

	cfg, err := LoadConfig(ctx, envconfig.MapLookuper(map[string]string{
		"LIPOST_MASTODON_SERVER":       "https://mastodon.social/",
		"LIPOST_MASTODON_ACCESS_TOKEN": "tok",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://mastodon.social", cfg.Server)
}

func TestPost(t *testing.T) {
	var uploads, statuses int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/media", "/api/v2/media":
			uploads++
			_, _ = io.WriteString(w, `{"id":"77","type":"image","url":"https://files/77.png"}`)
		case "/api/v1/statuses":
			statuses++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "hello fediverse", r.PostForm.Get("status"))
			_, _ = io.WriteString(w, `{"id":"1099","url":"https://mastodon.example/@me/1099","content":"hello fediverse"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{Server: srv.URL, AccessToken: "tok"})
	assert.Equal(t, "mastodon", c.Name())

	receipt, err := c.Post(context.Background(), lipost.Draft{Text: "hello fediverse"})
	require.NoError(t, err)
	assert.Equal(t, lipost.Receipt{
		Network: "mastodon",
		PostID:  "1099",
		URL:     "https://mastodon.example/@me/1099",
		Kind:    lipost.MediaNone,
	}, receipt)
	assert.Equal(t, 0, uploads)

	receipt, err = c.Post(context.Background(), lipost.Draft{
		Text:  "hello fediverse",
		Media: &lipost.Media{Kind: lipost.MediaImage, Data: []byte("\x89PNG")},
	})
	require.NoError(t, err)
	assert.Equal(t, lipost.MediaImage, receipt.Kind)
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 2, statuses)
}
