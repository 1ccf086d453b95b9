package linkedin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "tok-123"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIBase: srv.URL, RetryMax: -1}), srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultAPIBase, c.apiBase)
	assert.Equal(t, DefaultRetryMax, c.http.RetryMax)
	assert.Equal(t, DefaultRetryWaitMin, c.http.RetryWaitMin)

	c = New(Config{APIBase: "http://example.com/", RetryMax: -1})
	assert.Equal(t, "http://example.com", c.apiBase)
	assert.Equal(t, 0, c.http.RetryMax)
}

func TestPing(t *testing.T) {
	t.Run("Sends Bearer And Restli Headers", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/userinfo", r.URL.Path)
			assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
			assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
			writeJSON(w, http.StatusOK, map[string]string{"sub": "abc"})
		})
		assert.NoError(t, c.Ping(context.Background(), testToken))
	})

	t.Run("Non 200 Is Error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		err := c.Ping(context.Background(), testToken)
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
	})

	t.Run("Missing Token Makes No Request", func(t *testing.T) {
		var hits atomic.Int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		})
		assert.ErrorIs(t, c.Ping(context.Background(), " "), ErrMissingToken)
		assert.Zero(t, hits.Load())
	})

	t.Run("Transport Error", func(t *testing.T) {
		c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()
		assert.Error(t, c.Ping(context.Background(), testToken))
	})
}

func TestTransportRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "shareCommentary")
		w.Header().Set("X-RestLi-Id", "urn:li:ugcPost:9")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(Config{APIBase: srv.URL, RetryMax: 3, RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond})
	id, err := c.CreatePost(context.Background(), testToken, NewPost("urn:li:person:a", "hi", CategoryNone, "", ""))
	require.NoError(t, err)
	assert.Equal(t, "urn:li:ugcPost:9", id)
	assert.Equal(t, int32(3), hits.Load())
}

func TestResolveAuthor(t *testing.T) {
	t.Run("From Userinfo", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, UserInfo{Sub: "abc"})
		})
		urn, err := c.ResolveAuthor(context.Background(), testToken)
		require.NoError(t, err)
		assert.Equal(t, "urn:li:person:abc", urn)
	})

	t.Run("Falls Back To Me", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v2/userinfo":
				w.WriteHeader(http.StatusForbidden)
			case "/v2/me":
				writeJSON(w, http.StatusOK, map[string]string{"id": "legacy"})
			}
		})
		urn, err := c.ResolveAuthor(context.Background(), testToken)
		require.NoError(t, err)
		assert.Equal(t, "urn:li:person:legacy", urn)
	})

	t.Run("No Identifier", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{})
		})
		_, err := c.ResolveAuthor(context.Background(), testToken)
		assert.ErrorIs(t, err, ErrNoIdentity)
	})
}

func TestProfile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/userinfo":
			writeJSON(w, http.StatusOK, UserInfo{Sub: "abc", Name: "Jane D", Email: "jane@example.com", Picture: "https://img/1"})
		case "/v2/me":
			assert.Equal(t, meProjection, r.URL.Query().Get("projection"))
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{
				"id": "abc",
				"vanityName": "janedoe",
				"firstName": {"localized": {"en_US": "Jane"}},
				"lastName": {"localized": {"en_US": "Doe"}},
				"profilePicture": {"displayImage~": {"elements": [
					{"identifiers": []},
					{"identifiers": [{"identifier": "https://img/2"}]}
				]}}
			}`)
		}
	})

	p, err := c.Profile(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "jane@example.com", p.Email)
	assert.Equal(t, "https://img/2", p.Picture)
	assert.Equal(t, "janedoe", p.VanityName)
	assert.Equal(t, "https://www.linkedin.com/in/janedoe/", p.URL())
}

func TestProfileBothSourcesFail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Profile(context.Background(), testToken)
	assert.Error(t, err)
}

func TestRegisterUpload(t *testing.T) {
	t.Run("Parses Ticket", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "registerUpload", r.URL.Query().Get("action"))

			var body struct {
				Req RegisterUploadRequest `json:"registerUploadRequest"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{RecipeFeedVideo}, body.Req.Recipes)
			assert.Equal(t, "urn:li:person:a", body.Req.Owner)
			assert.Equal(t, int64(2048), body.Req.FileSize)

			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"value": {"asset": "urn:li:digitalmediaAsset:C5", "uploadMechanism": {
				"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": {"uploadUrl": "https://upload.example/x"}}}}`)
		})

		reg := NewRegisterUploadRequest(RecipeFeedVideo, "urn:li:person:a")
		reg.SupportedUploadMechanism = []string{"SINGLE_REQUEST_UPLOAD"}
		reg.FileSize = 2048
		ticket, err := c.RegisterUpload(context.Background(), testToken, reg)
		require.NoError(t, err)
		assert.Equal(t, "https://upload.example/x", ticket.UploadURL)
		assert.Equal(t, "urn:li:digitalmediaAsset:C5", ticket.Asset)
	})

	t.Run("Missing Upload URL", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"value": map[string]any{"asset": "urn:li:digitalmediaAsset:C5"}})
		})
		_, err := c.RegisterUpload(context.Background(), testToken, NewRegisterUploadRequest(RecipeFeedImage, "o"))
		assert.ErrorIs(t, err, ErrMissingUpload)
	})

	t.Run("Status Error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := c.RegisterUpload(context.Background(), testToken, NewRegisterUploadRequest(RecipeFeedImage, "o"))
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "register upload", serr.Op)
	})
}

func TestUpload(t *testing.T) {
	t.Run("Puts Raw Bytes", func(t *testing.T) {
		c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, []byte("payload"), body)
			w.WriteHeader(http.StatusCreated)
		})
		assert.NoError(t, c.Upload(context.Background(), testToken, srv.URL+"/upload", []byte("payload")))
	})

	t.Run("Failure Is Not Retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := New(Config{APIBase: srv.URL, RetryMax: 3, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
		err := c.Upload(context.Background(), testToken, srv.URL+"/upload", []byte("payload"))
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestAssetStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{name: "available", status: 200, body: `{"recipes":[{"recipe":"r","status":"AVAILABLE"}]}`, want: AssetAvailable},
		{name: "first non-empty wins", status: 200, body: `{"recipes":[{"recipe":"r"},{"recipe":"s","status":"ERROR"}]}`, want: AssetError},
		{name: "no recipes", status: 200, body: `{}`, want: AssetProcessing},
		{name: "not found", status: 404, body: ``, wantErr: true},
		{name: "garbage", status: 200, body: `nope`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/assets/C5", r.URL.Path)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			got, err := c.AssetStatus(context.Background(), testToken, "urn:li:digitalmediaAsset:C5")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreatePost(t *testing.T) {
	t.Run("Id From Body", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var post UGCPost
			require.NoError(t, json.NewDecoder(r.Body).Decode(&post))
			assert.Equal(t, "PUBLISHED", post.LifecycleState)
			assert.Equal(t, "PUBLIC", post.Visibility.MemberNetwork)
			assert.Equal(t, CategoryImage, post.SpecificContent.ShareContent.ShareMediaCategory)
			require.Len(t, post.SpecificContent.ShareContent.Media, 1)
			assert.Equal(t, "READY", post.SpecificContent.ShareContent.Media[0].Status)
			assert.Equal(t, "urn:li:digitalmediaAsset:C5", post.SpecificContent.ShareContent.Media[0].Media)
			writeJSON(w, http.StatusCreated, map[string]string{"id": "urn:li:ugcPost:123"})
		})
		id, err := c.CreatePost(context.Background(), testToken,
			NewPost("urn:li:person:a", "Launch day!", CategoryImage, "urn:li:digitalmediaAsset:C5", ""))
		require.NoError(t, err)
		assert.Equal(t, "urn:li:ugcPost:123", id)
	})

	t.Run("Failure Carries Status And Body", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			io.WriteString(w, `{"message":"duplicate"}`)
		})
		_, err := c.CreatePost(context.Background(), testToken, NewPost("a", "t", CategoryNone, "", ""))
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusUnprocessableEntity, serr.StatusCode)
		assert.Equal(t, `{"message":"duplicate"}`, serr.Body)
		assert.Equal(t, `create post failed: 422 - {"message":"duplicate"}`, serr.Error())
	})

	t.Run("Missing Identifier", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
		_, err := c.CreatePost(context.Background(), testToken, NewPost("a", "t", CategoryNone, "", ""))
		assert.ErrorIs(t, err, ErrMissingPostID)
	})
}

func TestNewPostTextOnly(t *testing.T) {
	post := NewPost("a", "t", CategoryNone, "urn:li:digitalmediaAsset:ignored", "")
	assert.Empty(t, post.SpecificContent.ShareContent.Media)

	data, err := json.Marshal(post)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"media"`)
	assert.Contains(t, string(data), `"shareMediaCategory":"NONE"`)
}

func TestDeletePost(t *testing.T) {
	tests := []struct {
		name     string
		urn      string
		status   int
		wantPath string
		wantErr  error
	}{
		{name: "ugc post", urn: "urn:li:ugcPost:1", status: 204, wantPath: "/v2/ugcPosts/urn%3Ali%3AugcPost%3A1"},
		{name: "share", urn: "urn:li:share:2", status: 200, wantPath: "/v2/shares/urn%3Ali%3Ashare%3A2"},
		{name: "other urn", urn: "urn:li:activity:3", status: 200, wantPath: "/v2/ugcPosts/urn%3Ali%3Aactivity%3A3"},
		{name: "not found", urn: "urn:li:ugcPost:4", status: 404, wantPath: "/v2/ugcPosts/urn%3Ali%3AugcPost%3A4", wantErr: ErrPostNotFound},
		{name: "forbidden", urn: "urn:li:ugcPost:5", status: 403, wantPath: "/v2/ugcPosts/urn%3Ali%3AugcPost%3A5", wantErr: ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.EscapedPath())
				w.WriteHeader(tt.status)
			})
			err := c.DeletePost(context.Background(), testToken, tt.urn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("Unexpected Status", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
		err := c.DeletePost(context.Background(), testToken, "urn:li:ugcPost:6")
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusConflict, serr.StatusCode)
	})
}
