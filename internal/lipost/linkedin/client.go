package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIBase = "https://api.linkedin.com"

	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 4 * time.Second

	restliVersion = "2.0.0"
	meProjection  = "(id,firstName,lastName,vanityName,profilePicture(displayImage~:playableStreams))"
	defaultName   = "LinkedIn User"

	maxErrorBody = 4 << 10
)

// Config tunes the REST client. Zero values select the defaults; a negative
// RetryMax disables transport retries.
type Config struct {
	APIBase      string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client talks to the LinkedIn v2 REST API. API calls go through a retrying
// transport (429, 5xx and connection errors, every method); binary uploads to
// pre-signed URLs use the underlying client directly.
type Client struct {
	http    *retryablehttp.Client
	apiBase string
}

// New constructs a LinkedIn client.
func New(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = logutil.Leveled{}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	switch {
	case cfg.RetryMax < 0:
		rc.RetryMax = 0
	case cfg.RetryMax == 0:
		rc.RetryMax = DefaultRetryMax
	default:
		rc.RetryMax = cfg.RetryMax
	}
	rc.RetryWaitMin = DefaultRetryWaitMin
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	rc.RetryWaitMax = DefaultRetryWaitMax
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = DefaultAPIBase
	}

	return &Client{http: rc, apiBase: base}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok(codes ...int) bool {
	for _, code := range codes {
		if r.status == code {
			return true
		}
	}
	return false
}

func (r *response) statusError(op string) *StatusError {
	body := strings.TrimSpace(string(r.body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Op: op, StatusCode: r.status, Body: body}
}

func authorize(req *http.Request, token string) {
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
}

func (c *Client) send(ctx context.Context, token, method, path string, payload any) (*response, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	var body any
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = buf
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	authorize(req.Request, token)
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logutil.Debugf("linkedin request: %s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	logutil.Debugf("linkedin response: %s %s status=%d", method, path, resp.StatusCode)

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedBody, err)
	}
	return nil
}

// Ping performs the lightweight authenticated connectivity check.
func (c *Client) Ping(ctx context.Context, token string) error {
	resp, err := c.send(ctx, token, http.MethodGet, "/v2/userinfo", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return resp.statusError("connectivity check")
	}
	return nil
}

// UserInfo fetches the OpenID Connect userinfo document.
func (c *Client) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	resp, err := c.send(ctx, token, http.MethodGet, "/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, resp.statusError("userinfo")
	}
	var info UserInfo
	if err := decode(resp.body, &info); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	return &info, nil
}

func (c *Client) me(ctx context.Context, token, projection string) (*meResponse, error) {
	path := "/v2/me"
	if projection != "" {
		path += "?projection=" + projection
	}
	resp, err := c.send(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, resp.statusError("me")
	}
	var me meResponse
	if err := decode(resp.body, &me); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &me, nil
}

// ResolveAuthor returns the member URN for token, trying userinfo first and
// the legacy /v2/me endpoint second.
func (c *Client) ResolveAuthor(ctx context.Context, token string) (string, error) {
	info, infoErr := c.UserInfo(ctx, token)
	if infoErr == nil && info.Sub != "" {
		return PersonURN(info.Sub), nil
	}

	me, meErr := c.me(ctx, token, "")
	if meErr == nil && me.ID != "" {
		return PersonURN(me.ID), nil
	}

	return "", errors.Join(ErrNoIdentity, infoErr, meErr)
}

// Profile merges userinfo with the projected /v2/me document. Either source
// may fail; both failing is an error.
func (c *Client) Profile(ctx context.Context, token string) (*Profile, error) {
	profile := &Profile{Name: defaultName}

	info, infoErr := c.UserInfo(ctx, token)
	if infoErr == nil {
		if info.Name != "" {
			profile.Name = info.Name
		}
		profile.Email = info.Email
		profile.Picture = info.Picture
		profile.ID = info.Sub
	}

	me, meErr := c.me(ctx, token, meProjection)
	if meErr == nil {
		fn, ln := me.FirstName.first(), me.LastName.first()
		if fn != "" || ln != "" {
			profile.Name = strings.TrimSpace(fn + " " + ln)
		}
		if me.ID != "" {
			profile.ID = me.ID
		}
		profile.VanityName = me.VanityName
		if pic := me.picture(); pic != "" {
			profile.Picture = pic
		}
	}

	if infoErr != nil && meErr != nil {
		return nil, errors.Join(infoErr, meErr)
	}
	return profile, nil
}

// RegisterUpload performs phase one of a media upload.
func (c *Client) RegisterUpload(ctx context.Context, token string, reg RegisterUploadRequest) (*UploadTicket, error) {
	payload := struct {
		RegisterUploadRequest RegisterUploadRequest `json:"registerUploadRequest"`
	}{reg}

	resp, err := c.send(ctx, token, http.MethodPost, "/v2/assets?action=registerUpload", payload)
	if err != nil {
		return nil, err
	}
	if !resp.ok(http.StatusOK, http.StatusCreated) {
		return nil, resp.statusError("register upload")
	}

	var out registerUploadResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, fmt.Errorf("register upload: %w", err)
	}
	ticket := &UploadTicket{
		UploadURL: out.Value.UploadMechanism[uploadMechanismKey].UploadURL,
		Asset:     out.Value.Asset,
	}
	if ticket.UploadURL == "" || ticket.Asset == "" {
		return nil, ErrMissingUpload
	}
	return ticket, nil
}

// Upload transfers raw bytes to a pre-signed upload URL. It is not retried:
// the caller owns the timeout through ctx.
func (c *Client) Upload(ctx context.Context, token, uploadURL string, data []byte) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}
	if _, err := url.Parse(uploadURL); err != nil || uploadURL == "" {
		return fmt.Errorf("invalid upload url %q", uploadURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = int64(len(data))
	authorize(req, token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	r := &response{status: resp.StatusCode, header: resp.Header, body: body}
	if !r.ok(http.StatusOK, http.StatusCreated) {
		return r.statusError("upload media")
	}
	return nil
}

// AssetStatus returns the first recipe status reported for asset, or
// PROCESSING when none is reported yet.
func (c *Client) AssetStatus(ctx context.Context, token, asset string) (string, error) {
	id := lastSegment(asset)
	if id == "" {
		return "", fmt.Errorf("invalid asset urn %q", asset)
	}

	resp, err := c.send(ctx, token, http.MethodGet, "/v2/assets/"+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}
	if resp.status != http.StatusOK {
		return "", resp.statusError("asset status")
	}

	var out assetResponse
	if err := decode(resp.body, &out); err != nil {
		return "", fmt.Errorf("asset status: %w", err)
	}
	for _, recipe := range out.Recipes {
		if recipe.Status != "" {
			return recipe.Status, nil
		}
	}
	return AssetProcessing, nil
}

// CreatePost publishes a UGC post and returns its URN.
func (c *Client) CreatePost(ctx context.Context, token string, post UGCPost) (string, error) {
	resp, err := c.send(ctx, token, http.MethodPost, "/v2/ugcPosts", post)
	if err != nil {
		return "", err
	}
	if !resp.ok(http.StatusOK, http.StatusCreated) {
		return "", resp.statusError("create post")
	}

	var out createPostResponse
	if len(resp.body) > 0 {
		if err := decode(resp.body, &out); err != nil {
			logutil.Debugf("create post: %v", err)
		}
	}
	if out.ID == "" {
		out.ID = resp.header.Get("X-RestLi-Id")
	}
	if out.ID == "" {
		return "", ErrMissingPostID
	}
	return out.ID, nil
}

// DeletePost removes a UGC post or share by URN.
func (c *Client) DeletePost(ctx context.Context, token, urn string) error {
	urn = strings.TrimSpace(urn)
	if urn == "" {
		return fmt.Errorf("post urn is required")
	}

	collection := "ugcPosts"
	if !strings.Contains(urn, "ugcPost") && strings.Contains(urn, "share") {
		collection = "shares"
	}

	resp, err := c.send(ctx, token, http.MethodDelete, "/v2/"+collection+"/"+EscapeURN(urn), nil)
	if err != nil {
		return err
	}
	switch resp.status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrPostNotFound
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return resp.statusError("delete post")
	}
}
