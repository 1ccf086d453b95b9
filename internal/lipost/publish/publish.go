// Package publish coordinates a LinkedIn post from preconditions through
// media upload to the final create call, falling back to a text-only post
// when the media steps fail.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/blacktop/lipost/internal/lipost/upload"
	"github.com/blacktop/lipost/internal/logutil"
)

const (
	pingTimeout      = 5 * time.Second
	identityTimeout  = 5 * time.Second
	profileTimeout   = 10 * time.Second
	textPostTimeout  = 30 * time.Second
	videoPostTimeout = 60 * time.Second
	deleteTimeout    = 30 * time.Second
)

// API is the subset of the LinkedIn client the coordinator needs.
type API interface {
	Ping(ctx context.Context, token string) error
	ResolveAuthor(ctx context.Context, token string) (string, error)
	Profile(ctx context.Context, token string) (*linkedin.Profile, error)
	CreatePost(ctx context.Context, token string, post linkedin.UGCPost) (string, error)
	DeletePost(ctx context.Context, token, urn string) error
}

// Uploader runs the media upload steps.
type Uploader interface {
	RegisterImage(ctx context.Context, token, author string) (*upload.Session, error)
	RegisterVideo(ctx context.Context, token, author string, size int64) (*upload.Session, error)
	Transfer(ctx context.Context, token string, s *upload.Session, m *lipost.Media) error
	AwaitProcessing(ctx context.Context, token, asset string, maxWait time.Duration) (upload.State, error)
}

// Coordinator publishes drafts for sessions.
type Coordinator struct {
	api     API
	uploads Uploader
	mirrors []lipost.Poster
	now     func() time.Time
	maxWait time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMirrors re-posts every successful LinkedIn post to posters, in order.
func WithMirrors(posters ...lipost.Poster) Option {
	return func(c *Coordinator) { c.mirrors = append(c.mirrors, posters...) }
}

// WithClock sets the clock used to timestamp history records.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithMaxWait bounds how long video processing is awaited.
func WithMaxWait(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.maxWait = d
		}
	}
}

// New creates a Coordinator.
func New(api API, uploads Uploader, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:     api,
		uploads: uploads,
		now:     time.Now,
		maxWait: upload.DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mirrors returns the names of the configured mirror networks.
func (c *Coordinator) Mirrors() []string {
	names := make([]string, 0, len(c.mirrors))
	for _, m := range c.mirrors {
		names = append(names, m.Name())
	}
	return names
}

// Validate checks the draft preconditions. It never touches the network.
func Validate(s *Session, d lipost.Draft) error {
	if s == nil || strings.TrimSpace(s.Token) == "" {
		return ErrMissingToken
	}
	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyText
	}
	return d.Media.Validate()
}

// Publish posts d to LinkedIn. Every failure is reported through
// Result.Err; media failures degrade the post to text instead.
func (c *Coordinator) Publish(ctx context.Context, s *Session, d lipost.Draft) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("publish: unexpected failure: %v", r)}
		}
	}()

	if err := Validate(s, d); err != nil {
		return Result{Err: err}
	}
	if n := utf8.RuneCountInString(d.Text); n > lipost.MaxCommentaryRunes {
		logutil.Warnf("post is %d characters, LinkedIn may reject more than %d", n, lipost.MaxCommentaryRunes)
	}

	token := s.Token
	if err := c.ping(ctx, token); err != nil {
		return Result{Err: err}
	}
	author, err := c.resolveAuthor(ctx, s)
	if err != nil {
		return Result{Err: err}
	}

	res = Result{Kind: lipost.MediaNone}
	category, asset := linkedin.CategoryNone, ""

	if d.HasMedia() {
		var uerr *UploadError
		asset, res.Processing, uerr = c.stageMedia(ctx, token, author, d.Media)
		if uerr != nil {
			logutil.Warnf("%v, publishing text only", uerr)
			res.Degraded = true
			res.Fallback = uerr
		} else {
			res.Kind = d.Media.Kind
			category = categoryFor(d.Media.Kind)
		}
	}

	timeout := textPostTimeout
	if category == linkedin.CategoryVideo {
		timeout = videoPostTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	id, err := c.api.CreatePost(pctx, token, linkedin.NewPost(author, d.Text, category, asset, d.AltText))
	cancel()
	if err != nil {
		res.Err = err
		return res
	}

	res.PostID = id
	res.URL = linkedin.FeedURL(id)
	s.Append(PostRecord{
		ID:          id,
		URL:         res.URL,
		Preview:     Preview(d.Text),
		Kind:        res.Kind,
		PublishedAt: c.now(),
	})
	logutil.Infof("published %s post %s", res.Kind, id)

	res.Mirrors = c.mirror(ctx, d)
	return res
}

func categoryFor(kind lipost.MediaKind) linkedin.MediaCategory {
	switch kind {
	case lipost.MediaImage:
		return linkedin.CategoryImage
	case lipost.MediaVideo:
		return linkedin.CategoryVideo
	default:
		return linkedin.CategoryNone
	}
}

// stageMedia registers and transfers m and, for videos, waits for
// processing. The processing outcome never fails the stage.
func (c *Coordinator) stageMedia(ctx context.Context, token, author string, m *lipost.Media) (string, upload.State, *UploadError) {
	var (
		sess *upload.Session
		err  error
	)
	if m.Kind == lipost.MediaVideo {
		logutil.Infof("uploading video (%.1f MiB)", m.SizeMiB())
		sess, err = c.uploads.RegisterVideo(ctx, token, author, m.Size())
	} else {
		sess, err = c.uploads.RegisterImage(ctx, token, author)
	}
	if err != nil {
		return "", "", &UploadError{Stage: StageRegister, Kind: m.Kind, Err: err}
	}

	if err := c.uploads.Transfer(ctx, token, sess, m); err != nil {
		return "", sess.State, &UploadError{Stage: StageTransfer, Kind: m.Kind, Err: err}
	}

	if m.Kind != lipost.MediaVideo {
		return sess.Asset, sess.State, nil
	}

	state, err := c.uploads.AwaitProcessing(ctx, token, sess.Asset, c.maxWait)
	switch {
	case err != nil:
		logutil.Warnf("video processing: %v, publishing anyway", err)
		if state == "" {
			state = upload.StateError
		}
	case state == upload.StateTimedOut:
		logutil.Warnf("video still processing after %s, publishing anyway", c.maxWait)
	}
	sess.State = state
	return sess.Asset, state, nil
}

func (c *Coordinator) ping(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.api.Ping(ctx, token); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

func (c *Coordinator) resolveAuthor(ctx context.Context, s *Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()
	author, err := c.api.ResolveAuthor(ctx, s.Token)
	if err != nil || author == "" {
		return "", errors.Join(ErrIdentityUnresolved, err)
	}
	s.setAuthor(author)
	return author, nil
}

func (c *Coordinator) mirror(ctx context.Context, d lipost.Draft) []MirrorResult {
	if len(c.mirrors) == 0 {
		return nil
	}
	results := make([]MirrorResult, 0, len(c.mirrors))
	for _, p := range c.mirrors {
		receipt, err := p.Post(ctx, d)
		if err != nil {
			logutil.Warnf("%s mirror failed: %v", p.Name(), err)
		} else {
			logutil.Infof("mirrored to %s: %s", p.Name(), receipt.URL)
		}
		results = append(results, MirrorResult{Network: p.Name(), Receipt: receipt, Err: err})
	}
	return results
}

// Delete removes a post and drops it from the session history.
func (c *Coordinator) Delete(ctx context.Context, s *Session, urn string) error {
	if s == nil || strings.TrimSpace(s.Token) == "" {
		return ErrMissingToken
	}
	urn = strings.TrimSpace(urn)
	if urn == "" {
		return lipost.ValidationError{Provider: "linkedin", Reason: "post urn is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := c.api.DeletePost(ctx, s.Token, urn); err != nil {
		return err
	}
	if n := s.Remove(urn); n > 0 {
		logutil.Debugf("removed %d history entries for %s", n, urn)
	}
	return nil
}

// Connect checks the token, resolves the author and caches the profile on
// the session. A profile lookup failure leaves a minimal profile.
func (c *Coordinator) Connect(ctx context.Context, s *Session) (*linkedin.Profile, error) {
	if s == nil || strings.TrimSpace(s.Token) == "" {
		return nil, ErrMissingToken
	}
	if err := c.ping(ctx, s.Token); err != nil {
		return nil, err
	}
	author, err := c.resolveAuthor(ctx, s)
	if err != nil {
		return nil, err
	}

	profile, err := c.fetchProfile(ctx, s)
	if err != nil {
		logutil.Warnf("fetch profile: %v", err)
		profile = &linkedin.Profile{ID: strings.TrimPrefix(author, "urn:li:person:"), Name: "LinkedIn User"}
		s.setProfile(profile)
	}
	return profile, nil
}

// Profile returns the session's cached profile, fetching it on first use.
func (c *Coordinator) Profile(ctx context.Context, s *Session) (*linkedin.Profile, error) {
	if s == nil || strings.TrimSpace(s.Token) == "" {
		return nil, ErrMissingToken
	}
	if p := s.CachedProfile(); p != nil {
		return p, nil
	}
	return c.fetchProfile(ctx, s)
}

func (c *Coordinator) fetchProfile(ctx context.Context, s *Session) (*linkedin.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, profileTimeout)
	defer cancel()
	p, err := c.api.Profile(ctx, s.Token)
	if err != nil {
		return nil, err
	}
	s.setProfile(p)
	return p, nil
}
