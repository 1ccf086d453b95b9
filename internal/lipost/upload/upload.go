// Package upload drives LinkedIn's register, transfer and processing steps
// for image and video assets.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/cenkalti/backoff/v4"
)

// State is the lifecycle position of an upload session.
type State string

const (
	StateRegistered State = "REGISTERED"
	StateUploading  State = "UPLOADING"
	StateProcessing State = "PROCESSING"
	StateAvailable  State = "AVAILABLE"
	StateError      State = "ERROR"
	StateTimedOut   State = "TIMED_OUT"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxWait      = 120 * time.Second

	ImageRegisterTimeout = 15 * time.Second
	VideoRegisterTimeout = 30 * time.Second
	ImageTransferTimeout = 60 * time.Second
	VideoTransferTimeout = 300 * time.Second

	videoTransferPerMiB = 5 * time.Second

	// StatusTimeout bounds a single asset status request.
	StatusTimeout = 10 * time.Second
	// minStatusBudget is used for a poll that lands on the deadline.
	minStatusBudget = time.Second
)

var (
	// ErrProcessingFailed is returned when LinkedIn reports the asset as ERROR.
	ErrProcessingFailed = errors.New("media processing failed")
	// ErrSessionUsed is returned when a session is transferred twice.
	ErrSessionUsed = errors.New("upload session already used")

	errPending = errors.New("asset still processing")
)

// API is the subset of the LinkedIn client used for uploads.
type API interface {
	RegisterUpload(ctx context.Context, token string, reg linkedin.RegisterUploadRequest) (*linkedin.UploadTicket, error)
	Upload(ctx context.Context, token, uploadURL string, data []byte) error
	AssetStatus(ctx context.Context, token, asset string) (string, error)
}

// Session is one registered upload. It is good for a single transfer.
type Session struct {
	UploadURL string
	Asset     string
	Kind      lipost.MediaKind
	State     State
}

// Client runs upload sessions against an API.
type Client struct {
	api      API
	clock    backoff.Clock
	newTimer func() backoff.Timer
	interval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used to measure the processing deadline.
func WithClock(clock backoff.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithTimer sets the timer factory used between processing polls.
func WithTimer(fn func() backoff.Timer) Option {
	return func(c *Client) { c.newTimer = fn }
}

// WithPollInterval overrides the 3s asset status interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// New creates an upload client.
func New(api API, opts ...Option) *Client {
	c := &Client{
		api:      api,
		clock:    backoff.SystemClock,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TransferTimeout returns the transfer budget for media: 60s for images,
// and for videos 5s per MiB with a 300s floor.
func TransferTimeout(m *lipost.Media) time.Duration {
	if m == nil || m.Kind != lipost.MediaVideo {
		return ImageTransferTimeout
	}
	scaled := time.Duration(m.SizeMiB() * float64(videoTransferPerMiB))
	return max(VideoTransferTimeout, scaled)
}

// RegisterImage registers a feed image owned by author.
func (c *Client) RegisterImage(ctx context.Context, token, author string) (*Session, error) {
	reg := linkedin.NewRegisterUploadRequest(linkedin.RecipeFeedImage, author)
	return c.register(ctx, token, lipost.MediaImage, reg, ImageRegisterTimeout)
}

// RegisterVideo registers a feed video of size bytes owned by author.
func (c *Client) RegisterVideo(ctx context.Context, token, author string, size int64) (*Session, error) {
	reg := linkedin.NewRegisterUploadRequest(linkedin.RecipeFeedVideo, author)
	reg.SupportedUploadMechanism = []string{"SINGLE_REQUEST_UPLOAD"}
	reg.FileSize = size
	return c.register(ctx, token, lipost.MediaVideo, reg, VideoRegisterTimeout)
}

func (c *Client) register(ctx context.Context, token string, kind lipost.MediaKind, reg linkedin.RegisterUploadRequest, timeout time.Duration) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticket, err := c.api.RegisterUpload(ctx, token, reg)
	if err != nil {
		return nil, fmt.Errorf("register %s upload: %w", kind, err)
	}
	logutil.Debugf("registered %s upload: asset=%s", kind, ticket.Asset)

	return &Session{
		UploadURL: ticket.UploadURL,
		Asset:     ticket.Asset,
		Kind:      kind,
		State:     StateRegistered,
	}, nil
}

// Transfer sends the media bytes to the session's upload URL.
func (c *Client) Transfer(ctx context.Context, token string, s *Session, m *lipost.Media) error {
	if s == nil || m == nil {
		return fmt.Errorf("transfer: missing session or media")
	}
	if s.State != StateRegistered {
		return ErrSessionUsed
	}
	s.State = StateUploading

	ctx, cancel := context.WithTimeout(ctx, TransferTimeout(m))
	defer cancel()

	if err := c.api.Upload(ctx, token, s.UploadURL, m.Data); err != nil {
		s.State = StateError
		return fmt.Errorf("transfer %s: %w", m.Kind, err)
	}
	s.State = StateProcessing
	logutil.Debugf("uploaded %s (%d bytes)", m.Kind, m.Size())
	return nil
}

// AwaitProcessing polls the asset until LinkedIn reports it AVAILABLE or
// ERROR, or maxWait of wall-clock time has passed. Failed status requests
// count as still processing. Running out of time yields StateTimedOut with
// a nil error. Each status request is bounded by the time left, so a hung
// request cannot hold the loop past maxWait.
func (c *Client) AwaitProcessing(ctx context.Context, token, asset string, maxWait time.Duration) (State, error) {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.interval,
		RandomizationFactor: 0,
		Multiplier:          1,
		MaxInterval:         c.interval,
		MaxElapsedTime:      maxWait,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}

	start := c.clock.Now()
	poll := func() (State, error) {
		status, err := c.status(ctx, token, asset, maxWait-c.clock.Now().Sub(start))
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			logutil.Debugf("asset status %s: %v", asset, err)
			return StateProcessing, errPending
		}
		switch status {
		case linkedin.AssetAvailable:
			return StateAvailable, nil
		case linkedin.AssetError:
			return StateError, backoff.Permanent(ErrProcessingFailed)
		default:
			return StateProcessing, errPending
		}
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}
	notify := func(_ error, wait time.Duration) {
		logutil.Debugf("asset %s still processing, next check in %s", asset, wait)
	}

	state, err := backoff.RetryNotifyWithTimerAndData(poll, backoff.WithContext(b, ctx), notify, timer)
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, ErrProcessingFailed):
		return StateError, err
	case errors.Is(err, errPending):
		logutil.Warnf("asset %s not ready after %s", asset, maxWait)
		return StateTimedOut, nil
	default:
		return "", err
	}
}

func (c *Client) status(ctx context.Context, token, asset string, remaining time.Duration) (string, error) {
	budget := min(StatusTimeout, remaining)
	if budget <= 0 {
		budget = minStatusBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	return c.api.AssetStatus(ctx, token, asset)
}
