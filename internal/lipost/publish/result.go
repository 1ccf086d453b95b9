package publish

import (
	"errors"
	"fmt"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/blacktop/lipost/internal/lipost/upload"
)

var (
	// ErrMissingToken is returned before any network call when the session
	// carries no access token.
	ErrMissingToken = linkedin.ErrMissingToken
	// ErrEmptyText is returned when the post text is blank.
	ErrEmptyText = errors.New("post text is required")
	// ErrConnectionFailed is returned when the connectivity check fails.
	ErrConnectionFailed = errors.New("failed to connect to LinkedIn")
	// ErrIdentityUnresolved is returned when no member id could be found.
	ErrIdentityUnresolved = errors.New("could not resolve LinkedIn member identity")
)

// Upload stages reported by UploadError.
const (
	StageRegister = "register"
	StageTransfer = "transfer"
)

// UploadError describes the media step that forced a text-only fallback.
type UploadError struct {
	Stage string
	Kind  lipost.MediaKind
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// MirrorResult is the outcome of re-posting to one secondary network.
type MirrorResult struct {
	Network string
	Receipt lipost.Receipt
	Err     error
}

// Result is the outcome of a publish attempt. Exactly one of PostID and Err
// is set.
type Result struct {
	PostID string
	URL    string
	// Kind is the media kind that was actually published.
	Kind lipost.MediaKind
	// Degraded is set when media was requested but the post went out as text.
	Degraded bool
	Fallback *UploadError
	// Processing is the last observed video processing state.
	Processing upload.State
	Mirrors    []MirrorResult
	Err        error
}

// Succeeded reports whether the LinkedIn post was created.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.PostID != ""
}

// Reason returns a single human-readable explanation of a failure or a
// degraded post, or "" when there is nothing to report.
func (r Result) Reason() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.Degraded && r.Fallback != nil:
		return "posted as text only: " + r.Fallback.Error()
	default:
		return ""
	}
}
