package linkedin

import (
	"errors"
	"fmt"
)

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrForbidden      = errors.New("permission denied: you can only delete your own posts")
	ErrNoIdentity     = errors.New("no member id in profile response")
	ErrMissingPostID  = errors.New("create post returned no identifier")
	ErrMissingUpload  = errors.New("register upload returned no upload url or asset")
	ErrMissingToken   = errors.New("access token is required")
	ErrUnexpectedBody = errors.New("unexpected response body")
)

// StatusError reports a non-2xx response from the LinkedIn API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s failed: %d - %s", e.Op, e.StatusCode, e.Body)
}
