package lipost

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// PayloadTooLargeError is returned before any upload when media exceeds its
// size ceiling.
type PayloadTooLargeError struct {
	Kind  MediaKind
	Size  int64
	Limit int64
}

func (e PayloadTooLargeError) Error() string {
	return fmt.Sprintf("%s exceeds size limit (%s > %s)", e.Kind, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}
