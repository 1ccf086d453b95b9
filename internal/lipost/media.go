package lipost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const providerName = "media"

var (
	imageTypes = []string{"image/jpeg", "image/png", "image/gif"}
	videoTypes = []string{"video/mp4", "video/quicktime", "video/x-msvideo"}
)

// LoadMedia reads an attachment from disk. An empty kind is inferred from the
// file contents.
func LoadMedia(path string, kind MediaKind) (*Media, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ValidationError{Provider: providerName, Reason: fmt.Sprintf("%q not found", path)}
		}
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return nil, ValidationError{Provider: providerName, Reason: fmt.Sprintf("%q is a directory", path)}
	}
	// An unknown kind is held to the largest ceiling until it is sniffed.
	limit := kind.Limit()
	if limit == 0 {
		limit = MaxVideoBytes
	}
	if info.Size() > limit {
		return nil, PayloadTooLargeError{Kind: kind, Size: info.Size(), Limit: limit}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	return NewMedia(kind, data, filepath.Base(path))
}

// NewMedia sniffs the content type of data and checks it against kind.
func NewMedia(kind MediaKind, data []byte, name string) (*Media, error) {
	if len(data) == 0 {
		return nil, ValidationError{Provider: providerName, Reason: fmt.Sprintf("%q is empty", name)}
	}

	mt := mimetype.Detect(data)
	if kind == "" || kind == MediaNone {
		switch {
		case strings.HasPrefix(mt.String(), "image/"):
			kind = MediaImage
		case strings.HasPrefix(mt.String(), "video/"):
			kind = MediaVideo
		}
	}

	var allowed []string
	switch kind {
	case MediaImage:
		allowed = imageTypes
	case MediaVideo:
		allowed = videoTypes
	default:
		return nil, ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported media type %s for %q", mt.String(), name)}
	}
	if !mimetype.EqualsAny(mt.String(), allowed...) {
		return nil, ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported %s type %s for %q", kind, mt.String(), name)}
	}

	return &Media{
		Kind:        kind,
		Data:        data,
		ContentType: mt.String(),
		Name:        name,
	}, nil
}

// Validate checks the attachment preconditions without touching the network.
func (m *Media) Validate() error {
	if m == nil {
		return nil
	}
	if len(m.Data) == 0 {
		return ValidationError{Provider: providerName, Reason: "media payload is empty"}
	}
	if limit := m.Kind.Limit(); limit > 0 && m.Size() > limit {
		return PayloadTooLargeError{Kind: m.Kind, Size: m.Size(), Limit: limit}
	}
	return nil
}
