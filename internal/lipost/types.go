package lipost

import "context"

// MediaKind tags an attachment.
type MediaKind string

const (
	MediaNone  MediaKind = "text"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

const (
	MiB = 1 << 20

	// MaxImageBytes is the largest image accepted for upload.
	MaxImageBytes = 10 * MiB
	// MaxVideoBytes is the largest video accepted for upload.
	MaxVideoBytes = 200 * MiB

	// MaxCommentaryRunes is LinkedIn's share commentary limit.
	MaxCommentaryRunes = 3000
)

// Media is an in-memory attachment.
type Media struct {
	Kind        MediaKind
	Data        []byte
	ContentType string
	Name        string
}

// Size returns the payload length in bytes.
func (m *Media) Size() int64 {
	if m == nil {
		return 0
	}
	return int64(len(m.Data))
}

// SizeMiB returns the payload length in mebibytes.
func (m *Media) SizeMiB() float64 {
	return float64(m.Size()) / MiB
}

// Limit returns the byte ceiling for the media kind, or 0 when there is none.
func (k MediaKind) Limit() int64 {
	switch k {
	case MediaImage:
		return MaxImageBytes
	case MediaVideo:
		return MaxVideoBytes
	}
	return 0
}

// Draft defines the post payload shared across all providers.
type Draft struct {
	Text    string
	Media   *Media
	AltText string
}

// HasMedia reports whether the draft carries an attachment of a known kind.
func (d Draft) HasMedia() bool {
	return d.Media != nil && (d.Media.Kind == MediaImage || d.Media.Kind == MediaVideo)
}

// Receipt identifies a published post on one network.
type Receipt struct {
	Network string
	PostID  string
	URL     string
	Kind    MediaKind
}

// Poster abstracts a social network that can publish content.
type Poster interface {
	Name() string
	Post(ctx context.Context, draft Draft) (Receipt, error)
}
