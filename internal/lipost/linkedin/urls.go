package linkedin

import (
	"net/url"
	"strings"
)

const (
	webBase       = "https://www.linkedin.com"
	feedUpdateURL = webBase + "/feed/update/"
	activityURL   = feedUpdateURL + "urn:li:activity:"

	// FeedHomeURL is the signed-in user's feed.
	FeedHomeURL = webBase + "/feed/"
)

// EscapeURN percent-encodes every byte outside the RFC 3986 unreserved set,
// including ':' and '/'.
func EscapeURN(urn string) string {
	return strings.ReplaceAll(url.QueryEscape(urn), "+", "%20")
}

// FeedURL returns the public feed-update URL for a post URN.
func FeedURL(urn string) string {
	if urn == "" {
		return ""
	}
	return feedUpdateURL + EscapeURN(urn)
}

// ActivityURL returns the activity variant of a post URL, built from the
// trailing numeric segment of the URN.
func ActivityURL(urn string) string {
	id := lastSegment(urn)
	if id == "" {
		return ""
	}
	return activityURL + id
}

// ProfileURL prefers the vanity name, then the member id of the author URN.
func ProfileURL(authorURN, vanityName string) string {
	if vanityName != "" {
		return webBase + "/in/" + vanityName + "/"
	}
	if id := lastSegment(authorURN); id != "" {
		return webBase + "/in/" + id + "/"
	}
	return webBase + "/in/me/"
}

// PersonURN builds an author URN from a member id.
func PersonURN(id string) string {
	return "urn:li:person:" + id
}

func lastSegment(urn string) string {
	if urn == "" {
		return ""
	}
	return urn[strings.LastIndex(urn, ":")+1:]
}
