// Package wayback talks to the Internet Archive's Wayback Machine: asset
// addressing, CDX snapshot search, capture fetching and the byte-level
// rewriting that restores captures to their original form.
package wayback

import (
	"fmt"
	"regexp"
)

const (
	// ArchiveHost serves captures, StaticHost serves the archive's own
	// toolbar/analytics assets.
	ArchiveHost = "web.archive.org"
	StaticHost  = "web-static.archive.org"

	// DefaultRoot is prepended to archive-relative references that survive
	// rewriting, so they resolve against the archive origin.
	DefaultRoot = "https://web.archive.org"
)

var ErrInvalidTimestamp = fmt.Errorf("invalid timestamp")

var timestampRegex = regexp.MustCompile(`^[0-9]+$`)

// Asset is one fetchable capture: an original URL at a specific timestamp.
// Immutable after construction.
type Asset struct {
	OriginalURL string
	Timestamp   string
}

func NewAsset(originalURL, timestamp string) (Asset, error) {
	if !timestampRegex.MatchString(timestamp) {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, timestamp)
	}
	return Asset{OriginalURL: originalURL, Timestamp: timestamp}, nil
}

// ArchiveURL derives the capture's request URL. Raw mode uses the id_ flag,
// which makes the archive serve the capture byte-for-byte as archived.
func (a Asset) ArchiveURL(raw bool) string {
	flag := ""
	if raw {
		flag = "id_"
	}
	return fmt.Sprintf("https://%s/web/%s%s/%s", ArchiveHost, a.Timestamp, flag, a.OriginalURL)
}
