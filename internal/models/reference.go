package models

import (
	"fmt"
	"regexp"

	"github.com/desertthunder/playlistbot/internal/shared"
)

// ShareKind is the asset type named in a shared link.
type ShareKind string

const (
	KindTrack    ShareKind = "track"
	KindAlbum    ShareKind = "album"
	KindPlaylist ShareKind = "playlist"
)

// Supported reports whether the kind can be resolved into tracks.
func (k ShareKind) Supported() bool {
	switch k {
	case KindTrack, KindAlbum, KindPlaylist:
		return true
	default:
		return false
	}
}

// Title returns the kind capitalized for replies ("Track", "Album", ...).
func (k ShareKind) Title() string {
	if k == "" {
		return ""
	}
	b := []byte(k)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// AssetReference is a shared asset parsed from message text.
type AssetReference struct {
	Kind ShareKind
	ID   string
}

func (r AssetReference) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

var (
	shareURLPattern = regexp.MustCompile(`https?://\w+\.spotify\.com/(?:intl-[a-z]{2}(?:-[A-Za-z]{2,4})?/)?(\w+)/(\w+)`)
	shareURIPattern = regexp.MustCompile(`\bspotify:(\w+):(\w+)`)
)

// ParseReference finds the first shared Spotify link or URI in text.
//
// Returns [shared.ErrNoReference] when the text carries no link, and a reference wrapped in
// [shared.ErrUnsupportedShareType] when the link names a kind other than track, album or playlist.
func ParseReference(text string) (AssetReference, error) {
	m := firstMatch(text, shareURLPattern, shareURIPattern)
	if m == nil {
		return AssetReference{}, shared.ErrNoReference
	}

	ref := AssetReference{Kind: ShareKind(m[1]), ID: m[2]}
	if !ref.Kind.Supported() {
		return ref, fmt.Errorf("%w: %q", shared.ErrUnsupportedShareType, string(ref.Kind))
	}
	return ref, nil
}

// firstMatch returns the submatches of whichever pattern matches earliest in text.
func firstMatch(text string, patterns ...*regexp.Regexp) []string {
	var (
		best    []string
		bestPos = -1
	)
	for _, p := range patterns {
		loc := p.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if bestPos == -1 || loc[0] < bestPos {
			bestPos = loc[0]
			best = []string{text[loc[0]:loc[1]], text[loc[2]:loc[3]], text[loc[4]:loc[5]]}
		}
	}
	return best
}
