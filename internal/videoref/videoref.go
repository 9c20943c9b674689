// Package videoref normalizes the reference forms users paste for a video
// (bare ids, watch/shorts/live/embed URLs, short-domain links) into the
// canonical 11-character id, or rejects the input. Everything here is pure:
// no network calls, and parsing the id it just produced returns the same id.
package videoref

import (
	"errors"
	"net/url"
	"strings"
)

const idLength = 11

var (
	ErrEmpty        = errors.New("video reference is empty")
	ErrPlaylist     = errors.New("playlists are not supported")
	ErrUnrecognized = errors.New("unrecognized video reference")
)

// Parse resolves input to a canonical video id. Rules, in order: reject empty
// input; reject anything carrying a playlist marker; accept a bare canonical
// id; otherwise parse as a URL (tolerating a missing scheme and doubled
// slashes) and accept only the known path shapes.
func Parse(input string) (string, error) {
	ref := strings.TrimSpace(input)
	if ref == "" {
		return "", ErrEmpty
	}
	if strings.Contains(ref, "list=") {
		return "", ErrPlaylist
	}
	if isCanonicalID(ref) {
		return ref, nil
	}

	u, err := parseLoose(ref)
	if err != nil {
		return "", ErrUnrecognized
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := pathSegments(u.Path)

	var id string
	switch host {
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case len(segments) >= 1 && segments[0] == "watch":
			id = u.Query().Get("v")
		case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "live" || segments[0] == "embed"):
			id = segments[1]
		}
	case "youtu.be":
		if len(segments) >= 1 {
			id = segments[0]
		}
	}

	if !isCanonicalID(id) {
		return "", ErrUnrecognized
	}
	return id, nil
}

// parseLoose parses a URL the way user input arrives: scheme omitted,
// protocol-relative, or with duplicated slashes from string concatenation in
// the caller.
func parseLoose(ref string) (*url.URL, error) {
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	} else if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.New("url missing host")
	}
	return u, nil
}

func pathSegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func isCanonicalID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
