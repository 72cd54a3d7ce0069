package source

import (
	"net/url"
	"strings"
)

const (
	watchURLPrefix      = "https://www.youtube.com/watch?v="
	musicWatchURLPrefix = "https://music.youtube.com/watch?v="
	searchTokenPrefix   = "ytsearch1:"
)

// IsURL reports whether a query should be resolved in URL mode.
func IsURL(q string) bool {
	l := strings.ToLower(q)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// NormalizeMusicURL rewrites music.youtube.com links to the standard watch page.
// Other URLs, and anything that fails to parse, are returned unchanged.
func NormalizeMusicURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Hostname()), "music.youtube.com") {
		return raw
	}
	if v := u.Query().Get("v"); v != "" {
		return watchURLPrefix + v
	}
	u.Host = "www.youtube.com"
	return u.String()
}

// WatchURL builds the canonical watch page for a video id.
func WatchURL(id string) string {
	return watchURLPrefix + id
}

// VideoID extracts a YouTube video id from watch, youtu.be and shorts links.
func VideoID(u string) string {
	cut := func(s, sep string) string {
		_, after, ok := strings.Cut(s, sep)
		if !ok {
			return ""
		}
		if i := strings.IndexAny(after, "?&#/"); i >= 0 {
			after = after[:i]
		}
		return after
	}
	if strings.Contains(u, "v=") {
		if p, err := url.Parse(u); err == nil {
			if v := p.Query().Get("v"); v != "" {
				return v
			}
		}
	}
	for _, sep := range []string{"youtu.be/", "/shorts/", "/embed/", "/live/"} {
		if strings.Contains(u, sep) {
			return cut(u, sep)
		}
	}
	return ""
}

// IsYouTubeURL reports whether a URL points at a YouTube (or YouTube Music) video.
func IsYouTubeURL(u string) bool {
	l := strings.ToLower(u)
	return (strings.Contains(l, "youtube.com") || strings.Contains(l, "youtu.be")) && VideoID(u) != ""
}
