package source

import (
	"path"
	"regexp"
	"strings"
)

var (
	opusCodecRe   = regexp.MustCompile(`(?i)opus`)
	audioMarkRe   = regexp.MustCompile(`(?i)audio`)
	lowOverheadRe = regexp.MustCompile(`(?i)\.(webm|opus)$`)
)

// Format is one candidate encoding reported by an extractor for a single track.
type Format struct {
	URL    string
	Ext    string
	ACodec string
	VCodec string
	// Note is the extractor's human-readable format label, e.g. "251 - audio only (medium)".
	Note string

	TBR     float64
	ABR     float64
	Bitrate float64
}

// AudioOnly reports whether the format carries no video stream.
func (f *Format) AudioOnly() bool {
	if f.VCodec == "none" {
		return true
	}
	if audioMarkRe.MatchString(f.Note) || audioMarkRe.MatchString(f.Ext) {
		return true
	}
	return f.ACodec != "" && f.VCodec == ""
}

// Opus reports whether the format is the low-overhead opus/webm encoding.
func (f *Format) Opus() bool {
	return strings.EqualFold(f.Ext, "webm") || opusCodecRe.MatchString(f.ACodec)
}

// Score is the bitrate-like quality used to rank otherwise equal formats.
func (f *Format) Score() float64 {
	switch {
	case f.TBR > 0:
		return f.TBR
	case f.ABR > 0:
		return f.ABR
	case f.Bitrate > 0:
		return f.Bitrate
	}
	return 0
}

// SelectBest picks the format to stream from. Audio-only beats audio+video,
// opus/webm beats everything else in its class, then the highest score wins.
// It returns nil when no candidate has a URL.
func SelectBest(candidates []Format) *Format {
	var best *Format
	for i := range candidates {
		f := &candidates[i]
		if f.URL == "" {
			continue
		}
		if best == nil || better(f, best) {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func better(f, best *Format) bool {
	if fa, ba := f.AudioOnly(), best.AudioOnly(); fa != ba {
		return fa
	}
	if fo, bo := f.Opus(), best.Opus(); fo != bo {
		return fo
	}
	return f.Score() > best.Score()
}

// IsLowOverheadURL reports whether a media URL already points at opus/webm by its path.
func IsLowOverheadURL(raw string) bool {
	u := raw
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return lowOverheadRe.MatchString(path.Base(u))
}
