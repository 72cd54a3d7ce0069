package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const (
	MsgFactoryDirect     = "Playing %s directly from resolved %s stream"
	MsgFactoryLowCPU     = "Low-CPU stream for %s: %s"
	MsgFactoryTranscode  = "Transcoding %s to PCM"
	MsgFactoryStepFailed = "Stream step %q failed for %s: %v"
)

// Materializer turns a track into an open resource.
type Materializer interface {
	Materialize(ctx context.Context, t *source.Track) (*Resource, error)
}

// Factory materializes tracks, preferring sources that need no work on our side.
type Factory struct {
	Transcoder Transcoder
}

// Materialize tries, in order: the direct URL found during resolution when it
// is already opus/webm, the low-CPU stream capability, and the generic stream
// capability (transcoded to PCM unless it is a low-overhead URL). Failures are
// *SourceError.
func (f *Factory) Materialize(ctx context.Context, t *source.Track) (*Resource, error) {
	if t.StreamURL != "" && ((t.Format != nil && t.Format.Opus()) || source.IsLowOverheadURL(t.StreamURL)) {
		sys.LogPlayer(MsgFactoryDirect, t.DisplayTitle(), t.Provider)
		return &Resource{Kind: KindURL, URL: t.StreamURL, Track: t}, nil
	}

	var errs []error
	if t.PreferLowCPU {
		s, err := t.Open(ctx, true)
		if err == nil {
			if s.Reader != nil {
				sys.LogPlayer(MsgFactoryLowCPU, t.DisplayTitle(), KindEncoded)
				return &Resource{Kind: KindEncoded, Reader: s.Reader, Track: t}, nil
			}
			sys.LogPlayer(MsgFactoryLowCPU, t.DisplayTitle(), KindURL)
			return &Resource{Kind: KindURL, URL: s.URL, Track: t}, nil
		}
		sys.LogWarn(MsgFactoryStepFailed, "low-cpu", t.DisplayTitle(), err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			return nil, &SourceError{Track: t, Err: errors.Join(append(errs, ctx.Err())...)}
		}
	}

	s, err := t.Open(ctx, false)
	if err != nil {
		sys.LogWarn(MsgFactoryStepFailed, "generic", t.DisplayTitle(), err)
		return nil, &SourceError{Track: t, Err: errors.Join(append(errs, err)...)}
	}
	if s.Reader == nil && source.IsLowOverheadURL(s.URL) {
		return &Resource{Kind: KindURL, URL: s.URL, Track: t}, nil
	}

	if f.Transcoder == nil {
		if s.Reader != nil {
			_ = s.Reader.Close()
		}
		return nil, &SourceError{Track: t, Err: errors.Join(append(errs, ErrNoTranscoder)...)}
	}
	sys.LogPlayer(MsgFactoryTranscode, t.DisplayTitle())
	pcm, err := f.Transcoder.Transcode(ctx, s)
	if err != nil {
		if s.Reader != nil {
			_ = s.Reader.Close()
		}
		return nil, &SourceError{Track: t, Err: errors.Join(append(errs, fmt.Errorf("transcode: %w", err))...)}
	}
	return &Resource{Kind: KindPCM, Reader: pcm, Track: t}, nil
}
