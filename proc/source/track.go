package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Requester identifies the user who asked for a track.
type Requester struct {
	ID       snowflake.ID
	Username string
}

// Stream is the result of opening a track: either a playable remote URL or
// a reader of compressed media. Exactly one of the two is set.
type Stream struct {
	URL    string
	Reader io.ReadCloser
}

// Opener produces a fresh stream for a track on every call. preferLowCPU asks
// for pre-encoded opus/webm delivery when the provider can give it.
type Opener interface {
	Open(ctx context.Context, preferLowCPU bool) (*Stream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, preferLowCPU bool) (*Stream, error)

func (f OpenerFunc) Open(ctx context.Context, preferLowCPU bool) (*Stream, error) {
	return f(ctx, preferLowCPU)
}

// Track is a resolved, playable query result. Fields are fixed after
// resolution except RequestedAt, which the player stamps on enqueue.
type Track struct {
	// URL is the canonical page URL, or a provider search token when nothing better is known.
	URL string
	// StreamURL is a direct media URL found during resolution, if any.
	StreamURL string
	// Format is the candidate StreamURL was selected from.
	Format *Format

	Title     string
	Artist    string
	Album     string
	Thumbnail string
	Duration  time.Duration

	Provider     string
	PreferLowCPU bool
	Requester    Requester
	RequestedAt  time.Time

	Opener Opener
}

// Open invokes the track's stream capability once.
func (t *Track) Open(ctx context.Context, preferLowCPU bool) (*Stream, error) {
	if t.Opener == nil {
		return nil, ErrNoOpener
	}
	s, err := t.Opener.Open(ctx, preferLowCPU)
	if err != nil {
		return nil, err
	}
	if s == nil || (s.URL == "" && s.Reader == nil) {
		return nil, ErrEmptyStream
	}
	return s, nil
}

// DisplayTitle falls back to the URL for tracks without metadata.
func (t *Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.URL
}

// fallbackOpener tries each opener in order and returns the first stream.
type fallbackOpener []Opener

func (o fallbackOpener) Open(ctx context.Context, preferLowCPU bool) (*Stream, error) {
	var errs []error
	for _, op := range o {
		if op == nil {
			continue
		}
		s, err := op.Open(ctx, preferLowCPU)
		if err == nil && s != nil && (s.URL != "" || s.Reader != nil) {
			return s, nil
		}
		if err == nil {
			err = ErrEmptyStream
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, ErrNoOpener
	}
	return nil, errors.Join(errs...)
}
