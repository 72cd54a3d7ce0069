package source

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery  = errors.New("empty query")
	ErrNoResults   = errors.New("no results")
	ErrNoProvider  = errors.New("no provider")
	ErrNoOpener    = errors.New("track has no stream capability")
	ErrEmptyStream = errors.New("stream capability returned nothing")
	ErrNotYouTube  = errors.New("not a youtube url")
)

// ResolutionError means no provider could turn a query into a track.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
