package player

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/source"
)

var (
	ErrNotConnected = errors.New("not connected to voice")
	ErrNoTranscoder = errors.New("no transcoder configured")
)

// SourceError means a resolved track could not be turned into a playable stream.
type SourceError struct {
	Track *source.Track
	Err   error
}

func (e *SourceError) Error() string {
	if e.Track == nil {
		return fmt.Sprintf("could not play track: %v", e.Err)
	}
	return fmt.Sprintf("could not play %q: %v", e.Track.DisplayTitle(), e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TransportError is a voice connection or playback failure.
type TransportError struct {
	GuildID snowflake.ID
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("voice transport in guild %s: %v", e.GuildID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
