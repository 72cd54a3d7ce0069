package player

import (
	"io"
	"sync"

	"github.com/leeineian/jukebox/proc/source"
)

// Kind tells the voice transport how to consume a Resource.
type Kind int

const (
	// KindURL is a remote media URL the transport opens itself.
	KindURL Kind = iota
	// KindEncoded is a reader of compressed media in some container.
	KindEncoded
	// KindPCM is a reader of raw s16le, 48 kHz, stereo samples.
	KindPCM
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindEncoded:
		return "encoded"
	case KindPCM:
		return "pcm"
	}
	return "unknown"
}

// Resource is a materialized, playable track. It owns its reader, and with
// it any subprocess behind the reader.
type Resource struct {
	Kind   Kind
	URL    string
	Reader io.ReadCloser
	Track  *source.Track

	once sync.Once
	err  error
}

// Close releases the reader. It is safe to call more than once.
func (r *Resource) Close() error {
	r.once.Do(func() {
		if r.Reader != nil {
			r.err = r.Reader.Close()
		}
	})
	return r.err
}
