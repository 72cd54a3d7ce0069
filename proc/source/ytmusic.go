package source

import (
	"context"
	"strings"
	"time"

	"github.com/raitonoberu/ytmusic"
)

const ProviderYTMusic = "ytmusic"

type musicHit struct {
	videoID   string
	title     string
	artists   []string
	album     string
	thumbnail string
	duration  time.Duration
}

// searchMusic runs a YouTube Music song search. The library has no context
// support, so the call runs on its own goroutine and is abandoned on cancel.
func searchMusic(ctx context.Context, query string, limit int) ([]musicHit, error) {
	type result struct {
		hits []musicHit
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			ch <- result{err: err}
			return
		}
		var hits []musicHit
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			h := musicHit{
				videoID:  v.VideoID,
				title:    v.Title,
				album:    v.Album.Name,
				duration: time.Duration(v.Duration) * time.Second,
			}
			for _, a := range v.Artists {
				if a.Name != "" {
					h.artists = append(h.artists, a.Name)
				}
			}
			if len(v.Thumbnails) > 0 {
				h.thumbnail = v.Thumbnails[len(v.Thumbnails)-1].URL
			}
			hits = append(hits, h)
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
		ch <- result{hits: hits}
	}()

	select {
	case r := <-ch:
		return r.hits, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// YTMusic is the song-oriented metadata search provider.
type YTMusic struct {
	// Ytdlp and YouTube back the stream capability of unenriched hits.
	Ytdlp   *Ytdlp
	YouTube *YouTube
}

// SearchTrack returns the top song for query, or nil when there is none.
func (m *YTMusic) SearchTrack(ctx context.Context, query string) (*Track, error) {
	hits, err := searchMusic(ctx, query, 1)
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	h := hits[0]
	page := WatchURL(h.videoID)

	var openers fallbackOpener
	if m.Ytdlp != nil {
		openers = append(openers, &ytdlpOpener{y: m.Ytdlp, page: page, enrich: true})
	}
	if m.YouTube != nil {
		openers = append(openers, &youtubeOpener{y: m.YouTube, page: page})
	}

	return &Track{
		URL:          page,
		Title:        h.title,
		Artist:       strings.Join(h.artists, ", "),
		Album:        h.album,
		Thumbnail:    h.thumbnail,
		Duration:     h.duration,
		Provider:     ProviderYTMusic,
		PreferLowCPU: true,
		Opener:       openers,
	}, nil
}
