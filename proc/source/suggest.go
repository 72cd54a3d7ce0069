package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
)

const maxSuggestions = 25

// Suggestion is one autocomplete choice.
type Suggestion struct {
	Title string
	URL   string
	// Query is the unlabelled title, usable as a search query.
	Query string
}

// Suggester merges YouTube Music and YouTube search results for autocomplete.
// A query starting with YoutubePrefix lists YouTube results first; otherwise
// YouTube Music leads. YTMusicPrefix is accepted and stripped.
type Suggester struct {
	YoutubePrefix string
	YTMusicPrefix string
	Timeout       time.Duration
}

// Suggest never fails; slow or broken backends just contribute nothing.
func (s *Suggester) Suggest(ctx context.Context, q string) []Suggestion {
	youtubeFirst, query := false, strings.TrimSpace(q)
	if p := s.YoutubePrefix; p != "" && hasPrefixFold(query, p) {
		youtubeFirst, query = true, strings.TrimSpace(query[len(p):])
	} else if p := s.YTMusicPrefix; p != "" && hasPrefixFold(query, p) {
		query = strings.TrimSpace(query[len(p):])
	}
	if query == "" {
		return nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2300 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		ytm, yt []Suggestion
		seen    = make(map[string]bool)
		wg      sync.WaitGroup
	)
	add := func(dst *[]Suggestion, id string, sg Suggestion) {
		mu.Lock()
		defer mu.Unlock()
		if seen[id] {
			return
		}
		seen[id] = true
		*dst = append(*dst, sg)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, _ := searchMusic(ctx, query, maxSuggestions)
		for _, h := range hits {
			title := h.title
			if len(h.artists) > 0 {
				title += " - " + h.artists[0]
			}
			add(&ytm, h.videoID, Suggestion{Title: labelled(s.YTMusicPrefix, title), URL: musicWatchURLPrefix + h.videoID, Query: title})
		}
	}()
	go func() {
		defer wg.Done()
		r, err := ytsearch.NewClient(nil).Search(ctx, query)
		if err != nil {
			return
		}
		for _, v := range r.Results {
			if v.VideoID == "" {
				continue
			}
			add(&yt, v.VideoID, Suggestion{Title: labelled(s.YoutubePrefix, v.Title), URL: WatchURL(v.VideoID), Query: v.Title})
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	var out []Suggestion
	if youtubeFirst {
		out = append(append(out, yt...), ytm...)
	} else {
		out = append(append(out, ytm...), yt...)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func labelled(prefix, title string) string {
	if prefix == "" {
		return title
	}
	return prefix + " " + title
}
