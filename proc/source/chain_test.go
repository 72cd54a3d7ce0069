package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSearcher struct {
	track *Track
	err   error
}

func (f *fakeSearcher) SearchTrack(ctx context.Context, query string) (*Track, error) {
	return f.track, f.err
}

type fakeExtractor struct {
	mu      sync.Mutex
	targets []string
	fn      func(ctx context.Context, target string) (*Track, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, target string) (*Track, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	return f.fn(ctx, target)
}

func (f *fakeExtractor) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targets...)
}

func returns(t *Track, err error) func(context.Context, string) (*Track, error) {
	return func(context.Context, string) (*Track, error) { return t, err }
}

func staticOpener(url string) Opener {
	return OpenerFunc(func(context.Context, bool) (*Stream, error) {
		return &Stream{URL: url}, nil
	})
}

func failingOpener(err error) Opener {
	return OpenerFunc(func(context.Context, bool) (*Stream, error) {
		return nil, err
	})
}

func TestResolveSearchEnrichesHit(t *testing.T) {
	hit := &Track{
		URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Title:    "Never Gonna Give You Up",
		Artist:   "Rick Astley",
		Album:    "Whenever You Need Somebody",
		Duration: 213 * time.Second,
		Provider: ProviderYTMusic,
		Opener:   staticOpener("https://cdn/hit.webm"),
	}
	enriched := &Track{
		URL:       hit.URL,
		Title:     "Rick Astley - Never Gonna Give You Up (Official Music Video)",
		StreamURL: "https://cdn/251.webm",
		Format:    &Format{URL: "https://cdn/251.webm", Ext: "webm", ACodec: "opus", VCodec: "none"},
		Provider:  ProviderYtdlp,
		Opener:    failingOpener(errors.New("expired")),
	}
	primary := &fakeExtractor{fn: returns(enriched, nil)}
	c := NewChain(&fakeSearcher{track: hit}, primary, nil, time.Second, 100)

	got, err := c.Resolve(context.Background(), "  never gonna give you up ", Requester{ID: 42, Username: "rick"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls := primary.calls(); len(calls) != 1 || calls[0] != hit.URL {
		t.Errorf("expected primary to enrich %s, got %v", hit.URL, calls)
	}
	if got.StreamURL != "https://cdn/251.webm" {
		t.Errorf("expected stream url from extractor, got %s", got.StreamURL)
	}
	if got.Album != hit.Album {
		t.Errorf("expected album %q, got %q", hit.Album, got.Album)
	}
	if got.Duration != 213*time.Second {
		t.Errorf("expected duration 213s, got %v", got.Duration)
	}
	if got.Requester.ID != 42 || got.Requester.Username != "rick" {
		t.Errorf("expected requester to be set, got %+v", got.Requester)
	}

	s, err := got.Open(context.Background(), true)
	if err != nil {
		t.Fatalf("expected fallback opener to succeed, got %v", err)
	}
	if s.URL != "https://cdn/hit.webm" {
		t.Errorf("expected hit stream after extractor failure, got %s", s.URL)
	}
}

func TestResolveSearchKeepsHitWhenEnrichmentFails(t *testing.T) {
	hit := &Track{URL: "https://www.youtube.com/watch?v=abc", Title: "Song", Provider: ProviderYTMusic}
	primary := &fakeExtractor{fn: returns(nil, errors.New("boom"))}
	c := NewChain(&fakeSearcher{track: hit}, primary, nil, time.Second, 100)

	got, err := c.Resolve(context.Background(), "song", Requester{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != hit {
		t.Errorf("expected the search hit, got %+v", got)
	}
}

func TestResolveSearchFallsBackToPrimarySearch(t *testing.T) {
	want := &Track{URL: "https://www.youtube.com/watch?v=xyz", Title: "Found", Provider: ProviderYtdlp}
	primary := &fakeExtractor{fn: returns(want, nil)}
	c := NewChain(&fakeSearcher{err: errors.New("search down")}, primary, nil, time.Second, 100)

	got, err := c.Resolve(context.Background(), "obscure b-side", Requester{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != want {
		t.Errorf("expected primary result, got %+v", got)
	}
	if calls := primary.calls(); len(calls) != 1 || calls[0] != "ytsearch1:obscure b-side" {
		t.Errorf("expected search token, got %v", calls)
	}
}

func TestResolveURLFallsThroughToSecondary(t *testing.T) {
	want := &Track{URL: "https://www.youtube.com/watch?v=abc", Provider: ProviderYouTube}

	tests := []struct {
		name    string
		primary func(context.Context, string) (*Track, error)
	}{
		{"error", returns(nil, errors.New("unsupported url"))},
		{"nil track", returns(nil, nil)},
		{"panic", func(context.Context, string) (*Track, error) { panic("extractor bug") }},
		{"timeout", func(ctx context.Context, _ string) (*Track, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeExtractor{fn: tt.primary}
			secondary := &fakeExtractor{fn: returns(want, nil)}
			c := NewChain(&fakeSearcher{}, primary, secondary, 50*time.Millisecond, 100)

			got, err := c.Resolve(context.Background(), "https://music.youtube.com/watch?v=abc", Requester{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != want {
				t.Errorf("expected secondary result, got %+v", got)
			}
			calls := secondary.calls()
			if len(calls) != 1 || calls[0] != "https://www.youtube.com/watch?v=abc" {
				t.Errorf("expected normalized url for secondary, got %v", calls)
			}
		})
	}
}

func TestResolveIgnoringProviderTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	want := &Track{URL: "https://www.youtube.com/watch?v=abc", Provider: ProviderYouTube}
	primary := &fakeExtractor{fn: func(context.Context, string) (*Track, error) {
		<-release
		return &Track{URL: "late"}, nil
	}}
	secondary := &fakeExtractor{fn: returns(want, nil)}
	c := NewChain(nil, primary, secondary, 50*time.Millisecond, 100)

	done := make(chan *Track, 1)
	go func() {
		got, _ := c.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc", Requester{})
		done <- got
	}()
	select {
	case got := <-done:
		if got != want {
			t.Errorf("expected secondary result, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Resolve to return after the provider timeout")
	}
}

func TestResolveURLSkipsSearch(t *testing.T) {
	search := &fakeSearcher{track: &Track{URL: "wrong"}}
	primary := &fakeExtractor{fn: returns(&Track{URL: "https://example.com/a.mp3"}, nil)}
	c := NewChain(search, primary, nil, time.Second, 100)

	got, err := c.Resolve(context.Background(), "https://example.com/a.mp3", Requester{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.URL != "https://example.com/a.mp3" {
		t.Errorf("expected extractor track, got %s", got.URL)
	}
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name  string
		chain *Chain
		query string
		want  error
	}{
		{
			name:  "empty query",
			chain: NewChain(nil, nil, nil, time.Second, 100),
			query: "   ",
			want:  ErrEmptyQuery,
		},
		{
			name:  "search exhausted",
			chain: NewChain(&fakeSearcher{}, &fakeExtractor{fn: returns(nil, nil)}, nil, time.Second, 100),
			query: "nothing matches this",
			want:  ErrNoResults,
		},
		{
			name: "url exhausted",
			chain: NewChain(nil,
				&fakeExtractor{fn: returns(nil, errors.New("403"))},
				&fakeExtractor{fn: returns(nil, ErrNotYouTube)},
				time.Second, 100),
			query: "https://example.com/private",
			want:  ErrNoProvider,
		},
		{
			name:  "no providers at all",
			chain: &Chain{},
			query: "https://example.com/x",
			want:  ErrNoProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.chain.Resolve(context.Background(), tt.query, Requester{})
			if got != nil {
				t.Errorf("expected nil track, got %+v", got)
			}
			var re *ResolutionError
			if !errors.As(err, &re) {
				t.Fatalf("expected *ResolutionError, got %T (%v)", err, err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveCanceledContext(t *testing.T) {
	primary := &fakeExtractor{fn: returns(&Track{URL: "x"}, nil)}
	c := NewChain(nil, primary, nil, time.Second, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Resolve(ctx, "https://example.com/x", Requester{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
	if calls := primary.calls(); len(calls) != 0 {
		t.Errorf("expected no provider calls, got %v", calls)
	}
}

func TestMerge(t *testing.T) {
	hit := &Track{
		URL:       "https://www.youtube.com/watch?v=abc",
		Title:     "Title",
		Artist:    "Artist",
		Thumbnail: "https://img/hit.jpg",
		Duration:  time.Minute,
	}
	enriched := &Track{URL: hit.URL, Title: hit.URL, Thumbnail: "https://img/ext.jpg"}

	got := merge(enriched, hit)
	if got.Title != "Title" {
		t.Errorf("expected title from hit, got %s", got.Title)
	}
	if got.Artist != "Artist" {
		t.Errorf("expected artist from hit, got %s", got.Artist)
	}
	if got.Thumbnail != "https://img/ext.jpg" {
		t.Errorf("expected extractor thumbnail kept, got %s", got.Thumbnail)
	}
	if got.Duration != time.Minute {
		t.Errorf("expected duration from hit, got %v", got.Duration)
	}
	if got.Opener != nil {
		t.Errorf("expected no opener, got %v", got.Opener)
	}
}

func TestResolveEndToEnd(t *testing.T) {
	const query = "https://example/video?id=42"

	unreachable := NewChain(nil,
		&fakeExtractor{fn: returns(nil, errors.New("unsupported url"))},
		&fakeExtractor{fn: returns(nil, ErrNotYouTube)},
		time.Second, 100)
	if _, err := unreachable.Resolve(context.Background(), query, Requester{}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ResolutionError for an unreachable url, got %v", err)
	}

	infos := extractedInfos(t, `{"_type":"video","webpage_url":"`+query+`","title":"Song","duration":213,"formats":[`+
		`{"url":"https://cdn.example/aac","ext":"m4a","acodec":"aac","vcodec":"none","abr":128},`+
		`{"url":"https://cdn.example/opus","ext":"webm","acodec":"opus","vcodec":"none"}]}`)
	primary := &fakeExtractor{fn: func(_ context.Context, target string) (*Track, error) {
		return extractedTrack(infos, target)
	}}
	c := NewChain(nil, primary, nil, time.Second, 100)

	tr, err := c.Resolve(context.Background(), query, Requester{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tr.Title != "Song" {
		t.Errorf("expected Song, got %s", tr.Title)
	}
	if tr.Duration != 213*time.Second {
		t.Errorf("expected 213s, got %v", tr.Duration)
	}
	if tr.StreamURL != "https://cdn.example/opus" || tr.Format == nil || !tr.Format.Opus() {
		t.Errorf("expected the opus/webm candidate, got %s (%+v)", tr.StreamURL, tr.Format)
	}
}
