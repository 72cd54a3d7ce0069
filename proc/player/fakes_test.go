package player

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/source"
)

var errUnplayable = errors.New("unplayable")

type fakeConn struct {
	mu      sync.Mutex
	id      snowflake.ID
	paused  bool
	closed  bool
	moves   []snowflake.ID
	moveErr error

	played chan string
	finish chan struct{}
}

func newFakeConn(id snowflake.ID) *fakeConn {
	return &fakeConn{id: id, played: make(chan string, 16), finish: make(chan struct{})}
}

func (c *fakeConn) ChannelID() snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *fakeConn) Play(ctx context.Context, res *Resource) error {
	c.played <- res.Track.Title
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.finish:
		return nil
	}
}

func (c *fakeConn) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

func (c *fakeConn) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeConn) Move(_ context.Context, channelID snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = append(c.moves, channelID)
	if c.moveErr != nil {
		return c.moveErr
	}
	c.id = channelID
	return nil
}

func (c *fakeConn) Close(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeConnector struct {
	mu      sync.Mutex
	conns   []*fakeConn
	err     error
	moveErr error
}

func (f *fakeConnector) Connect(_ context.Context, _, channelID snowflake.ID) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn(channelID)
	c.moveErr = f.moveErr
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeConnector) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

type closeFlag struct {
	mu     sync.Mutex
	closed bool
}

func (c *closeFlag) Read([]byte) (int, error) { return 0, nil }

func (c *closeFlag) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *closeFlag) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeMaterializer fails for titles starting with "bad" and otherwise hands
// out encoded resources whose readers record Close.
type fakeMaterializer struct {
	mu      sync.Mutex
	readers map[string]*closeFlag
}

func (m *fakeMaterializer) Materialize(_ context.Context, t *source.Track) (*Resource, error) {
	if strings.HasPrefix(t.Title, "bad") {
		return nil, &SourceError{Track: t, Err: errUnplayable}
	}
	r := &closeFlag{}
	m.mu.Lock()
	if m.readers == nil {
		m.readers = make(map[string]*closeFlag)
	}
	m.readers[t.Title] = r
	m.mu.Unlock()
	return &Resource{Kind: KindEncoded, Reader: r, Track: t}, nil
}

func (m *fakeMaterializer) reader(title string) *closeFlag {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readers[title]
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(_ context.Context, query string, requester source.Requester) (*source.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &source.Track{URL: "https://example.com/" + query, Title: query, Requester: requester}, nil
}

func track(title string) *source.Track {
	return &source.Track{URL: "https://example.com/" + title, Title: title}
}

func expectPlayed(t *testing.T, c *fakeConn, want string) {
	t.Helper()
	select {
	case got := <-c.played:
		if got != want {
			t.Fatalf("expected %s to play, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s to play, nothing did", want)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %s", what)
}

func titles(tracks []*source.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Title
	}
	return out
}

// blockingMaterializer parks "slow" tracks until their context is canceled and
// "stuck" tracks until release is closed, ignoring cancellation. Other titles
// behave like fakeMaterializer.
type blockingMaterializer struct {
	fakeMaterializer
	started chan string
	release chan struct{}
}

func newBlockingMaterializer() *blockingMaterializer {
	return &blockingMaterializer{started: make(chan string, 16), release: make(chan struct{})}
}

func (m *blockingMaterializer) Materialize(ctx context.Context, t *source.Track) (*Resource, error) {
	switch {
	case strings.HasPrefix(t.Title, "slow"):
		m.started <- t.Title
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.HasPrefix(t.Title, "stuck"):
		m.started <- t.Title
		<-m.release
		return nil, &SourceError{Track: t, Err: errUnplayable}
	}
	return m.fakeMaterializer.Materialize(ctx, t)
}

func expectStarted(t *testing.T, m *blockingMaterializer, want string) {
	t.Helper()
	select {
	case got := <-m.started:
		if got != want {
			t.Fatalf("expected %s to materialize, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s to materialize, nothing did", want)
	}
}

type enqueueResult struct {
	pos int
	err error
}

func enqueueAsync(s *Session, title string, channelID snowflake.ID) <-chan enqueueResult {
	ch := make(chan enqueueResult, 1)
	go func() {
		pos, err := s.Enqueue(context.Background(), track(title), channelID)
		ch <- enqueueResult{pos, err}
	}()
	return ch
}

func expectEnqueued(t *testing.T, ch <-chan enqueueResult, wantPos int) {
	t.Helper()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", r.err)
		}
		if r.pos != wantPos {
			t.Errorf("expected position %d, got %d", wantPos, r.pos)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected enqueue to return")
	}
}

func expectReturns(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s to return", what)
	}
}
