package player

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/source"
)

func newTestRegistry(t *testing.T, resolver Resolver) (*Registry, *fakeConnector) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	connector := &fakeConnector{}
	return NewRegistry(ctx, resolver, &fakeMaterializer{}, connector), connector
}

func TestRegistryUnknownGuild(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeResolver{})
	const guild snowflake.ID = 999

	if r.Pause(guild) || r.Resume(guild) || r.Skip(guild) || r.Stop(context.Background(), guild) {
		t.Errorf("expected every control operation on an unknown guild to be a no-op")
	}
	if np := r.NowPlaying(guild); np != nil {
		t.Errorf("expected nothing playing, got %v", np)
	}
	if q := r.Queue(guild); q == nil || len(q) != 0 {
		t.Errorf("expected empty non-nil queue, got %v", q)
	}
	if _, ok := r.Lookup(guild); ok {
		t.Errorf("expected queries not to create a session")
	}
}

func TestRegistrySessionIsAtomic(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeResolver{})

	const workers = 64
	got := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Session(testGuild)
		}(i)
	}
	wg.Wait()

	for i, s := range got {
		if s != got[0] {
			t.Fatalf("expected one session, worker %d got a different one", i)
		}
	}
	if other := r.Session(testGuild + 1); other == got[0] {
		t.Errorf("expected guilds to get independent sessions")
	}
}

func TestRegistryEnqueue(t *testing.T) {
	r, connector := newTestRegistry(t, &fakeResolver{})
	requester := source.Requester{ID: 7, Username: "dj"}

	tr, pos, err := r.Enqueue(context.Background(), testGuild, testChannel, "A", requester)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pos != 1 {
		t.Errorf("expected position 1, got %d", pos)
	}
	if tr.Requester != requester {
		t.Errorf("expected requester %+v, got %+v", requester, tr.Requester)
	}
	expectPlayed(t, connector.conn(0), "A")
	if np := r.NowPlaying(testGuild); np != tr {
		t.Errorf("expected %v playing, got %v", tr, np)
	}

	if _, pos, _ := r.Enqueue(context.Background(), testGuild, testChannel, "B", requester); pos != 1 {
		t.Errorf("expected B at position 1, got %d", pos)
	}
	if q := r.Queue(testGuild); len(q) != 1 || q[0].Title != "B" {
		t.Errorf("expected queue [B], got %v", titles(q))
	}
	if !r.Skip(testGuild) {
		t.Errorf("expected skip to have effect")
	}
	expectPlayed(t, connector.conn(0), "B")
}

func TestRegistryEnqueueResolutionError(t *testing.T) {
	resErr := &source.ResolutionError{Query: "https://example/video?id=42", Err: source.ErrNoProvider}
	r, connector := newTestRegistry(t, &fakeResolver{err: resErr})

	_, _, err := r.Enqueue(context.Background(), testGuild, testChannel, "https://example/video?id=42", source.Requester{})
	var re *source.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected *source.ResolutionError, got %v", err)
	}
	if connector.count() != 0 {
		t.Errorf("expected no voice connection for an unresolvable query")
	}
	if _, ok := r.Lookup(testGuild); ok {
		t.Errorf("expected no session for an unresolvable query")
	}
}

func TestRegistryOnTrackStart(t *testing.T) {
	r, connector := newTestRegistry(t, &fakeResolver{})
	started := make(chan string, 1)
	r.OnTrackStart = func(guildID snowflake.ID, tr *source.Track) {
		started <- tr.Title
	}

	if _, _, err := r.Enqueue(context.Background(), testGuild, testChannel, "A", source.Requester{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expectPlayed(t, connector.conn(0), "A")
	if got := <-started; got != "A" {
		t.Errorf("expected hook for A, got %s", got)
	}
}

func TestRegistryShutdown(t *testing.T) {
	r, connector := newTestRegistry(t, &fakeResolver{})

	for _, g := range []snowflake.ID{testGuild, testGuild + 1} {
		if _, _, err := r.Enqueue(context.Background(), g, testChannel, "A", source.Requester{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	r.Shutdown(context.Background())

	for i := 0; i < connector.count(); i++ {
		if !connector.conn(i).isClosed() {
			t.Errorf("expected connection %d to be closed", i)
		}
	}
	for _, g := range []snowflake.ID{testGuild, testGuild + 1} {
		s, ok := r.Lookup(g)
		if !ok {
			t.Fatalf("expected session for %s to survive shutdown", g)
		}
		if s.Status() != StatusIdle || s.NowPlaying() != nil {
			t.Errorf("expected %s to be idle", g)
		}
	}
}
