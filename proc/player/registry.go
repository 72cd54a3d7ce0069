package player

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const MsgRegistryShutdown = "Stopping %d playback sessions..."

// Resolver turns a user query into a track.
type Resolver interface {
	Resolve(ctx context.Context, query string, requester source.Requester) (*source.Track, error)
}

// Registry owns every guild's session. Sessions are created on first use and
// live until the process exits.
type Registry struct {
	// OnTrackStart, when set before first use, runs on the session worker
	// each time a track starts playing.
	OnTrackStart func(guildID snowflake.ID, t *source.Track)

	ctx          context.Context
	resolver     Resolver
	materializer Materializer
	connector    Connector

	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
}

// NewRegistry builds a registry whose session workers run under ctx.
func NewRegistry(ctx context.Context, resolver Resolver, materializer Materializer, connector Connector) *Registry {
	return &Registry{
		ctx:          ctx,
		resolver:     resolver,
		materializer: materializer,
		connector:    connector,
		sessions:     make(map[snowflake.ID]*Session),
	}
}

// Session returns the guild's session, creating it if needed.
func (r *Registry) Session(guildID snowflake.ID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s := newSession(r.ctx, guildID, r.materializer, r.connector, r.trackStarted)
	r.sessions[guildID] = s
	return s
}

// Lookup returns the guild's session without creating one.
func (r *Registry) Lookup(guildID snowflake.ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

func (r *Registry) trackStarted(guildID snowflake.ID, t *source.Track) {
	if r.OnTrackStart != nil {
		r.OnTrackStart(guildID, t)
	}
}

// Enqueue resolves query and queues the result in the guild's session,
// joining channelID if needed. Failures are *source.ResolutionError,
// *SourceError or *TransportError.
func (r *Registry) Enqueue(ctx context.Context, guildID, channelID snowflake.ID, query string, requester source.Requester) (*source.Track, int, error) {
	t, err := r.resolver.Resolve(ctx, query, requester)
	if err != nil {
		return nil, 0, err
	}
	pos, err := r.Session(guildID).Enqueue(ctx, t, channelID)
	if err != nil {
		return nil, 0, err
	}
	return t, pos, nil
}

func (r *Registry) NowPlaying(guildID snowflake.ID) *source.Track {
	if s, ok := r.Lookup(guildID); ok {
		return s.NowPlaying()
	}
	return nil
}

func (r *Registry) Queue(guildID snowflake.ID) []*source.Track {
	if s, ok := r.Lookup(guildID); ok {
		return s.Queue()
	}
	return []*source.Track{}
}

func (r *Registry) Pause(guildID snowflake.ID) bool {
	s, ok := r.Lookup(guildID)
	return ok && s.Pause()
}

func (r *Registry) Resume(guildID snowflake.ID) bool {
	s, ok := r.Lookup(guildID)
	return ok && s.Resume()
}

func (r *Registry) Skip(guildID snowflake.ID) bool {
	s, ok := r.Lookup(guildID)
	return ok && s.Skip()
}

func (r *Registry) Stop(ctx context.Context, guildID snowflake.ID) bool {
	s, ok := r.Lookup(guildID)
	return ok && s.Stop(ctx)
}

// Shutdown stops every session and waits for their workers to exit.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sys.LogPlayer(MsgRegistryShutdown, len(sessions))
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop(ctx)
			s.Wait()
		}(s)
	}
	wg.Wait()
}
