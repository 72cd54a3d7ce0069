package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const (
	MsgSessionConnect      = "Joining channel %s in guild %s"
	MsgSessionMove         = "Moving from %s to %s in guild %s"
	MsgSessionMoveFailed   = "Move failed in guild %s, reconnecting: %v"
	MsgSessionQueued       = "Queued %s in guild %s (position %d)"
	MsgSessionSkipBad      = "Skipping unplayable track in guild %s: %v"
	MsgSessionNowPlaying   = "Now playing in guild %s: %s [%s]"
	MsgSessionFinished     = "Finished in guild %s: %s"
	MsgSessionTransportErr = "Transport failed in guild %s, advancing: %v"
	MsgSessionIdle         = "Queue drained in guild %s"
	MsgSessionStopped      = "Stopped guild %s"
)

// Status is the playback state of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	}
	return "idle"
}

// Connection is one guild's voice connection.
type Connection interface {
	ChannelID() snowflake.ID
	// Play blocks until the resource is exhausted, ctx is canceled or the
	// transport fails.
	Play(ctx context.Context, res *Resource) error
	SetPaused(paused bool)
	Move(ctx context.Context, channelID snowflake.ID) error
	Close(ctx context.Context)
}

// Connector opens voice connections.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (Connection, error)
}

// Session is one guild's queue and playback state machine. A single worker
// goroutine pops and plays tracks; control operations only flip state and
// cancel the worker's current track.
type Session struct {
	GuildID snowflake.ID

	ctx          context.Context
	materializer Materializer
	connector    Connector
	onTrackStart func(guildID snowflake.ID, t *source.Track)

	connMu sync.Mutex

	mu      sync.Mutex
	queue   []*source.Track
	current *source.Track
	status  Status
	conn    Connection
	cancel  context.CancelFunc
	running bool
	gen     uint64
	done    chan struct{}
	waitFor *source.Track
	waitCh  chan error
}

func newSession(ctx context.Context, guildID snowflake.ID, m Materializer, c Connector, hook func(snowflake.ID, *source.Track)) *Session {
	return &Session{
		GuildID:      guildID,
		ctx:          ctx,
		materializer: m,
		connector:    c,
		onTrackStart: hook,
	}
}

// Enqueue appends t and returns its 1-based position among pending tracks.
// On an idle session playback starts right away and Enqueue waits until the
// track is materialized, so a track that cannot be played is reported as a
// *SourceError instead of being silently skipped.
func (s *Session) Enqueue(ctx context.Context, t *source.Track, channelID snowflake.ID) (int, error) {
	if err := s.ensureConn(ctx, channelID); err != nil {
		return 0, err
	}

	s.mu.Lock()
	t.RequestedAt = time.Now()
	s.queue = append(s.queue, t)
	pos := len(s.queue)
	var wait chan error
	if !s.running {
		wait = make(chan error, 1)
		s.waitFor, s.waitCh = t, wait
		s.startLocked()
	}
	s.mu.Unlock()
	sys.LogPlayer(MsgSessionQueued, t.DisplayTitle(), s.GuildID, pos)

	if wait == nil {
		return pos, nil
	}
	select {
	case err := <-wait:
		if err != nil {
			return 0, err
		}
	case <-ctx.Done():
	}
	return pos, nil
}

// ensureConn connects, or moves an existing connection to channelID. A
// connection that cannot move is replaced.
func (s *Session) ensureConn(ctx context.Context, channelID snowflake.ID) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		from := conn.ChannelID()
		if from == channelID {
			return nil
		}
		sys.LogVoice(MsgSessionMove, from, channelID, s.GuildID)
		err := conn.Move(ctx, channelID)
		if err == nil {
			return nil
		}
		sys.LogWarn(MsgSessionMoveFailed, s.GuildID, err)
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close(ctx)
	}

	sys.LogVoice(MsgSessionConnect, channelID, s.GuildID)
	c, err := s.connector.Connect(ctx, s.GuildID, channelID)
	if err != nil {
		return &TransportError{GuildID: s.GuildID, Err: err}
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	return nil
}

func (s *Session) startLocked() {
	s.running = true
	prev := s.done
	done := make(chan struct{})
	s.done = done
	gen := s.gen
	go s.run(gen, prev, done)
}

// run is the advance loop. Each iteration pops one track; unplayable tracks,
// natural ends and transport failures all move on to the next.
func (s *Session) run(gen uint64, prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.current = nil
			s.status = StatusIdle
			s.running = false
			s.cancel = nil
			s.mu.Unlock()
			sys.LogPlayer(MsgSessionIdle, s.GuildID)
			return
		}
		t := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		ctx, cancel := context.WithCancel(s.ctx)
		s.current = t
		s.status = StatusPlaying
		s.cancel = cancel
		conn := s.conn
		if conn != nil {
			conn.SetPaused(false)
		}
		var wait chan error
		if s.waitFor == t {
			wait = s.waitCh
			s.waitFor, s.waitCh = nil, nil
		}
		s.mu.Unlock()

		s.play(ctx, t, conn, wait)
		cancel()
	}
}

func (s *Session) play(ctx context.Context, t *source.Track, conn Connection, wait chan error) {
	notify := func(err error) {
		if wait != nil {
			wait <- err
			wait = nil
		}
	}
	defer notify(nil)

	res, err := s.materializer.Materialize(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var se *SourceError
		if !errors.As(err, &se) {
			err = &SourceError{Track: t, Err: err}
		}
		sys.LogWarn(MsgSessionSkipBad, s.GuildID, err)
		notify(err)
		return
	}
	defer res.Close()

	if conn == nil {
		sys.LogWarn(MsgSessionTransportErr, s.GuildID, &TransportError{GuildID: s.GuildID, Err: ErrNotConnected})
		return
	}
	notify(nil)

	sys.LogPlayer(MsgSessionNowPlaying, s.GuildID, t.DisplayTitle(), res.Kind)
	if s.onTrackStart != nil {
		s.onTrackStart(s.GuildID, t)
	}

	if err := conn.Play(ctx, res); err != nil && ctx.Err() == nil {
		sys.LogWarn(MsgSessionTransportErr, s.GuildID, &TransportError{GuildID: s.GuildID, Err: err})
		return
	}
	sys.LogPlayer(MsgSessionFinished, s.GuildID, t.DisplayTitle())
}

// Pause is valid only while playing.
func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPlaying || s.conn == nil {
		return false
	}
	s.status = StatusPaused
	s.conn.SetPaused(true)
	return true
}

// Resume is valid only while paused.
func (s *Session) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return false
	}
	s.status = StatusPlaying
	if s.conn != nil {
		s.conn.SetPaused(false)
	}
	return true
}

// Skip ends the current track; the worker then advances as on a natural end.
func (s *Session) Skip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Stop clears the queue, ends the current track and releases the voice
// connection. It reports false when there was nothing to stop.
func (s *Session) Stop(ctx context.Context) bool {
	s.mu.Lock()
	had := s.current != nil || len(s.queue) > 0 || s.conn != nil
	clear(s.queue)
	s.queue = nil
	s.current = nil
	s.status = StatusIdle
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.running = false
	if s.waitCh != nil {
		s.waitCh <- nil
		s.waitFor, s.waitCh = nil, nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close(ctx)
	}
	if had {
		sys.LogPlayer(MsgSessionStopped, s.GuildID)
	}
	return had
}

// Wait blocks until the session's worker, if any, has exited.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) NowPlaying() *source.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Queue returns a copy of the pending tracks in play order.
func (s *Session) Queue() []*source.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*source.Track, len(s.queue))
	copy(out, s.queue)
	return out
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ChannelID returns the connected voice channel, or 0.
func (s *Session) ChannelID() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0
	}
	return s.conn.ChannelID()
}
