package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/bot"
	disvoice "github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/player"
	"github.com/leeineian/jukebox/sys"
)

const (
	MsgConnEncoderFailed = "Encoder failed in guild %s: %v"
	MsgConnPlaybackEnd   = "Playback finished in guild %s: %s"
	MsgConnPlaybackStop  = "Playback stopped in guild %s: %s"
	MsgConnMoved         = "Moved to %s in guild %s"
	MsgConnClosed        = "Left voice in guild %s"
)

type statusUpdate struct {
	channelID snowflake.ID
	status    string
}

// Conn is a guild voice connection that plays player resources as opus.
type Conn struct {
	client  *bot.Client
	guildID snowflake.ID
	conn    disvoice.Conn
	gate    *pauseGate

	mu        sync.Mutex
	channelID snowflake.ID
	provider  *frameProvider
	status    string
	closed    bool
	statusCh  chan statusUpdate
}

func newConn(client *bot.Client, guildID, channelID snowflake.ID, conn disvoice.Conn) *Conn {
	c := &Conn{
		client:    client,
		guildID:   guildID,
		conn:      conn,
		gate:      newPauseGate(),
		channelID: channelID,
		statusCh:  make(chan statusUpdate, 10),
	}
	sys.SafeGo(c.statusLoop)
	return c
}

// statusLoop applies channel status updates one at a time, in order.
func (c *Conn) statusLoop() {
	for u := range c.statusCh {
		setChannelStatus(c.client, u.channelID, u.status)
	}
}

// queueStatusLocked drops the update when the loop is backed up.
func (c *Conn) queueStatusLocked(channelID snowflake.ID, status string) {
	if c.closed {
		return
	}
	select {
	case c.statusCh <- statusUpdate{channelID: channelID, status: status}:
	default:
	}
}

func (c *Conn) ChannelID() snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Play streams res until it ends, ctx is canceled or the encoder fails.
func (c *Conn) Play(ctx context.Context, res *player.Resource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := newFrameProvider(ctx, c.gate)
	encErr := make(chan error, 1)
	go func() {
		enc := newEncoder()
		defer enc.close()
		defer p.push(nil)
		if err := enc.open(res); err != nil {
			encErr <- err
			return
		}
		encErr <- enc.run(ctx, p.push)
	}()
	go func() {
		<-ctx.Done()
		c.gate.wake()
	}()

	title := res.Track.DisplayTitle()
	if !c.attach(p, trackStatus(statusPlaying, res.Track)) {
		return player.ErrNotConnected
	}

	select {
	case <-p.done:
	case <-ctx.Done():
	}
	c.detach(p)

	if ctx.Err() != nil {
		sys.LogVoice(MsgConnPlaybackStop, c.guildID, title)
		return ctx.Err()
	}
	select {
	case err := <-encErr:
		if err != nil {
			sys.LogVoice(MsgConnEncoderFailed, c.guildID, err)
			return err
		}
	default:
	}
	sys.LogVoice(MsgConnPlaybackEnd, c.guildID, title)
	return nil
}

func (c *Conn) attach(p *frameProvider, status string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.provider = p
	c.status = status
	if c.gate.isPaused() {
		status = statusPaused + trimStatusPrefix(status)
	}
	c.queueStatusLocked(c.channelID, status)
	c.mu.Unlock()

	c.conn.SetOpusFrameProvider(p)
	c.conn.SetSpeaking(context.TODO(), disvoice.SpeakingFlagMicrophone)
	return true
}

func (c *Conn) detach(p *frameProvider) {
	c.mu.Lock()
	if c.provider != p || c.closed {
		c.mu.Unlock()
		return
	}
	c.provider = nil
	c.status = ""
	c.queueStatusLocked(c.channelID, "")
	c.mu.Unlock()

	c.conn.SetOpusFrameProvider(nil)
	c.conn.SetSpeaking(context.TODO(), 0)
}

func (c *Conn) SetPaused(paused bool) {
	if c.gate.isPaused() == paused {
		return
	}
	c.gate.set(paused)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider == nil || c.status == "" {
		return
	}
	prefix := statusPlaying
	if paused {
		prefix = statusPaused
	}
	c.queueStatusLocked(c.channelID, prefix+trimStatusPrefix(c.status))
}

// Move switches the bot to another channel of the same guild. The voice
// connection follows the gateway's voice server update.
func (c *Conn) Move(ctx context.Context, channelID snowflake.ID) error {
	if err := c.client.UpdateVoiceState(ctx, c.guildID, &channelID, false, false); err != nil {
		return err
	}
	c.mu.Lock()
	from := c.channelID
	c.channelID = channelID
	c.queueStatusLocked(from, "")
	if c.status != "" {
		c.queueStatusLocked(channelID, c.status)
	}
	c.mu.Unlock()

	sys.LogVoice(MsgConnMoved, channelID, c.guildID)
	return nil
}

func (c *Conn) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queueStatusLocked(c.channelID, "")
	c.closed = true
	close(c.statusCh)
	p := c.provider
	c.provider = nil
	c.mu.Unlock()

	if p != nil {
		p.Close()
	}
	c.gate.set(false)
	c.conn.SetOpusFrameProvider(nil)
	c.conn.SetSpeaking(ctx, 0)
	c.conn.Close(ctx)
	sys.LogVoice(MsgConnClosed, c.guildID)
}

func trimStatusPrefix(s string) string {
	for _, p := range []string{statusPlaying, statusPaused} {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest
		}
	}
	return s
}
