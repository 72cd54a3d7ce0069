package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

const stopTimeout = 10 * time.Second

func (m *Music) handlePause(event *events.ApplicationCommandInteractionCreate) {
	m.replyEphemeral(event, controlReply(m.Registry.Pause(*event.GuildID()), MsgMusicPaused, MsgMusicNothingPlaying))
}

func (m *Music) handleResume(event *events.ApplicationCommandInteractionCreate) {
	m.replyEphemeral(event, controlReply(m.Registry.Resume(*event.GuildID()), MsgMusicResumed, MsgMusicNothingResume))
}

func (m *Music) handleSkip(event *events.ApplicationCommandInteractionCreate) {
	m.replyEphemeral(event, controlReply(m.Registry.Skip(*event.GuildID()), MsgMusicSkipped, MsgMusicNothingSkip))
}

func (m *Music) handleStop(event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := context.WithTimeout(sys.AppContext, stopTimeout)
	defer cancel()
	m.replyEphemeral(event, controlReply(m.Registry.Stop(ctx, *event.GuildID()), MsgMusicStopped, MsgMusicNothingStop))
}

func controlReply(ok bool, done, noop string) string {
	if ok {
		return done
	}
	return noop
}
