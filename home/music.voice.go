package home

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// handleVoiceStateUpdate stops the guild's session when the bot is
// disconnected from voice by someone else.
func (m *Music) handleVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	guildID := event.VoiceState.GuildID
	s, ok := m.Registry.Lookup(guildID)
	if !ok || !leftSessionChannel(event.Client().ID(), event.OldVoiceState, event.VoiceState, s.ChannelID()) {
		return
	}

	sys.LogVoice(MsgMusicBotDisconnect, guildID)
	ctx, cancel := context.WithTimeout(sys.AppContext, stopTimeout)
	defer cancel()
	m.Registry.Stop(ctx, guildID)
}

// leftSessionChannel reports whether an update is the bot leaving the channel
// its session is connected to. A leave from an earlier channel is ignored; an
// unknown old channel counts as the session's own.
func leftSessionChannel(botID snowflake.ID, old, cur discord.VoiceState, sessionChannel snowflake.ID) bool {
	if cur.UserID != botID || cur.ChannelID != nil || sessionChannel == 0 {
		return false
	}
	return old.ChannelID == nil || *old.ChannelID == sessionChannel
}
