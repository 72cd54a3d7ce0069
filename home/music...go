package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/jukebox/proc/player"
	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const (
	MsgMusicNotInVoice     = "You need to be in a voice channel to use this command."
	MsgMusicNotInGuild     = "This command only works in a server."
	MsgMusicResolveFail    = "Could not resolve query. Try a different search."
	MsgMusicPlayFail       = "Could not play resolved track. Check the bot logs for details."
	MsgMusicJoinFail       = "Could not join your voice channel."
	MsgMusicQueued         = "Queued **%s** (position: %d) — requested by %s"
	MsgMusicNowPlaying     = "🎶 Now playing **%s** — requested by %s"
	MsgMusicPaused         = "⏸️ Paused."
	MsgMusicResumed        = "▶️ Resumed."
	MsgMusicSkipped        = "⏭️ Skipped."
	MsgMusicStopped        = "🛑 Stopped and cleared queue."
	MsgMusicNothingPlaying = "Nothing is playing."
	MsgMusicNothingResume  = "Nothing to resume."
	MsgMusicNothingSkip    = "Nothing to skip."
	MsgMusicNothingStop    = "Nothing to stop."
	MsgMusicQueueEmpty     = "Queue is empty."
	MsgMusicHistoryEmpty   = "No tracks have been played here yet."
	MsgMusicHistoryFail    = "Could not load play history."

	MsgMusicPlayError     = "Playback request %q in guild %s failed: %v"
	MsgMusicHistoryError  = "Failed to load history for guild %s: %v"
	MsgMusicReplyFail     = "Failed to send music reply: %v"
	MsgMusicAutocomplete  = "Autocomplete for %q returned %d choices"
	MsgMusicBotDisconnect = "Disconnected from voice in guild %s, stopping session"
)

// Music holds the handles the /music command needs.
type Music struct {
	Registry     *player.Registry
	Suggester    *source.Suggester
	HistoryLimit int
}

// Register adds /music, its autocomplete and the voice-state watcher to the loader.
func Register(m *Music) {
	connectPerm := discord.PermissionConnect

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "music",
		Description:              "Music playback",
		DefaultMemberPermissions: omit.New(&connectPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a track from a URL or search",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "URL or search term",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback, clear the queue and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the current queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "nowplaying",
				Description: "Show the currently playing track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "history",
				Description: "Show recently played tracks",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}
		if event.GuildID() == nil {
			m.replyEphemeral(event, MsgMusicNotInGuild)
			return
		}

		switch *data.SubCommandName {
		case "play":
			m.handlePlay(event, data)
		case "pause":
			m.handlePause(event)
		case "resume":
			m.handleResume(event)
		case "skip":
			m.handleSkip(event)
		case "stop":
			m.handleStop(event)
		case "queue":
			m.handleQueue(event)
		case "nowplaying":
			m.handleNowPlaying(event)
		case "history":
			m.handleHistory(event)
		}
	})

	sys.RegisterAutocompleteHandler("music", m.handleAutocomplete)
	sys.RegisterVoiceStateUpdateHandler(m.handleVoiceStateUpdate)
}

func (m *Music) replyEphemeral(event *events.ApplicationCommandInteractionCreate, content string) {
	m.reply(event, content, true)
}

func (m *Music) reply(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		SetEphemeral(ephemeral).
		Build())
	if err != nil {
		sys.LogDebug(MsgMusicReplyFail, err)
	}
}

func (m *Music) editReply(event *events.ApplicationCommandInteractionCreate, content string) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.NewMessageUpdateBuilder().
			SetContent(content).
			Build())
	if err != nil {
		sys.LogDebug(MsgMusicReplyFail, err)
	}
}
