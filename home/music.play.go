package home

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc/player"
	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const (
	playTimeout      = 2 * time.Minute
	maxChoiceLength  = 100
	maxChoices       = 25
	truncationSuffix = "..."
)

func (m *Music) handlePlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")
	guildID := *event.GuildID()
	user := event.User()

	voiceState, ok := event.Client().Caches.VoiceState(guildID, user.ID)
	if !ok || voiceState.ChannelID == nil {
		m.replyEphemeral(event, MsgMusicNotInVoice)
		return
	}

	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(sys.AppContext, playTimeout)
	defer cancel()

	requester := source.Requester{ID: user.ID, Username: user.Username}
	t, pos, err := m.Registry.Enqueue(ctx, guildID, *voiceState.ChannelID, query, requester)
	if err != nil {
		sys.LogWarn(MsgMusicPlayError, query, guildID, err)
		m.editReply(event, playErrorMessage(err))
		return
	}
	m.editReply(event, playReply(t, pos, user.Username, m.Registry.NowPlaying(guildID)))
}

// playReply announces t as playing when it went straight to the voice
// connection, and as queued otherwise.
func playReply(t *source.Track, pos int, username string, nowPlaying *source.Track) string {
	if nowPlaying == t {
		return fmt.Sprintf(MsgMusicNowPlaying, t.DisplayTitle(), username)
	}
	return fmt.Sprintf(MsgMusicQueued, t.DisplayTitle(), pos, username)
}

// playErrorMessage maps enqueue failures to the reply shown to the user.
func playErrorMessage(err error) string {
	var resErr *source.ResolutionError
	var srcErr *player.SourceError
	var trErr *player.TransportError
	switch {
	case errors.As(err, &resErr):
		return MsgMusicResolveFail
	case errors.As(err, &srcErr):
		return MsgMusicPlayFail
	case errors.As(err, &trErr):
		return MsgMusicJoinFail
	default:
		return MsgMusicPlayFail
	}
}

func (m *Music) handleAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	query := focused.String()
	if query == "" || m.Suggester == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	suggestions := m.Suggester.Suggest(sys.AppContext, query)
	choices := autocompleteChoices(suggestions)
	sys.LogDebug(MsgMusicAutocomplete, query, len(choices))
	_ = event.AutocompleteResult(choices)
}

// autocompleteChoices uses the URL as the value so picking a choice plays it
// directly; URLs longer than Discord allows fall back to the unlabelled title.
func autocompleteChoices(suggestions []source.Suggestion) []discord.AutocompleteChoice {
	choices := make([]discord.AutocompleteChoice, 0, min(len(suggestions), maxChoices))
	for _, s := range suggestions {
		if len(choices) >= maxChoices {
			break
		}
		name := truncate(s.Title, maxChoiceLength)
		if name == "" {
			continue
		}
		value := s.URL
		if value == "" || len(value) > maxChoiceLength {
			query := s.Query
			if query == "" {
				query = s.Title
			}
			value = truncate(query, maxChoiceLength)
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  name,
			Value: value,
		})
	}
	return choices
}

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= len(truncationSuffix) {
		return string(r[:limit])
	}
	return string(r[:limit-len(truncationSuffix)]) + truncationSuffix
}
