package voice

import (
	"net/http"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const (
	maxStatusRunes = 128

	statusPlaying = "🎶 "
	statusPaused  = "⏸️ "

	MsgStatusFailed = "Failed to update status for %s: %v"
)

// setChannelStatus sets or, with an empty status, clears a voice channel's status.
func setChannelStatus(client *bot.Client, channelID snowflake.ID, status string) {
	if client == nil || channelID == 0 {
		return
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	if err := client.Rest.Do(route.Compile(nil), map[string]string{"status": status}, nil); err != nil {
		sys.LogVoice(MsgStatusFailed, channelID, err)
	}
}

// trackStatus renders "<prefix>title · artist" within the status length limit,
// shortening the title first.
func trackStatus(prefix string, t *source.Track) string {
	if t == nil {
		return ""
	}
	suffix := ""
	if t.Artist != "" {
		suffix = " · " + t.Artist
	}
	return truncatePreserve(t.DisplayTitle(), maxStatusRunes, prefix, suffix)
}

func truncatePreserve(text string, maxLen int, prefix, suffix string) string {
	room := maxLen - len([]rune(prefix)) - len([]rune(suffix))
	if room < 8 {
		suffix = ""
		room = maxLen - len([]rune(prefix))
	}
	r := []rune(text)
	if len(r) > room {
		text = strings.TrimSpace(string(r[:room-1])) + "…"
	}
	return prefix + text + suffix
}
