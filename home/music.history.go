package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

const historyTimeout = 5 * time.Second

func (m *Music) handleHistory(event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := context.WithTimeout(sys.AppContext, historyTimeout)
	defer cancel()

	limit := m.HistoryLimit
	if limit <= 0 {
		limit = sys.DefaultHistoryLimit
	}
	entries, err := sys.GetTrackHistory(ctx, *event.GuildID(), limit)
	if err != nil {
		sys.LogDatabase(MsgMusicHistoryError, *event.GuildID(), err)
		m.replyEphemeral(event, MsgMusicHistoryFail)
		return
	}
	m.replyEphemeral(event, formatHistory(entries))
}

func formatHistory(entries []*sys.HistoryEntry) string {
	if len(entries) == 0 {
		return MsgMusicHistoryEmpty
	}
	var sb strings.Builder
	sb.WriteString("## Recently played\n")
	for i, e := range entries {
		title := truncate(e.Title, 80)
		if e.Artist != "" {
			title += " · " + truncate(e.Artist, 40)
		}
		who := e.RequesterName
		if who == "" {
			who = unknownRequester
		}
		line := fmt.Sprintf("%d. %s — %s <t:%d:R>\n", i+1, title, who, e.PlayedAt.Unix())
		if sb.Len()+len(line) > maxMessageLength {
			break
		}
		sb.WriteString(line)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
