package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc/source"
)

const (
	maxMessageLength = 2000
	maxQueueLines    = 10
	unknownRequester = "unknown"
)

func (m *Music) handleQueue(event *events.ApplicationCommandInteractionCreate) {
	guildID := *event.GuildID()
	m.replyEphemeral(event, formatQueue(m.Registry.NowPlaying(guildID), m.Registry.Queue(guildID)))
}

func (m *Music) handleNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	now := m.Registry.NowPlaying(*event.GuildID())
	if now == nil {
		m.replyEphemeral(event, MsgMusicNothingPlaying)
		return
	}
	m.reply(event, formatNowPlaying(now), false)
}

func formatQueue(now *source.Track, queue []*source.Track) string {
	var sb strings.Builder
	sb.WriteString("## Queue\n")
	if now != nil {
		fmt.Fprintf(&sb, "**Now playing:** %s — requested by %s\n", trackLine(now), requesterName(now))
	}
	if len(queue) == 0 {
		sb.WriteString(MsgMusicQueueEmpty)
		return sb.String()
	}

	sb.WriteString("**Up next:**\n")
	var total time.Duration
	for _, t := range queue {
		total += t.Duration
	}
	for i, t := range queue {
		if i >= maxQueueLines {
			fmt.Fprintf(&sb, "*...and %d more*\n", len(queue)-i)
			break
		}
		line := fmt.Sprintf("%d. %s — %s\n", i+1, trackLine(t), requesterName(t))
		if sb.Len()+len(line) > maxMessageLength-64 {
			fmt.Fprintf(&sb, "*...and %d more*\n", len(queue)-i)
			break
		}
		sb.WriteString(line)
	}
	fmt.Fprintf(&sb, "%d track(s)", len(queue))
	if total > 0 {
		fmt.Fprintf(&sb, ", %s total", formatDuration(total))
	}
	return sb.String()
}

func formatNowPlaying(t *source.Track) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎶 **%s**\n", truncate(t.DisplayTitle(), 256))
	if t.Artist != "" {
		sb.WriteString(t.Artist)
		if t.Album != "" {
			sb.WriteString(" — " + t.Album)
		}
		sb.WriteString("\n")
	}
	if t.Duration > 0 {
		fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(t.Duration))
	}
	if t.URL != "" && strings.HasPrefix(t.URL, "http") {
		fmt.Fprintf(&sb, "<%s>\n", t.URL)
	}
	fmt.Fprintf(&sb, "-# Requested by %s", requesterName(t))
	return sb.String()
}

func trackLine(t *source.Track) string {
	title := truncate(t.DisplayTitle(), 80)
	if t.Duration > 0 {
		return fmt.Sprintf("%s `%s`", title, formatDuration(t.Duration))
	}
	return title
}

func requesterName(t *source.Track) string {
	if t.Requester.Username != "" {
		return t.Requester.Username
	}
	return unknownRequester
}

// formatDuration renders m:ss, or h:mm:ss from one hour up.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	mins := int(d%time.Hour) / int(time.Minute)
	secs := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
