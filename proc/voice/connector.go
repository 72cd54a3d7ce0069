package voice

import (
	"context"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc/player"
	"github.com/leeineian/jukebox/sys"
)

const MsgConnectFailed = "Failed to connect to voice in guild %s: %v"

// Connector opens disgo voice connections for the player.
type Connector struct {
	Client *bot.Client
}

func NewConnector(client *bot.Client) *Connector {
	return &Connector{Client: client}
}

func (c *Connector) Connect(ctx context.Context, guildID, channelID snowflake.ID) (player.Connection, error) {
	conn := c.Client.VoiceManager.CreateConn(guildID)
	if err := conn.Open(ctx, channelID, false, false); err != nil {
		sys.LogVoice(MsgConnectFailed, guildID, err)
		conn.Close(ctx)
		setChannelStatus(c.Client, channelID, "")
		return nil, err
	}
	return newConn(c.Client, guildID, channelID, conn), nil
}
