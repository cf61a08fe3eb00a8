// Package bridge adapts the Discord gateway and REST surface (disgo) to
// the collaborator contracts of the session engine.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"

	"github.com/quaverbot/quaver/player"
)

// ChannelNotifier posts session notices to a text channel. The target
// channel follows the most recent command, so notices land where the
// conversation is. It implements player.ReplySink.
type ChannelNotifier struct {
	client *bot.Client

	mu        sync.Mutex
	channelID snowflake.ID
}

var _ player.ReplySink = (*ChannelNotifier)(nil)

func NewChannelNotifier(client *bot.Client, channelID snowflake.ID) *ChannelNotifier {
	return &ChannelNotifier{client: client, channelID: channelID}
}

// SetChannel retargets future notices.
func (n *ChannelNotifier) SetChannel(channelID snowflake.ID) {
	n.mu.Lock()
	n.channelID = channelID
	n.mu.Unlock()
}

func (n *ChannelNotifier) channel() snowflake.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channelID
}

func (n *ChannelNotifier) Send(ctx context.Context, content string) (snowflake.ID, error) {
	channelID := n.channel()
	if channelID == 0 {
		return 0, fmt.Errorf("no notice channel known")
	}
	msg, err := n.client.Rest.CreateMessage(channelID, discord.MessageCreate{
		Content: content,
	}, rest.WithCtx(ctx))
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (n *ChannelNotifier) Delete(ctx context.Context, messageID snowflake.ID) error {
	channelID := n.channel()
	if channelID == 0 {
		return nil
	}
	return n.client.Rest.DeleteMessage(channelID, messageID, rest.WithCtx(ctx))
}

// VoiceBridge owns gateway voice connections per guild. It implements
// player.VoiceTransport.
type VoiceBridge struct {
	client *bot.Client

	mu    sync.Mutex
	conns map[snowflake.ID]voice.Conn
}

var _ player.VoiceTransport = (*VoiceBridge)(nil)

func NewVoiceBridge(client *bot.Client) *VoiceBridge {
	return &VoiceBridge{
		client: client,
		conns:  make(map[snowflake.ID]voice.Conn),
	}
}

func (v *VoiceBridge) conn(guildID snowflake.ID) voice.Conn {
	v.mu.Lock()
	defer v.mu.Unlock()
	conn, ok := v.conns[guildID]
	if !ok {
		conn = v.client.VoiceManager.CreateConn(guildID)
		v.conns[guildID] = conn
	}
	return conn
}

// Connect opens the gateway voice connection, retrying with exponential
// backoff before giving up.
func (v *VoiceBridge) Connect(ctx context.Context, guildID, channelID snowflake.ID) error {
	conn := v.conn(guildID)

	var lastErr error
	for i := range 5 {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 1000 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	conn.Close(ctx)
	return fmt.Errorf("open voice connection after 5 attempts: %w", lastErr)
}

func (v *VoiceBridge) Disconnect(ctx context.Context, guildID snowflake.ID) error {
	v.mu.Lock()
	conn, ok := v.conns[guildID]
	delete(v.conns, guildID)
	v.mu.Unlock()
	if !ok {
		return nil
	}
	conn.Close(ctx)
	return nil
}

// WaitReady reports whether the gateway handshake completed. Conn.Open
// blocks until the voice server answers, so an open connection is a ready
// one.
func (v *VoiceBridge) WaitReady(ctx context.Context, guildID snowflake.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	_, ok := v.conns[guildID]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("no voice connection for guild %s", guildID)
	}
	return nil
}

// Roster counts audible humans in a voice channel from the gateway cache.
// It implements player.Presence.
type Roster struct {
	client *bot.Client
}

var _ player.Presence = (*Roster)(nil)

func NewRoster(client *bot.Client) *Roster {
	return &Roster{client: client}
}

func (r *Roster) ListenerCount(guildID, channelID snowflake.ID) int {
	if channelID == 0 {
		return 0
	}
	humanCount := 0
	for state := range r.client.Caches.VoiceStates(guildID) {
		if state.ChannelID != nil && *state.ChannelID == channelID && state.UserID != r.client.ID() {
			if state.SelfDeaf {
				continue
			}
			if m, ok := r.client.Caches.Member(guildID, state.UserID); !ok || !m.User.Bot {
				humanCount++
			}
		}
	}
	return humanCount
}
