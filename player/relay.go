package player

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// TrackInfo is the playable metadata the relay returns for a resolved query.
type TrackInfo struct {
	Handle     string `json:"handle"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri"`
	Duration   int64  `json:"duration"`
	Seekable   bool   `json:"is_seekable"`
	Stream     bool   `json:"is_stream"`
}

// LoadResult is the relay's answer to a resolve request. Failed marks a
// relay-side load failure (retryable); an empty Tracks slice with
// Failed=false means the query simply matched nothing.
type LoadResult struct {
	Failed bool
	Tracks []TrackInfo
}

// PlayOptions carries optional transport parameters for a play op.
type PlayOptions struct {
	StartTime int64 // ms
	EndTime   int64 // ms
	NoReplace bool
}

// RelayClient is the transport to the remote audio relay fleet. One client
// serves every session; ops are keyed by guild.
type RelayClient interface {
	Resolve(ctx context.Context, query string) (*LoadResult, error)

	Play(ctx context.Context, guildID snowflake.ID, handle string, opts PlayOptions) error
	Stop(ctx context.Context, guildID snowflake.ID) error
	SetPause(ctx context.Context, guildID snowflake.ID, paused bool) error
	SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error
	Seek(ctx context.Context, guildID snowflake.ID, position int64) error
	SetEqualizer(ctx context.Context, guildID snowflake.ID, bands []float64) error
	Destroy(ctx context.Context, guildID snowflake.ID) error

	HasAvailableNodes() bool
	Ping(ctx context.Context) error
	NodeName() string
}

// Resolver turns a query string into track metadata. RelayClient satisfies
// this directly; CachedResolver wraps one with caching and retries.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*LoadResult, error)
}

// VoiceTransport connects and disconnects the bot's voice session for a
// guild. Implementations live outside the core (see the bridge package).
type VoiceTransport interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) error
	Disconnect(ctx context.Context, guildID snowflake.ID) error
	// WaitReady blocks until the voice handshake for the guild has
	// completed and transport commands will be accepted.
	WaitReady(ctx context.Context, guildID snowflake.ID) error
}

// ReplySink delivers status notices to the session's command channel.
// A nil sink or a send failure is a silent no-op, never a session error;
// the sink itself decides which channel the notice lands in.
type ReplySink interface {
	Send(ctx context.Context, content string) (snowflake.ID, error)
	Delete(ctx context.Context, messageID snowflake.ID) error
}

// Presence reports how many non-bot listeners share a voice channel.
type Presence interface {
	ListenerCount(guildID, channelID snowflake.ID) int
}

// Snapshot is one serialized player session.
type Snapshot struct {
	GuildID snowflake.ID
	Payload []byte
	SavedAt time.Time
}

// SnapshotStore persists session snapshots keyed by relay node name. Save
// replaces the node's whole snapshot set.
type SnapshotStore interface {
	Save(ctx context.Context, nodeName string, snapshots []Snapshot) error
	Load(ctx context.Context, nodeName string) ([]Snapshot, error)
	Delete(ctx context.Context, nodeName string) error
}
