package player

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	manager  *Manager
	relay    *fakeRelay
	store    *fakeStore
	sessions map[snowflake.ID]*testSession
}

func newManagerFixture() *managerFixture {
	relay := newFakeRelay()
	store := newFakeStore()
	f := &managerFixture{
		relay:    relay,
		store:    store,
		sessions: make(map[snowflake.ID]*testSession),
	}
	f.manager = NewManager(relay, store, func(guildID snowflake.ID) Deps {
		s := &testSession{
			relay:     relay,
			transport: &fakeTransport{},
			replies:   &fakeReplies{},
			presence:  &fakePresence{humans: 1},
		}
		f.sessions[guildID] = s
		return Deps{
			Relay:     s.relay,
			Transport: s.transport,
			Replies:   s.replies,
			Presence:  s.presence,
		}
	})
	return f
}

func TestManagerGetOrCreate(t *testing.T) {
	f := newManagerFixture()
	a := f.manager.GetOrCreate(snowflake.ID(1))
	b := f.manager.GetOrCreate(snowflake.ID(1))
	require.Same(t, a, b)

	c := f.manager.GetOrCreate(snowflake.ID(2))
	require.NotSame(t, a, c)
	require.Len(t, f.manager.Players(), 2)

	_, ok := f.manager.Get(snowflake.ID(3))
	require.False(t, ok)
}

func TestManagerRoutesEvents(t *testing.T) {
	f := newManagerFixture()
	p := f.manager.GetOrCreate(snowflake.ID(1))
	f.relay.addTrack("ytsearch:alpha", "handle-alpha", "alpha", 60_000)
	f.relay.addTrack("ytsearch:beta", "handle-beta", "beta", 60_000)
	require.NoError(t, p.Enqueue(context.Background(),
		NewTrack("ytsearch:alpha", "alpha", snowflake.ID(9)),
		NewTrack("ytsearch:beta", "beta", snowflake.ID(9))))

	f.manager.HandleEvent(context.Background(), snowflake.ID(1), Event{
		Kind:        EventTrackEnd,
		TrackHandle: "handle-alpha",
		Reason:      EndReasonFinished,
	})
	require.Equal(t, "handle-beta", f.relay.lastPlayed())

	// unknown guild is a no-op
	f.manager.HandleEvent(context.Background(), snowflake.ID(99), Event{Kind: EventTrackEnd})
}

func TestManagerSweepDisconnectsAbandonedSessions(t *testing.T) {
	f := newManagerFixture()
	p := f.manager.GetOrCreate(snowflake.ID(1))
	require.NoError(t, p.Connect(context.Background(), snowflake.ID(42)))

	// someone is still listening
	f.manager.sweep()
	require.True(t, p.Connected())

	f.sessions[snowflake.ID(1)].presence.humans = 0
	f.manager.sweep()
	require.False(t, p.Connected())
}

func TestManagerShutdownPersistsAndRestores(t *testing.T) {
	f := newManagerFixture()
	p := f.manager.GetOrCreate(snowflake.ID(1))
	require.NoError(t, p.Connect(context.Background(), snowflake.ID(42)))
	f.relay.addTrack("ytsearch:alpha", "handle-alpha", "alpha", 60_000)
	require.NoError(t, p.Enqueue(context.Background(), NewTrack("ytsearch:alpha", "alpha", snowflake.ID(9))))
	p.Queue().UpdateState(11_000)

	require.NoError(t, f.manager.Shutdown(context.Background()))
	require.Len(t, f.store.data[f.relay.node], 1)
	require.Empty(t, f.manager.Players())

	// a fresh process restores from the same store
	f2 := &managerFixture{
		relay:    f.relay,
		store:    f.store,
		sessions: make(map[snowflake.ID]*testSession),
	}
	f2.manager = NewManager(f2.relay, f2.store, func(guildID snowflake.ID) Deps {
		return Deps{Relay: f2.relay, Transport: &fakeTransport{}, Replies: &fakeReplies{}, Presence: &fakePresence{humans: 1}}
	})
	require.NoError(t, f2.manager.RestoreNode(context.Background()))

	restored, ok := f2.manager.Get(snowflake.ID(1))
	require.True(t, ok)
	require.True(t, restored.Connected())
	require.Equal(t, "handle-alpha", f2.relay.lastPlayed())
	require.InDelta(t, 11_000, f2.relay.lastPlayOpts.StartTime, 300)

	// the store entry is consumed on restore
	require.Empty(t, f.store.data[f.relay.node])
}

func TestManagerRestoreSkipsStaleSnapshots(t *testing.T) {
	f := newManagerFixture()
	dump := PlayerDump{
		GuildID:   snowflake.ID(5),
		ChannelID: snowflake.ID(42),
		Volume:    defaultUserVolume,
		Queue:     QueueDump{HasCurrent: true},
	}
	payload, err := json.Marshal(dump)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), f.relay.node, []Snapshot{{
		GuildID: dump.GuildID,
		Payload: payload,
		SavedAt: time.Now().Add(-snapshotMaxAge - time.Minute),
	}}))

	require.NoError(t, f.manager.RestoreNode(context.Background()))
	_, ok := f.manager.Get(snowflake.ID(5))
	require.False(t, ok, "stale snapshot must not be restored")
	require.Empty(t, f.relay.played())
}
