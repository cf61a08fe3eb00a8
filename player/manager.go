package player

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	// snapshotMaxAge is how old a saved session may be and still get
	// restored after a restart.
	snapshotMaxAge = 30 * time.Minute

	// sweepInterval is how often abandoned sessions are checked for.
	sweepInterval = 20 * time.Second
)

// DepsFunc builds the per-guild collaborators for a new session. Reply
// sinks are guild-specific (each session talks to its own text channel),
// so the manager can't share one Deps value.
type DepsFunc func(guildID snowflake.ID) Deps

// Manager owns every live session, keyed by guild. It routes relay events,
// reclaims abandoned sessions and persists/restores them across restarts.
type Manager struct {
	relay RelayClient
	store SnapshotStore
	deps  DepsFunc

	mu      sync.Mutex
	players map[snowflake.ID]*Player

	done chan struct{}
	once sync.Once
}

// NewManager creates a session registry. store may be nil when persistence
// is disabled.
func NewManager(relay RelayClient, store SnapshotStore, deps DepsFunc) *Manager {
	return &Manager{
		relay:   relay,
		store:   store,
		deps:    deps,
		players: make(map[snowflake.ID]*Player),
		done:    make(chan struct{}),
	}
}

// Get returns the session for a guild if one exists.
func (m *Manager) Get(guildID snowflake.ID) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

// GetOrCreate returns the guild's session, creating one on first use.
func (m *Manager) GetOrCreate(guildID snowflake.ID) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[guildID]; ok {
		return p
	}
	p := NewPlayer(guildID, m.deps(guildID))
	m.players[guildID] = p
	return p
}

// Remove drops a session from the registry after releasing it.
func (m *Manager) Remove(ctx context.Context, guildID snowflake.ID) {
	m.mu.Lock()
	p, ok := m.players[guildID]
	delete(m.players, guildID)
	m.mu.Unlock()
	if ok {
		if err := p.Shutdown(ctx); err != nil {
			logPlayerWarn("Failed to shut down session for guild %s: %v", guildID, err)
		}
	}
}

// Players returns a snapshot of all live sessions.
func (m *Manager) Players() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// HandleEvent routes a relay event to its session. Events for unknown
// guilds are dropped.
func (m *Manager) HandleEvent(ctx context.Context, guildID snowflake.ID, ev Event) {
	if p, ok := m.Get(guildID); ok {
		p.HandleEvent(ctx, ev)
	}
}

// UpdateState routes a relay position report to its session.
func (m *Manager) UpdateState(guildID snowflake.ID, positionMS int64) {
	if p, ok := m.Get(guildID); ok {
		p.mu.Lock()
		p.queue.UpdateState(positionMS)
		p.mu.Unlock()
	}
}

// Start launches the background sweep that disconnects sessions everyone
// has left.
func (m *Manager) Start() {
	go m.sweepLoop()
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep disconnects every connected session whose voice channel has no
// human listeners left. A session playing to an audience is never touched.
func (m *Manager) sweep() {
	for _, p := range m.Players() {
		if !p.Connected() {
			continue
		}
		if p.HumanListeners() > 0 {
			continue
		}
		logPlayer("Nobody is listening in guild %s, disconnecting", p.GuildID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.Disconnect(ctx); err != nil {
			logPlayerWarn("Sweep disconnect failed for guild %s: %v", p.GuildID, err)
		}
		cancel()
	}
}

// Shutdown persists every connected session under the relay node's name
// and releases them. Sessions that were merely idle are saved too; their
// dumps carry the stopped flag so restore won't start playback.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() { close(m.done) })

	var snapshots []Snapshot
	for _, p := range m.Players() {
		if !p.Connected() {
			continue
		}
		dump := p.Dump()
		payload, err := json.Marshal(dump)
		if err != nil {
			logPlayerWarn("Failed to serialize session for guild %s: %v", p.GuildID, err)
			continue
		}
		snapshots = append(snapshots, Snapshot{
			GuildID: p.GuildID,
			Payload: payload,
			SavedAt: time.Now(),
		})
	}

	if m.store != nil && len(snapshots) > 0 {
		if err := m.store.Save(ctx, m.relay.NodeName(), snapshots); err != nil {
			logPlayerWarn("Failed to persist %d sessions: %v", len(snapshots), err)
		} else {
			logPlayer("Persisted %d sessions for node %s", len(snapshots), m.relay.NodeName())
		}
	}

	m.mu.Lock()
	players := m.players
	m.players = make(map[snowflake.ID]*Player)
	m.mu.Unlock()
	for _, p := range players {
		if err := p.Shutdown(ctx); err != nil {
			logPlayerWarn("Failed to shut down session for guild %s: %v", p.GuildID, err)
		}
	}
	return nil
}

// RestoreNode reloads the sessions saved under the relay node's name and
// resumes them. Snapshots older than the staleness cutoff are discarded:
// after half an hour the voice room has moved on.
func (m *Manager) RestoreNode(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	node := m.relay.NodeName()
	snapshots, err := m.store.Load(ctx, node)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}
	logPlayer("Restoring %d sessions for node %s", len(snapshots), node)

	for _, snap := range snapshots {
		if time.Since(snap.SavedAt) > snapshotMaxAge {
			logPlayer("Skipping stale session for guild %s (saved %s ago)",
				snap.GuildID, time.Since(snap.SavedAt).Round(time.Second))
			continue
		}
		var dump PlayerDump
		if err := json.Unmarshal(snap.Payload, &dump); err != nil {
			logPlayerWarn("Corrupt session payload for guild %s: %v", snap.GuildID, err)
			continue
		}
		p := LoadPlayerDump(dump, m.deps(dump.GuildID))
		if err := p.Restore(ctx, dump); err != nil {
			logPlayerWarn("Failed to restore session for guild %s: %v", dump.GuildID, err)
			continue
		}
		m.mu.Lock()
		m.players[dump.GuildID] = p
		m.mu.Unlock()
	}

	if err := m.store.Delete(ctx, node); err != nil {
		logPlayerWarn("Failed to clear restored sessions for node %s: %v", node, err)
	}
	return nil
}
